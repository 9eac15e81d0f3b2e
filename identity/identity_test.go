package identity

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"testing"
	"time"
)

func generateTestBundle(t *testing.T) []byte {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "test-service"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("create certificate: %v", err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatalf("marshal key: %v", err)
	}

	var out []byte
	out = append(out, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})...)
	out = append(out, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})...)
	return out
}

func TestFromPEMParsesCertAndKey(t *testing.T) {
	t.Parallel()

	bundle := generateTestBundle(t)
	id, err := FromPEM(bundle)
	if err != nil {
		t.Fatalf("FromPEM: %v", err)
	}
	if id.Cert.Subject.CommonName != "test-service" {
		t.Errorf("CommonName = %q", id.Cert.Subject.CommonName)
	}
	if _, ok := id.PrivateKey.(*ecdsa.PrivateKey); !ok {
		t.Errorf("PrivateKey type = %T, want *ecdsa.PrivateKey", id.PrivateKey)
	}
}

func TestFromPEMRejectsMissingParts(t *testing.T) {
	t.Parallel()

	bundle := generateTestBundle(t)
	certOnly, _ := pem.Decode(bundle)
	onlyCert := pem.EncodeToMemory(certOnly)

	if _, err := FromPEM(onlyCert); err == nil {
		t.Error("expected error for bundle missing a private key")
	}
	if _, err := FromPEM(nil); err == nil {
		t.Error("expected error for empty bundle")
	}
}
