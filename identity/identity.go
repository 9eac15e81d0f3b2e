// Package identity implements mTLS identity acquisition: parsing a
// pre-provisioned PEM bundle, or exchanging a workload credential for a
// freshly signed certificate via the bootstrap CSR endpoint.
package identity

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"

	"github.com/authlyhq/authly-go/authlyerr"
)

// Identity is exactly one X.509 certificate paired with its private key,
// both as PEM and parsed form.
type Identity struct {
	CertPEM []byte
	KeyPEM  []byte

	Cert       *x509.Certificate
	PrivateKey crypto.Signer
}

// FromPEM parses a bundle containing exactly one certificate and one
// private key. The key may be RSA (PKCS#1 or PKCS#8) or EC (SEC1),
// matching what a workload orchestrator or the bootstrap endpoint hands
// back.
func FromPEM(bundle []byte) (*Identity, error) {
	var certDER []byte
	var keyDER []byte
	var keyPEMBlock *pem.Block

	rest := bundle
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		switch block.Type {
		case "CERTIFICATE":
			if certDER != nil {
				return nil, fmt.Errorf("%w: bundle contains more than one certificate", authlyerr.ErrIdentity)
			}
			certDER = block.Bytes
		case "RSA PRIVATE KEY", "PRIVATE KEY", "EC PRIVATE KEY":
			if keyDER != nil {
				return nil, fmt.Errorf("%w: bundle contains more than one private key", authlyerr.ErrIdentity)
			}
			keyDER = block.Bytes
			keyPEMBlock = block
		}
	}
	if certDER == nil {
		return nil, fmt.Errorf("%w: bundle has no certificate", authlyerr.ErrIdentity)
	}
	if keyDER == nil {
		return nil, fmt.Errorf("%w: bundle has no private key", authlyerr.ErrIdentity)
	}

	cert, err := x509.ParseCertificate(certDER)
	if err != nil {
		return nil, fmt.Errorf("%w: parse certificate: %v", authlyerr.ErrIdentity, err)
	}

	signer, err := parsePrivateKey(keyPEMBlock)
	if err != nil {
		return nil, fmt.Errorf("%w: parse private key: %v", authlyerr.ErrIdentity, err)
	}

	return &Identity{
		CertPEM:    pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER}),
		KeyPEM:     pem.EncodeToMemory(keyPEMBlock),
		Cert:       cert,
		PrivateKey: signer,
	}, nil
}

func parsePrivateKey(block *pem.Block) (crypto.Signer, error) {
	switch block.Type {
	case "RSA PRIVATE KEY":
		k, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		return k, nil
	case "EC PRIVATE KEY":
		k, err := x509.ParseECPrivateKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		return k, nil
	case "PRIVATE KEY":
		k, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		switch key := k.(type) {
		case *rsa.PrivateKey:
			return key, nil
		case *ecdsa.PrivateKey:
			return key, nil
		default:
			return nil, fmt.Errorf("unsupported PKCS#8 key type %T", k)
		}
	default:
		return nil, fmt.Errorf("unsupported key PEM block type %q", block.Type)
	}
}

// KeyPair returns the certificate as a one-element DER chain (the shape
// of tls.Certificate.Certificate) and the private key as PEM.
func (id *Identity) KeyPair() (tlsCert [][]byte, keyPEM []byte) {
	return [][]byte{id.Cert.Raw}, id.KeyPEM
}
