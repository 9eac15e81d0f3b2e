package client

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/dnscache"

	"github.com/authlyhq/authly-go/authlyerr"
	"github.com/authlyhq/authly-go/connection"
	"github.com/authlyhq/authly-go/id128"
	"github.com/authlyhq/authly-go/identity"
	"github.com/authlyhq/authly-go/internal/rpc"
	"github.com/authlyhq/authly-go/reconcile"
)

// entityUniqueIdentifierOID is declared in tls.go; reused here to stamp
// the test service identity's certificate the same way a real one is.

func selfSignedCA(t *testing.T) (pemBytes []byte, key *ecdsa.PrivateKey, cert *x509.Certificate) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "authly-test-ca"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		IsCA:                  true,
		KeyUsage:              x509.KeyUsageCertSign,
		BasicConstraintsValid: true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatal(err)
	}
	cert, err = x509.ParseCertificate(der)
	if err != nil {
		t.Fatal(err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), key, cert
}

func serviceIdentity(t *testing.T, caCert *x509.Certificate, caKey *ecdsa.PrivateKey, entityID id128.EntityId) *identity.Identity {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(2),
		Subject: pkix.Name{
			CommonName: "test-service.svc",
			ExtraNames: []pkix.AttributeTypeAndValue{
				{Type: entityUniqueIdentifierOID, Value: entityID.String()},
			},
		},
		NotBefore: time.Now().Add(-time.Hour),
		NotAfter:  time.Now().Add(24 * time.Hour),
		KeyUsage:  x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, caCert, &key.PublicKey, caKey)
	if err != nil {
		t.Fatal(err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatal(err)
	}
	var bundle []byte
	bundle = append(bundle, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})...)
	bundle = append(bundle, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})...)
	id, err := identity.FromPEM(bundle)
	if err != nil {
		t.Fatal(err)
	}
	return id
}

// fakeClient implements rpc.AuthorityClient with canned responses,
// standing in for the authority without a real gRPC server, the same
// approach the reconcile package's own tests use.
type fakeClient struct {
	accessControlValue int64
	accessControlErr   error
	metadataResp       *rpc.GetMetadataResponse
}

func (c *fakeClient) GetMetadata(ctx context.Context) (*rpc.GetMetadataResponse, error) {
	if c.metadataResp != nil {
		return c.metadataResp, nil
	}
	return &rpc.GetMetadataResponse{}, nil
}
func (c *fakeClient) GetConfiguration(ctx context.Context) (*rpc.GetConfigurationResponse, error) {
	return &rpc.GetConfigurationResponse{}, nil
}
func (c *fakeClient) Messages(ctx context.Context) (rpc.MessageStream, error) {
	return nil, errors.New("fakeClient: Messages not implemented")
}
func (c *fakeClient) Pong(ctx context.Context) error { return nil }
func (c *fakeClient) GetAccessToken(ctx context.Context, cookie string) (string, error) {
	return "", nil
}
func (c *fakeClient) AccessControl(ctx context.Context, req *rpc.AccessControlRequest) (int64, error) {
	if c.accessControlErr != nil {
		return 0, c.accessControlErr
	}
	return c.accessControlValue, nil
}
func (c *fakeClient) SignCertificate(ctx context.Context, csrDER []byte) ([]byte, error) {
	return nil, errors.New("fakeClient: SignCertificate not implemented")
}
func (c *fakeClient) GetResourcePropertyMappings(ctx context.Context) (*rpc.GetResourcePropertyMappingsResponse, error) {
	attrID, _ := id128.Random(id128.Attribute)
	return &rpc.GetResourcePropertyMappingsResponse{
		Namespaces: []rpc.PropertyMappingNamespace{
			{
				Label: "billing",
				Properties: []rpc.PropertyMappingProperty{
					{
						Label: "role",
						Attributes: []rpc.PropertyMappingAttribute{
							{Label: "admin", ObjID: rpc.EncodeID(attrID)},
						},
					},
				},
			},
		},
	}, nil
}

// newTestClient wires a Client against a fake authority: a real,
// self-consistent connection.Params (so JWT decoding and entity ID
// derivation work), but an RPC layer that never touches the network. It
// also returns the CA private key, since DecodeAccessToken verifies
// against the CA's public key and a positive-path test needs to sign
// with its counterpart.
func newTestClient(t *testing.T, fc *fakeClient) (*Client, *ecdsa.PrivateKey) {
	t.Helper()
	caPEM, caKey, caCert := selfSignedCA(t)
	entityID, err := id128.Random(id128.Service)
	if err != nil {
		t.Fatal(err)
	}
	id := serviceIdentity(t, caCert, caKey, entityID)
	params, err := connection.NewParams(connection.Manual, "authly:443", caPEM, id)
	if err != nil {
		t.Fatalf("NewParams: %v", err)
	}
	manager, err := connection.NewManager(context.Background(), connection.Fixed{Params: params})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	r := reconcile.NewWithClient(context.Background(), manager, func() rpc.AuthorityClient { return fc }, reconcile.Options{})
	t.Cleanup(r.Close)

	return &Client{
		reconciler: r,
		dns:        &dnscache.Resolver{},
		tokens:     newTokenCache(),
	}, caKey
}

func TestAccessControlRequestEvaluateAllow(t *testing.T) {
	t.Parallel()

	c, _ := newTestClient(t, &fakeClient{accessControlValue: 1})
	allow, err := c.AccessControlRequest().
		WithResourceAttribute("billing", "role", "admin").
		Evaluate(context.Background())
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !allow {
		t.Fatal("expected allow")
	}
}

func TestAccessControlRequestEvaluateDeny(t *testing.T) {
	t.Parallel()

	c, _ := newTestClient(t, &fakeClient{accessControlValue: 0})
	allow, err := c.AccessControlRequest().Evaluate(context.Background())
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if allow {
		t.Fatal("expected deny")
	}
}

func TestAccessControlRequestEnforceDeniedReturnsSentinel(t *testing.T) {
	t.Parallel()

	c, _ := newTestClient(t, &fakeClient{accessControlValue: 0})
	err := c.AccessControlRequest().Enforce(context.Background())
	if !errors.Is(err, authlyerr.ErrAccessDenied) {
		t.Fatalf("Enforce() = %v, want ErrAccessDenied", err)
	}
}

func TestAccessControlRequestUnknownAttributeFails(t *testing.T) {
	t.Parallel()

	c, _ := newTestClient(t, &fakeClient{accessControlValue: 1})
	_, err := c.AccessControlRequest().
		WithResourceAttribute("billing", "role", "nonexistent").
		Evaluate(context.Background())
	if !errors.Is(err, authlyerr.ErrInvalidPropertyAttributeLabel) {
		t.Fatalf("Evaluate() = %v, want ErrInvalidPropertyAttributeLabel", err)
	}
}

func TestDecodeAccessTokenRoundTrip(t *testing.T) {
	t.Parallel()

	c, caKey := newTestClient(t, &fakeClient{})

	entityID, err := id128.Random(id128.Entity)
	if err != nil {
		t.Fatal(err)
	}
	attrID, err := id128.Random(id128.Attribute)
	if err != nil {
		t.Fatal(err)
	}

	claims := tokenClaims{
		EntityID:         entityID.String(),
		EntityAttributes: []string{attrID.String()},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodES256, claims).SignedString(caKey)
	if err != nil {
		t.Fatal(err)
	}

	tok, err := c.DecodeAccessToken(signed)
	if err != nil {
		t.Fatalf("DecodeAccessToken: %v", err)
	}
	if tok.EntityID != entityID {
		t.Errorf("EntityID = %s, want %s", tok.EntityID, entityID)
	}
	if !tok.EntityAttributes.Has(attrID) {
		t.Errorf("EntityAttributes missing %s", attrID)
	}

	// A second decode of the same raw JWT should hit the cache rather
	// than re-verify the signature; the decoded value must be identical.
	tok2, err := c.DecodeAccessToken(signed)
	if err != nil {
		t.Fatalf("DecodeAccessToken (cached): %v", err)
	}
	if tok2.EntityID != tok.EntityID {
		t.Errorf("cached EntityID = %s, want %s", tok2.EntityID, tok.EntityID)
	}
}

func TestDecodeAccessTokenRejectsUntrustedSigner(t *testing.T) {
	t.Parallel()

	c, _ := newTestClient(t, &fakeClient{})

	entityID, err := id128.Random(id128.Entity)
	if err != nil {
		t.Fatal(err)
	}
	otherKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}

	claims := tokenClaims{EntityID: entityID.String()}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodES256, claims).SignedString(otherKey)
	if err != nil {
		t.Fatal(err)
	}

	_, err = c.DecodeAccessToken(signed)
	if !errors.Is(err, authlyerr.ErrInvalidAccessToken) {
		t.Fatalf("DecodeAccessToken() = %v, want ErrInvalidAccessToken for a token signed by an untrusted key", err)
	}
}

func TestMetadataDecodesEntityID(t *testing.T) {
	t.Parallel()

	entityID, err := id128.Random(id128.Entity)
	if err != nil {
		t.Fatal(err)
	}
	c, _ := newTestClient(t, &fakeClient{
		metadataResp: &rpc.GetMetadataResponse{
			EntityID: rpc.EncodeID(entityID),
			Label:    "checkout",
		},
	})

	md, err := c.Metadata(context.Background())
	if err != nil {
		t.Fatalf("Metadata: %v", err)
	}
	if md.Label != "checkout" {
		t.Errorf("Label = %q, want %q", md.Label, "checkout")
	}
	if md.EntityID != entityID {
		t.Errorf("EntityID = %s, want %s", md.EntityID, entityID)
	}
}
