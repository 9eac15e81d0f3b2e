// Package connection builds and holds the gRPC channel parameters a
// client runtime needs to talk to the authority: TLS material, the
// authority URL, and the derived JWT-verification key.
package connection

import (
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/asn1"
	"fmt"

	"github.com/authlyhq/authly-go/authlyerr"
	"github.com/authlyhq/authly-go/id128"
	"github.com/authlyhq/authly-go/identity"
)

// Inference distinguishes how Params were produced: Inferred means they
// came from re-reading the workload environment (and should be rebuilt
// the same way on reconfigure); Manual means a builder supplied them
// directly and reconfigure simply reuses them.
type Inference int

const (
	Inferred Inference = iota
	Manual
)

// entityUniqueIdentifierOID is the custom Subject attribute OID the
// authority uses to carry the service's entity ID alongside the free-form
// common name.
var entityUniqueIdentifierOID = asn1.ObjectIdentifier{2, 5, 4, 45}

// Params is the full set of parameters needed to open (or reopen) a
// connection to the authority.
type Params struct {
	Inference      Inference
	URL            string
	AuthlyLocalCA  []byte // PEM
	Identity       *identity.Identity
	EntityID       id128.EntityId
	JWTDecodingKey *ecdsa.PublicKey
}

// NewParams derives entity ID and JWT decoding key from the supplied CA
// and identity, validating their shape up front so later RPCs never hit a
// surprise type assertion failure.
func NewParams(inference Inference, url string, caPEM []byte, id *identity.Identity) (*Params, error) {
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caPEM) {
		return nil, fmt.Errorf("%w: local CA PEM contains no usable certificates", authlyerr.ErrAuthlyCA)
	}

	caCert, err := parseFirstCACert(caPEM)
	if err != nil {
		return nil, err
	}
	pub, ok := caCert.PublicKey.(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: authority CA public key is not EC", authlyerr.ErrAuthlyCA)
	}

	entityID, err := entityIDFromCert(id.Cert)
	if err != nil {
		return nil, err
	}

	return &Params{
		Inference:      inference,
		URL:            url,
		AuthlyLocalCA:  caPEM,
		Identity:       id,
		EntityID:       entityID,
		JWTDecodingKey: pub,
	}, nil
}

func parseFirstCACert(caPEM []byte) (*x509.Certificate, error) {
	block, _ := pemDecodeFirst(caPEM)
	if block == nil {
		return nil, fmt.Errorf("%w: no PEM block in local CA", authlyerr.ErrAuthlyCA)
	}
	cert, err := x509.ParseCertificate(block)
	if err != nil {
		return nil, fmt.Errorf("%w: parse local CA: %v", authlyerr.ErrAuthlyCA, err)
	}
	return cert, nil
}

func entityIDFromCert(cert *x509.Certificate) (id128.EntityId, error) {
	for _, name := range cert.Subject.Names {
		if !name.Type.Equal(entityUniqueIdentifierOID) {
			continue
		}
		s, ok := name.Value.(string)
		if !ok {
			continue
		}
		eid, err := id128.Parse(s, id128.Entity)
		if err != nil {
			return id128.Id128{}, fmt.Errorf("%w: entity unique identifier subject attribute: %v", authlyerr.ErrIdentity, err)
		}
		return eid, nil
	}
	return id128.Id128{}, fmt.Errorf("%w: certificate has no entity unique identifier subject attribute", authlyerr.ErrIdentity)
}
