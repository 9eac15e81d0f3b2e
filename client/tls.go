package client

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"fmt"
	"net"
	"time"

	"github.com/authlyhq/authly-go/authlyerr"
)

// serverCertValidity is the 365-day server-certificate lifetime. It is not
// sent to the authority: the CSR built below carries no validity period,
// so the authority alone sets not-before/not-after on the certificate it
// signs, and no code in this package reads this constant.
//
// TODO: server certificates are not self-rotated before this expiry; a
// timer-driven reissue ahead of not_after is a deliberately unimplemented
// follow-up.
const serverCertValidity = 365 * 24 * time.Hour

// entityUniqueIdentifierOID is the same custom Subject attribute OID the
// authority stamps on workload identities (connection.Params derives the
// entity ID from it); a server CSR carries the requesting entity's own ID
// under the same attribute so the authority can bind the issued
// certificate back to it.
var entityUniqueIdentifierOID = asn1.ObjectIdentifier{2, 5, 4, 45}

var (
	oidKeyUsage          = asn1.ObjectIdentifier{2, 5, 29, 15}
	oidExtKeyUsage       = asn1.ObjectIdentifier{2, 5, 29, 37}
	oidExtKeyUsageServer = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 3, 1}
)

// ServerTLSParams is the signed certificate and generated private key
// returned by GenerateServerTLSParams. The private key never leaves this
// process; only its DER encoding is handed back so a caller that wants to
// store it can, but nothing here transmits it anywhere.
type ServerTLSParams struct {
	CertDER []byte
	KeyDER  []byte
}

// GenerateServerTLSParams builds a fresh ECDSA keypair and CSR for
// commonName with altNames as SANs, requests KeyUsageDigitalSignature and
// ExtKeyUsageServerAuth as CSR extension requests, and has the authority
// sign it via SignCertificate.
func (c *Client) GenerateServerTLSParams(ctx context.Context, commonName string, altNames ...string) (*ServerTLSParams, error) {
	cert, key, err := c.generateServerCert(ctx, commonName, altNames)
	if err != nil {
		return nil, err
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", authlyerr.ErrPrivateKeyGen, err)
	}
	return &ServerTLSParams{CertDER: cert.Raw, KeyDER: keyDER}, nil
}

func (c *Client) generateServerCert(ctx context.Context, commonName string, altNames []string) (*x509.Certificate, *ecdsa.PrivateKey, error) {
	if commonName == "" {
		return nil, nil, fmt.Errorf("%w: common name is required", authlyerr.ErrInvalidCommonName)
	}
	if len(altNames) == 0 {
		return nil, nil, fmt.Errorf("%w: at least one subject alternative name is required", authlyerr.ErrInvalidAltNames)
	}

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", authlyerr.ErrPrivateKeyGen, err)
	}

	entityID := c.reconciler.Params().EntityID

	keyUsage, err := asn1.Marshal(asn1.BitString{Bytes: []byte{0x80}, BitLength: 1}) // digitalSignature
	if err != nil {
		return nil, nil, fmt.Errorf("%w: encode key usage extension: %v", authlyerr.ErrUnclassified, err)
	}
	extKeyUsage, err := asn1.Marshal([]asn1.ObjectIdentifier{oidExtKeyUsageServer})
	if err != nil {
		return nil, nil, fmt.Errorf("%w: encode extended key usage extension: %v", authlyerr.ErrUnclassified, err)
	}

	tmpl := &x509.CertificateRequest{
		Subject: pkix.Name{
			CommonName: commonName,
			ExtraNames: []pkix.AttributeTypeAndValue{
				{Type: entityUniqueIdentifierOID, Value: entityID.String()},
			},
		},
		DNSNames:    dnsNames(altNames),
		IPAddresses: ipAddresses(altNames),
		ExtraExtensions: []pkix.Extension{
			{Id: oidKeyUsage, Critical: true, Value: keyUsage},
			{Id: oidExtKeyUsage, Critical: false, Value: extKeyUsage},
		},
	}
	csrDER, err := x509.CreateCertificateRequest(rand.Reader, tmpl, key)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: create CSR: %v", authlyerr.ErrUnclassified, err)
	}

	certDER, err := c.reconciler.Client().SignCertificate(ctx, csrDER)
	if err != nil {
		return nil, nil, err
	}
	cert, err := x509.ParseCertificate(certDER)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: parse signed certificate: %v", authlyerr.ErrUnclassified, err)
	}
	return cert, key, nil
}

func dnsNames(altNames []string) []string {
	var out []string
	for _, n := range altNames {
		if net.ParseIP(n) == nil {
			out = append(out, n)
		}
	}
	return out
}

func ipAddresses(altNames []string) []net.IP {
	var out []net.IP
	for _, n := range altNames {
		if ip := net.ParseIP(n); ip != nil {
			out = append(out, ip)
		}
	}
	return out
}

// ServerTLSConfigEvent is one item of a ServerTLSConfigStream.
type ServerTLSConfigEvent struct {
	Config *tls.Config
	Err    error
}

// ServerTLSConfigStream is a lazy sequence of server-side tls.Config
// values for an embedding HTTP/gRPC server: client certificates are
// verified against the current local CA, the server presents a freshly
// issued cert/key pair for commonName/altNames, and ALPN offers h2 then
// http/1.1. The first item resolves immediately; subsequent items emit
// after a connection-parameter change (a CA rotation), since that is the
// only thing this stream currently reissues on — see the TODO on
// serverCertValidity for the unimplemented expiry-driven reissue.
func (c *Client) ServerTLSConfigStream(ctx context.Context, commonName string, altNames ...string) <-chan ServerTLSConfigEvent {
	out := make(chan ServerTLSConfigEvent)
	go func() {
		defer close(out)
		changed := c.reconciler.ParamsChanged()
		for {
			cfg, err := c.buildServerTLSConfig(ctx, commonName, altNames)
			select {
			case out <- ServerTLSConfigEvent{Config: cfg, Err: err}:
			case <-ctx.Done():
				return
			}
			if err != nil {
				select {
				case <-time.After(retryBackoff):
				case <-ctx.Done():
					return
				}
				continue
			}
			select {
			case <-changed:
				changed = c.reconciler.ParamsChanged()
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

func (c *Client) buildServerTLSConfig(ctx context.Context, commonName string, altNames []string) (*tls.Config, error) {
	cert, key, err := c.generateServerCert(ctx, commonName, altNames)
	if err != nil {
		return nil, err
	}

	params := c.reconciler.Params()
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(params.AuthlyLocalCA) {
		return nil, fmt.Errorf("%w: local CA PEM contains no usable certificates", authlyerr.ErrAuthlyCA)
	}

	return &tls.Config{
		Certificates: []tls.Certificate{{
			Certificate: [][]byte{cert.Raw},
			PrivateKey:  key,
		}},
		ClientCAs:  pool,
		ClientAuth: tls.RequireAndVerifyClientCert,
		NextProtos: []string{"h2", "http/1.1"},
		MinVersion: tls.VersionTLS12,
	}, nil
}
