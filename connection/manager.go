package connection

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"

	"github.com/authlyhq/authly-go/authlyerr"
	"github.com/authlyhq/authly-go/identity"
)

// Strategy produces a fresh Params on reconfigure. ReInfer re-derives
// parameters from the workload environment (the common case); Fixed
// replays a builder-supplied set unchanged.
type Strategy interface {
	Reconfigure(ctx context.Context) (*Params, error)
}

// ReInfer re-infers connection parameters from the workload filesystem on
// every reconfigure, matching the default bootstrap flow: a CA rotation
// means a new CA file, which Infer re-reads along with whatever identity
// bundle or CSR exchange is appropriate at that moment.
type ReInfer struct {
	Options identity.Options
	URL     string
}

func (r ReInfer) Reconfigure(ctx context.Context) (*Params, error) {
	caPEM, id, err := identity.Infer(ctx, r.Options)
	if err != nil {
		return nil, err
	}
	return NewParams(Inferred, r.URL, caPEM, id)
}

// Fixed replays a single, builder-supplied Params value. Used when the
// embedding application supplied CA and identity directly rather than
// letting the runtime infer them from the environment.
type Fixed struct {
	Params *Params
}

func (f Fixed) Reconfigure(ctx context.Context) (*Params, error) {
	return f.Params, nil
}

// Dial builds a gRPC channel rooted at the authority's CA with the
// service's mTLS identity presented as the client certificate. ALPN
// offers h2 then http/1.1, matching the TLS material embedding servers
// derive from the same Params.
func Dial(ctx context.Context, p *Params) (*grpc.ClientConn, error) {
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(p.AuthlyLocalCA) {
		return nil, fmt.Errorf("%w: local CA PEM contains no usable certificates", authlyerr.ErrAuthlyCA)
	}

	cert := tls.Certificate{
		Certificate: [][]byte{p.Identity.Cert.Raw},
		PrivateKey:  p.Identity.PrivateKey,
	}

	tlsConfig := &tls.Config{
		RootCAs:      pool,
		Certificates: []tls.Certificate{cert},
		NextProtos:   []string{"h2", "http/1.1"},
		MinVersion:   tls.VersionTLS12,
	}

	conn, err := grpc.NewClient(p.URL, grpc.WithTransportCredentials(credentials.NewTLS(tlsConfig)))
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", authlyerr.ErrNetwork, p.URL, err)
	}
	return conn, nil
}
