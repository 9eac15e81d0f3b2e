package client

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/authlyhq/authly-go/authlyerr"
)

// newOutboundTransport returns a tuned *http.Transport rooted at the
// current local CA and presenting the client's own identity, with DNS
// lookups served from the shared cache rather than the system resolver
// on every dial.
func (c *Client) newOutboundTransport() (*http.Transport, error) {
	params := c.reconciler.Params()

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(params.AuthlyLocalCA) {
		return nil, fmt.Errorf("%w: local CA PEM contains no usable certificates", authlyerr.ErrAuthlyCA)
	}
	clientCert, err := tls.X509KeyPair(params.Identity.CertPEM, params.Identity.KeyPEM)
	if err != nil {
		return nil, fmt.Errorf("%w: load client identity: %v", authlyerr.ErrIdentity, err)
	}

	t := &http.Transport{
		MaxIdleConnsPerHost: 100,
		MaxConnsPerHost:     200,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   true,
		TLSHandshakeTimeout: 5 * time.Second,
		TLSClientConfig: &tls.Config{
			RootCAs:      pool,
			Certificates: []tls.Certificate{clientCert},
			MinVersion:   tls.VersionTLS12,
		},
	}
	resolver := c.dns
	t.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, err
		}
		ips, err := resolver.LookupHost(ctx, host)
		if err != nil {
			return nil, err
		}
		var d net.Dialer
		return d.DialContext(ctx, network, net.JoinHostPort(ips[0], port))
	}
	return t, nil
}

// RequestClientBuilderStream is a lazy sequence of *http.Client values
// preconfigured with the current CA pool, client identity, and the
// shared DNS cache, for embedding code that makes outbound mTLS requests
// to peers resolved through namespace metadata. The first item resolves
// immediately; subsequent items emit after a connection-parameter change
// (a CA or identity rotation).
func (c *Client) RequestClientBuilderStream(ctx context.Context) <-chan *http.Client {
	out := make(chan *http.Client)
	go func() {
		defer close(out)
		changed := c.reconciler.ParamsChanged()
		for {
			transport, err := c.newOutboundTransport()
			if err == nil {
				select {
				case out <- &http.Client{Transport: transport}:
				case <-ctx.Done():
					return
				}
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
