package identity

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/authlyhq/authly-go/authlyerr"
	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/oauth2"
)

// Historical note: an older revision of the bootstrap endpoint lived at
// /api/csr. Only /api/v0/authenticate is implemented here; the older path
// is treated as removed.
const defaultAuthenticatePath = "/api/v0/authenticate"

// Options configures identity inference and the CSR-exchange bootstrap
// call. Zero-valued fields fall back to the filesystem locations and
// authority URL an Authly workload mounts by default.
type Options struct {
	LocalCAPath             string
	IdentityPath            string
	ServiceAccountTokenPath string
	AuthenticateURL         string
	HTTPClient              *http.Client
}

func (o Options) withDefaults() Options {
	if o.LocalCAPath == "" {
		o.LocalCAPath = "/etc/authly/certs/local.crt"
	}
	if o.IdentityPath == "" {
		o.IdentityPath = "/etc/authly/identity/identity.pem"
	}
	if o.ServiceAccountTokenPath == "" {
		o.ServiceAccountTokenPath = "/var/run/secrets/kubernetes.io/serviceaccount/token"
	}
	if o.AuthenticateURL == "" {
		o.AuthenticateURL = "https://authly-k8s" + defaultAuthenticatePath
	}
	return o
}

// Infer resolves the connection environment exactly as a workload sees
// it: the local CA must be mounted; if a pre-provisioned identity bundle
// is present it is used directly, otherwise a workload service-account
// token triggers the CSR exchange. Neither present is
// EnvironmentNotInferrable.
func Infer(ctx context.Context, opts Options) (caPEM []byte, id *Identity, err error) {
	opts = opts.withDefaults()

	caPEM, err = os.ReadFile(opts.LocalCAPath)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", authlyerr.ErrAuthlyCAMissing, err)
	}

	if bundle, err := os.ReadFile(opts.IdentityPath); err == nil {
		id, err := FromPEM(bundle)
		if err != nil {
			return nil, nil, err
		}
		return caPEM, id, nil
	}

	token, err := os.ReadFile(opts.ServiceAccountTokenPath)
	if err != nil {
		return nil, nil, authlyerr.ErrEnvironmentNotInferrable
	}

	id, err = exchangeCSR(ctx, opts, caPEM, string(token))
	if err != nil {
		return nil, nil, err
	}
	return caPEM, id, nil
}

// exchangeCSR generates a fresh keypair, POSTs the public key DER to the
// bootstrap endpoint bearing the workload token, and wraps the returned
// certificate DER together with the generated key into an Identity.
func exchangeCSR(ctx context.Context, opts Options, caPEM []byte, token string) (*Identity, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", authlyerr.ErrPrivateKeyGen, err)
	}
	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal public key: %v", authlyerr.ErrPrivateKeyGen, err)
	}

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caPEM) {
		return nil, fmt.Errorf("%w: local ca PEM has no usable certificates", authlyerr.ErrAuthlyCA)
	}

	client := newAuthenticateClient(opts.HTTPClient, pool, token)

	certDER, err := postAuthenticate(ctx, client, opts.AuthenticateURL, pubDER)
	if err != nil {
		return nil, err
	}

	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", authlyerr.ErrPrivateKeyGen, err)
	}
	bundle := append(
		pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER}),
		pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})...,
	)
	return FromPEM(bundle)
}

// newAuthenticateClient builds an HTTP client anchored to the local CA
// that retries transient network failures (connection resets, 5xx) but
// not 4xx responses, and carries the workload token as a bearer header
// via an oauth2 token source.
func newAuthenticateClient(base *http.Client, caPool *x509.CertPool, token string) *http.Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 4
	rc.RetryWaitMin = 200 * time.Millisecond
	rc.RetryWaitMax = 3 * time.Second
	rc.Logger = nil
	if base != nil && base.Transport != nil {
		rc.HTTPClient.Transport = base.Transport
	} else {
		rc.HTTPClient.Transport = &http.Transport{
			TLSClientConfig: tlsConfigRootedAt(caPool),
		}
	}

	standard := rc.StandardClient()
	standard.Transport = &oauth2.Transport{
		Base: standard.Transport,
		Source: oauth2.StaticTokenSource(&oauth2.Token{
			AccessToken: token,
			TokenType:   "Bearer",
		}),
	}
	return standard
}

func tlsConfigRootedAt(pool *x509.CertPool) *tls.Config {
	return &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}
}

func postAuthenticate(ctx context.Context, client *http.Client, url string, pubDER []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(pubDER))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", authlyerr.ErrNetwork, err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", authlyerr.ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, authlyerr.ErrUnauthorized
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: authenticate endpoint returned %s", authlyerr.ErrNetwork, resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", authlyerr.ErrNetwork, err)
	}
	slog.Info("identity: CSR exchange succeeded", "bytes", len(body))
	return body, nil
}
