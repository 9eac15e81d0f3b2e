package reconcile

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/pem"
	"errors"
	"math/big"
	"sync/atomic"
	"testing"
	"time"

	"github.com/authlyhq/authly-go/connection"
	"github.com/authlyhq/authly-go/id128"
	"github.com/authlyhq/authly-go/identity"
	"github.com/authlyhq/authly-go/internal/rpc"
)

var entityUniqueIdentifierOID = asn1.ObjectIdentifier{2, 5, 4, 45}

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

// testParams builds a real, self-consistent connection.Params so
// connection.Dial and connection.NewManager succeed without ever touching
// the network: grpc.NewClient only resolves lazily on first RPC.
func testParams(t *testing.T, url string) *connection.Params {
	t.Helper()
	caPEM, caKey, caCert := selfSignedCA(t)
	entityID, err := id128.Random(id128.Service)
	if err != nil {
		t.Fatal(err)
	}
	id := serviceIdentity(t, caCert, caKey, entityID)
	params, err := connection.NewParams(connection.Manual, url, caPEM, id)
	if err != nil {
		t.Fatal(err)
	}
	return params
}

// seqStrategy hands out the supplied Params in order on each Reconfigure
// call, standing in for a real CA-reload sequence without touching disk.
type seqStrategy struct {
	params []*connection.Params
	next   atomic.Int32
}

func (s *seqStrategy) Reconfigure(ctx context.Context) (*connection.Params, error) {
	i := s.next.Add(1) - 1
	if int(i) >= len(s.params) {
		i = int32(len(s.params) - 1)
	}
	return s.params[i], nil
}

// fakeStream is a scriptable rpc.MessageStream: Recv drains msgs in order,
// then blocks until either an error is pushed or the test is done.
type fakeStream struct {
	msgs      chan *rpc.ControlMessage
	failure   chan error
	closeSend atomic.Bool
}

func newFakeStream() *fakeStream {
	return &fakeStream{
		msgs:    make(chan *rpc.ControlMessage, 8),
		failure: make(chan error, 1),
	}
}

func (s *fakeStream) Recv() (*rpc.ControlMessage, error) {
	select {
	case m := <-s.msgs:
		return m, nil
	case err := <-s.failure:
		return nil, err
	}
}

func (s *fakeStream) CloseSend() error {
	s.closeSend.Store(true)
	select {
	case s.failure <- errClosedStream:
	default:
	}
	return nil
}

var errClosedStream = errors.New("fakeStream: closed")

// fakeClient implements rpc.AuthorityClient with scriptable Messages
// streams and counted Pong/mapping calls, standing in for the authority
// in the reconciler's control loop without a real gRPC server.
type fakeClient struct {
	streams chan *fakeStream

	messagesCalls atomic.Int32
	pongCalls     atomic.Int32
	mappingCalls  atomic.Int32

	mappingErr error
}

func (c *fakeClient) Messages(ctx context.Context) (rpc.MessageStream, error) {
	c.messagesCalls.Add(1)
	select {
	case s := <-c.streams:
		return s, nil
	default:
		return newFakeStream(), nil
	}
}

func (c *fakeClient) Pong(ctx context.Context) error {
	c.pongCalls.Add(1)
	return nil
}

func (c *fakeClient) GetResourcePropertyMappings(ctx context.Context) (*rpc.GetResourcePropertyMappingsResponse, error) {
	c.mappingCalls.Add(1)
	if c.mappingErr != nil {
		return nil, c.mappingErr
	}
	attrID, _ := id128.Random(id128.Attribute)
	return &rpc.GetResourcePropertyMappingsResponse{
		Namespaces: []rpc.PropertyMappingNamespace{
			{
				Label: "docs",
				Properties: []rpc.PropertyMappingProperty{
					{
						Label: "classification",
						Attributes: []rpc.PropertyMappingAttribute{
							{Label: "public", ObjID: rpc.EncodeID(attrID)},
						},
					},
				},
			},
		},
	}, nil
}

func (c *fakeClient) GetMetadata(ctx context.Context) (*rpc.GetMetadataResponse, error) {
	return &rpc.GetMetadataResponse{}, nil
}

func (c *fakeClient) GetConfiguration(ctx context.Context) (*rpc.GetConfigurationResponse, error) {
	return &rpc.GetConfigurationResponse{}, nil
}

func (c *fakeClient) GetAccessToken(ctx context.Context, cookie string) (string, error) {
	return "", nil
}

func (c *fakeClient) AccessControl(ctx context.Context, req *rpc.AccessControlRequest) (int64, error) {
	return 0, nil
}

func (c *fakeClient) SignCertificate(ctx context.Context, csrDER []byte) ([]byte, error) {
	return nil, nil
}

func newTestReconciler(t *testing.T, manager *connection.Manager, client *fakeClient) *Reconciler {
	t.Helper()
	ctx := context.Background()
	r := newReconciler(ctx, manager, func() rpc.AuthorityClient { return client }, Options{})
	t.Cleanup(r.Close)
	return r
}

func waitClosed(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for channel to close")
	}
}

func TestReconcileLoadsInitialPropertyMapping(t *testing.T) {
	t.Parallel()

	client := &fakeClient{streams: make(chan *fakeStream, 1)}
	client.streams <- newFakeStream()
	manager, err := connection.NewManager(context.Background(), &seqStrategy{params: []*connection.Params{testParams(t, "authly:443")}})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	r := newTestReconciler(t, manager, client)

	if _, ok := r.PropertyMapping().Namespace("docs"); !ok {
		t.Fatal("expected initial property mapping to include the docs namespace")
	}
	if client.mappingCalls.Load() != 1 {
		t.Fatalf("mappingCalls = %d, want 1", client.mappingCalls.Load())
	}
}

func TestReconcileReloadCacheRefetchesMapping(t *testing.T) {
	t.Parallel()

	stream := newFakeStream()
	client := &fakeClient{streams: make(chan *fakeStream, 1)}
	client.streams <- stream
	manager, err := connection.NewManager(context.Background(), &seqStrategy{params: []*connection.Params{testParams(t, "authly:443")}})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	r := newTestReconciler(t, manager, client)
	if client.mappingCalls.Load() != 1 {
		t.Fatalf("mappingCalls after start = %d, want 1", client.mappingCalls.Load())
	}

	invalidated := r.Invalidated()
	stream.msgs <- &rpc.ControlMessage{Kind: rpc.KindReloadCache}
	waitClosed(t, invalidated)

	if client.mappingCalls.Load() != 2 {
		t.Fatalf("mappingCalls after ReloadCache = %d, want 2", client.mappingCalls.Load())
	}
	if client.messagesCalls.Load() != 1 {
		t.Fatalf("messagesCalls after ReloadCache = %d, want 1 (no stream swap)", client.messagesCalls.Load())
	}
}

func TestReconcileReloadCaSwapsConnection(t *testing.T) {
	t.Parallel()

	stream := newFakeStream()
	client := &fakeClient{streams: make(chan *fakeStream, 2)}
	client.streams <- stream
	client.streams <- newFakeStream()

	p1 := testParams(t, "authly:443")
	p2 := testParams(t, "authly:444")
	manager, err := connection.NewManager(context.Background(), &seqStrategy{params: []*connection.Params{p1, p2}})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	r := newTestReconciler(t, manager, client)
	if r.Params().URL != p1.URL {
		t.Fatalf("initial Params URL = %q, want %q", r.Params().URL, p1.URL)
	}

	paramsChanged := r.ParamsChanged()
	stream.msgs <- &rpc.ControlMessage{Kind: rpc.KindReloadCa}
	waitClosed(t, paramsChanged)

	if r.Params().URL != p2.URL {
		t.Fatalf("Params URL after ReloadCa = %q, want %q", r.Params().URL, p2.URL)
	}
	if client.messagesCalls.Load() != 2 {
		t.Fatalf("messagesCalls after ReloadCa = %d, want 2 (stream reopened)", client.messagesCalls.Load())
	}
}

func TestReconcilePingRepliesWithPong(t *testing.T) {
	t.Parallel()

	stream := newFakeStream()
	client := &fakeClient{streams: make(chan *fakeStream, 1)}
	client.streams <- stream
	manager, err := connection.NewManager(context.Background(), &seqStrategy{params: []*connection.Params{testParams(t, "authly:443")}})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	r := newTestReconciler(t, manager, client)

	stream.msgs <- &rpc.ControlMessage{Kind: rpc.KindPing}
	deadline := time.After(2 * time.Second)
	for client.pongCalls.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for Pong")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestReconcileStreamErrorTriggersReconfigure(t *testing.T) {
	t.Parallel()

	stream := newFakeStream()
	client := &fakeClient{streams: make(chan *fakeStream, 2)}
	client.streams <- stream
	client.streams <- newFakeStream()

	p1 := testParams(t, "authly:443")
	p2 := testParams(t, "authly:444")
	manager, err := connection.NewManager(context.Background(), &seqStrategy{params: []*connection.Params{p1, p2}})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	r := newTestReconciler(t, manager, client)

	paramsChanged := r.ParamsChanged()
	stream.failure <- errors.New("connection reset")
	waitClosed(t, paramsChanged)

	if r.Params().URL != p2.URL {
		t.Fatalf("Params URL after stream error = %q, want %q", r.Params().URL, p2.URL)
	}
}

func TestReconcileCloseStopsBackgroundTask(t *testing.T) {
	t.Parallel()

	client := &fakeClient{streams: make(chan *fakeStream, 1)}
	client.streams <- newFakeStream()
	manager, err := connection.NewManager(context.Background(), &seqStrategy{params: []*connection.Params{testParams(t, "authly:443")}})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	r := newReconciler(context.Background(), manager, func() rpc.AuthorityClient { return client }, Options{})
	done := make(chan struct{})
	go func() {
		r.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return")
	}
}
