package rpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"

	"github.com/authlyhq/authly-go/authlyerr"
	"github.com/authlyhq/authly-go/internal/circuitbreaker"
)

// BreakerName is the circuitbreaker.Registry key callers should use for
// the authority connection: one breaker per process today.
const BreakerName = "authority"

// service is the fixed gRPC service path every method below hangs off.
// There is no generated .proto here; these are plain method-path strings
// matching the RPCs the authority exposes.
const service = "/authly.v1.Authority/"

// AuthorityClient is the small RPC surface the client runtime needs from
// the authority over a single gRPC channel. Every ID field crossing this
// boundary uses Id128's 17-byte dynamic encoding.
type AuthorityClient interface {
	GetMetadata(ctx context.Context) (*GetMetadataResponse, error)
	GetConfiguration(ctx context.Context) (*GetConfigurationResponse, error)
	Messages(ctx context.Context) (MessageStream, error)
	Pong(ctx context.Context) error
	GetAccessToken(ctx context.Context, cookie string) (string, error)
	AccessControl(ctx context.Context, req *AccessControlRequest) (int64, error)
	SignCertificate(ctx context.Context, csrDER []byte) ([]byte, error)
	GetResourcePropertyMappings(ctx context.Context) (*GetResourcePropertyMappingsResponse, error)
}

// MessageStream delivers the authority's server-push control messages:
// cache and CA reload notices, and keepalive pings.
type MessageStream interface {
	Recv() (*ControlMessage, error)
	CloseSend() error
}

// client is the concrete AuthorityClient, invoking RPCs over a caller-
// supplied channel using the authly-json content subtype registered in
// codec.go. An optional circuit breaker short-circuits calls while the
// authority connection looks unhealthy, rather than waiting out a full
// dial/RPC timeout on every caller.
type client struct {
	conn    *grpc.ClientConn
	breaker *circuitbreaker.Breaker
}

// NewAuthorityClient adapts an established gRPC channel (as produced by
// the connection package) into an AuthorityClient, with no circuit
// breaker.
func NewAuthorityClient(conn *grpc.ClientConn) AuthorityClient {
	return &client{conn: conn}
}

// NewAuthorityClientWithBreaker is like NewAuthorityClient but routes
// every unary call through breaker, tripping it on a sustained error rate
// and rejecting calls immediately while open.
func NewAuthorityClientWithBreaker(conn *grpc.ClientConn, breaker *circuitbreaker.Breaker) AuthorityClient {
	return &client{conn: conn, breaker: breaker}
}

func (c *client) invoke(ctx context.Context, method string, req, resp any) error {
	if c.breaker != nil && !c.breaker.Allow() {
		return fmt.Errorf("%w: %s: circuit breaker open", authlyerr.ErrNetwork, method)
	}
	err := c.conn.Invoke(ctx, service+method, req, resp, grpc.CallContentSubtype(codecName))
	if c.breaker != nil {
		if weight := circuitbreaker.ClassifyError(mapGRPCStatus(err)); weight > 0 {
			c.breaker.RecordError(weight)
		} else {
			c.breaker.RecordSuccess()
		}
	}
	if err != nil {
		return mapRPCError(method, err)
	}
	return nil
}

func (c *client) GetMetadata(ctx context.Context) (*GetMetadataResponse, error) {
	resp := &GetMetadataResponse{}
	if err := c.invoke(ctx, "GetMetadata", &emptyRequest{}, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *client) GetConfiguration(ctx context.Context) (*GetConfigurationResponse, error) {
	resp := &GetConfigurationResponse{}
	if err := c.invoke(ctx, "GetConfiguration", &emptyRequest{}, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *client) Pong(ctx context.Context) error {
	return c.invoke(ctx, "Pong", &emptyRequest{}, &emptyRequest{})
}

func (c *client) GetAccessToken(ctx context.Context, cookie string) (string, error) {
	resp := &GetAccessTokenResponse{}
	req := &GetAccessTokenRequest{Cookie: cookie}
	if err := c.invoke(ctx, "GetAccessToken", req, resp); err != nil {
		return "", err
	}
	return resp.JWT, nil
}

func (c *client) AccessControl(ctx context.Context, req *AccessControlRequest) (int64, error) {
	resp := &AccessControlResponse{}
	if err := c.invoke(ctx, "AccessControl", req, resp); err != nil {
		return 0, err
	}
	return resp.Value, nil
}

func (c *client) SignCertificate(ctx context.Context, csrDER []byte) ([]byte, error) {
	resp := &SignCertificateResponse{}
	req := &SignCertificateRequest{CSR: csrDER}
	if err := c.invoke(ctx, "SignCertificate", req, resp); err != nil {
		return nil, err
	}
	return resp.Cert, nil
}

func (c *client) GetResourcePropertyMappings(ctx context.Context) (*GetResourcePropertyMappingsResponse, error) {
	resp := &GetResourcePropertyMappingsResponse{}
	if err := c.invoke(ctx, "GetResourcePropertyMappings", &emptyRequest{}, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *client) Messages(ctx context.Context) (MessageStream, error) {
	desc := &grpc.StreamDesc{ServerStreams: true}
	stream, err := c.conn.NewStream(ctx, desc, service+"Messages", grpc.CallContentSubtype(codecName))
	if err != nil {
		return nil, fmt.Errorf("%w: Messages: %v", authlyerr.ErrNetwork, err)
	}
	if err := stream.SendMsg(&emptyRequest{}); err != nil {
		return nil, fmt.Errorf("%w: Messages: %v", authlyerr.ErrNetwork, err)
	}
	if err := stream.CloseSend(); err != nil {
		return nil, fmt.Errorf("%w: Messages: %v", authlyerr.ErrNetwork, err)
	}
	return &messageStream{stream: stream}, nil
}

type messageStream struct {
	stream grpc.ClientStream
}

func (s *messageStream) Recv() (*ControlMessage, error) {
	msg := &ControlMessage{}
	if err := s.stream.RecvMsg(msg); err != nil {
		return nil, err
	}
	return msg, nil
}

func (s *messageStream) CloseSend() error {
	return s.stream.CloseSend()
}
