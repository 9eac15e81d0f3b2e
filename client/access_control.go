package client

import (
	"context"
	"fmt"
	"time"

	"github.com/authlyhq/authly-go/authlyerr"
	"github.com/authlyhq/authly-go/id128"
	"github.com/authlyhq/authly-go/internal/rpc"
	"github.com/authlyhq/authly-go/property"
)

// AccessControlRequest builds an access-control evaluation: a set of
// resource attribute triples resolved against the current property
// mapping, plus an optional bearer token and peer entity context. It is
// not safe for concurrent use while being built.
type AccessControlRequest struct {
	c *Client

	triples         []property.Triple
	peerEntityIDs   []id128.EntityId
	peerEntityAttrs []id128.AttrId
	bearer          string
}

// AccessControlRequest starts a new builder.
func (c *Client) AccessControlRequest() *AccessControlRequest {
	return &AccessControlRequest{c: c}
}

// WithResourceAttribute adds one (namespace, property, attribute) triple
// to resolve and send as a resource attribute.
func (r *AccessControlRequest) WithResourceAttribute(namespace, prop, attribute string) *AccessControlRequest {
	r.triples = append(r.triples, property.Triple{Namespace: namespace, Property: prop, Attribute: attribute})
	return r
}

// WithPeerEntityID adds a peer entity ID the authority should consider
// alongside this request's subject.
func (r *AccessControlRequest) WithPeerEntityID(id id128.EntityId) *AccessControlRequest {
	r.peerEntityIDs = append(r.peerEntityIDs, id)
	return r
}

// WithPeerEntityAttribute adds a peer entity attribute.
func (r *AccessControlRequest) WithPeerEntityAttribute(id id128.AttrId) *AccessControlRequest {
	r.peerEntityAttrs = append(r.peerEntityAttrs, id)
	return r
}

// WithAccessToken attaches a bearer access token to the request.
func (r *AccessControlRequest) WithAccessToken(token string) *AccessControlRequest {
	r.bearer = token
	return r
}

// Evaluate resolves every resource attribute triple, sends the request to
// the remote PDP, and returns the allow/deny decision as a bool. A
// resource attribute triple absent from the current property mapping
// fails the whole request with ErrInvalidPropertyAttributeLabel.
func (r *AccessControlRequest) Evaluate(ctx context.Context) (bool, error) {
	start := time.Now()
	allow, err := r.evaluate(ctx)
	if r.c.opts.Metrics != nil {
		r.c.opts.Metrics.AccessControlDuration.Observe(time.Since(start).Seconds())
		outcome := "deny"
		if err == nil && allow {
			outcome = "allow"
		} else if err != nil {
			outcome = "error"
		}
		r.c.opts.Metrics.AccessControlTotal.WithLabelValues(outcome).Inc()
	}
	return allow, err
}

func (r *AccessControlRequest) evaluate(ctx context.Context) (bool, error) {
	mapping := r.c.PropertyMapping()
	resourceAttrs := make([]id128.AttrId, 0, len(r.triples))
	for _, t := range r.triples {
		id, ok := mapping.AttributeID(t.Namespace, t.Property, t.Attribute)
		if !ok {
			return false, fmt.Errorf("%w: %s:%s:%s", authlyerr.ErrInvalidPropertyAttributeLabel, t.Namespace, t.Property, t.Attribute)
		}
		resourceAttrs = append(resourceAttrs, id)
	}

	req := &rpc.AccessControlRequest{
		ResourceAttrs:   rpc.EncodeIDs(resourceAttrs),
		PeerEntityIDs:   rpc.EncodeIDs(r.peerEntityIDs),
		PeerEntityAttrs: rpc.EncodeIDs(r.peerEntityAttrs),
		Bearer:          r.bearer,
	}
	value, err := r.c.reconciler.Client().AccessControl(ctx, req)
	if err != nil {
		return false, err
	}
	return value > 0, nil
}

// Enforce is Evaluate, converted to the policy enforcement point's
// expected failure mode: nil on allow, authlyerr.ErrAccessDenied on deny.
func (r *AccessControlRequest) Enforce(ctx context.Context) error {
	allow, err := r.Evaluate(ctx)
	if err != nil {
		return err
	}
	if !allow {
		return authlyerr.ErrAccessDenied
	}
	return nil
}
