// Package client implements the public entry points described for the
// client runtime: metadata lookups, access-control evaluation, access-token
// exchange, and the lazy refresh sequences embedding servers pull TLS
// material and outbound HTTP clients from. It is a thin facade over the
// reconciler's atomically-swapped connection and property mapping.
package client

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/dnscache"
	"github.com/tidwall/gjson"

	"github.com/authlyhq/authly-go/authlyerr"
	"github.com/authlyhq/authly-go/connection"
	"github.com/authlyhq/authly-go/id128"
	"github.com/authlyhq/authly-go/internal/rpc"
	"github.com/authlyhq/authly-go/internal/telemetry"
	"github.com/authlyhq/authly-go/property"
	"github.com/authlyhq/authly-go/reconcile"
)

// retryBackoff is the fixed delay between retries of a lazy refresh
// sequence after a transient failure, per the client's "retry every 10s"
// design note.
const retryBackoff = 10 * time.Second

// Options configures optional telemetry for a Client. The embedding
// application owns these collectors and passes them in rather than the
// client registering its own, mirroring how the reconciler takes an
// optional breaker/metrics pair.
type Options struct {
	Metrics *telemetry.Metrics
}

// Client is the long-lived handle embedding applications hold: one
// reconciler task plus the derived caches (access-token decode, DNS) that
// make repeat operations cheap. Close releases the reconciler's
// connection and stops its background task; the client must not be used
// afterward.
type Client struct {
	reconciler *reconcile.Reconciler
	opts       Options
	dns        *dnscache.Resolver
	tokens     *tokenCache
}

// New starts a reconciler with strategy and wraps it in a Client. Close
// must be called to release the underlying connection.
func New(ctx context.Context, strategy connection.Strategy, reconcileOpts reconcile.Options, opts Options) (*Client, error) {
	r, err := reconcile.New(ctx, strategy, reconcileOpts)
	if err != nil {
		return nil, err
	}
	return &Client{
		reconciler: r,
		opts:       opts,
		dns:        &dnscache.Resolver{},
		tokens:     newTokenCache(),
	}, nil
}

// Close stops the background reconciler and releases its connection.
func (c *Client) Close() {
	c.reconciler.Close()
}

// Reconciler exposes the underlying reconciler for callers that need the
// raw connection or property mapping snapshot directly.
func (c *Client) Reconciler() *reconcile.Reconciler {
	return c.reconciler
}

// NamespaceMetadata is one entry of a Metadata snapshot: a label and its
// opaque, namespace-defined metadata document. Use gjson against RawJSON
// to pull individual fields without a full unmarshal, since namespaces
// are free to shape their metadata however they like.
type NamespaceMetadata struct {
	Label   string
	RawJSON []byte
}

// Get extracts a single field from the namespace's metadata document
// without a full unmarshal.
func (n NamespaceMetadata) Get(path string) gjson.Result {
	return gjson.GetBytes(n.RawJSON, path)
}

// EntityMetadata is the entity's self-description as the authority sees it.
type EntityMetadata struct {
	EntityID   id128.EntityId
	Label      string
	Namespaces []NamespaceMetadata
}

// Metadata fetches the entity ID, label, and per-namespace metadata
// documents from the authority.
func (c *Client) Metadata(ctx context.Context) (*EntityMetadata, error) {
	resp, err := c.reconciler.Client().GetMetadata(ctx)
	if err != nil {
		return nil, err
	}
	entityID, err := rpc.DecodeID(resp.EntityID)
	if err != nil {
		return nil, fmt.Errorf("%w: metadata entity id: %v", authlyerr.ErrCodec, err)
	}
	namespaces := make([]NamespaceMetadata, len(resp.Namespaces))
	for i, ns := range resp.Namespaces {
		namespaces[i] = NamespaceMetadata{Label: ns.Label, RawJSON: ns.Metadata}
	}
	return &EntityMetadata{
		EntityID:   entityID,
		Label:      resp.Label,
		Namespaces: namespaces,
	}, nil
}

// PropertyMapping returns the current resource-attribute mapping
// snapshot, the same one AccessControlRequest resolves triples against.
func (c *Client) PropertyMapping() *property.Mapping {
	return c.reconciler.PropertyMapping()
}

// MetadataEvent is one item of a MetadataStream: either a fresh snapshot
// or the error from a failed refresh attempt, never both.
type MetadataEvent struct {
	Metadata *EntityMetadata
	Err      error
}

// MetadataStream is a lazy sequence of Metadata snapshots: the first item
// resolves immediately, subsequent items emit after the property mapping
// is invalidated, and a failed refresh is retried every 10 seconds rather
// than ending the sequence. The channel closes when ctx is done.
func (c *Client) MetadataStream(ctx context.Context) <-chan MetadataEvent {
	out := make(chan MetadataEvent)
	go func() {
		defer close(out)
		invalidated := c.reconciler.Invalidated()
		for {
			md, err := c.Metadata(ctx)
			select {
			case out <- MetadataEvent{Metadata: md, Err: err}:
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
			case <-invalidated:
				invalidated = c.reconciler.Invalidated()
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// ConnectionParamsStream is a lazy sequence of connection.Params
// snapshots: the first item resolves immediately, subsequent items emit
// whenever a reconfigure (CA rotation) publishes new parameters.
func (c *Client) ConnectionParamsStream(ctx context.Context) <-chan *connection.Params {
	out := make(chan *connection.Params)
	go func() {
		defer close(out)
		changed := c.reconciler.ParamsChanged()
		for {
			select {
			case out <- c.reconciler.Params():
			case <-ctx.Done():
				return
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
