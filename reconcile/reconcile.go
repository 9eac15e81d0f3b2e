// Package reconcile implements the background task that keeps a client
// runtime's connection and property mapping fresh: it subscribes to the
// authority's Messages control stream and reacts to CA-reload and
// cache-invalidate events, exactly as described for the client's
// background reconciler.
package reconcile

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/authlyhq/authly-go/connection"
	"github.com/authlyhq/authly-go/internal/circuitbreaker"
	"github.com/authlyhq/authly-go/internal/rpc"
	"github.com/authlyhq/authly-go/internal/telemetry"
	"github.com/authlyhq/authly-go/internal/watch"
	"github.com/authlyhq/authly-go/property"
)

// reconfigureBackoff is the fixed sleep between reconfigure retries.
const reconfigureBackoff = 10 * time.Second

// Options configures an optional circuit breaker and metrics sink. Both
// are nil-safe; a Reconciler with no Options still implements the full
// reconfigure/reload protocol.
type Options struct {
	Breaker *circuitbreaker.Breaker
	Metrics *telemetry.Metrics
}

// Reconciler owns the single cooperative background task described for
// the client runtime: one connection.Manager (the atomically-swapped
// "current connection"), one property.Cache (the atomically-swapped
// "current mapping"), and the Messages stream loop that keeps both fresh.
type Reconciler struct {
	manager *connection.Manager
	cache   *property.Cache
	opts    Options

	// client returns an AuthorityClient bound to whatever the manager's
	// current connection is at the moment of the call. It is a field
	// rather than a method so tests can substitute a fake authority
	// without standing up a real TLS listener.
	client func() rpc.AuthorityClient

	params      *watch.Value[*connection.Params]
	invalidated *watch.Value[int]

	closed    chan struct{}
	closeOnce sync.Once
	done      chan struct{}
}

// New dials an initial connection via strategy, loads the initial
// property mapping, and starts the background reconciler task. Close
// must be called to release the connection and stop the task.
func New(ctx context.Context, strategy connection.Strategy, opts Options) (*Reconciler, error) {
	manager, err := connection.NewManager(ctx, strategy)
	if err != nil {
		return nil, err
	}
	client := func() rpc.AuthorityClient {
		conn := manager.Current().Conn
		if opts.Breaker != nil {
			return rpc.NewAuthorityClientWithBreaker(conn, opts.Breaker)
		}
		return rpc.NewAuthorityClient(conn)
	}
	return newReconciler(ctx, manager, client, opts), nil
}

// NewWithClient wires a Reconciler from an already-built connection
// manager and an explicit client factory, bypassing New's default of
// building one from the manager's current connection. Most callers want
// New; this is for embedding code that needs its own interceptor chain
// on the AuthorityClient, and for tests that substitute a fake one.
func NewWithClient(ctx context.Context, manager *connection.Manager, client func() rpc.AuthorityClient, opts Options) *Reconciler {
	return newReconciler(ctx, manager, client, opts)
}

// newReconciler wires a Reconciler from an already-built connection
// manager and client factory, starts its background task, and loads the
// initial property mapping. Shared by New and NewWithClient.
func newReconciler(ctx context.Context, manager *connection.Manager, client func() rpc.AuthorityClient, opts Options) *Reconciler {
	var params *connection.Params
	if manager != nil {
		params = manager.Current().Params
	}
	r := &Reconciler{
		manager:     manager,
		client:      client,
		opts:        opts,
		params:      watch.New(params),
		invalidated: watch.New(0),
		closed:      make(chan struct{}),
		done:        make(chan struct{}),
	}
	r.cache = property.NewCache(r.fetchMapping)

	if _, err := r.cache.Refresh(ctx); err != nil {
		slog.Warn("reconcile: initial property mapping load failed", "error", err)
	}

	go r.run(ctx)
	return r
}

// Close signals the background task to exit and waits for it to do so,
// releasing the underlying gRPC channel. Safe to call more than once.
func (r *Reconciler) Close() {
	r.closeOnce.Do(func() { close(r.closed) })
	<-r.done
	if r.manager != nil {
		if c := r.manager.Current(); c != nil && c.Conn != nil {
			_ = c.Conn.Close()
		}
	}
}

// Connection returns the current connection snapshot.
func (r *Reconciler) Connection() *connection.Connection {
	return r.manager.Current()
}

// Client returns an AuthorityClient bound to the current connection,
// routed through the circuit breaker if one was configured.
func (r *Reconciler) Client() rpc.AuthorityClient {
	return r.client()
}

// Params returns the current connection parameters.
func (r *Reconciler) Params() *connection.Params {
	return r.params.Get()
}

// ParamsChanged returns a channel that closes the next time connection
// parameters change (a CA reload completed).
func (r *Reconciler) ParamsChanged() <-chan struct{} {
	return r.params.Changed()
}

// PropertyMapping returns the current property mapping snapshot.
func (r *Reconciler) PropertyMapping() *property.Mapping {
	return r.cache.Current()
}

// Invalidated returns a channel that closes the next time the property
// mapping is reloaded (in response to a ReloadCache message or a
// reconfigure).
func (r *Reconciler) Invalidated() <-chan struct{} {
	return r.invalidated.Changed()
}

func (r *Reconciler) fetchMapping(ctx context.Context) (*property.Mapping, error) {
	resp, err := r.Client().GetResourcePropertyMappings(ctx)
	if err != nil {
		return nil, err
	}
	m := property.NewMapping()
	for _, ns := range resp.Namespaces {
		for _, p := range ns.Properties {
			for _, a := range p.Attributes {
				id, err := rpc.DecodeID(a.ObjID)
				if err != nil {
					slog.Warn("reconcile: skipping malformed attribute id",
						"namespace", ns.Label, "property", p.Label, "attribute", a.Label, "error", err)
					continue
				}
				m.Put(ns.Label, p.Label, a.Label, id)
			}
		}
	}
	return m, nil
}

// run is the single cooperative background task: open the Messages
// stream, then loop on either the next control message or the closed
// signal, reconfiguring whenever the stream ends or a ReloadCa message
// arrives.
func (r *Reconciler) run(ctx context.Context) {
	defer close(r.done)

	stream := r.openMessagesRetrying(ctx)
	if stream == nil {
		return
	}
	msgCh, errCh := r.pump(stream)

	for {
		select {
		case <-r.closed:
			_ = stream.CloseSend()
			return
		case err := <-errCh:
			slog.Warn("reconcile: messages stream ended, reconfiguring", "error", err)
			stream = r.reconfigureLoop(ctx)
			if stream == nil {
				return
			}
			msgCh, errCh = r.pump(stream)
		case msg := <-msgCh:
			newStream, ok := r.handle(ctx, msg, stream)
			if !ok {
				return
			}
			if newStream != nil {
				stream = newStream
				msgCh, errCh = r.pump(stream)
			}
		}
	}
}

// pump continuously reads from stream on its own goroutine, delivering
// messages on msgCh and the terminal error (if any) on errCh. It exits on
// the first error or when the closed signal fires.
func (r *Reconciler) pump(stream rpc.MessageStream) (<-chan *rpc.ControlMessage, <-chan error) {
	msgCh := make(chan *rpc.ControlMessage)
	errCh := make(chan error, 1)
	go func() {
		for {
			msg, err := stream.Recv()
			if err != nil {
				errCh <- err
				return
			}
			select {
			case msgCh <- msg:
			case <-r.closed:
				return
			}
		}
	}()
	return msgCh, errCh
}

// handle dispatches a single control message. It returns (nil, true) when
// no stream change is needed, (newStream, true) after a CA reload opened
// a fresh stream, and (nil, false) if the closed signal fired while
// reconfiguring.
func (r *Reconciler) handle(ctx context.Context, msg *rpc.ControlMessage, stream rpc.MessageStream) (rpc.MessageStream, bool) {
	switch msg.Kind {
	case rpc.KindReloadCa:
		newStream := r.reconfigureLoop(ctx)
		return newStream, newStream != nil
	case rpc.KindReloadCache:
		if _, err := r.cache.Refresh(ctx); err != nil {
			slog.Warn("reconcile: property mapping refresh failed", "error", err)
			return nil, true
		}
		r.invalidated.Set(r.invalidated.Get() + 1)
		if r.opts.Metrics != nil {
			r.opts.Metrics.PropertyMappingRefresh.Inc()
		}
		return nil, true
	case rpc.KindPing:
		if err := r.Client().Pong(ctx); err != nil {
			slog.Warn("reconcile: pong failed", "error", err)
		}
		return nil, true
	default:
		slog.Warn("reconcile: unknown control message kind", "kind", msg.Kind)
		return nil, true
	}
}

// openMessagesRetrying opens the Messages stream, retrying with the fixed
// backoff on failure until it succeeds or the closed signal fires.
func (r *Reconciler) openMessagesRetrying(ctx context.Context) rpc.MessageStream {
	for {
		stream, err := r.Client().Messages(ctx)
		if err == nil {
			return stream
		}
		slog.Warn("reconcile: opening messages stream failed, retrying", "error", err)
		if !r.sleepOrClosed() {
			return nil
		}
	}
}

// reconfigureLoop rebuilds the connection from scratch: fresh params,
// fresh channel, fresh property mapping, fresh Messages stream. It
// retries indefinitely on any failure, sleeping reconfigureBackoff
// between attempts, and only gives up when the closed signal fires.
func (r *Reconciler) reconfigureLoop(ctx context.Context) rpc.MessageStream {
	for {
		if _, err := r.manager.Reconfigure(ctx); err != nil {
			slog.Warn("reconcile: reconfigure failed, retrying", "error", err)
			if r.opts.Metrics != nil {
				r.opts.Metrics.ReconfigureFailures.Inc()
			}
			if !r.sleepOrClosed() {
				return nil
			}
			continue
		}
		r.params.Set(r.manager.Current().Params)
		if r.opts.Metrics != nil {
			r.opts.Metrics.ReconfigureTotal.Inc()
		}

		if _, err := r.cache.Refresh(ctx); err != nil {
			slog.Warn("reconcile: property mapping refresh failed after reconfigure", "error", err)
		} else {
			r.invalidated.Set(r.invalidated.Get() + 1)
			if r.opts.Metrics != nil {
				r.opts.Metrics.PropertyMappingRefresh.Inc()
			}
		}

		stream, err := r.Client().Messages(ctx)
		if err != nil {
			slog.Warn("reconcile: reopening messages stream failed, retrying", "error", err)
			if !r.sleepOrClosed() {
				return nil
			}
			continue
		}
		return stream
	}
}

// sleepOrClosed waits reconfigureBackoff, returning false early if the
// closed signal fires first.
func (r *Reconciler) sleepOrClosed() bool {
	t := time.NewTimer(reconfigureBackoff)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-r.closed:
		return false
	}
}
