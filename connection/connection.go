package connection

import (
	"context"
	"sync/atomic"

	"google.golang.org/grpc"
)

// Connection pairs a live gRPC channel with the Params that produced it.
// It is always replaced as a whole — nobody mutates fields in place —
// which is what lets Manager swap it without a lock.
type Connection struct {
	Conn   *grpc.ClientConn
	Params *Params
}

// Manager holds the single, atomically-swappable "current connection"
// snapshot the runtime shares between the reconciler (the writer) and
// every caller task (the readers). Readers take the current snapshot
// once per operation; they never hold it across a suspension point.
type Manager struct {
	strategy Strategy
	current  atomic.Pointer[Connection]
}

// NewManager dials an initial connection using strategy and returns a
// Manager wrapping it.
func NewManager(ctx context.Context, strategy Strategy) (*Manager, error) {
	m := &Manager{strategy: strategy}
	if _, err := m.Reconfigure(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

// Current returns the current connection snapshot. Safe for concurrent
// use; never blocks.
func (m *Manager) Current() *Connection {
	return m.current.Load()
}

// Reconfigure asks the strategy for fresh Params, dials a new channel,
// and atomically swaps it in. The previous channel is closed right after
// the swap; RPCs still in flight on it are canceled, not allowed to
// finish.
func (m *Manager) Reconfigure(ctx context.Context) (*Connection, error) {
	params, err := m.strategy.Reconfigure(ctx)
	if err != nil {
		return nil, err
	}
	conn, err := Dial(ctx, params)
	if err != nil {
		return nil, err
	}
	next := &Connection{Conn: conn, Params: params}
	old := m.current.Swap(next)
	if old != nil && old.Conn != nil {
		_ = old.Conn.Close()
	}
	return next, nil
}
