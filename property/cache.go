package property

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// FetchFunc retrieves a fresh Mapping from the authority.
type FetchFunc func(ctx context.Context) (*Mapping, error)

// Cache holds the current Mapping snapshot behind an atomic pointer, so
// readers never block and never observe a half-built mapping. Concurrent
// Refresh calls collapse into a single in-flight fetch via singleflight,
// since a ReloadCache control message and an application-triggered refresh
// can race without either side knowing about the other.
type Cache struct {
	fetch   FetchFunc
	current atomic.Pointer[Mapping]
	group   singleflight.Group
}

// NewCache returns a Cache with an empty initial mapping. Callers should
// call Refresh before relying on lookups succeeding.
func NewCache(fetch FetchFunc) *Cache {
	c := &Cache{fetch: fetch}
	c.current.Store(NewMapping())
	return c
}

// Current returns the most recently published Mapping snapshot.
func (c *Cache) Current() *Mapping {
	return c.current.Load()
}

// Refresh fetches a new Mapping and atomically swaps it in, returning the
// new snapshot. Concurrent callers observe the same fetch and the same
// result.
func (c *Cache) Refresh(ctx context.Context) (*Mapping, error) {
	v, err, _ := c.group.Do("refresh", func() (any, error) {
		m, err := c.fetch(ctx)
		if err != nil {
			return nil, err
		}
		c.current.Store(m)
		return m, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Mapping), nil
}
