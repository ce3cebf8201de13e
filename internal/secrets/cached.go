package secrets

import (
	"context"
	"sync"
	"time"
)

// Cached is a process-wide read-through cache around a Provider. The
// bundle is lazily populated on first use and refreshed after TTL; a
// bundle already handed to an invocation is never invalidated under it.
// Safe for concurrent use.
type Cached struct {
	inner Provider
	ttl   time.Duration

	mu        sync.Mutex
	bundle    Bundle
	fetchedAt time.Time
	primed    bool

	now func() time.Time
}

func NewCached(inner Provider, ttl time.Duration) *Cached {
	return &Cached{
		inner: inner,
		ttl:   ttl,
		now:   time.Now,
	}
}

func (c *Cached) Bundle(ctx context.Context) (Bundle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.primed && c.now().Sub(c.fetchedAt) < c.ttl {
		return c.bundle, nil
	}

	b, err := c.inner.Bundle(ctx)
	if err != nil {
		// A failed refresh is a configuration failure for this
		// invocation; serving the stale bundle would hide rotation
		// problems until signatures start failing.
		return Bundle{}, err
	}

	c.bundle = b
	c.fetchedAt = c.now()
	c.primed = true
	return b, nil
}
