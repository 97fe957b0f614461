// Package cache holds assembled view models keyed by account, kind and ID.
// Entries have no expiry; they are dropped when a confirmed write touches
// them, all at once when the identity changes, and marked stale for the
// active account when the presentation layer becomes visible again.
package cache

import (
	"context"
	"fmt"
	"sync"

	"github.com/perlin-network/academy/conf"
	"github.com/perlin-network/academy/events"
	"github.com/perlin-network/academy/ledger"
	"github.com/perlin-network/academy/log"
	"github.com/perlin-network/academy/metrics"
)

// Key identifies a cached view model. Views that do not depend on the
// viewer use the zero Account. Subject names the account a shared view is
// about, e.g. an instructor.
type Key struct {
	Account ledger.AccountID
	Kind    events.Kind
	ID      uint64
	Subject ledger.AccountID
}

func (k Key) String() string {
	if !k.Subject.IsZero() {
		return fmt.Sprintf("%s/%s/%s", k.Account.Short(), k.Kind, k.Subject.Short())
	}

	return fmt.Sprintf("%s/%s/%d", k.Account.Short(), k.Kind, k.ID)
}

// Loader assembles the value for a missing or stale key.
type Loader func(ctx context.Context) (interface{}, error)

type Cache struct {
	mu      sync.Mutex
	entries *lru
	active  ledger.AccountID

	// gen is bumped by every invalidation. A load that started before an
	// invalidation does not store its result.
	gen uint64

	metrics     *metrics.Metrics
	unsubscribe []func()
}

type Option func(*Cache)

func WithSize(n int) Option {
	return func(c *Cache) {
		c.entries = newLRU(n)
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Cache) {
		c.metrics = m
	}
}

// New returns an empty cache sized by conf.GetCacheSize(). With a non-nil
// hub, it follows identity, mutation and visibility events.
func New(hub *events.Hub, opts ...Option) *Cache {
	c := &Cache{entries: newLRU(conf.GetCacheSize())}

	for _, opt := range opts {
		opt(c)
	}

	if c.entries.size <= 0 {
		c.entries = newLRU(1)
	}

	if hub != nil {
		c.unsubscribe = append(c.unsubscribe,
			hub.Subscribe(nil, func(e *events.IdentityChanged) bool {
				c.Purge()
				c.SetActive(e.Current)

				return true
			}),
			hub.Subscribe(nil, func(m *events.Mutation) bool {
				c.Apply(m)
				return true
			}),
			hub.Subscribe(nil, func(e *events.VisibilityChanged) bool {
				if e.Visible {
					c.MarkStale(c.Active())
				}

				return true
			}),
		)
	}

	return c
}

func (c *Cache) Close() {
	for _, fn := range c.unsubscribe {
		fn()
	}
}

func (c *Cache) SetActive(account ledger.AccountID) {
	c.mu.Lock()
	c.active = account
	c.mu.Unlock()
}

func (c *Cache) Active() ledger.AccountID {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.active
}

// Get returns the fresh value held under key.
func (c *Cache) Get(key Key) (interface{}, bool) {
	c.mu.Lock()
	e, ok := c.entries.load(key)
	hit := ok && !e.stale
	c.mu.Unlock()

	c.metrics.MarkCache(hit)

	if !hit {
		return nil, false
	}

	return e.value, true
}

func (c *Cache) Put(key Key, val interface{}) {
	c.mu.Lock()
	evicted := c.entries.put(key, val)
	c.mu.Unlock()

	if evicted > 0 {
		logger := log.Cache("evict")
		logger.Debug().Int("count", evicted).Msg("Evicted least recently used view models.")
	}
}

// GetOrLoad returns the fresh value under key, or loads and stores it. A
// failed load stores nothing and leaves a stale entry in place; whatever
// value it produced is returned with its error.
func (c *Cache) GetOrLoad(ctx context.Context, key Key, load Loader) (interface{}, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}

	c.mu.Lock()
	gen := c.gen
	c.mu.Unlock()

	v, err := load(ctx)
	if err != nil {
		return v, err
	}

	c.mu.Lock()
	if c.gen == gen {
		c.entries.put(key, v)
	}
	c.mu.Unlock()

	return v, nil
}

func (c *Cache) Invalidate(key Key) {
	c.mu.Lock()
	c.entries.remove(key)
	c.gen++
	c.mu.Unlock()
}

// Apply drops the entries a confirmed write touched: those of the writing
// account and those shared by every viewer.
func (c *Cache) Apply(m *events.Mutation) {
	c.mu.Lock()

	n := c.entries.removeIf(func(k Key) bool {
		if !k.Account.IsZero() && k.Account != m.Account {
			return false
		}

		for _, t := range m.Targets {
			if t.Kind == k.Kind && (t.ID == 0 || t.ID == k.ID) {
				return true
			}
		}

		return false
	})

	c.gen++
	c.mu.Unlock()

	logger := log.Cache("invalidate")
	logger.Debug().
		Str("op", m.Op).
		Str("tx_id", m.TxID).
		Int("dropped", n).
		Msg("Invalidated view models touched by a write.")
}

// MarkStale makes every entry of account, and every shared entry, reload
// on next access. Stale values are kept until then.
func (c *Cache) MarkStale(account ledger.AccountID) {
	c.mu.Lock()
	c.entries.markIf(func(k Key) bool {
		return k.Account.IsZero() || k.Account == account
	})
	c.gen++
	c.mu.Unlock()
}

// Purge drops every entry.
func (c *Cache) Purge() {
	c.mu.Lock()
	c.entries.purge()
	c.gen++
	c.mu.Unlock()

	logger := log.Cache("purge")
	logger.Debug().Msg("Dropped every cached view model.")
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.entries.len()
}
