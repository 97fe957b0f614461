package ledger

import (
	"sync"
	"sync/atomic"
)

// Counter is a per-account nonce.
type Counter struct {
	n uint64
}

func (c *Counter) Store(val uint64) {
	atomic.StoreUint64(&c.n, val)
}

func (c *Counter) Add(delta uint64) uint64 {
	return atomic.AddUint64(&c.n, delta)
}

func (c *Counter) Value() uint64 {
	return atomic.LoadUint64(&c.n)
}

// nonces tracks the last nonce used by each local signer.
type nonces struct {
	sync.Mutex
	counters map[AccountID]*Counter
}

func (n *nonces) get(account AccountID) (*Counter, bool) {
	n.Lock()
	defer n.Unlock()

	c, ok := n.counters[account]

	return c, ok
}

func (n *nonces) set(account AccountID, last uint64) *Counter {
	n.Lock()
	defer n.Unlock()

	if n.counters == nil {
		n.counters = make(map[AccountID]*Counter)
	}

	c := &Counter{}
	c.Store(last)
	n.counters[account] = c

	return c
}

func (n *nonces) reset(account AccountID) {
	n.Lock()
	delete(n.counters, account)
	n.Unlock()
}
