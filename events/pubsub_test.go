package events

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/perlin-network/academy/ledger"
	"github.com/stretchr/testify/assert"
)

type MessageA struct{}
type MessageB struct{}

func doConcurrentPubsub(async bool) uint64 {
	const IterationCount = 10000

	hub := NewHub()
	wg := &sync.WaitGroup{}
	var concCount uint64
	var workerCount int64

	wg.Add(IterationCount)

	subscribeFn := hub.Subscribe
	if async {
		subscribeFn = hub.SubscribeAsync
	}

	subscribeFn(nil, func(msg *MessageA) bool {
		newWorkerCount := atomic.AddInt64(&workerCount, 1)
		if newWorkerCount > 1 {
			atomic.AddUint64(&concCount, 1)
		}
		for i := 0; i < 100; i++ {
		}
		atomic.AddInt64(&workerCount, -1)
		wg.Done()
		return true
	})
	for i := 0; i < IterationCount; i++ {
		go hub.Publish(nil, &MessageA{})
	}
	wg.Wait()
	return concCount
}

func TestSyncSubscribe(t *testing.T) {
	assert.Zero(t, doConcurrentPubsub(false))
}

func TestSubscribeTypeMismatch(t *testing.T) {
	hub := NewHub()

	assert.Panics(t, func() {
		hub.Subscribe(nil, func(msg *MessageA) {})
	})

	assert.Panics(t, func() {
		hub.Subscribe(nil, func(msg *MessageA) int { return 0 })
	})

	assert.Panics(t, func() {
		hub.Subscribe(nil, "not a func")
	})
}

func TestBasicPubsub(t *testing.T) {
	hub := NewHub()

	aCount := 0
	bCount := 0

	hub.Subscribe(nil, func(msg *MessageA) bool {
		if msg == nil {
			return false
		}
		aCount++
		return true
	})

	hub.Subscribe(nil, func(msg *MessageB) bool {
		if msg == nil {
			return false
		}
		bCount++
		return true
	})

	for i := 0; i < 600; i++ {
		hub.Publish(nil, &MessageA{})
	}
	hub.Publish(nil, (*MessageA)(nil))
	hub.Publish(nil, &MessageA{})

	for i := 0; i < 500; i++ {
		hub.Publish(nil, &MessageB{})
	}

	assert.Equal(t, 600, aCount)
	assert.Equal(t, 500, bCount)
}

func TestUnsubscribe(t *testing.T) {
	hub := NewHub()

	var count int

	cancel := hub.Subscribe(nil, func(msg *IdentityChanged) bool {
		count++
		return true
	})

	hub.Publish(nil, &IdentityChanged{})
	cancel()
	hub.Publish(nil, &IdentityChanged{})

	assert.Equal(t, 1, count)
}

func TestTopicsAreSeparate(t *testing.T) {
	hub := NewHub()

	alice := ledger.AccountID{1}

	var got []*Mutation

	hub.Subscribe(alice, func(m *Mutation) bool {
		got = append(got, m)
		return true
	})

	hub.Publish(nil, &Mutation{Op: "enroll"})
	hub.Publish(alice, &Mutation{Op: "enroll", Account: alice, Targets: []Target{{Kind: KindEnrollment, ID: 3}}})

	if assert.Len(t, got, 1) {
		assert.True(t, got[0].Touches(KindProgress, KindEnrollment))
		assert.False(t, got[0].Touches(KindQuiz))
	}
}
