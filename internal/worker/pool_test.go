package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestPoolDo(t *testing.T) {
	p := NewWorkerPool()
	p.Start(2)
	defer p.Stop()

	boom := errors.New("boom")

	assert.NoError(t, p.Do(context.Background(), func() error { return nil }))
	assert.Equal(t, boom, p.Do(context.Background(), func() error { return boom }))
}

func TestPoolStopped(t *testing.T) {
	p := NewWorkerPool()
	p.Start(1)
	p.Stop()
	p.Stop()

	assert.Equal(t, ErrStopped, p.Do(context.Background(), func() error { return nil }))
}

func TestPoolQueueCancelled(t *testing.T) {
	p := NewWorkerPool()
	p.Start(1)
	defer p.Stop()

	release := make(chan struct{})
	go p.Do(context.Background(), func() error { <-release; return nil })

	// Give the blocking job time to occupy the only worker.
	time.Sleep(10 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	assert.Equal(t, context.DeadlineExceeded, p.Do(ctx, func() error { return nil }))
	close(release)
}

func TestKeyedSerializesPerKey(t *testing.T) {
	k := NewKeyed()
	defer k.Stop()

	var (
		wg      sync.WaitGroup
		running int32
		overlap int32
	)

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = k.Do(context.Background(), "alice", func() error {
				if atomic.AddInt32(&running, 1) > 1 {
					atomic.StoreInt32(&overlap, 1)
				}
				time.Sleep(time.Millisecond)
				atomic.AddInt32(&running, -1)
				return nil
			})
		}()
	}

	wg.Wait()
	assert.Zero(t, atomic.LoadInt32(&overlap))
}

func TestKeyedParallelAcrossKeys(t *testing.T) {
	k := NewKeyed()
	defer k.Stop()

	started := make(chan struct{})
	release := make(chan struct{})

	go k.Do(context.Background(), "alice", func() error {
		close(started)
		<-release
		return nil
	})

	<-started

	// bob is not blocked behind alice's job.
	assert.NoError(t, k.Do(context.Background(), "bob", func() error { return nil }))
	close(release)
}
