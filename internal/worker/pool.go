package worker

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

var ErrStopped = errors.New("worker pool stopped")

type Pool struct {
	bus  chan func()
	stop chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

func NewWorkerPool() *Pool {
	return &Pool{
		stop: make(chan struct{}),
		bus:  make(chan func()),
	}
}

func (p *Pool) Start(workers int) {
	p.wg.Add(workers)

	for i := 0; i < workers; i++ {
		go func() {
			defer p.wg.Done()
			for {
				select {
				case job := <-p.bus:
					if job != nil {
						job()
					}
				case <-p.stop:
					return
				}
			}
		}()
	}
}

// Queue hands job to the next idle worker. It returns ErrStopped if the pool
// was stopped, or ctx's error if ctx ends before a worker takes the job.
func (p *Pool) Queue(ctx context.Context, job func()) error {
	select {
	case p.bus <- job:
		return nil
	case <-p.stop:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Do runs fn on the pool and waits for it to return.
func (p *Pool) Do(ctx context.Context, fn func() error) error {
	done := make(chan error, 1)

	if err := p.Queue(ctx, func() { done <- fn() }); err != nil {
		return err
	}

	return <-done
}

func (p *Pool) Stop() {
	p.once.Do(func() {
		close(p.stop)
	})

	p.wg.Wait()
}

// Keyed runs jobs one at a time per key, and concurrently across keys.
type Keyed struct {
	sync.Mutex
	pools  map[string]*Pool
	closed bool
}

func NewKeyed() *Keyed {
	return &Keyed{pools: make(map[string]*Pool)}
}

func (k *Keyed) pool(key string) (*Pool, error) {
	k.Lock()
	defer k.Unlock()

	if k.closed {
		return nil, ErrStopped
	}

	p, ok := k.pools[key]
	if !ok {
		p = NewWorkerPool()
		p.Start(1)
		k.pools[key] = p
	}

	return p, nil
}

// Do runs fn after every job previously queued under key has finished.
func (k *Keyed) Do(ctx context.Context, key string, fn func() error) error {
	p, err := k.pool(key)
	if err != nil {
		return err
	}

	return p.Do(ctx, fn)
}

func (k *Keyed) Stop() {
	k.Lock()
	pools := k.pools
	k.pools = make(map[string]*Pool)
	k.closed = true
	k.Unlock()

	for _, p := range pools {
		p.Stop()
	}
}
