// File: internal/infra/worker/pool.go
package worker

import (
	"context"
	"errors"
	"runtime"
	"sync"

	"github.com/rs/zerolog"

	"storefront-checkout/internal/infra/metrics"
)

var (
	ErrQueueFull  = errors.New("worker queue full")
	ErrPoolClosed = errors.New("worker pool stopped")
)

type Task func(ctx context.Context) error

// Pool runs submitted tasks on a fixed set of goroutines. Submit never blocks:
// a saturated queue is reported back to the caller.
type Pool struct {
	name string
	wg   sync.WaitGroup
	jobs chan Task
	quit chan struct{}
	n    int
	log  *zerolog.Logger

	mu      sync.RWMutex
	stopped bool
}

func NewPool(name string, workers, queue int, logger *zerolog.Logger) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if queue <= 0 {
		queue = workers * 4
	}
	l := logger.With().Str("component", "worker_pool").Str("pool", name).Logger()
	return &Pool{name: name, jobs: make(chan Task, queue), quit: make(chan struct{}), n: workers, log: &l}
}

// Start launches the workers. Cancelling ctx or calling Stop makes them
// finish the queued tasks before returning; after cancellation those tasks
// run with the cancelled ctx, so their callers still get a result.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.n; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			for {
				select {
				case <-ctx.Done():
					p.drain(ctx, id)
					return
				case <-p.quit:
					p.drain(ctx, id)
					return
				case task := <-p.jobs:
					p.run(ctx, id, task)
				}
			}
		}(i)
	}
	p.log.Info().Int("workers", p.n).Int("queue", cap(p.jobs)).Msg("worker pool started")
}

// drain finishes whatever was queued before shutdown.
func (p *Pool) drain(ctx context.Context, id int) {
	for {
		select {
		case task := <-p.jobs:
			p.run(ctx, id, task)
		default:
			return
		}
	}
}

func (p *Pool) run(ctx context.Context, id int, task Task) {
	metrics.SetWorkerQueueDepth(p.name, len(p.jobs))
	if task == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			p.log.Error().Int("worker", id).Interface("panic", r).Msg("task panicked")
		}
	}()
	if err := task(ctx); err != nil {
		p.log.Error().Err(err).Int("worker", id).Msg("task error")
	}
}

// Stop refuses new tasks, lets workers drain the queue and waits for them.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.quit)
	p.mu.Unlock()
	p.wg.Wait()
	p.log.Info().Msg("worker pool stopped")
}

func (p *Pool) Submit(task Task) error {
	if task == nil {
		return errors.New("nil task")
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrPoolClosed
	}
	select {
	case p.jobs <- task:
		metrics.SetWorkerQueueDepth(p.name, len(p.jobs))
		return nil
	default:
		return ErrQueueFull
	}
}
