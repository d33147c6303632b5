package engine

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"sync"
)

// DefaultWorkers bounds concurrent CPU- and memory-heavy model fits.
const DefaultWorkers = 2

// ErrPoolClosed is returned by Submit after Shutdown.
var ErrPoolClosed = errors.New("worker pool is shut down")

// Task is a unit of work run on a pool worker.
type Task func()

// Pool runs tasks on a fixed number of workers. The queue is unbounded and
// FIFO, so Submit never blocks and never runs a task on the caller's
// goroutine. A worker runs one task to completion before taking the next.
type Pool struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queue   []Task
	closed  bool
	workers int
	wg      sync.WaitGroup
	logger  *slog.Logger
}

// NewPool starts a pool with the given number of workers. Values below 1 use
// DefaultWorkers.
func NewPool(workers int, logger *slog.Logger) *Pool {
	if workers < 1 {
		workers = DefaultWorkers
	}
	p := &Pool{workers: workers, logger: logger}
	p.cond = sync.NewCond(&p.mu)
	for range workers {
		p.wg.Go(p.work)
	}
	return p
}

// Workers returns the number of worker goroutines.
func (p *Pool) Workers() int {
	return p.workers
}

// Submit enqueues t.
func (p *Pool) Submit(t Task) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPoolClosed
	}
	p.queue = append(p.queue, t)
	queueDepth.Set(float64(len(p.queue)))
	p.cond.Signal()
	return nil
}

// Pending returns the number of queued tasks not yet picked up by a worker.
func (p *Pool) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// Shutdown stops accepting tasks, drops tasks that never started and waits
// for in-flight tasks until ctx is done. It returns the number of dropped
// tasks.
func (p *Pool) Shutdown(ctx context.Context) (int, error) {
	p.mu.Lock()
	dropped := len(p.queue)
	p.queue = nil
	p.closed = true
	queueDepth.Set(0)
	p.cond.Broadcast()
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return dropped, nil
	case <-ctx.Done():
		return dropped, ctx.Err()
	}
}

func (p *Pool) work() {
	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.closed {
			p.cond.Wait()
		}
		if p.closed {
			p.mu.Unlock()
			return
		}
		t := p.queue[0]
		p.queue[0] = nil
		p.queue = p.queue[1:]
		queueDepth.Set(float64(len(p.queue)))
		p.mu.Unlock()

		p.run(t)
	}
}

func (p *Pool) run(t Task) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("task panicked", "panic", r, "stack", string(debug.Stack()))
		}
	}()
	t()
}
