package executor

import (
	"context"
	"errors"
	"sync"
)

// ErrPoolClosed is returned by Submit after Close has been called.
var ErrPoolClosed = errors.New("pool closed")

// Worker processes the tasks one pool goroutine receives. Each goroutine gets
// its own Worker, so state such as backend sessions is never shared.
type Worker[T any] interface {
	Handle(ctx context.Context, task T)
	Close() error
}

// Pool runs tasks on a fixed number of workers fed by a bounded queue.
// Submit blocks while the queue is full.
type Pool[T any] struct {
	tasks chan T
	wg    sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewPool starts workers goroutines. newWorker is called once per goroutine
// with its index.
func NewPool[T any](ctx context.Context, workers, queueDepth int, newWorker func(id int) Worker[T]) *Pool[T] {
	if workers <= 0 {
		workers = 1
	}
	if queueDepth <= 0 {
		queueDepth = 1
	}

	p := &Pool[T]{tasks: make(chan T, queueDepth)}
	for i := 0; i < workers; i++ {
		w := newWorker(i)
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			defer w.Close()
			for task := range p.tasks {
				w.Handle(ctx, task)
			}
		}()
	}
	return p
}

// Submit queues task, blocking until there is room or ctx is done.
func (p *Pool[T]) Submit(ctx context.Context, task T) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case p.tasks <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting tasks and returns once every queued and in-flight
// task has been handled and every worker closed.
func (p *Pool[T]) Close() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.tasks)
	}
	p.mu.Unlock()
	p.wg.Wait()
}
