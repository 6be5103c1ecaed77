// Package worker provides a bounded goroutine pool for CPU-heavy jobs.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

var ErrPoolClosed = errors.New("worker pool closed")

// Pool runs submitted jobs on a fixed number of goroutines. Jobs wait in a
// bounded queue; Submit blocks while the queue is full.
type Pool struct {
	jobs    chan func()
	closing chan struct{}
	g       errgroup.Group

	mu      sync.Mutex
	closed  bool
	senders sync.WaitGroup
}

// New starts size workers with room for queue pending jobs.
func New(size, queue int) *Pool {
	if size < 1 {
		size = 1
	}
	if queue < 0 {
		queue = 0
	}
	p := &Pool{jobs: make(chan func(), queue), closing: make(chan struct{})}
	for i := 0; i < size; i++ {
		p.g.Go(func() error {
			for job := range p.jobs {
				job()
			}
			return nil
		})
	}
	return p
}

// Future is the pending result of a submitted job.
type Future[T any] struct {
	done chan struct{}
	val  T
	err  error
}

// Wait blocks until the job finishes or ctx ends.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Done is closed when the job has finished.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// Submit queues fn on p. fn receives ctx; if ctx has ended by the time a
// worker picks the job up, fn is skipped and the future reports ctx.Err().
// A panic in fn is reported as an error.
func Submit[T any](ctx context.Context, p *Pool, fn func(context.Context) (T, error)) (*Future[T], error) {
	f := &Future[T]{done: make(chan struct{})}
	job := func() {
		defer close(f.done)
		defer func() {
			if r := recover(); r != nil {
				f.err = fmt.Errorf("job panicked: %v", r)
			}
		}()
		if err := ctx.Err(); err != nil {
			f.err = err
			return
		}
		f.val, f.err = fn(ctx)
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	p.senders.Add(1)
	p.mu.Unlock()
	defer p.senders.Done()

	select {
	case p.jobs <- job:
		return f, nil
	case <-p.closing:
		return nil, ErrPoolClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Shutdown stops accepting jobs and waits for queued ones to finish or for
// ctx to end. Submit calls blocked on a full queue return ErrPoolClosed.
// A non-nil error means a job may still be running.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.closing)
		// jobs is closed once no Submit can still send on it.
		go func() {
			p.senders.Wait()
			close(p.jobs)
		}()
	}
	p.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- p.g.Wait() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close is Shutdown without a deadline.
func (p *Pool) Close() error {
	return p.Shutdown(context.Background())
}
