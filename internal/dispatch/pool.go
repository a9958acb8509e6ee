// Package dispatch hands ready connections over to a fixed set of workers.
package dispatch

import (
	"errors"
	"sync"

	"github.com/indigo-web/staticd/internal/locker"
)

var ErrBadSize = errors.New("dispatch: workers number and queue size must be positive")

// Pool is a bounded FIFO queue drained by a fixed number of workers. Items are handed to
// the handle callback one by one, so the same item never reaches two workers at once unless
// it's appended twice.
type Pool[T any] struct {
	handle  func(T)
	workers int
	wg      sync.WaitGroup

	mu      *locker.Mutex
	idle    *locker.Cond
	pending *locker.Semaphore
	// queue is a ring of fixed capacity
	queue   []T
	head    int
	size    int
	busy    int
	stopped bool
}

// New starts the workers. The handle callback must not call Stop.
func New[T any](workers, queueSize int, handle func(T)) (*Pool[T], error) {
	if workers <= 0 || queueSize <= 0 {
		return nil, ErrBadSize
	}

	mu, err := locker.NewMutex()
	if err != nil {
		return nil, err
	}

	idle, err := locker.NewCond(mu)
	if err != nil {
		return nil, err
	}

	pending, err := locker.NewSemaphore(0)
	if err != nil {
		return nil, err
	}

	p := &Pool[T]{
		handle:  handle,
		workers: workers,
		mu:      mu,
		idle:    idle,
		pending: pending,
		queue:   make([]T, queueSize),
	}

	p.wg.Add(workers)
	for range workers {
		go p.worker()
	}

	return p, nil
}

// Append enqueues the item. It returns false if the queue is full or the pool is stopped,
// in which case the item still belongs to the caller.
func (p *Pool[T]) Append(item T) bool {
	p.mu.Lock()
	if p.stopped || p.size == len(p.queue) {
		p.mu.Unlock()
		return false
	}

	p.queue[(p.head+p.size)%len(p.queue)] = item
	p.size++
	p.mu.Unlock()
	p.pending.Post()

	return true
}

// Len returns the number of items waiting for a worker.
func (p *Pool[T]) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.size
}

// Stop rejects new items, waits until the queued ones are handled and joins the workers.
// Subsequent calls are no-op.
func (p *Pool[T]) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}

	p.stopped = true
	for p.size > 0 || p.busy > 0 {
		p.idle.Wait()
	}
	p.mu.Unlock()

	// the queue is empty, so every extra post makes exactly one worker exit
	for range p.workers {
		p.pending.Post()
	}

	p.wg.Wait()
}

func (p *Pool[T]) worker() {
	defer p.wg.Done()

	for {
		p.pending.Wait()

		p.mu.Lock()
		if p.size == 0 {
			p.mu.Unlock()
			return
		}

		item := p.pop()
		p.busy++
		p.mu.Unlock()

		p.handle(item)

		p.mu.Lock()
		p.busy--
		if p.size == 0 && p.busy == 0 {
			p.idle.Broadcast()
		}
		p.mu.Unlock()
	}
}

func (p *Pool[T]) pop() T {
	var zero T
	item := p.queue[p.head]
	p.queue[p.head] = zero
	p.head = (p.head + 1) % len(p.queue)
	p.size--

	return item
}
