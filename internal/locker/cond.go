package locker

import (
	"sync"
	"time"
)

// Cond is a condition variable bound to a Mutex. Unlike sync.Cond it supports waiting
// with a timeout, therefore every waiter parks on its own channel.
type Cond struct {
	m       *Mutex
	mu      sync.Mutex
	waiters []chan struct{}
}

func NewCond(m *Mutex) (*Cond, error) {
	if m == nil {
		return nil, ErrNilMutex
	}

	return &Cond{m: m}, nil
}

// Wait atomically unlocks the mutex and suspends the caller until signalled. The mutex
// is locked again before Wait returns. The caller must hold the mutex.
func (c *Cond) Wait() {
	ch := c.enqueue()
	c.m.Unlock()
	<-ch
	c.m.Lock()
}

// TimedWait behaves like Wait, but gives up after the timeout. It reports whether the
// caller was signalled.
func (c *Cond) TimedWait(timeout time.Duration) (signalled bool) {
	ch := c.enqueue()
	c.m.Unlock()

	timer := time.NewTimer(timeout)
	select {
	case <-ch:
		signalled = true
	case <-timer.C:
		// a signal might have raced with the timer. If so, it's consumed here anyway
		signalled = !c.dequeue(ch)
	}

	timer.Stop()
	c.m.Lock()

	return signalled
}

// Signal wakes one waiter, if there is any.
func (c *Cond) Signal() {
	c.mu.Lock()
	if len(c.waiters) > 0 {
		close(c.waiters[0])
		c.waiters[0] = nil
		c.waiters = c.waiters[1:]
	}
	c.mu.Unlock()
}

// Broadcast wakes all the waiters.
func (c *Cond) Broadcast() {
	c.mu.Lock()
	for _, ch := range c.waiters {
		close(ch)
	}
	c.waiters = nil
	c.mu.Unlock()
}

func (c *Cond) enqueue() chan struct{} {
	ch := make(chan struct{})
	c.mu.Lock()
	c.waiters = append(c.waiters, ch)
	c.mu.Unlock()

	return ch
}

// dequeue removes the channel from the waiters list, returning false if it was already
// removed by Signal or Broadcast.
func (c *Cond) dequeue(ch chan struct{}) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, waiter := range c.waiters {
		if waiter == ch {
			c.waiters = append(c.waiters[:i], c.waiters[i+1:]...)
			return true
		}
	}

	return false
}
