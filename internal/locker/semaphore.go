package locker

import "sync"

// Semaphore is a counting semaphore. Wait blocks until the count is positive and
// decrements it, Post increments it without ever blocking.
type Semaphore struct {
	mu    sync.Mutex
	cond  *sync.Cond
	count int
}

// NewSemaphore returns a semaphore holding the initial count. Most callers want zero.
func NewSemaphore(initial int) (*Semaphore, error) {
	if initial < 0 {
		return nil, ErrNegativeCount
	}

	s := &Semaphore{count: initial}
	s.cond = sync.NewCond(&s.mu)

	return s, nil
}

func (s *Semaphore) Wait() {
	s.mu.Lock()
	for s.count == 0 {
		s.cond.Wait()
	}
	s.count--
	s.mu.Unlock()
}

func (s *Semaphore) Post() {
	s.mu.Lock()
	s.count++
	s.mu.Unlock()
	s.cond.Signal()
}

// Count returns the current value. It's racy by nature and is meant for diagnostics only.
func (s *Semaphore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.count
}
