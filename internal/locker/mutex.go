// Package locker provides the synchronization primitives the dispatcher is built from.
// Every primitive is obtained through a factory returning an error instead of panicking.
package locker

import (
	"errors"
	"sync"
)

var (
	ErrNegativeCount = errors.New("locker: negative semaphore count")
	ErrNilMutex      = errors.New("locker: condition variable requires a mutex")
)

// Mutex is an exclusive lock.
type Mutex struct {
	mu sync.Mutex
}

// NewMutex never fails; the error result keeps the factories uniform.
func NewMutex() (*Mutex, error) {
	return new(Mutex), nil
}

func (m *Mutex) Lock() {
	m.mu.Lock()
}

func (m *Mutex) Unlock() {
	m.mu.Unlock()
}
