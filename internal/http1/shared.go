package http1

import (
	"io"
	"log"
	"sync/atomic"

	"github.com/indigo-web/staticd/config"
	"github.com/indigo-web/staticd/internal/poller"
)

// Shared is the state every connection of a single server refers to. The registry is safe
// for concurrent use and the active counter is atomic, so connections owned by different
// workers may touch it simultaneously.
type Shared struct {
	Registry poller.Registry
	Config   *config.Config
	Logger   *log.Logger
	active   atomic.Int64
}

// NewShared returns the server context. A nil logger discards everything.
func NewShared(registry poller.Registry, cfg *config.Config, logger *log.Logger) *Shared {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	return &Shared{
		Registry: registry,
		Config:   cfg,
		Logger:   logger,
	}
}

// Active returns the number of initialized and not yet closed connections.
func (s *Shared) Active() int64 {
	return s.active.Load()
}
