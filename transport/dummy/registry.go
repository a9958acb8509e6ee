package dummy

import (
	"github.com/indigo-web/staticd/internal/poller"
)

var _ poller.Registry = new(Registry)

// Registry records the calls instead of talking to a multiplexer.
type Registry struct {
	// Oneshot holds the registered descriptors and whether they were registered in the
	// one-shot mode.
	Oneshot map[int]bool
	// Armed holds the interest every descriptor was last re-armed for.
	Armed map[int]poller.Interest
	// Rearms counts Rearm calls per descriptor.
	Rearms map[int]int
	// Closed holds deregistered descriptors.
	Closed map[int]bool
	// Err, when set, is returned by every call.
	Err error
}

func NewRegistry() *Registry {
	return &Registry{
		Oneshot: make(map[int]bool),
		Armed:   make(map[int]poller.Interest),
		Rearms:  make(map[int]int),
		Closed:  make(map[int]bool),
	}
}

func (r *Registry) Register(fd int, oneshot bool) error {
	if r.Err != nil {
		return r.Err
	}

	r.Oneshot[fd] = oneshot
	delete(r.Closed, fd)

	return nil
}

func (r *Registry) Deregister(fd int) error {
	delete(r.Oneshot, fd)
	delete(r.Armed, fd)
	r.Closed[fd] = true

	return r.Err
}

func (r *Registry) Rearm(fd int, interest poller.Interest) error {
	if r.Err != nil {
		return r.Err
	}

	r.Armed[fd] = interest
	r.Rearms[fd]++

	return nil
}
