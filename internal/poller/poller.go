// Package poller maintains the interest sets of descriptors in the readiness multiplexer.
//
// Connections are registered in one-shot mode: once an event for a descriptor is delivered,
// no further events are delivered for it until it's explicitly re-armed. Forgetting to re-arm
// therefore stalls the connection silently, and this is exactly what guarantees that a single
// worker owns a connection at any moment.
package poller

// Interest selects the readiness kind a descriptor is re-armed for.
type Interest uint8

const (
	Read Interest = iota + 1
	Write
)

func (i Interest) String() string {
	switch i {
	case Read:
		return "read"
	case Write:
		return "write"
	default:
		return "none"
	}
}

// Registry is the subset of the multiplexer a connection needs.
type Registry interface {
	// Register switches the descriptor into non-blocking mode and subscribes to read
	// readiness and peer shutdown. With oneshot, the registration disables itself after the
	// first delivered event.
	Register(fd int, oneshot bool) error
	// Deregister removes the descriptor from the interest set and closes it.
	Deregister(fd int) error
	// Rearm subscribes the descriptor for exactly one more edge-triggered event of the
	// given interest, plus peer shutdown.
	Rearm(fd int, interest Interest) error
}

// Event is a single readiness notification.
type Event struct {
	Fd       int
	Readable bool
	Writable bool
	// Hangup is set when the peer shut down its side or the descriptor is in error state.
	Hangup bool
}
