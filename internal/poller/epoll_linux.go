//go:build linux

package poller

import (
	"errors"

	"golang.org/x/sys/unix"
)

var _ Registry = new(Epoll)

// Epoll is the Registry backed by an epoll instance. The instance is shared among all the
// connections of a server and is safe for concurrent use, as epoll_ctl(2) is.
type Epoll struct {
	fd     int
	events []unix.EpollEvent
	out    []Event
}

// New creates an epoll instance. maxEvents bounds how many events a single Wait returns.
func New(maxEvents int) (*Epoll, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}

	return &Epoll{
		fd:     fd,
		events: make([]unix.EpollEvent, maxEvents),
		out:    make([]Event, 0, maxEvents),
	}, nil
}

func (e *Epoll) Register(fd int, oneshot bool) error {
	if err := unix.SetNonblock(fd, true); err != nil {
		return err
	}

	ev := unix.EpollEvent{
		Events: unix.EPOLLIN | unix.EPOLLRDHUP,
		Fd:     int32(fd),
	}
	if oneshot {
		ev.Events |= unix.EPOLLONESHOT
	}

	return unix.EpollCtl(e.fd, unix.EPOLL_CTL_ADD, fd, &ev)
}

func (e *Epoll) Deregister(fd int) error {
	ctlErr := unix.EpollCtl(e.fd, unix.EPOLL_CTL_DEL, fd, nil)
	return errors.Join(ctlErr, unix.Close(fd))
}

func (e *Epoll) Rearm(fd int, interest Interest) error {
	events := uint32(unix.EPOLLET | unix.EPOLLONESHOT | unix.EPOLLRDHUP)
	switch interest {
	case Read:
		events |= unix.EPOLLIN
	case Write:
		events |= unix.EPOLLOUT
	}

	return unix.EpollCtl(e.fd, unix.EPOLL_CTL_MOD, fd, &unix.EpollEvent{
		Events: events,
		Fd:     int32(fd),
	})
}

// Wait blocks for at most timeoutMs milliseconds (-1 means forever) and returns the delivered
// events. The returned slice is reused by the next call. An interrupted wait returns no events
// and no error.
func (e *Epoll) Wait(timeoutMs int) ([]Event, error) {
	n, err := unix.EpollWait(e.fd, e.events, timeoutMs)
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return e.out[:0], nil
		}

		return nil, err
	}

	out := e.out[:0]
	for _, ev := range e.events[:n] {
		out = append(out, Event{
			Fd:       int(ev.Fd),
			Readable: ev.Events&unix.EPOLLIN != 0,
			Writable: ev.Events&unix.EPOLLOUT != 0,
			Hangup:   ev.Events&(unix.EPOLLRDHUP|unix.EPOLLHUP|unix.EPOLLERR) != 0,
		})
	}

	return out, nil
}

// Close releases the epoll instance. Registered descriptors are left untouched.
func (e *Epoll) Close() error {
	return unix.Close(e.fd)
}
