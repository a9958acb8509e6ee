package transport

import (
	"errors"
	"net"

	"golang.org/x/sys/unix"
)

// Socket is a connected non-blocking stream descriptor.
type Socket interface {
	Fd() int
	// Read receives into b. Would-block is reported as an error, see IsWouldBlock, and an
	// orderly peer shutdown as zero bytes with no error.
	Read(b []byte) (int, error)
	// Writev sends the segments with a single gather write, returning how many bytes
	// were accepted by the kernel.
	Writev(segments [][]byte) (int, error)
}

type fdSocket struct {
	fd int
}

// NewSocket wraps a raw descriptor. The descriptor is owned by the poller registration,
// so the socket itself has no Close.
func NewSocket(fd int) Socket {
	return fdSocket{fd: fd}
}

func (s fdSocket) Fd() int {
	return s.fd
}

func (s fdSocket) Read(b []byte) (int, error) {
	for {
		n, err := unix.Read(s.fd, b)
		if errors.Is(err, unix.EINTR) {
			continue
		}

		return n, err
	}
}

func (s fdSocket) Writev(segments [][]byte) (int, error) {
	for {
		n, err := unix.Writev(s.fd, segments)
		if errors.Is(err, unix.EINTR) {
			continue
		}

		return n, err
	}
}

// IsWouldBlock reports whether the error means the operation can't progress without
// blocking, so the descriptor must be re-armed instead of being treated as broken.
func IsWouldBlock(err error) bool {
	return errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK)
}

// Addr converts a socket address returned by accept(2) into a net.Addr.
func Addr(sa unix.Sockaddr) net.Addr {
	switch addr := sa.(type) {
	case *unix.SockaddrInet4:
		return &net.TCPAddr{IP: net.IP(addr.Addr[:]).To16(), Port: addr.Port}
	case *unix.SockaddrInet6:
		return &net.TCPAddr{IP: net.IP(addr.Addr[:]), Port: addr.Port}
	case *unix.SockaddrUnix:
		return &net.UnixAddr{Name: addr.Name, Net: "unix"}
	default:
		return nil
	}
}
