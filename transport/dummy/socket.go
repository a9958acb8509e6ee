package dummy

import (
	"github.com/indigo-web/staticd/transport"
	"golang.org/x/sys/unix"
)

var _ transport.Socket = new(Socket)

// Block is a write quota meaning that the write call must fail with EAGAIN.
const Block = -1

// Socket is a scripted in-memory socket. Every chunk passed to Feed is returned by exactly
// one Read call; when no chunks are left, Read reports EAGAIN, or a peer shutdown if the
// socket was hung up. Writes are accumulated in Written and may be limited by quotas.
type Socket struct {
	fd       int
	pending  [][]byte
	hungup   bool
	readErr  error
	quotas   []int
	writeErr error
	// Written holds everything that was accepted by Writev.
	Written []byte
	// Writes counts the Writev calls, including the failed ones.
	Writes int
}

func NewSocket(fd int) *Socket {
	return &Socket{fd: fd}
}

func (s *Socket) Fd() int {
	return s.fd
}

// Feed enqueues data to be received. Each argument is delivered by a separate Read.
func (s *Socket) Feed(chunks ...[]byte) *Socket {
	s.pending = append(s.pending, chunks...)
	return s
}

// FeedString is Feed for a single string.
func (s *Socket) FeedString(data string) *Socket {
	return s.Feed([]byte(data))
}

// Hangup makes Read report an orderly shutdown once the pending chunks are drained.
func (s *Socket) Hangup() *Socket {
	s.hungup = true
	return s
}

// FailReads makes every following Read fail with err.
func (s *Socket) FailReads(err error) *Socket {
	s.readErr = err
	return s
}

// Quota limits the consequent Writev calls: n >= 0 accepts at most n bytes, Block fails
// the call with EAGAIN. Calls beyond the quotas are unlimited.
func (s *Socket) Quota(quotas ...int) *Socket {
	s.quotas = append(s.quotas, quotas...)
	return s
}

// FailWrites makes every following Writev fail with err.
func (s *Socket) FailWrites(err error) *Socket {
	s.writeErr = err
	return s
}

func (s *Socket) Read(b []byte) (int, error) {
	if s.readErr != nil {
		return 0, s.readErr
	}

	if len(s.pending) == 0 {
		if s.hungup {
			return 0, nil
		}

		return 0, unix.EAGAIN
	}

	n := copy(b, s.pending[0])
	if n < len(s.pending[0]) {
		s.pending[0] = s.pending[0][n:]
	} else {
		s.pending = s.pending[1:]
	}

	return n, nil
}

func (s *Socket) Writev(segments [][]byte) (int, error) {
	s.Writes++
	if s.writeErr != nil {
		return 0, s.writeErr
	}

	limit := -1
	if len(s.quotas) > 0 {
		quota := s.quotas[0]
		s.quotas = s.quotas[1:]
		if quota == Block {
			return 0, unix.EAGAIN
		}

		limit = quota
	}

	var n int
	for _, segment := range segments {
		if limit >= 0 && n+len(segment) > limit {
			segment = segment[:limit-n]
		}

		s.Written = append(s.Written, segment...)
		n += len(segment)

		if n == limit {
			break
		}
	}

	return n, nil
}
