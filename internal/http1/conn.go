package http1

import (
	"net"
	"sync/atomic"

	"github.com/indigo-web/staticd/http/method"
	"github.com/indigo-web/staticd/http/proto"
	"github.com/indigo-web/staticd/internal/poller"
	"github.com/indigo-web/staticd/internal/resource"
	"github.com/indigo-web/staticd/transport"
	"github.com/indigo-web/utils/uf"
)

type phase uint8

const (
	phaseRead phase = iota
	phaseWrite
)

// Conn is the per-socket state of the server. It's reused across keep-alive requests via
// Reset. A Conn isn't locked: the one-shot registration guarantees that at most one
// goroutine owns it at any moment, and the caller must keep that promise for Init and
// Close too. Ownership passes through the readiness multiplexer, which the memory model
// knows nothing about, so every owner publishes its writes via the handoff counter before
// giving the descriptor away and observes it when taking over.
type Conn struct {
	shared  *Shared
	sock    transport.Socket
	remote  net.Addr
	handoff atomic.Uint64

	// rbuf has a fixed capacity. The invariant is 0 <= checked <= filled <= len(rbuf).
	rbuf      []byte
	checked   int
	filled    int
	lineStart int
	lineEnd   int

	// wbuf holds the status line and headers, and the whole body for canned responses.
	wbuf    []byte
	written int

	phase phase
	stage Stage
	// method, target, version and host refer to rbuf and are valid until Reset.
	method        method.Method
	target        []byte
	version       proto.Protocol
	host          []byte
	contentLength int64
	keepAlive     bool

	// file is present only between a successful resolution and the end of the write phase.
	file     resource.Mapping
	iov      [2][]byte
	iovCount int
	toSend   int
	sent     int
}

func NewConn(shared *Shared) *Conn {
	return &Conn{
		shared: shared,
		rbuf:   make([]byte, shared.Config.NET.ReadBufferSize),
		wbuf:   make([]byte, shared.Config.NET.WriteBufferSize),
	}
}

// Init binds the connection to a freshly accepted socket and registers it in the one-shot
// mode. On error the socket stays untouched and is still owned by the caller.
func (c *Conn) Init(sock transport.Socket, remote net.Addr) error {
	c.acquire()
	c.sock = sock
	c.remote = remote
	c.Reset()
	c.release()

	if err := c.shared.Registry.Register(sock.Fd(), true); err != nil {
		c.acquire()
		c.sock = nil
		c.release()
		return err
	}

	c.shared.active.Add(1)

	return nil
}

// Process handles a single delivered readiness notification. Depending on the phase, it
// either receives and parses the request, or sends the response. It returns false if the
// connection must be closed by the caller; otherwise the descriptor is already re-armed.
func (c *Conn) Process() bool {
	c.acquire()

	if c.phase == phaseWrite {
		return c.write()
	}

	if !c.read() {
		return false
	}

	outcome := c.parse()
	switch outcome {
	case NeedMoreData:
		if c.filled < len(c.rbuf) {
			return c.rearm(poller.Read)
		}

		// the request will never fit
		outcome = BadRequest
	case Complete:
		outcome = c.resolve()
	}

	if !c.respond(outcome) {
		return false
	}

	c.phase = phaseWrite

	return c.rearm(poller.Write)
}

// read drains the socket into the read buffer until it would block. A receive error and
// an orderly shutdown are both fatal, even if a complete request is already buffered.
func (c *Conn) read() bool {
	if c.filled >= len(c.rbuf) {
		return false
	}

	for c.filled < len(c.rbuf) {
		n, err := c.sock.Read(c.rbuf[c.filled:])
		switch {
		case err != nil:
			return transport.IsWouldBlock(err)
		case n == 0:
			return false
		}

		c.filled += n
	}

	return true
}

func (c *Conn) resolve() Outcome {
	cfg := c.shared.Config
	file, err := resource.Resolve(cfg.Root, c.target, cfg.NET.MaxPathLength)
	if err != nil {
		outcome := outcomeOf(err)
		if outcome == InternalError {
			c.shared.Logger.Printf("staticd: %s: %s", c.remote, err)
		}

		return outcome
	}

	c.file = file

	return ResourceReady
}

func (c *Conn) rearm(interest poller.Interest) bool {
	c.release()
	if err := c.shared.Registry.Rearm(c.sock.Fd(), interest); err != nil {
		c.shared.Logger.Printf("staticd: %s: re-arm for %s: %s", c.remote, interest, err)
		return false
	}

	return true
}

func (c *Conn) unmap() {
	if err := c.file.Release(); err != nil {
		c.shared.Logger.Printf("staticd: %s: munmap: %s", c.remote, err)
	}
}

// Reset brings the connection to the state of a fresh request. Everything shorter-lived
// than the connection itself is dropped, including a mapping left by an aborted write.
func (c *Conn) Reset() {
	c.unmap()
	clear(c.rbuf[:c.filled])
	clear(c.wbuf[:c.written])

	c.checked, c.filled = 0, 0
	c.lineStart, c.lineEnd = 0, 0
	c.written = 0

	c.phase = phaseRead
	c.stage = StageRequestLine
	c.method = method.Unknown
	c.target = nil
	c.version = proto.Unknown
	c.host = nil
	c.contentLength = 0
	c.keepAlive = false

	c.iov = [2][]byte{}
	c.iovCount = 0
	c.toSend, c.sent = 0, 0
}

// Close releases the mapping, deregisters the socket (which closes it) and decrements
// the active connections counter. Closing a closed connection is a no-op.
//
// The descriptor is closed last: as soon as it is, the kernel may hand the same number to
// a new connection, and the object is reused for it.
func (c *Conn) Close() {
	c.acquire()
	if c.sock == nil {
		return
	}

	fd, remote := c.sock.Fd(), c.remote
	c.unmap()
	c.sock = nil
	c.shared.active.Add(-1)
	c.release()

	if err := c.shared.Registry.Deregister(fd); err != nil {
		c.shared.Logger.Printf("staticd: %s: deregister: %s", remote, err)
	}
}

// acquire makes the writes of the previous owner visible.
func (c *Conn) acquire() {
	c.handoff.Load()
}

// release publishes the writes done so far. It must precede every call that lets another
// goroutine take the connection over.
func (c *Conn) release() {
	c.handoff.Add(1)
}

// Fd returns the descriptor of the socket, or -1 if the connection is closed.
func (c *Conn) Fd() int {
	if c.sock == nil {
		return -1
	}

	return c.sock.Fd()
}

func (c *Conn) Remote() net.Addr {
	return c.remote
}

func (c *Conn) Method() method.Method {
	return c.method
}

// Target returns the request path. The string refers to the read buffer and must not
// outlive the current request.
func (c *Conn) Target() string {
	return uf.B2S(c.target)
}

func (c *Conn) Version() proto.Protocol {
	return c.version
}

// Host returns the Host header value. Same lifetime rules as for Target apply.
func (c *Conn) Host() string {
	return uf.B2S(c.host)
}

func (c *Conn) ContentLength() int64 {
	return c.contentLength
}

func (c *Conn) KeepAlive() bool {
	return c.keepAlive
}

func (c *Conn) Stage() Stage {
	return c.stage
}
