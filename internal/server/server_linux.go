//go:build linux

// Package server runs the readiness loop: it accepts connections, watches them through
// epoll and hands ready ones over to the workers.
package server

import (
	"errors"
	"fmt"
	"log"
	"net"
	"strconv"
	"sync/atomic"

	"github.com/indigo-web/staticd/config"
	"github.com/indigo-web/staticd/http/status"
	"github.com/indigo-web/staticd/internal/dispatch"
	"github.com/indigo-web/staticd/internal/http1"
	"github.com/indigo-web/staticd/internal/poller"
	"github.com/indigo-web/staticd/transport"
	"golang.org/x/sys/unix"
)

var ErrNotListening = errors.New("server: Listen must be called before Serve")

const busyBody = "Internal server busy\n"

var busyResponse = []byte("HTTP/1.1 " + strconv.Itoa(int(status.ServiceUnavailable)) + " " +
	string(status.Text(status.ServiceUnavailable)) + "\r\n" +
	"Content-Length: " + strconv.Itoa(len(busyBody)) + "\r\n" +
	"Connection: close\r\n\r\n" + busyBody)

type Server struct {
	cfg    *config.Config
	logger *log.Logger
	epoll  *poller.Epoll
	shared *http1.Shared
	pool   *dispatch.Pool[task]

	listener int
	addr     net.Addr
	// conns is indexed by descriptor. It's touched by the loop goroutine only.
	conns []*http1.Conn

	stopping atomic.Bool
	done     chan struct{}
}

func New(cfg *config.Config, logger *log.Logger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	epoll, err := poller.New(cfg.NET.MaxEvents)
	if err != nil {
		return nil, fmt.Errorf("server: epoll: %w", err)
	}

	s := &Server{
		cfg:      cfg,
		epoll:    epoll,
		listener: -1,
		done:     make(chan struct{}),
	}
	s.shared = http1.NewShared(epoll, cfg, logger)
	s.logger = s.shared.Logger

	s.pool, err = dispatch.New(cfg.Workers.Number, cfg.Workers.QueueSize, process)
	if err != nil {
		_ = epoll.Close()
		return nil, err
	}

	return s, nil
}

// Listen binds the listening socket and registers it in the level-triggered mode, so every
// wait reports it again while there are pending connections.
func (s *Server) Listen(addr string) error {
	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return err
	}

	domain, sa := sockaddr(tcpAddr)
	fd, err := unix.Socket(domain, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return fmt.Errorf("server: socket: %w", err)
	}

	if err = listen(fd, sa, s.cfg.NET.Backlog); err != nil {
		_ = unix.Close(fd)
		return err
	}

	bound, err := unix.Getsockname(fd)
	if err != nil {
		_ = unix.Close(fd)
		return fmt.Errorf("server: getsockname: %w", err)
	}

	if err = s.epoll.Register(fd, false); err != nil {
		_ = unix.Close(fd)
		return fmt.Errorf("server: register listener: %w", err)
	}

	s.listener = fd
	s.addr = transport.Addr(bound)

	return nil
}

func listen(fd int, sa unix.Sockaddr, backlog int) error {
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		return fmt.Errorf("server: SO_REUSEADDR: %w", err)
	}

	if err := unix.Bind(fd, sa); err != nil {
		return fmt.Errorf("server: bind: %w", err)
	}

	if err := unix.Listen(fd, backlog); err != nil {
		return fmt.Errorf("server: listen: %w", err)
	}

	return nil
}

func sockaddr(addr *net.TCPAddr) (int, unix.Sockaddr) {
	if ip4 := addr.IP.To4(); ip4 != nil || len(addr.IP) == 0 {
		sa := &unix.SockaddrInet4{Port: addr.Port}
		copy(sa.Addr[:], ip4)
		return unix.AF_INET, sa
	}

	sa := &unix.SockaddrInet6{Port: addr.Port}
	copy(sa.Addr[:], addr.IP.To16())
	return unix.AF_INET6, sa
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	return s.addr
}

// Active returns the number of live connections.
func (s *Server) Active() int64 {
	return s.shared.Active()
}

// Serve runs the readiness loop until Stop is called or the wait fails. Either way, every
// connection, the listener and the epoll instance are closed before it returns.
func (s *Server) Serve() error {
	defer close(s.done)

	if s.listener == -1 {
		s.shutdown()
		return ErrNotListening
	}

	s.logger.Printf("staticd: serving %s on %s", s.cfg.Root, s.addr)

	timeout := int(s.cfg.NET.PollInterruptPeriod.Milliseconds())
	for !s.stopping.Load() {
		events, err := s.epoll.Wait(timeout)
		if err != nil {
			s.shutdown()
			return fmt.Errorf("server: epoll_wait: %w", err)
		}

		for _, ev := range events {
			s.handle(ev)
		}
	}

	s.shutdown()

	return nil
}

// Stop makes Serve return and blocks until it does. It must not be called when Serve was
// never started.
func (s *Server) Stop() {
	s.stopping.Store(true)
	<-s.done
}

// task is a delivered notification on its way to a worker. The loop never touches the
// connection itself, except for closing it when the queue is full.
type task struct {
	conn   *http1.Conn
	hangup bool
}

func (s *Server) handle(ev poller.Event) {
	if ev.Fd == s.listener {
		s.accept()
		return
	}

	conn := s.conn(ev.Fd)
	if conn == nil {
		s.logger.Printf("staticd: event for unknown descriptor %d", ev.Fd)
		return
	}

	if !ev.Hangup && !ev.Readable && !ev.Writable {
		return
	}

	if !s.pool.Append(task{conn: conn, hangup: ev.Hangup}) {
		s.logger.Printf("staticd: descriptor %d: dispatch queue is full", ev.Fd)
		conn.Close()
	}
}

func (s *Server) accept() {
	for {
		fd, sa, err := unix.Accept4(s.listener, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		switch {
		case err == nil:
		case transport.IsWouldBlock(err):
			return
		case errors.Is(err, unix.EINTR), errors.Is(err, unix.ECONNABORTED):
			continue
		default:
			s.logger.Printf("staticd: accept: %s", err)
			return
		}

		remote := transport.Addr(sa)
		if s.shared.Active() >= int64(s.cfg.NET.MaxConns) {
			s.logger.Printf("staticd: %s: refused, connections limit is reached", remote)
			_, _ = unix.Write(fd, busyResponse)
			_ = unix.Close(fd)
			continue
		}

		if err = s.track(fd).Init(transport.NewSocket(fd), remote); err != nil {
			s.logger.Printf("staticd: %s: register: %s", remote, err)
			_ = unix.Close(fd)
		}
	}
}

// track returns the connection object for the descriptor, allocating it on first use.
// Descriptors are reused by the kernel, and so are the objects.
func (s *Server) track(fd int) *http1.Conn {
	if fd >= len(s.conns) {
		s.conns = append(s.conns, make([]*http1.Conn, fd-len(s.conns)+1)...)
	}

	if s.conns[fd] == nil {
		s.conns[fd] = http1.NewConn(s.shared)
	}

	return s.conns[fd]
}

func (s *Server) conn(fd int) *http1.Conn {
	if fd < 0 || fd >= len(s.conns) {
		return nil
	}

	return s.conns[fd]
}

func (s *Server) shutdown() {
	s.pool.Stop()

	for _, conn := range s.conns {
		if conn != nil {
			conn.Close()
		}
	}

	if s.listener != -1 {
		if err := s.epoll.Deregister(s.listener); err != nil {
			s.logger.Printf("staticd: close listener: %s", err)
		}

		s.listener = -1
	}

	if err := s.epoll.Close(); err != nil {
		s.logger.Printf("staticd: close epoll: %s", err)
	}
}

// process runs in a worker. A connection the peer has shut down, or that can't go on, is
// closed right away; otherwise it's already re-armed.
func process(t task) {
	if t.hangup || !t.conn.Process() {
		t.conn.Close()
	}
}
