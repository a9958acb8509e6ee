package http1

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dchest/uniuri"
	"github.com/indigo-web/staticd/config"
	"github.com/indigo-web/staticd/http/status"
	"github.com/indigo-web/staticd/internal/poller"
	"github.com/indigo-web/staticd/transport/dummy"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

const (
	testFd    = 7
	indexHTML = "<h1>Hello, world!</h1>"
)

var remote = &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 31337}

func newRoot(t *testing.T) string {
	root := t.TempDir()
	place(t, root, "index.html", indexHTML, 0o644)
	place(t, root, "private.html", "secret", 0o600)
	place(t, root, "empty.html", "", 0o644)
	require.NoError(t, os.Mkdir(filepath.Join(root, "dir"), 0o755))
	require.NoError(t, os.Chmod(filepath.Join(root, "dir"), 0o755))

	return root
}

func place(t *testing.T, root, name, content string, perm os.FileMode) {
	filename := filepath.Join(root, name)
	require.NoError(t, os.WriteFile(filename, []byte(content), perm))
	require.NoError(t, os.Chmod(filename, perm))
}

func newConfig(root string) *config.Config {
	cfg := config.Default()
	cfg.Root = root
	cfg.NET.MaxPathLength = 4096

	return cfg
}

func newConn(t *testing.T, cfg *config.Config) (*Conn, *dummy.Socket, *dummy.Registry) {
	registry := dummy.NewRegistry()
	conn := NewConn(NewShared(registry, cfg, nil))
	sock := dummy.NewSocket(testFd)
	require.NoError(t, conn.Init(sock, remote))
	t.Cleanup(conn.Close)

	return conn, sock, registry
}

func okResponse(body string, keepAlive bool) string {
	return response("200 OK", body, keepAlive)
}

func response(status, body string, keepAlive bool) string {
	connection := "close"
	if keepAlive {
		connection = "keep-alive"
	}

	return fmt.Sprintf(
		"HTTP/1.1 %s\r\nContent-Length: %d\r\nContent-Type: text/html\r\nConnection: %s\r\n\r\n%s",
		status, len(body), connection, body,
	)
}

func cannedResponse(t *testing.T, status string, outcome Outcome) string {
	body, ok := CannedBody(outcome)
	require.True(t, ok)

	return response(status, body, false)
}

func requireFresh(t *testing.T, c *Conn) {
	require.Equal(t, phaseRead, c.phase)
	require.Equal(t, StageRequestLine, c.Stage())
	require.Zero(t, c.checked)
	require.Zero(t, c.filled)
	require.Zero(t, c.lineStart)
	require.Zero(t, c.lineEnd)
	require.Zero(t, c.written)
	require.Empty(t, c.Target())
	require.Empty(t, c.Host())
	require.Zero(t, c.ContentLength())
	require.False(t, c.KeepAlive())
	require.False(t, c.file.Mapped())
	require.Zero(t, c.toSend)
	require.Zero(t, c.sent)
}

func TestConn(t *testing.T) {
	root := newRoot(t)

	t.Run("round trip", func(t *testing.T) {
		c, sock, registry := newConn(t, newConfig(root))
		require.True(t, registry.Oneshot[testFd])

		sock.FeedString("GET /index.html HTTP/1.1\r\nHost: a\r\nConnection: keep-alive\r\n\r\n")
		require.True(t, c.Process())
		require.Equal(t, poller.Write, registry.Armed[testFd])
		require.Equal(t, "/index.html", c.Target())
		require.Equal(t, "a", c.Host())
		require.True(t, c.KeepAlive())
		require.Empty(t, sock.Written, "nothing must be sent before the writable notification")

		require.Equal(t, 2, c.iovCount)
		require.True(t, c.file.Mapped())
		require.Len(t, c.iov[1], len(indexHTML))
		require.Same(t, &c.file.Bytes()[0], &c.iov[1][0], "file contents must not be copied")
		require.Equal(t, c.written+len(indexHTML), c.toSend)

		require.True(t, c.Process())
		require.Equal(t, okResponse(indexHTML, true), string(sock.Written))
		require.Equal(t, poller.Read, registry.Armed[testFd])
		require.False(t, registry.Closed[testFd])
		requireFresh(t, c)
	})

	t.Run("keep-alive reuse", func(t *testing.T) {
		c, sock, registry := newConn(t, newConfig(root))
		request := "GET /index.html HTTP/1.1\r\nConnection: keep-alive\r\n\r\n"

		for i := range 3 {
			sock.FeedString(request)
			require.True(t, c.Process())
			require.True(t, c.Process())
			require.Equal(t, strings.Repeat(okResponse(indexHTML, true), i+1), string(sock.Written))
			requireFresh(t, c)
		}

		require.Equal(t, 6, registry.Rearms[testFd])
		require.EqualValues(t, 1, c.shared.Active())
	})

	t.Run("request split across notifications", func(t *testing.T) {
		c, sock, registry := newConn(t, newConfig(root))

		sock.FeedString("GET /index.html HT")
		require.True(t, c.Process())
		require.Equal(t, poller.Read, registry.Armed[testFd])
		require.Equal(t, StageRequestLine, c.Stage())

		sock.FeedString("TP/1.1\r\nHo")
		require.True(t, c.Process())
		require.Equal(t, poller.Read, registry.Armed[testFd])
		require.Equal(t, StageHeaders, c.Stage())

		sock.FeedString("st: a\r\n\r\n")
		require.True(t, c.Process())
		require.Equal(t, poller.Write, registry.Armed[testFd])

		require.False(t, c.Process())
		require.Equal(t, okResponse(indexHTML, false), string(sock.Written))
		require.False(t, c.file.Mapped())
	})

	t.Run("several reads per notification", func(t *testing.T) {
		c, sock, registry := newConn(t, newConfig(root))
		sock.Feed([]byte("GET /index.html "), []byte("HTTP/1.1\r\n"), []byte("\r\n"))
		require.True(t, c.Process())
		require.Equal(t, poller.Write, registry.Armed[testFd])
	})

	t.Run("spurious notification", func(t *testing.T) {
		c, _, registry := newConn(t, newConfig(root))
		require.True(t, c.Process())
		require.Equal(t, poller.Read, registry.Armed[testFd])
		requireFresh(t, c)
	})

	t.Run("body", func(t *testing.T) {
		c, sock, registry := newConn(t, newConfig(root))
		sock.FeedString("GET /index.html HTTP/1.1\r\nContent-Length: 5\r\n\r\nhel")
		require.True(t, c.Process())
		require.Equal(t, poller.Read, registry.Armed[testFd])
		require.Equal(t, StageBody, c.Stage())

		sock.FeedString("lo")
		require.True(t, c.Process())
		require.Equal(t, poller.Write, registry.Armed[testFd])
	})

	t.Run("missing", func(t *testing.T) {
		c, sock, registry := newConn(t, newConfig(root))
		sock.FeedString("GET /" + uniuri.New() + ".html HTTP/1.1\r\n\r\n")
		require.True(t, c.Process())
		require.Equal(t, poller.Write, registry.Armed[testFd])
		require.Equal(t, 1, c.iovCount)

		require.False(t, c.Process())
		require.Equal(t, cannedResponse(t, "404 Not Found", ResourceMissing), string(sock.Written))
		require.Contains(t, string(sock.Written), "The requested file was not found on this server.\n")

		c.Close()
		require.True(t, registry.Closed[testFd])
	})

	t.Run("forbidden", func(t *testing.T) {
		c, sock, _ := newConn(t, newConfig(root))
		sock.FeedString("GET /private.html HTTP/1.1\r\n\r\n")
		require.True(t, c.Process())
		require.False(t, c.Process())
		require.Equal(t, cannedResponse(t, "403 Forbidden", ResourceForbidden), string(sock.Written))
	})

	t.Run("directory", func(t *testing.T) {
		c, sock, _ := newConn(t, newConfig(root))
		sock.FeedString("GET /dir HTTP/1.1\r\n\r\n")
		require.True(t, c.Process())
		require.False(t, c.Process())
		require.Equal(t, cannedResponse(t, "400 Bad Request", BadRequest), string(sock.Written))
	})

	t.Run("malformed version", func(t *testing.T) {
		c, sock, _ := newConn(t, newConfig(root))
		sock.FeedString("GET /x HTTP/1.0\r\n\r\n")
		require.True(t, c.Process())
		require.False(t, c.Process())
		require.Equal(t, cannedResponse(t, "400 Bad Request", BadRequest), string(sock.Written))
	})

	t.Run("canned response honors keep-alive", func(t *testing.T) {
		c, sock, registry := newConn(t, newConfig(root))
		sock.FeedString("GET /nope HTTP/1.1\r\nConnection: keep-alive\r\n\r\n")
		require.True(t, c.Process())
		require.True(t, c.Process())

		body, _ := CannedBody(ResourceMissing)
		require.Equal(t, response("404 Not Found", body, true), string(sock.Written))
		require.Equal(t, poller.Read, registry.Armed[testFd])
	})

	t.Run("empty file", func(t *testing.T) {
		c, sock, _ := newConn(t, newConfig(root))
		sock.FeedString("GET /empty.html HTTP/1.1\r\n\r\n")
		require.True(t, c.Process())
		require.False(t, c.file.Mapped())
		require.False(t, c.Process())
		require.Equal(t, okResponse("", false), string(sock.Written))
	})

	t.Run("oversized request", func(t *testing.T) {
		cfg := newConfig(root)
		cfg.NET.ReadBufferSize = 32
		c, sock, registry := newConn(t, cfg)

		sock.FeedString("GET /" + strings.Repeat("a", 64) + " HTTP/1.1\r\n\r\n")
		require.True(t, c.Process())
		require.Equal(t, poller.Write, registry.Armed[testFd])
		require.False(t, c.Process())
		require.Equal(t, cannedResponse(t, "400 Bad Request", BadRequest), string(sock.Written))
	})

	t.Run("headers overflow the write buffer", func(t *testing.T) {
		cfg := newConfig(root)
		cfg.NET.WriteBufferSize = 16
		c, sock, _ := newConn(t, cfg)

		sock.FeedString("GET /index.html HTTP/1.1\r\n\r\n")
		require.False(t, c.Process())
		c.Close()
		require.False(t, c.file.Mapped())
	})

	t.Run("peer hangup", func(t *testing.T) {
		c, sock, _ := newConn(t, newConfig(root))
		sock.FeedString("GET /index.html HTTP/1.1\r\n\r\n").Hangup()
		require.False(t, c.Process())
		require.Empty(t, sock.Written)
	})

	t.Run("read error", func(t *testing.T) {
		c, sock, _ := newConn(t, newConfig(root))
		sock.FailReads(unix.ECONNRESET)
		require.False(t, c.Process())
	})

	t.Run("rearm error", func(t *testing.T) {
		c, sock, registry := newConn(t, newConfig(root))
		registry.Err = errors.New("epoll_ctl: bad file descriptor")
		sock.FeedString("GET /index.html HTTP/1.1\r\n\r\n")
		require.False(t, c.Process())
		registry.Err = nil
	})
}

func TestPartialWrite(t *testing.T) {
	root := newRoot(t)
	content := uniuri.NewLen(4096)
	place(t, root, "large.html", content, 0o644)

	c, sock, registry := newConn(t, newConfig(root))
	sock.FeedString("GET /large.html HTTP/1.1\r\n\r\n")
	require.True(t, c.Process())

	headers := c.written
	total := headers + len(content)
	require.Equal(t, total, c.toSend)

	t.Run("inside the headers", func(t *testing.T) {
		sock.Quota(10, dummy.Block)
		require.True(t, c.Process())
		require.Equal(t, poller.Write, registry.Armed[testFd])
		require.Equal(t, 10, c.sent)
		require.Equal(t, total-10, c.toSend)
		require.Len(t, c.iov[0], headers-10)
		require.Len(t, c.iov[1], len(content))
		require.True(t, c.file.Mapped())
	})

	t.Run("inside the file", func(t *testing.T) {
		sock.Quota(headers-10+5, dummy.Block)
		require.True(t, c.Process())
		require.Equal(t, poller.Write, registry.Armed[testFd])
		require.Equal(t, headers+5, c.sent)
		require.Equal(t, len(content)-5, c.toSend)
		require.Empty(t, c.iov[0])
		require.Len(t, c.iov[1], len(content)-5)
		require.Same(t, &c.file.Bytes()[5], &c.iov[1][0])
		require.True(t, c.file.Mapped())
	})

	t.Run("would block right away", func(t *testing.T) {
		sock.Quota(dummy.Block)
		require.True(t, c.Process())
		require.Equal(t, headers+5, c.sent)
		require.True(t, c.file.Mapped())
	})

	t.Run("rest", func(t *testing.T) {
		require.False(t, c.Process())
		require.False(t, c.file.Mapped())
		require.Equal(t, okResponse(content, false), string(sock.Written))
		require.Equal(t, 6, sock.Writes)
	})
}

func TestWriteError(t *testing.T) {
	c, sock, _ := newConn(t, newConfig(newRoot(t)))
	sock.FeedString("GET /index.html HTTP/1.1\r\nConnection: keep-alive\r\n\r\n")
	require.True(t, c.Process())
	require.True(t, c.file.Mapped())

	sock.FailWrites(unix.EPIPE)
	require.False(t, c.Process())
	require.False(t, c.file.Mapped())
}

func TestReset(t *testing.T) {
	c, sock, _ := newConn(t, newConfig(newRoot(t)))
	sock.FeedString("GET /index.html HTTP/1.1\r\nConnection: keep-alive\r\nContent-Length: 3\r\n\r\nabc")
	require.True(t, c.Process())
	require.True(t, c.file.Mapped())

	c.Reset()
	requireFresh(t, c)
	require.Equal(t, make([]byte, len(c.rbuf)), c.rbuf)
	require.Equal(t, make([]byte, len(c.wbuf)), c.wbuf)

	before := stateOf(c)
	c.Reset()
	require.Equal(t, before, stateOf(c))
}

// state is everything Reset is responsible for.
type state struct {
	RBuf, WBuf             []byte
	Checked, Filled        int
	LineStart, LineEnd     int
	Written                int
	Phase                  phase
	Stage                  Stage
	Target, Host           string
	ContentLength          int64
	KeepAlive, Mapped      bool
	IOV                    [2][]byte
	IOVCount, ToSend, Sent int
}

func stateOf(c *Conn) state {
	return state{
		RBuf:          append([]byte(nil), c.rbuf...),
		WBuf:          append([]byte(nil), c.wbuf...),
		Checked:       c.checked,
		Filled:        c.filled,
		LineStart:     c.lineStart,
		LineEnd:       c.lineEnd,
		Written:       c.written,
		Phase:         c.phase,
		Stage:         c.stage,
		Target:        c.Target(),
		Host:          c.Host(),
		ContentLength: c.contentLength,
		KeepAlive:     c.keepAlive,
		Mapped:        c.file.Mapped(),
		IOV:           c.iov,
		IOVCount:      c.iovCount,
		ToSend:        c.toSend,
		Sent:          c.sent,
	}
}

func TestLifecycle(t *testing.T) {
	root := newRoot(t)

	t.Run("init and close", func(t *testing.T) {
		registry := dummy.NewRegistry()
		shared := NewShared(registry, newConfig(root), nil)
		first, second := NewConn(shared), NewConn(shared)

		require.NoError(t, first.Init(dummy.NewSocket(5), remote))
		require.NoError(t, second.Init(dummy.NewSocket(6), remote))
		require.EqualValues(t, 2, shared.Active())
		require.Equal(t, 5, first.Fd())
		require.Equal(t, remote, first.Remote())

		first.Close()
		first.Close()
		require.EqualValues(t, 1, shared.Active())
		require.Equal(t, -1, first.Fd())
		require.True(t, registry.Closed[5])
		require.False(t, registry.Closed[6])

		second.Close()
		require.Zero(t, shared.Active())
	})

	t.Run("register failure", func(t *testing.T) {
		registry := dummy.NewRegistry()
		registry.Err = errors.New("epoll_ctl: no space left on device")
		shared := NewShared(registry, newConfig(root), nil)
		c := NewConn(shared)

		require.Error(t, c.Init(dummy.NewSocket(5), remote))
		require.Zero(t, shared.Active())
		require.Equal(t, -1, c.Fd())
	})

	t.Run("reinit after close", func(t *testing.T) {
		c, sock, registry := newConn(t, newConfig(root))
		sock.FeedString("GET /index.html HTTP/1.1\r\n\r\n")
		require.True(t, c.Process())
		c.Close()
		require.False(t, c.file.Mapped())

		fresh := dummy.NewSocket(testFd)
		require.NoError(t, c.Init(fresh, remote))
		requireFresh(t, c)
		require.False(t, registry.Closed[testFd])

		fresh.FeedString("GET /index.html HTTP/1.1\r\n\r\n")
		require.True(t, c.Process())
		require.False(t, c.Process())
		require.Equal(t, okResponse(indexHTML, false), string(fresh.Written))
	})
}

func TestCannedBody(t *testing.T) {
	for _, outcome := range []Outcome{BadRequest, ResourceMissing, ResourceForbidden, InternalError} {
		body, ok := CannedBody(outcome)
		require.True(t, ok, outcome.String())
		require.NotEmpty(t, body)
	}

	for _, outcome := range []Outcome{NeedMoreData, Complete, ResourceReady, Outcome(100)} {
		_, ok := CannedBody(outcome)
		require.False(t, ok, outcome.String())
	}
}

func TestOutcomeString(t *testing.T) {
	require.Equal(t, "resource ready", ResourceReady.String())
	require.Equal(t, "unknown outcome", Outcome(100).String())
	require.Equal(t, "body", StageBody.String())
}

func TestOutcomeOf(t *testing.T) {
	tcs := []struct {
		Name string
		Err  error
		Want Outcome
	}{
		{"not found", fmt.Errorf("%w: /srv/x", status.ErrNotFound), ResourceMissing},
		{"forbidden", fmt.Errorf("%w: /srv/x", status.ErrForbidden), ResourceForbidden},
		{"directory", fmt.Errorf("%w: /srv", status.ErrIsDirectory), BadRequest},
		{"not regular", fmt.Errorf("%w: /srv/pipe", status.ErrNotRegular), BadRequest},
		{"mmap failure", fmt.Errorf("resource: mmap /srv/x: %w", unix.ENOMEM), InternalError},
		{"open failure", fmt.Errorf("resource: open /srv/x: %w", unix.EMFILE), InternalError},
	}

	for _, tc := range tcs {
		t.Run(tc.Name, func(t *testing.T) {
			require.Equal(t, tc.Want, outcomeOf(tc.Err))
		})
	}
}

func TestInternalErrorResponse(t *testing.T) {
	const body = "There was an unusual problem serving the requested file.\n"

	for _, keepAlive := range []bool{false, true} {
		t.Run(fmt.Sprintf("keep-alive %t", keepAlive), func(t *testing.T) {
			c, sock, registry := newConn(t, newConfig(newRoot(t)))
			c.keepAlive = keepAlive

			require.True(t, c.respond(InternalError))
			require.Equal(t, 1, c.iovCount)
			c.phase = phaseWrite

			require.Equal(t, keepAlive, c.Process())
			require.Equal(t, response("500 Internal Server Error", body, keepAlive), string(sock.Written))
			if keepAlive {
				require.Equal(t, poller.Read, registry.Armed[testFd])
				requireFresh(t, c)
			}
		})
	}
}

func TestDrainedDescriptor(t *testing.T) {
	t.Run("close", func(t *testing.T) {
		c, sock, _ := newConn(t, newConfig(newRoot(t)))
		c.phase = phaseWrite

		require.False(t, c.Process())
		require.Zero(t, sock.Writes)
	})

	t.Run("keep-alive", func(t *testing.T) {
		c, sock, registry := newConn(t, newConfig(newRoot(t)))
		c.phase = phaseWrite
		c.keepAlive = true

		require.True(t, c.Process())
		require.Zero(t, sock.Writes)
		require.Equal(t, poller.Read, registry.Armed[testFd])
		requireFresh(t, c)
	})
}
