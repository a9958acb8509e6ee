package transport

import (
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestSocket(t *testing.T) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	require.NoError(t, err)
	defer unix.Close(fds[0])
	defer unix.Close(fds[1])
	require.NoError(t, unix.SetNonblock(fds[0], true))

	local, peer := NewSocket(fds[0]), NewSocket(fds[1])
	require.Equal(t, fds[0], local.Fd())

	t.Run("read would block", func(t *testing.T) {
		_, err := local.Read(make([]byte, 16))
		require.True(t, IsWouldBlock(err))
	})

	t.Run("gather write", func(t *testing.T) {
		n, err := peer.Writev([][]byte{[]byte("Hello, "), nil, []byte("world!")})
		require.NoError(t, err)
		require.Equal(t, 13, n)

		buf := make([]byte, 32)
		n, err = local.Read(buf)
		require.NoError(t, err)
		require.Equal(t, "Hello, world!", string(buf[:n]))
	})
}

func TestIsWouldBlock(t *testing.T) {
	require.True(t, IsWouldBlock(unix.EAGAIN))
	require.True(t, IsWouldBlock(fmt.Errorf("writev: %w", unix.EAGAIN)))
	require.False(t, IsWouldBlock(unix.EPIPE))
	require.False(t, IsWouldBlock(nil))
}

func TestAddr(t *testing.T) {
	addr := Addr(&unix.SockaddrInet4{Port: 8080, Addr: [4]byte{127, 0, 0, 1}})
	require.Equal(t, "127.0.0.1:8080", addr.String())

	addr = Addr(&unix.SockaddrInet6{Port: 443, Addr: [16]byte{15: 1}})
	require.Equal(t, "[::1]:443", addr.String())

	require.IsType(t, new(net.UnixAddr), Addr(&unix.SockaddrUnix{Name: "/tmp/sock"}))
	require.Nil(t, Addr(nil))
}
