package http1

import (
	"github.com/indigo-web/staticd/internal/poller"
	"github.com/indigo-web/staticd/transport"
)

// write drains the send descriptor. When the socket would block, the descriptor is re-armed
// for writing and every counter is preserved for the next writable notification. Once
// everything is sent, the mapping is released and the connection is either reset and
// re-armed for reading (keep-alive), or reported for closing.
func (c *Conn) write() bool {
	if c.toSend <= 0 {
		return c.finish()
	}

	for {
		n, err := c.sock.Writev(c.iov[:c.iovCount])
		if err != nil {
			if transport.IsWouldBlock(err) {
				return c.rearm(poller.Write)
			}

			c.unmap()
			return false
		}

		c.sent += n
		c.toSend -= n
		c.advance()

		if c.toSend <= 0 {
			return c.finish()
		}
	}
}

// finish ends the exchange once the send descriptor is drained.
func (c *Conn) finish() bool {
	c.unmap()
	if !c.keepAlive {
		return false
	}

	c.Reset()

	return c.rearm(poller.Read)
}

// advance moves the segments past the sent bytes. The header block is exhausted before
// the file segment starts moving.
func (c *Conn) advance() {
	if c.sent >= c.written {
		c.iov[0] = c.wbuf[c.written:c.written]
		c.iov[1] = c.file.Bytes()[c.sent-c.written:]
		return
	}

	c.iov[0] = c.wbuf[c.sent:c.written]
}
