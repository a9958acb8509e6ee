package http1

import (
	"strconv"

	"github.com/indigo-web/staticd/http/mime"
	"github.com/indigo-web/staticd/http/proto"
	"github.com/indigo-web/staticd/http/status"
	"github.com/indigo-web/utils/uf"
)

const crlf = "\r\n"

// canned is the fixed answer for an outcome that doesn't serve a file.
type canned struct {
	Code status.Code
	Body string
}

var cannedResponses = [...]canned{
	BadRequest: {
		Code: status.BadRequest,
		Body: "Your request has bad syntax or is inherently impossible to satisfy.\n",
	},
	ResourceForbidden: {
		Code: status.Forbidden,
		Body: "You do not have permission to get file from this server.\n",
	},
	ResourceMissing: {
		Code: status.NotFound,
		Body: "The requested file was not found on this server.\n",
	},
	InternalError: {
		Code: status.InternalServerError,
		Body: "There was an unusual problem serving the requested file.\n",
	},
}

// CannedBody returns the body sent for the outcome, if the outcome is answered with a
// canned response.
func CannedBody(outcome Outcome) (string, bool) {
	if int(outcome) >= len(cannedResponses) || cannedResponses[outcome].Code == 0 {
		return "", false
	}

	return cannedResponses[outcome].Body, true
}

// respond composes the response for the outcome and prepares the send descriptor. Canned
// responses are a single segment; a ready resource adds the mapped file as the second one,
// so its bytes never go through the write buffer. It returns false if the outcome can't be
// answered or the headers don't fit into the write buffer.
func (c *Conn) respond(outcome Outcome) bool {
	c.written = 0

	if outcome == ResourceReady {
		if !c.addStatusLine(status.OK) || !c.addHeaders(c.file.Size()) {
			return false
		}

		c.iov[0] = c.wbuf[:c.written]
		c.iov[1] = c.file.Bytes()
		c.iovCount = 2
		c.toSend = c.written + int(c.file.Size())

		return true
	}

	if int(outcome) >= len(cannedResponses) || cannedResponses[outcome].Code == 0 {
		return false
	}

	resp := cannedResponses[outcome]
	if !c.addStatusLine(resp.Code) || !c.addHeaders(int64(len(resp.Body))) || !c.add(resp.Body) {
		return false
	}

	c.iov[0] = c.wbuf[:c.written]
	c.iov[1] = nil
	c.iovCount = 1
	c.toSend = c.written

	return true
}

func (c *Conn) addStatusLine(code status.Code) bool {
	return c.add(proto.HTTP11.String()) && c.add(" ") &&
		c.add(status.StringCode(code)) && c.add(" ") &&
		c.add(string(status.Text(code))) && c.add(crlf)
}

func (c *Conn) addHeaders(contentLength int64) bool {
	connection := "close"
	if c.keepAlive {
		connection = "keep-alive"
	}

	var scratch [20]byte
	length := strconv.AppendInt(scratch[:0], contentLength, 10)

	return c.add("Content-Length: ") && c.add(uf.B2S(length)) && c.add(crlf) &&
		c.add("Content-Type: ") && c.add(mime.Fixed) && c.add(crlf) &&
		c.add("Connection: ") && c.add(connection) && c.add(crlf) &&
		c.add(crlf)
}

// add appends to the write buffer unless it would overflow.
func (c *Conn) add(str string) bool {
	if c.written+len(str) > len(c.wbuf) {
		return false
	}

	c.written += copy(c.wbuf[c.written:], str)

	return true
}
