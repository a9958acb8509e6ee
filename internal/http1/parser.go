package http1

import (
	"bytes"

	"github.com/indigo-web/staticd/http/method"
	"github.com/indigo-web/staticd/http/proto"
	"github.com/indigo-web/utils/strcomp"
	"github.com/indigo-web/utils/uf"
)

const schemePrefix = "http://"

// parse drives the state machine over the bytes received so far. It stops as soon as a
// terminal outcome is known or no further progress is possible, in which case NeedMoreData
// is returned and the cursors are kept for the next call. Feeding the same stream split
// at arbitrary points therefore produces the same result as feeding it at once.
func (c *Conn) parse() Outcome {
	for {
		if c.stage == StageBody {
			return c.checkBody()
		}

		switch c.scanLine() {
		case LineIncomplete:
			return NeedMoreData
		case LineMalformed:
			return BadRequest
		}

		line := c.rbuf[c.lineStart:c.lineEnd]
		c.lineStart = c.checked

		var outcome Outcome
		switch c.stage {
		case StageRequestLine:
			outcome = c.parseRequestLine(line)
		case StageHeaders:
			outcome = c.parseHeaderLine(line)
		default:
			return InternalError
		}

		if outcome != NeedMoreData {
			return outcome
		}
	}
}

// scanLine looks for the next line terminator between the checked and the filled cursors.
// A found CRLF is overwritten with zeroes, so the line is terminated in place.
func (c *Conn) scanLine() LineStatus {
	i := bytes.IndexAny(c.rbuf[c.checked:c.filled], "\r\n")
	if i == -1 {
		c.checked = c.filled
		return LineIncomplete
	}

	c.checked += i

	switch c.rbuf[c.checked] {
	case '\r':
		if c.checked+1 == c.filled {
			// can't tell what follows yet. The carriage return is rescanned next time
			return LineIncomplete
		}

		if c.rbuf[c.checked+1] != '\n' {
			return LineMalformed
		}

		c.lineEnd = c.checked
		c.rbuf[c.checked], c.rbuf[c.checked+1] = 0, 0
		c.checked += 2

		return LineComplete
	default:
		if c.checked > 1 && c.rbuf[c.checked-1] == '\r' {
			c.lineEnd = c.checked - 1
			c.rbuf[c.checked-1], c.rbuf[c.checked] = 0, 0
			c.checked++

			return LineComplete
		}

		return LineMalformed
	}
}

// parseRequestLine returns NeedMoreData once the line is accepted, as the headers are
// still to come.
func (c *Conn) parseRequestLine(line []byte) Outcome {
	token, rest, found := cutSpace(line)
	if !found {
		return BadRequest
	}

	if c.method = method.Parse(uf.B2S(token)); c.method != method.GET {
		return BadRequest
	}

	target, version, found := cutSpace(rest)
	if !found {
		return BadRequest
	}

	if c.version = proto.FromBytes(version); c.version != proto.HTTP11 {
		return BadRequest
	}

	if hasPrefixFold(target, schemePrefix) {
		target = target[len(schemePrefix):]
		slash := bytes.IndexByte(target, '/')
		if slash == -1 {
			return BadRequest
		}

		target = target[slash:]
	}

	if len(target) == 0 || target[0] != '/' {
		return BadRequest
	}

	c.target = target
	c.stage = StageHeaders

	return NeedMoreData
}

// parseHeaderLine is the headers stage transition. It returns NeedMoreData when another
// line (or the body) is expected and Complete when the request ended with its headers.
// The latter is how a bodiless request reaches resolution within the same parse pass.
func (c *Conn) parseHeaderLine(line []byte) Outcome {
	if len(line) == 0 {
		if c.contentLength != 0 {
			c.stage = StageBody
			return NeedMoreData
		}

		return Complete
	}

	switch {
	case hasPrefixFold(line, "Connection:"):
		value := headerValue(line[len("Connection:"):])
		if equalFold(value, "keep-alive") {
			c.keepAlive = true
		}
	case hasPrefixFold(line, "Content-Length:"):
		length, ok := parseContentLength(headerValue(line[len("Content-Length:"):]))
		if !ok {
			return BadRequest
		}

		c.contentLength = length
	case hasPrefixFold(line, "Host:"):
		c.host = headerValue(line[len("Host:"):])
	}

	return NeedMoreData
}

// checkBody reports whether the declared amount of body bytes has arrived. The body
// itself is never interpreted.
func (c *Conn) checkBody() Outcome {
	if int64(c.filled-c.checked) >= c.contentLength {
		return Complete
	}

	return NeedMoreData
}

func isSpace(char byte) bool {
	return char == ' ' || char == '\t'
}

// cutSpace splits the line around the first run of whitespaces.
func cutSpace(line []byte) (token, rest []byte, found bool) {
	i := bytes.IndexAny(line, " \t")
	if i == -1 {
		return line, nil, false
	}

	rest = line[i:]
	for len(rest) > 0 && isSpace(rest[0]) {
		rest = rest[1:]
	}

	return line[:i], rest, true
}

func headerValue(value []byte) []byte {
	for len(value) > 0 && isSpace(value[0]) {
		value = value[1:]
	}

	for len(value) > 0 && isSpace(value[len(value)-1]) {
		value = value[:len(value)-1]
	}

	return value
}

func hasPrefixFold(line []byte, prefix string) bool {
	return len(line) >= len(prefix) && strcomp.EqualFold(uf.B2S(line[:len(prefix)]), prefix)
}

func equalFold(b []byte, str string) bool {
	return len(b) == len(str) && strcomp.EqualFold(uf.B2S(b), str)
}

// parseContentLength accepts a non-negative decimal. 18 digits can't overflow int64.
func parseContentLength(value []byte) (int64, bool) {
	if len(value) == 0 || len(value) > 18 {
		return 0, false
	}

	var length int64
	for _, char := range value {
		if char < '0' || char > '9' {
			return 0, false
		}

		length = length*10 + int64(char-'0')
	}

	return length, true
}
