package http1

import "github.com/indigo-web/staticd/http/status"

// Stage is the parser position within a request.
type Stage uint8

const (
	StageRequestLine Stage = iota
	StageHeaders
	StageBody
)

func (s Stage) String() string {
	switch s {
	case StageRequestLine:
		return "request line"
	case StageHeaders:
		return "headers"
	case StageBody:
		return "body"
	default:
		return "unknown stage"
	}
}

// LineStatus is the result of scanning the read buffer for a line terminator.
type LineStatus uint8

const (
	// LineComplete means a terminator was found and the cursor moved past it.
	LineComplete LineStatus = iota
	// LineIncomplete means more bytes are needed to tell.
	LineIncomplete
	// LineMalformed means a line feed or a carriage return appeared without its pair.
	LineMalformed
)

// Outcome is what a parse attempt or a resolution produced. It's consumed immediately
// into a response decision.
type Outcome uint8

const (
	NeedMoreData Outcome = iota
	Complete
	BadRequest
	ResourceMissing
	ResourceForbidden
	ResourceReady
	InternalError
)

func (o Outcome) String() string {
	switch o {
	case NeedMoreData:
		return "need more data"
	case Complete:
		return "complete"
	case BadRequest:
		return "bad request"
	case ResourceMissing:
		return "resource missing"
	case ResourceForbidden:
		return "resource forbidden"
	case ResourceReady:
		return "resource ready"
	case InternalError:
		return "internal error"
	default:
		return "unknown outcome"
	}
}

// outcomeOf classifies an error returned by the resolver.
func outcomeOf(err error) Outcome {
	switch status.CodeOf(err) {
	case status.NotFound:
		return ResourceMissing
	case status.Forbidden:
		return ResourceForbidden
	case status.BadRequest:
		return BadRequest
	default:
		return InternalError
	}
}
