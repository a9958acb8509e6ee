package status

import "strconv"

type (
	Code   uint16
	Status string
)

// HTTP status codes the server is able to answer with. The subset mirrors the set registered
// with IANA, see: https://www.iana.org/assignments/http-status-codes/http-status-codes.xhtml
const (
	OK Code = 200 // RFC 9110, 15.3.1

	BadRequest Code = 400 // RFC 9110, 15.5.1
	Forbidden  Code = 403 // RFC 9110, 15.5.4
	NotFound   Code = 404 // RFC 9110, 15.5.5

	InternalServerError Code = 500 // RFC 9110, 15.6.1
	ServiceUnavailable  Code = 503 // RFC 9110, 15.6.4
)

// KnownCodes lists every code declared above.
var KnownCodes = []Code{
	OK, BadRequest, Forbidden, NotFound, InternalServerError, ServiceUnavailable,
}

// Text returns a text for the HTTP status code. It returns the empty
// string if the code is unknown.
func Text(code Code) Status {
	switch code {
	case OK:
		return "OK"
	case BadRequest:
		return "Bad Request"
	case Forbidden:
		return "Forbidden"
	case NotFound:
		return "Not Found"
	case InternalServerError:
		return "Internal Server Error"
	case ServiceUnavailable:
		return "Service Unavailable"
	default:
		return ""
	}
}

// StringCode returns the decimal representation of the code.
func StringCode(code Code) string {
	return strconv.Itoa(int(code))
}
