package status

import "errors"

type HTTPError struct {
	Message string
	Code    Code
}

func NewError(code Code, message string) error {
	return HTTPError{
		Code:    code,
		Message: message,
	}
}

func (h HTTPError) Error() string {
	return h.Message
}

// CodeOf returns the status code carried by err, or InternalServerError if err doesn't wrap
// an HTTPError.
func CodeOf(err error) Code {
	var httpErr HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Code
	}

	return InternalServerError
}

var (
	ErrIsDirectory = NewError(BadRequest, "directories are never served")
	ErrNotRegular  = NewError(BadRequest, "not a regular file")
	ErrForbidden   = NewError(Forbidden, "forbidden")
	ErrNotFound    = NewError(NotFound, "not found")
)
