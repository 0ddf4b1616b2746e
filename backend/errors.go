package backend

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnexpectedResponse is returned when a response carries no usable content
var ErrUnexpectedResponse = errors.New("unexpected response shape")

// StatusError is returned when the backend answers with a non-success status
type StatusError struct {
	StatusCode int
	Endpoint   string
	Body       string
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("backend returned status %d for %s", e.StatusCode, e.Endpoint)
	}
	return fmt.Sprintf("backend returned status %d for %s: %s", e.StatusCode, e.Endpoint, body)
}

// Is matches any other StatusError with the same status code, or any
// StatusError when the target's code is zero.
func (e *StatusError) Is(target error) bool {
	t, ok := target.(*StatusError)
	if !ok {
		return false
	}
	return t.StatusCode == 0 || t.StatusCode == e.StatusCode
}

// NewStatusError creates a StatusError, truncating very long bodies
func NewStatusError(statusCode int, endpoint, body string) *StatusError {
	const maxBody = 512
	if len(body) > maxBody {
		body = body[:maxBody] + "..."
	}
	return &StatusError{StatusCode: statusCode, Endpoint: endpoint, Body: body}
}

// StatusCode returns the HTTP status carried by err, or 0
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}
