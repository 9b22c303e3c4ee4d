// Package apperr defines the error values shared across mise.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrRequestFailed   = errors.New("request failed")
	ErrInvalidInput    = errors.New("invalid input")
	ErrFormUnavailable = errors.New("recipe form unavailable")
)

// RequestError describes a failed round trip to the recipe backend.
// A zero StatusCode means the request never got a response.
type RequestError struct {
	Op         string
	Method     string
	URL        string
	StatusCode int
	Err        error
}

func (e *RequestError) Error() string {
	if (e.StatusCode == 0 || e.Unreadable()) && e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.reason(), e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.reason())
}

func (e *RequestError) reason() string {
	switch {
	case e.StatusCode == 0:
		return "could not reach the server"
	case e.Unreadable():
		return fmt.Sprintf("server sent an unreadable response (status %d)", e.StatusCode)
	case e.ServerError():
		return fmt.Sprintf("server is unavailable (status %d)", e.StatusCode)
	default:
		return fmt.Sprintf("server rejected the request (status %d)", e.StatusCode)
	}
}

func (e *RequestError) Unwrap() error { return e.Err }

// Is makes every RequestError match ErrRequestFailed, and 404s match ErrNotFound.
func (e *RequestError) Is(target error) bool {
	switch target {
	case ErrRequestFailed:
		return true
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	}
	return false
}

// Unreadable reports a successful status whose body could not be decoded.
func (e *RequestError) Unreadable() bool {
	return e.StatusCode >= 200 && e.StatusCode < 300
}

// ClientError reports a 4xx response.
func (e *RequestError) ClientError() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500
}

// ServerError reports a 5xx response.
func (e *RequestError) ServerError() bool {
	return e.StatusCode >= 500
}

// Describe returns the short, user-facing reason for err.
func Describe(err error) string {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr.reason()
	}
	return err.Error()
}
