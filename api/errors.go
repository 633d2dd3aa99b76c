package api

import (
	"fmt"
	"net/http"

	"github.com/go-playground/errors/v5"
)

// Error is a non-2xx response from the platform API.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("platform api: %s", http.StatusText(e.StatusCode))
	}

	return fmt.Sprintf("platform api: %s: %s", http.StatusText(e.StatusCode), e.Message)
}

// HasUnauthorized reports whether err (or anything it wraps) is a 401
// response.
func HasUnauthorized(err error) bool {
	return hasStatus(err, http.StatusUnauthorized)
}

// HasForbidden reports whether err (or anything it wraps) is a 403 response.
func HasForbidden(err error) bool {
	return hasStatus(err, http.StatusForbidden)
}

// HasNotFound reports whether err (or anything it wraps) is a 404 response.
func HasNotFound(err error) bool {
	return hasStatus(err, http.StatusNotFound)
}

func hasStatus(err error, statusCode int) bool {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == statusCode
	}

	return false
}
