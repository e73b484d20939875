package github

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// APIError is a non-2xx response from GitHub.
type APIError struct {
	StatusCode int
	Status     string
	Body       string

	Method string
	URL    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("github: %s %s: %s: %s", e.Method, e.URL, e.Status, strings.TrimSpace(e.Body))
}

// IsNotFound reports whether err means the requested release or reference
// does not exist: a 404, or the 422 "Reference does not exist" GitHub
// returns when deleting a missing tag.
func IsNotFound(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.StatusCode {
	case http.StatusNotFound:
		return true
	case http.StatusUnprocessableEntity:
		return strings.Contains(apiErr.Body, "Reference does not exist")
	}
	return false
}
