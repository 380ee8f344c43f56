package store

import (
	"errors"
	"fmt"
	"net/http"
)

// Status values that do not come from an HTTP response.
const (
	// StatusNetwork covers transport failures and timeouts.
	StatusNetwork = 0
	// StatusInvalidResponse means the response did not have the expected shape.
	StatusInvalidResponse = -1
	// StatusMissingAsset means a local payload (template, empty workbook)
	// could not be produced.
	StatusMissingAsset = -2
)

// RemoteError is the single failure type returned by Store implementations.
// Status is the HTTP status code or one of the Status constants above.
type RemoteError struct {
	Status  int
	Message string
	Err     error
}

func (e *RemoteError) Error() string {
	switch e.Status {
	case StatusNetwork:
		return "remote store unreachable: " + e.Message
	case StatusInvalidResponse:
		return "unexpected response from remote store: " + e.Message
	case StatusMissingAsset:
		return "workbook asset unavailable: " + e.Message
	}
	return fmt.Sprintf("remote store error %d: %s", e.Status, e.Message)
}

func (e *RemoteError) Unwrap() error { return e.Err }

// Temporary reports whether retrying the same call could succeed.
func (e *RemoteError) Temporary() bool {
	switch {
	case e.Status == StatusNetwork:
		return true
	case e.Status == http.StatusTooManyRequests, e.Status == http.StatusLocked:
		return true
	case e.Status >= 500:
		return true
	}
	return false
}

// IsNotFound reports whether err is a RemoteError for a missing resource.
func IsNotFound(err error) bool {
	var re *RemoteError
	return errors.As(err, &re) && re.Status == http.StatusNotFound
}

// IsTemporary reports whether err is a RemoteError worth retrying.
func IsTemporary(err error) bool {
	var re *RemoteError
	return errors.As(err, &re) && re.Temporary()
}

// IsAuth reports whether err is a rejected or missing credential.
func IsAuth(err error) bool {
	var re *RemoteError
	return errors.As(err, &re) && (re.Status == http.StatusUnauthorized || re.Status == http.StatusForbidden)
}

// Invalid builds a StatusInvalidResponse error.
func Invalid(format string, args ...any) *RemoteError {
	return &RemoteError{Status: StatusInvalidResponse, Message: fmt.Sprintf(format, args...)}
}
