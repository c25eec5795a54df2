package wiki

import (
	"errors"
	"fmt"
)

// Well-known MediaWiki API error codes.
const (
	// ErrCodeEditConflict is returned when an edit lost the race against a
	// concurrent edit of the same page (basetimestamp mismatch).
	ErrCodeEditConflict = "editconflict"

	// ErrCodeBadToken is returned when the CSRF token expired mid-session.
	ErrCodeBadToken = "badtoken"
)

// APIError is a structured error from the MediaWiki API envelope
// ({"error":{"code":..., "info":...}}).
type APIError struct {
	Code string
	Info string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error [%s]: %s", e.Code, e.Info)
}

// IsConflict reports whether the API error is in the edit-conflict class.
func (e *APIError) IsConflict() bool {
	return e.Code == ErrCodeEditConflict
}

// BadResponseError indicates a 200 response whose body did not have the
// expected shape. The wiki is reachable but not speaking the API we expect.
type BadResponseError struct {
	Operation string
	Missing   string // the field or object that was absent
}

func (e *BadResponseError) Error() string {
	return fmt.Sprintf("unexpected response shape in %s: missing %s", e.Operation, e.Missing)
}

// AsAPIError extracts an *APIError from an error chain.
func AsAPIError(err error) (*APIError, bool) {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}
