// Package errors provides shared error types for the MediaWiki remote helper.
package errors

import (
	"errors"
	"fmt"
)

// ConfigError indicates invalid or missing tracking configuration for a
// remote, for example an unsupported refspec target. It is reported per
// item through the protocol's error line and does not abort a batch of
// independent refspecs.
type ConfigError struct {
	Key     string // git config key or refspec that failed
	Message string
}

func (e *ConfigError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("invalid configuration for %s: %s", e.Key, e.Message)
	}
	return fmt.Sprintf("invalid configuration: %s", e.Message)
}

// NetworkError indicates the wiki is unreachable or returned a response
// missing the expected shape. Fatal: terminates the run with a non-zero
// exit status.
type NetworkError struct {
	Operation string // API action or component that failed
	Err       error
}

func (e *NetworkError) Error() string {
	if e.Operation != "" {
		return fmt.Sprintf("wiki request failed during %s: %v", e.Operation, e.Err)
	}
	return fmt.Sprintf("wiki request failed: %v", e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// NonFastForwardError indicates local state is behind remote state, that
// history diverged, or that the wiki reported an edit conflict. Reported
// as a structured protocol error for the affected ref.
type NonFastForwardError struct {
	Ref    string
	Reason string
}

func (e *NonFastForwardError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("non-fast-forward for %s: %s", e.Ref, e.Reason)
	}
	return fmt.Sprintf("non-fast-forward for %s", e.Ref)
}

// ProtocolError indicates malformed input from the calling git process.
// Fatal: terminates immediately.
type ProtocolError struct {
	Line    string
	Message string
}

func (e *ProtocolError) Error() string {
	if e.Line != "" {
		return fmt.Sprintf("protocol error: %s (input %q)", e.Message, e.Line)
	}
	return fmt.Sprintf("protocol error: %s", e.Message)
}

// UnsupportedError indicates an unpushable path or an unsupported refspec
// shape (delete, non-master target, forced push). Reported as a diagnostic
// or per-refspec error; does not abort the whole run.
type UnsupportedError struct {
	What   string // path or refspec
	Reason string
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("unsupported: %s (%s)", e.What, e.Reason)
}

// NewNonFastForward creates a NonFastForwardError for a ref.
func NewNonFastForward(ref, reason string) *NonFastForwardError {
	return &NonFastForwardError{Ref: ref, Reason: reason}
}

// WrapNetwork wraps an underlying transport or response-shape error.
func WrapNetwork(operation string, err error) *NetworkError {
	return &NetworkError{Operation: operation, Err: err}
}

// IsNonFastForward returns true if the error is a NonFastForwardError.
func IsNonFastForward(err error) bool {
	var nff *NonFastForwardError
	return errors.As(err, &nff)
}

// IsNetwork returns true if the error is a NetworkError.
func IsNetwork(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}

// IsUnsupported returns true if the error is an UnsupportedError.
func IsUnsupported(err error) bool {
	var ue *UnsupportedError
	return errors.As(err, &ue)
}

// IsConfig returns true if the error is a ConfigError.
func IsConfig(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// IsProtocol returns true if the error is a ProtocolError.
func IsProtocol(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}
