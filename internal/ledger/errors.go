package ledger

import (
	"errors"
	"fmt"
	"strings"
)

// ConnectionError means the gateway session is unusable. Retryable after a
// relogin; the client itself retries at most once per call.
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("ledger connection error: %v", e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// ChaincodeError means the remote contract explicitly rejected the call.
// Not retryable with the same arguments.
type ChaincodeError struct {
	Message string
}

func (e *ChaincodeError) Error() string {
	return fmt.Sprintf("chaincode rejected call: %s", e.Message)
}

// TimeoutError means the call did not complete within its deadline. The
// transaction may or may not have committed.
type TimeoutError struct {
	Err error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("ledger call timed out: %v", e.Err)
}

func (e *TimeoutError) Unwrap() error {
	return e.Err
}

func IsConnectionError(err error) bool {
	var ce *ConnectionError
	return errors.As(err, &ce)
}

// classify buckets raw SDK errors into the client's error taxonomy. The
// Fabric SDK does not expose typed errors for dropped sessions, so this is
// necessarily string matching on known failure texts.
func classify(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "context deadline exceeded"),
		strings.Contains(msg, "timeout"),
		strings.Contains(msg, "timed out"):
		return &TimeoutError{Err: err}
	case strings.Contains(msg, "connection"),
		strings.Contains(msg, "unavailable"),
		strings.Contains(msg, "transport is closing"),
		strings.Contains(msg, "eof"),
		strings.Contains(msg, "session"):
		return &ConnectionError{Err: err}
	default:
		return &ChaincodeError{Message: err.Error()}
	}
}
