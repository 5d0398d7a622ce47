// Package ipcerrors materializes the error taxonomy of the coordinator:
// configuration mistakes, connection-state misuse, request timeouts,
// and user handler failures.
package ipcerrors

import (
	"errors"
	"fmt"
)

// ErrTimeout is returned (wrapped in a response.Response) when a
// send_to_group bounded wait expires before a reply arrives.
var ErrTimeout = errors.New("redis-ipc: timed out waiting for a reply")

// ErrDuplicateID is returned by the ledger when Store is called twice
// for the same request id.
var ErrDuplicateID = errors.New("redis-ipc: request id already has an outstanding ledger row")

// ConfigurationError reports a coordinator that was asked to do
// something its configuration does not support: connecting without
// handlers, or a dispatcher starting with no available workers.
type ConfigurationError struct {
	Msg string
}

func (e *ConfigurationError) Error() string {
	return "redis-ipc: configuration error: " + e.Msg
}

// NewConfigurationError builds a ConfigurationError with a formatted message.
func NewConfigurationError(format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Msg: fmt.Sprintf(format, args...)}
}

// ConnectionError reports an operation attempted on a coordinator that
// is not connected, or a transport failure beyond the façade's benign
// suppression.
type ConnectionError struct {
	Msg string
	Err error
}

func (e *ConnectionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("redis-ipc: connection error: %s: %v", e.Msg, e.Err)
	}
	return "redis-ipc: connection error: " + e.Msg
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// NewConnectionError wraps an underlying transport error.
func NewConnectionError(msg string, cause error) *ConnectionError {
	return &ConnectionError{Msg: msg, Err: cause}
}

// UserError wraps whatever value an on_request handler panicked with,
// so it can be delivered through on_error and as a Response reason
// without an exception ever crossing the coordinator boundary.
type UserError struct {
	Cause any
}

func (e *UserError) Error() string {
	return fmt.Sprintf("redis-ipc: request handler error: %v", e.Cause)
}

// NewUserError wraps a recovered panic value or a plain error returned
// by a handler.
func NewUserError(cause any) *UserError {
	if err, ok := cause.(error); ok {
		return &UserError{Cause: err}
	}
	return &UserError{Cause: cause}
}
