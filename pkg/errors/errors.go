package errors

import (
	"fmt"
)

// ParseError represents a YAML parsing failure with optional line metadata.
type ParseError struct {
	Path    string
	Line    int
	Message string
	Err     error
}

// NewParseError constructs a ParseError.
func NewParseError(path string, line int, err error) error {
	message := ""
	if err != nil {
		message = err.Error()
	}
	return &ParseError{Path: path, Line: line, Message: message, Err: err}
}

func (e *ParseError) Error() string {
	if e == nil {
		return ""
	}

	if e.Line > 0 {
		return fmt.Sprintf("parse error: %s:%d: %s", e.Path, e.Line, e.Message)
	}
	return fmt.Sprintf("parse error: %s: %s", e.Path, e.Message)
}

// Unwrap exposes the underlying error.
func (e *ParseError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ValidationError captures workflow document validation issues.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

// NewValidationError constructs a ValidationError.
func NewValidationError(field, message string, err error) error {
	return &ValidationError{Field: field, Message: message, Err: err}
}

func (e *ValidationError) Error() string {
	if e == nil {
		return ""
	}
	if e.Field != "" {
		return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// Unwrap exposes the underlying error.
func (e *ValidationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// InvalidSettingsError is returned by configure and settings validation. The
// message is meant to be shown to the user verbatim.
type InvalidSettingsError struct {
	NodeID  string
	Message string
	Err     error
}

// NewInvalidSettingsError constructs an InvalidSettingsError.
func NewInvalidSettingsError(nodeID, message string, err error) error {
	return &InvalidSettingsError{NodeID: nodeID, Message: message, Err: err}
}

// InvalidSettingsf formats a settings problem without node context. The node
// framework fills in the node ID when the error crosses its boundary.
func InvalidSettingsf(format string, args ...any) error {
	return &InvalidSettingsError{Message: fmt.Sprintf(format, args...)}
}

func (e *InvalidSettingsError) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.NodeID != "" {
		return fmt.Sprintf("invalid settings for node %s: %s", e.NodeID, msg)
	}
	return fmt.Sprintf("invalid settings: %s", msg)
}

// Unwrap exposes the underlying error.
func (e *InvalidSettingsError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches any InvalidSettingsError.
func (e *InvalidSettingsError) Is(target error) bool {
	_, ok := target.(*InvalidSettingsError)
	return ok
}

// NotConfigurableError signals that a node cannot be configured in the
// current upstream state, typically because an input is missing.
type NotConfigurableError struct {
	NodeID string
	Reason string
}

// NewNotConfigurableError constructs a NotConfigurableError.
func NewNotConfigurableError(nodeID, reason string) error {
	return &NotConfigurableError{NodeID: nodeID, Reason: reason}
}

func (e *NotConfigurableError) Error() string {
	if e == nil {
		return ""
	}
	if e.NodeID != "" {
		return fmt.Sprintf("node %s is not configurable: %s", e.NodeID, e.Reason)
	}
	return fmt.Sprintf("not configurable: %s", e.Reason)
}

// Is matches any NotConfigurableError.
func (e *NotConfigurableError) Is(target error) bool {
	_, ok := target.(*NotConfigurableError)
	return ok
}

// DefaultCancelMessage is used when a cancellation carries no message.
const DefaultCancelMessage = "Execution canceled"

// CanceledError is raised by a progress monitor once cancellation has been
// requested. It is an expected control-flow outcome, not a defect.
type CanceledError struct {
	Message string
}

// NewCanceledError constructs a CanceledError.
func NewCanceledError(message string) error {
	if message == "" {
		message = DefaultCancelMessage
	}
	return &CanceledError{Message: message}
}

func (e *CanceledError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

// Is matches any CanceledError.
func (e *CanceledError) Is(target error) bool {
	_, ok := target.(*CanceledError)
	return ok
}

// IllegalConnectionError reports an attempt to connect incompatible ports.
type IllegalConnectionError struct {
	From    string
	To      string
	Message string
}

// NewIllegalConnectionError constructs an IllegalConnectionError.
func NewIllegalConnectionError(from, to, message string) error {
	return &IllegalConnectionError{From: from, To: to, Message: message}
}

func (e *IllegalConnectionError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("illegal connection %s -> %s: %s", e.From, e.To, e.Message)
}

// Is matches any IllegalConnectionError.
func (e *IllegalConnectionError) Is(target error) bool {
	_, ok := target.(*IllegalConnectionError)
	return ok
}

// IllegalStateError reports an operation invoked in a state that does not
// allow it, e.g. reading from an unconnected port or adding rows to a closed
// container. These are programming errors and are never retried.
type IllegalStateError struct {
	Message string
}

// IllegalStatef constructs an IllegalStateError.
func IllegalStatef(format string, args ...any) error {
	return &IllegalStateError{Message: fmt.Sprintf(format, args...)}
}

func (e *IllegalStateError) Error() string {
	if e == nil {
		return ""
	}
	return "illegal state: " + e.Message
}

// Is matches any IllegalStateError.
func (e *IllegalStateError) Is(target error) bool {
	_, ok := target.(*IllegalStateError)
	return ok
}

// ExecutionError represents a runtime failure while executing a node.
type ExecutionError struct {
	NodeID string
	Err    error
}

// NewExecutionError constructs an ExecutionError.
func NewExecutionError(nodeID string, err error) error {
	return &ExecutionError{NodeID: nodeID, Err: err}
}

func (e *ExecutionError) Error() string {
	if e == nil {
		return ""
	}
	if e.NodeID != "" {
		return fmt.Sprintf("execution error on node %s: %v", e.NodeID, e.Err)
	}
	return fmt.Sprintf("execution error: %v", e.Err)
}

// Unwrap exposes the root error.
func (e *ExecutionError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Sentinels usable with errors.Is to test for an error kind.
var (
	ErrInvalidSettings   = &InvalidSettingsError{}
	ErrNotConfigurable   = &NotConfigurableError{}
	ErrCanceled          = &CanceledError{}
	ErrIllegalConnection = &IllegalConnectionError{}
	ErrIllegalState      = &IllegalStateError{}
)
