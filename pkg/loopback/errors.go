package loopback

import (
	"fmt"
	"time"
)

// Error codes as constants
const (
	ErrCodeConfigInvalid   = "CONFIG_INVALID"
	ErrCodeEngineState     = "ENGINE_STATE"
	ErrCodeDeviceOpen      = "DEVICE_OPEN_ERROR"
	ErrCodeDeviceStart     = "DEVICE_START_ERROR"
	ErrCodeDeviceTransient = "DEVICE_TRANSIENT"
	ErrCodeDeviceFatal     = "DEVICE_FATAL"
	ErrCodeTapWrite        = "TAP_WRITE_ERROR"
	ErrCodeMonitorServe    = "MONITOR_SERVE_ERROR"
)

// LoopbackError is the coded error type used across the SDK. Codes let
// callers classify without string matching; Details carry optional
// context for logs.
type LoopbackError struct {
	Message   string
	Code      string
	Timestamp time.Time
	Details   map[string]interface{}
	err       error
}

func (e *LoopbackError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s (%s): %v", e.Message, e.Code, e.err)
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Code)
}

func (e *LoopbackError) Unwrap() error {
	return e.err
}

func NewLoopbackError(message, code string) *LoopbackError {
	return &LoopbackError{
		Message:   message,
		Code:      code,
		Timestamp: time.Now(),
	}
}

// AddDetail attaches a key/value pair to the error and returns it for
// chaining.
func (e *LoopbackError) AddDetail(key string, value interface{}) *LoopbackError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WrapError wraps any error as a LoopbackError with the given code.
func WrapError(err error, code string) *LoopbackError {
	if err == nil {
		return nil
	}
	le := NewLoopbackError(err.Error(), code)
	le.err = err
	return le
}

// Specific error creators with common codes
func NewConfigError(message string) *LoopbackError {
	return NewLoopbackError(message, ErrCodeConfigInvalid)
}

func NewDeviceOpenError(err error) *LoopbackError {
	return WrapError(err, ErrCodeDeviceOpen)
}

func NewDeviceStartError(err error) *LoopbackError {
	return WrapError(err, ErrCodeDeviceStart)
}

func NewTransientDeviceError(err error) *LoopbackError {
	return WrapError(err, ErrCodeDeviceTransient)
}

func NewFatalDeviceError(message string, err error) *LoopbackError {
	le := NewLoopbackError(message, ErrCodeDeviceFatal)
	le.err = err
	return le
}

// IsErrorCode checks whether err carries the given code.
func IsErrorCode(err *LoopbackError, code string) bool {
	if err == nil {
		return false
	}
	return err.Code == code
}

// IsRetryableError reports whether the condition is expected to clear on
// its own or after a bounded retry (stream re-preparation and the like).
func IsRetryableError(err *LoopbackError) bool {
	if err == nil {
		return false
	}
	switch err.Code {
	case ErrCodeDeviceTransient, ErrCodeDeviceOpen, ErrCodeDeviceStart:
		return true
	}
	return false
}

// IsFatalError reports whether the condition ends the session; recovery
// requires an explicit Start by the caller.
func IsFatalError(err *LoopbackError) bool {
	if err == nil {
		return false
	}
	switch err.Code {
	case ErrCodeDeviceFatal, ErrCodeConfigInvalid:
		return true
	}
	return false
}
