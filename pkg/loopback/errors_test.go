package loopback

import (
	"errors"
	"strings"
	"testing"
)

func TestLoopbackError_MessageAndUnwrap(t *testing.T) {
	t.Parallel()

	plain := NewLoopbackError("engine busy", ErrCodeEngineState)
	if msg := plain.Error(); !strings.Contains(msg, "engine busy") || !strings.Contains(msg, ErrCodeEngineState) {
		t.Errorf("Error() = %q, want message and code", msg)
	}
	if plain.Unwrap() != nil {
		t.Errorf("Unwrap() = %v, want nil", plain.Unwrap())
	}

	cause := errors.New("device vanished")
	wrapped := WrapError(cause, ErrCodeDeviceTransient)
	if !errors.Is(wrapped, cause) {
		t.Error("errors.Is does not see the wrapped cause")
	}
	if !strings.Contains(wrapped.Error(), "device vanished") {
		t.Errorf("Error() = %q, want the cause text", wrapped.Error())
	}
}

func TestWrapError_NilPassthrough(t *testing.T) {
	t.Parallel()

	if got := WrapError(nil, ErrCodeDeviceOpen); got != nil {
		t.Errorf("WrapError(nil) = %v, want nil", got)
	}
}

func TestErrorClassification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		err       *LoopbackError
		retryable bool
		fatal     bool
	}{
		{"transient", NewTransientDeviceError(errors.New("busy")), true, false},
		{"open", NewDeviceOpenError(errors.New("no device")), true, false},
		{"start", NewDeviceStartError(errors.New("stream")), true, false},
		{"fatal", NewFatalDeviceError("gone", nil), false, true},
		{"config", NewConfigError("bad rate"), false, true},
		{"state", NewLoopbackError("busy", ErrCodeEngineState), false, false},
		{"nil", nil, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryableError(tt.err); got != tt.retryable {
				t.Errorf("IsRetryableError() = %v, want %v", got, tt.retryable)
			}
			if got := IsFatalError(tt.err); got != tt.fatal {
				t.Errorf("IsFatalError() = %v, want %v", got, tt.fatal)
			}
		})
	}
}

func TestAddDetail(t *testing.T) {
	t.Parallel()

	err := NewConfigError("bad").AddDetail("field", "sample_rate").AddDetail("value", 0)
	if err.Details["field"] != "sample_rate" {
		t.Errorf("Details[field] = %v, want sample_rate", err.Details["field"])
	}
	if err.Details["value"] != 0 {
		t.Errorf("Details[value] = %v, want 0", err.Details["value"])
	}
	if !IsErrorCode(err, ErrCodeConfigInvalid) {
		t.Error("IsErrorCode() = false, want true")
	}
}
