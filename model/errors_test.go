package model

import "testing"

func TestErrorEnvelope_Error(t *testing.T) {
	e := &ErrorEnvelope{Code: ErrSessionNotFound, Message: "session gone"}
	want := "SESSION_NOT_FOUND: session gone"
	if got := e.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestErrorEnvelope_implements_error(t *testing.T) {
	var _ error = (*ErrorEnvelope)(nil)
}

func TestNewSessionNotFoundError(t *testing.T) {
	e := NewSessionNotFoundError("sess-abc")
	if e.Code != ErrSessionNotFound {
		t.Errorf("Code = %q, want %q", e.Code, ErrSessionNotFound)
	}
	if e.Message == "" {
		t.Error("Message is empty")
	}
}

func TestNewInvalidWorkflowStepError(t *testing.T) {
	e := NewInvalidWorkflowStepError("expected step2_describe next")
	if e.Code != ErrInvalidWorkflowStep {
		t.Errorf("Code = %q, want %q", e.Code, ErrInvalidWorkflowStep)
	}
	if e.Message != "expected step2_describe next" {
		t.Errorf("Message = %q", e.Message)
	}
}

func TestNewInternalError_generic_message(t *testing.T) {
	e := NewInternalError()
	if e.Code != ErrInternalError {
		t.Errorf("Code = %q, want %q", e.Code, ErrInternalError)
	}
	// Clients must never see internal detail.
	if e.Message != "An unexpected error occurred" {
		t.Errorf("Message = %q", e.Message)
	}
}

func TestCodeOf(t *testing.T) {
	if got := CodeOf(NewCleanupError("scan failed")); got != ErrCleanupFailed {
		t.Errorf("CodeOf(cleanup) = %q, want %q", got, ErrCleanupFailed)
	}
	if got := CodeOf(errPlain{}); got != ErrInternalError {
		t.Errorf("CodeOf(plain) = %q, want %q", got, ErrInternalError)
	}
}

type errPlain struct{}

func (errPlain) Error() string { return "plain" }
