package voiceerr

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindString(t *testing.T) {
	tests := []struct {
		kind Kind
		want string
	}{
		{DeviceAccessDenied, "device_access_denied"},
		{EmptyRecording, "empty_recording"},
		{EncodingFailure, "encoding_failure"},
		{NetworkFailure, "network_failure"},
		{ServiceError, "service_error"},
		{EmptyTranscript, "empty_transcript"},
		{KindUnknown, "unknown"},
	}

	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("Kind(%d).String() = %q, want %q", tt.kind, got, tt.want)
		}
	}
}

func TestErrorIsSentinel(t *testing.T) {
	err := fmt.Errorf("submit: %w", New(NetworkFailure, "HTTP error: 500"))

	if !errors.Is(err, ErrNetworkFailure) {
		t.Error("Expected wrapped error to match ErrNetworkFailure")
	}
	if errors.Is(err, ErrServiceError) {
		t.Error("Did not expect match with ErrServiceError")
	}
	if KindOf(err) != NetworkFailure {
		t.Errorf("Expected kind %v, got %v", NetworkFailure, KindOf(err))
	}
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(NetworkFailure, cause)

	if !errors.Is(err, cause) {
		t.Error("Expected errors.Is to find the cause")
	}
	if err.Message != "connection refused" {
		t.Errorf("Expected message from cause, got %q", err.Message)
	}
	if !err.Retryable() {
		t.Error("Network failures should be retryable")
	}
	if Wrap(NetworkFailure, nil) != nil {
		t.Error("Wrap(nil) should return nil")
	}
}

func TestKindOfUnclassified(t *testing.T) {
	if KindOf(errors.New("plain")) != KindUnknown {
		t.Error("Expected KindUnknown for plain error")
	}
	if KindOf(nil) != KindUnknown {
		t.Error("Expected KindUnknown for nil")
	}
}

func TestErrorMessage(t *testing.T) {
	err := New(EmptyTranscript, "No speech detected")
	if err.Error() != "empty_transcript: No speech detected" {
		t.Errorf("Unexpected message %q", err.Error())
	}
	if New(EmptyRecording, "").Error() != "empty_recording" {
		t.Errorf("Unexpected message for empty text")
	}
	if New(ServiceError, "x").Retryable() {
		t.Error("Service errors should not be retryable")
	}
}
