package voiceerr

import (
	"errors"
	"fmt"
)

// Kind classifies a pipeline failure
type Kind int

const (
	// KindUnknown is reported by KindOf for errors outside the taxonomy
	KindUnknown Kind = iota
	DeviceAccessDenied
	EmptyRecording
	EncodingFailure
	NetworkFailure
	ServiceError
	EmptyTranscript
)

// Sentinel errors, one per kind, usable with errors.Is
var (
	ErrDeviceAccessDenied = errors.New("device access denied")
	ErrEmptyRecording     = errors.New("empty recording")
	ErrEncodingFailure    = errors.New("encoding failure")
	ErrNetworkFailure     = errors.New("network failure")
	ErrServiceError       = errors.New("service error")
	ErrEmptyTranscript    = errors.New("empty transcript")
)

// String returns the snake_case name of the kind
func (k Kind) String() string {
	switch k {
	case DeviceAccessDenied:
		return "device_access_denied"
	case EmptyRecording:
		return "empty_recording"
	case EncodingFailure:
		return "encoding_failure"
	case NetworkFailure:
		return "network_failure"
	case ServiceError:
		return "service_error"
	case EmptyTranscript:
		return "empty_transcript"
	default:
		return "unknown"
	}
}

func (k Kind) sentinel() error {
	switch k {
	case DeviceAccessDenied:
		return ErrDeviceAccessDenied
	case EmptyRecording:
		return ErrEmptyRecording
	case EncodingFailure:
		return ErrEncodingFailure
	case NetworkFailure:
		return ErrNetworkFailure
	case ServiceError:
		return ErrServiceError
	case EmptyTranscript:
		return ErrEmptyTranscript
	default:
		return nil
	}
}

// Error is a classified pipeline failure
type Error struct {
	Kind    Kind
	Message string
	Err     error // underlying cause, may be nil
}

// New creates an error of the given kind
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates an error of the given kind with a formatted message
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies err under kind, using err's text as the message
func Wrap(kind Kind, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: err.Error(), Err: err}
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the underlying cause
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for e.Kind
func (e *Error) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}

// Retryable reports whether resubmitting the same request may succeed
func (e *Error) Retryable() bool {
	return e.Kind == NetworkFailure
}

// KindOf returns the kind of err, or KindUnknown when err is not classified
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
