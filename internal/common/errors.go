package common

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies every failure the intake and persistence layers can surface.
// Routing outcomes (Unsupported) and soft outcomes (NoStructuredResults) share
// the type so callers can switch on one value instead of juggling error sets.
type Kind string

const (
	KindUnsupported         Kind = "UNSUPPORTED"
	KindInsufficientText    Kind = "INSUFFICIENT_TEXT"
	KindTimeout             Kind = "TIMEOUT"
	KindNetworkFailure      Kind = "NETWORK_FAILURE"
	KindServerRejected      Kind = "SERVER_REJECTED"
	KindNoStructuredResults Kind = "NO_STRUCTURED_RESULTS"
	KindValidationFailed    Kind = "VALIDATION_FAILED"
	KindRecordWriteFailed   Kind = "RECORD_WRITE_FAILED"
	KindPartialUpload       Kind = "PARTIAL_UPLOAD_FAILURE"
)

// Failure is the application error carried across component boundaries.
type Failure struct {
	Kind    Kind
	Message string
	Cause   error
}

func (f *Failure) Error() string {
	if f.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", f.Kind, f.Message, f.Cause)
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

func (f *Failure) Unwrap() error {
	return f.Cause
}

// NewFailure builds a Failure with an optional cause.
func NewFailure(kind Kind, message string, cause error) *Failure {
	return &Failure{Kind: kind, Message: message, Cause: cause}
}

// Failuref builds a Failure with a formatted message and no cause.
func Failuref(kind Kind, format string, args ...any) *Failure {
	return &Failure{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the Kind from err, walking wrapped errors. Context
// cancellation and deadline errors classify as Timeout so remote calls never
// leak raw context errors to callers.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindTimeout
	}
	return KindNetworkFailure
}

// IsKind reports whether err carries the given Kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// AsTimeout rewraps err as a Timeout failure when it stems from a deadline,
// otherwise returns err unchanged.
func AsTimeout(err error, message string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewFailure(KindTimeout, message, err)
	}
	return err
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
