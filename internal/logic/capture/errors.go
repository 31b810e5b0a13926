package capture

import (
	"errors"
	"fmt"

	"github.com/cjeanneret/multishot/internal/hw/camera"
)

// Error kinds. Every failure delivered to a ResultSink matches exactly
// one of them with errors.Is.
var (
	ErrDeviceNotReady    = errors.New("device not ready")
	ErrFormatUnsupported = errors.New("format unsupported")
	ErrDeviceCapture     = errors.New("device capture failed")
	ErrArtifactPersist   = errors.New("artifact persist failed")
	ErrCancelled         = errors.New("capture cancelled")

	ErrNoFormats         = errors.New("no formats to capture")
	ErrAlreadyDispatched = errors.New("coordinator already dispatched")
)

// Error is a capture failure of a given kind, optionally tied to one format.
type Error struct {
	Kind   error         // one of the Err* kinds above
	Format camera.Format // FormatUnknown for aggregate-level failures
	Cause  error         // underlying device, filesystem or context error
}

func newError(kind error, f camera.Format, cause error) *Error {
	return &Error{Kind: kind, Format: f, Cause: cause}
}

func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.Format != camera.FormatUnknown {
		msg = fmt.Sprintf("%s: %s", e.Format, msg)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *Error) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}
