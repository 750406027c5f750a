package invoker

import (
	"errors"
	"fmt"
)

// Kind classifies a generation failure.
type Kind string

const (
	KindInvocation Kind = "invocation" // provider unreachable, rejected, or circuit open
	KindTimeout    Kind = "timeout"    // call exceeded its deadline
	KindMalformed  Kind = "malformed"  // output is not the expected JSON or text
	KindValidation Kind = "validation" // JSON does not satisfy the schema
)

var (
	ErrInvocation      = errors.New("model invocation failed")
	ErrMalformedOutput = errors.New("malformed model output")
	ErrValidation      = errors.New("model output failed validation")
)

// GenerationFailure is returned by the schema-validated and plain-text modes.
type GenerationFailure struct {
	Stage string
	Kind  Kind
	Err   error
}

func (e *GenerationFailure) Error() string {
	return fmt.Sprintf("%s: %s failure: %v", e.Stage, e.Kind, e.Err)
}

func (e *GenerationFailure) Unwrap() error { return e.Err }

// Is matches the sentinel for the failure's kind. Timeouts match
// ErrInvocation.
func (e *GenerationFailure) Is(target error) bool {
	switch target {
	case ErrInvocation:
		return e.Kind == KindInvocation || e.Kind == KindTimeout
	case ErrMalformedOutput:
		return e.Kind == KindMalformed
	case ErrValidation:
		return e.Kind == KindValidation
	}
	return false
}

func failure(stage string, kind Kind, err error) *GenerationFailure {
	return &GenerationFailure{Stage: stage, Kind: kind, Err: err}
}
