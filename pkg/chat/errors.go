package chat

import (
	"context"
	"errors"
	"fmt"

	"github.com/papercomputeco/recall/pkg/completion"
	"github.com/papercomputeco/recall/pkg/storage"
)

// Error kinds. Every *Error carries exactly one of them.
var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrUpstream     = errors.New("upstream failure")
	ErrValidation   = errors.New("validation failed")
)

// Error is the error type returned by the orchestrator and the editor.
// errors.Is matches both Kind and the wrapped cause.
type Error struct {
	Kind error
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// KindOf returns the kind of err, or nil when err carries none.
func KindOf(err error) error {
	for _, kind := range []error{ErrNotFound, ErrUnauthorized, ErrUpstream, ErrValidation} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

func validationError(op, msg string) error {
	return &Error{Kind: ErrValidation, Op: op, Err: errors.New(msg)}
}

// wrap classifies err. Cancellation and unclassified errors are wrapped with
// the operation only.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}

	var chatErr *Error
	if errors.As(err, &chatErr) {
		return err
	}

	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s: %w", op, err)
	case errors.Is(err, storage.ErrNotFound):
		return &Error{Kind: ErrNotFound, Op: op, Err: err}
	case errors.Is(err, storage.ErrInvalidMessage):
		return &Error{Kind: ErrValidation, Op: op, Err: err}
	case errors.Is(err, completion.ErrUpstream):
		return &Error{Kind: ErrUpstream, Op: op, Err: err}
	}
	return fmt.Errorf("%s: %w", op, err)
}
