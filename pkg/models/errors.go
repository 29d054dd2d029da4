package models

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a pipeline failure.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindTransientIO
	KindConstraintViolation
	KindQueryError
	KindConfigError
	KindInvalidState
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "NotFound"
	case KindTransientIO:
		return "TransientIOError"
	case KindConstraintViolation:
		return "ConstraintViolation"
	case KindQueryError:
		return "QueryError"
	case KindConfigError:
		return "ConfigError"
	case KindInvalidState:
		return "InvalidState"
	default:
		return "Unknown"
	}
}

// Error is a classified failure. Stage and Partition are filled in by the
// controller when the error leaves a stage.
type Error struct {
	Kind      Kind
	Stage     Stage
	Partition Partition
	Err       error
}

func NewError(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// Errorf builds a classified error from a format string.
func Errorf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Stage != "" {
		b.WriteString(strings.ToLower(string(e.Stage)))
		if !e.Partition.IsZero() {
			b.WriteString(" " + e.Partition.String())
		}
		b.WriteString(": ")
	}
	// A classified error further down the chain already prints the kind.
	var inner *Error
	if !errors.As(e.Err, &inner) {
		b.WriteString(e.Kind.String())
		if e.Err != nil {
			b.WriteString(": ")
		}
	}
	if e.Err != nil {
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of the outermost classified error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// AtStage attaches the stage and partition to err, keeping its kind.
// An error already carrying a stage is returned unchanged.
func AtStage(err error, stage Stage, p Partition) *Error {
	var e *Error
	if errors.As(err, &e) {
		if e.Stage != "" {
			return e
		}
		inner := e.Err
		if err != error(e) {
			inner = err
		}
		return &Error{Kind: e.Kind, Stage: stage, Partition: p, Err: inner}
	}
	return &Error{Kind: KindUnknown, Stage: stage, Partition: p, Err: err}
}
