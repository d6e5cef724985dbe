package pipeline

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	InputError      ErrorKind = "InputError"
	DependencyError ErrorKind = "DependencyError"
	ModelLoadError  ErrorKind = "ModelLoadError"
	GenerationError ErrorKind = "GenerationError"
	OutputError     ErrorKind = "OutputError"
	// Aborted runs were cancelled, usually by a terminating signal.
	Aborted ErrorKind = "Aborted"
)

// abortedExitCode is used when the cancellation cause carries no exit code.
const abortedExitCode = 130

// Error is a failed run. Kind tells the caller which stage failed.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind ErrorKind, err error, format string, args ...any) *Error {
	msg := fmt.Sprintf(format, args...)
	if err != nil {
		return &Error{Kind: kind, Err: fmt.Errorf("%s: %w", msg, err)}
	}
	return &Error{Kind: kind, Err: errors.New(msg)}
}

// KindOf returns the kind of a pipeline error, or "" for any other error.
func KindOf(err error) ErrorKind {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Kind
	}
	return ""
}

// ExitCode maps an error to the process exit status.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	switch KindOf(err) {
	case InputError:
		return 2
	case DependencyError:
		return 3
	case ModelLoadError:
		return 4
	case GenerationError:
		return 5
	case OutputError:
		return 6
	case Aborted:
		var coded interface{ ExitCode() int }
		if errors.As(err, &coded) {
			return coded.ExitCode()
		}
		return abortedExitCode
	}
	return 1
}
