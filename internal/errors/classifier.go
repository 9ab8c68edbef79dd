package errors

import (
	"context"
	"errors"
	"log/slog"
)

type ErrorClass int

const (
	ClassInternal ErrorClass = iota
	ClassConfiguration
	ClassTransport
	ClassAuthentication
	ClassDecryption
	ClassIO
)

// Exit codes surfaced to the process supervisor. Each class gets its own
// code so the restart policy can tell a bad role from a bad blob.
const (
	ExitInternal       = 1
	ExitConfiguration  = 2
	ExitTransport      = 3
	ExitAuthentication = 4
	ExitDecryption     = 5
	ExitIO             = 6
)

func (c ErrorClass) String() string {
	switch c {
	case ClassConfiguration:
		return "configuration"
	case ClassTransport:
		return "transport"
	case ClassAuthentication:
		return "authentication"
	case ClassDecryption:
		return "decryption"
	case ClassIO:
		return "io"
	default:
		return "internal"
	}
}

type ClassifiedError struct {
	Class         ErrorClass
	InternalError error
	Step          string
}

func (e *ClassifiedError) Error() string {
	return "step " + e.Step + ": " + e.InternalError.Error()
}

func (e *ClassifiedError) Unwrap() error {
	return e.InternalError
}

// ExitCode returns the process exit code for the error class.
func (e *ClassifiedError) ExitCode() int {
	switch e.Class {
	case ClassConfiguration:
		return ExitConfiguration
	case ClassTransport:
		return ExitTransport
	case ClassAuthentication:
		return ExitAuthentication
	case ClassDecryption:
		return ExitDecryption
	case ClassIO:
		return ExitIO
	default:
		return ExitInternal
	}
}

type ErrorClassifier struct {
	logger *slog.Logger
}

func NewErrorClassifier(logger *slog.Logger) *ErrorClassifier {
	return &ErrorClassifier{logger: logger}
}

// Classify maps an error chain to its class for the given bootstrap step.
func (ec *ErrorClassifier) Classify(err error, step string) *ClassifiedError {
	classified := &ClassifiedError{
		InternalError: err,
		Step:          step,
	}

	switch {
	case errors.Is(err, ErrConfiguration):
		classified.Class = ClassConfiguration
	case errors.Is(err, ErrTransport):
		classified.Class = ClassTransport
	case errors.Is(err, ErrAuthentication):
		classified.Class = ClassAuthentication
	case errors.Is(err, ErrDecryption):
		classified.Class = ClassDecryption
	case errors.Is(err, ErrIO):
		classified.Class = ClassIO
	default:
		classified.Class = ClassInternal
	}

	return classified
}

// LogFailure emits a single diagnostic line naming the failed step and
// returns the exit code the process should terminate with.
func (ec *ErrorClassifier) LogFailure(ctx context.Context, classified *ClassifiedError) int {
	ec.logger.ErrorContext(ctx, "bootstrap step failed",
		"step", classified.Step,
		"error_class", classified.Class.String(),
		"error", classified.InternalError.Error(),
	)

	return classified.ExitCode()
}
