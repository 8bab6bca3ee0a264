package errors

import (
	stdErrors "errors"
	"fmt"
)

type Code string

const (
	CodeValidation    Code = "VALIDATION_ERROR"
	CodeNotFound      Code = "NOT_FOUND"
	CodeStateConflict Code = "STATE_CONFLICT"
	CodeRaceLost      Code = "RACE_LOST"
	CodeMalformed     Code = "MALFORMED_MESSAGE"
	CodeInternal      Code = "INTERNAL_ERROR"
	CodeDependency    Code = "DEPENDENCY_ERROR"
)

// Metadata classifies how a code should be handled by the caller.
type Metadata struct {
	// Retryable marks failures worth another attempt with backoff.
	Retryable bool
	// Expected marks outcomes that are part of the protocol (losing a race,
	// a conditional transition not applying) and must not be logged as errors.
	Expected bool
	Message  string
}

var metadataByCode = map[Code]Metadata{
	CodeValidation: {
		Message: "validation failed",
	},
	CodeNotFound: {
		Message: "record not found",
	},
	CodeStateConflict: {
		Message: "state transition disallowed",
	},
	CodeRaceLost: {
		Expected: true,
		Message:  "lost the race for this order",
	},
	CodeMalformed: {
		Message: "malformed message dropped",
	},
	CodeInternal: {
		Retryable: true,
		Message:   "internal error",
	},
	CodeDependency: {
		Retryable: true,
		Message:   "dependency unavailable",
	},
}

func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

// IsRetryable reports whether err carries a retryable code.
func IsRetryable(err error) bool {
	typed := As(err)
	if typed == nil {
		return false
	}
	return MetadataFor(typed.Code()).Retryable
}

// IsExpected reports whether err is a protocol outcome rather than a failure.
func IsExpected(err error) bool {
	typed := As(err)
	if typed == nil {
		return false
	}
	return MetadataFor(typed.Code()).Expected
}

type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Wrap(code Code, err error, message string) *Error {
	if err == nil {
		return New(code, message)
	}
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

func (e *Error) WithDetails(details any) *Error {
	if e == nil {
		return nil
	}
	e.details = details
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

func As(err error) *Error {
	if err == nil {
		return nil
	}
	var typed *Error
	if stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}
