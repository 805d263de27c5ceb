// Package apperr defines the gateway error taxonomy.
// Every error that reaches the HTTP boundary is either an *Error or is treated as
// an unexpected failure. Handlers map Kind to a status code in one place.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for status mapping and retry decisions.
type Kind int

const (
	// KindUnknown is the zero value; treated as an internal failure.
	KindUnknown Kind = iota
	// KindValidation is a malformed or incomplete request body.
	KindValidation
	// KindConfiguration is a required server setting that is missing.
	KindConfiguration
	// KindTransientProvider is a network/5xx failure from the LLM provider.
	KindTransientProvider
	// KindSynthesis is a speech synthesis failure.
	KindSynthesis
	// KindUpstream is a non-2xx answer from an auxiliary HTTP service.
	KindUpstream
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConfiguration:
		return "configuration"
	case KindTransientProvider:
		return "transient_provider"
	case KindSynthesis:
		return "synthesis"
	case KindUpstream:
		return "upstream"
	default:
		return "unknown"
	}
}

// Error is a classified gateway error.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message != "" {
		return e.Message + ": " + e.Err.Error()
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Validation returns a KindValidation error.
func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// Configuration returns a KindConfiguration error.
func Configuration(format string, args ...any) *Error {
	return &Error{Kind: KindConfiguration, Message: fmt.Sprintf(format, args...)}
}

// MissingSetting is the common Configuration error for an unset variable.
func MissingSetting(names ...string) *Error {
	if len(names) == 1 {
		return Configuration("required setting %s is not configured", names[0])
	}
	return Configuration("required settings %v are not configured", names)
}

// Transient wraps err as a KindTransientProvider error.
func Transient(message string, err error) *Error {
	return &Error{Kind: KindTransientProvider, Message: message, Err: err}
}

// Synthesis wraps err as a KindSynthesis error.
func Synthesis(message string, err error) *Error {
	return &Error{Kind: KindSynthesis, Message: message, Err: err}
}

// Upstream wraps err as a KindUpstream error.
func Upstream(message string, err error) *Error {
	return &Error{Kind: KindUpstream, Message: message, Err: err}
}

// KindOf returns the Kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
