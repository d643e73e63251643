package services

import (
	"context"
	"errors"
	"fmt"
)

// Reasons reported on empty recommendation responses.
const (
	ReasonNoMatches             = "no recommendations found based on filters"
	ReasonInsufficientData      = "insufficient data"
	ReasonAllSignalsUnavailable = "all signals unavailable"
)

// ErrEmptyCandidateSet marks a request whose filters left nothing to rank.
// Callers see it as an empty response with ReasonNoMatches, never as an error.
var ErrEmptyCandidateSet = errors.New("empty candidate set")

// ConfigurationError is a fatal problem with weights or signal names.
type ConfigurationError struct {
	Field string
	Err   error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error in %s: %v", e.Field, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// DataUnavailableError reports a missing model, column or data source that
// a signal or filter needed. It degrades the request, it does not fail it.
type DataUnavailableError struct {
	Signal   string
	Resource string
	Err      error
}

func (e *DataUnavailableError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s unavailable for %s", e.Resource, e.Signal)
	}
	return fmt.Sprintf("%s unavailable for %s: %v", e.Resource, e.Signal, e.Err)
}

func (e *DataUnavailableError) Unwrap() error { return e.Err }

// UnknownEntityError reports a user or item the engine has no record of.
type UnknownEntityError struct {
	Kind string // "user" or "item"
	ID   string
}

func (e *UnknownEntityError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

// failureReason maps an adapter error to a metrics label.
func failureReason(err error) string {
	var unknown *UnknownEntityError
	var unavailable *DataUnavailableError
	switch {
	case errors.As(err, &unknown):
		return "unknown_" + unknown.Kind
	case errors.As(err, &unavailable):
		return "data_unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "error"
	}
}
