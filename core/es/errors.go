package es

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrConfiguration       = errors.New("configuration error")
	ErrValidation          = errors.New("validation error")
	ErrLookup              = errors.New("lookup error")
	ErrSequencing          = errors.New("sequencing error")
	ErrTypeMismatch        = errors.New("aggregate type mismatch")
	ErrConcurrencyConflict = errors.New("concurrency conflict")
	ErrSnapshotNotFound    = errors.New("snapshot not found")
	ErrStoreNoEvents       = errors.New("no events to store")

	ErrProjectionStateNotFound = errors.New("projection state not found")
)

// ConfigurationError reports malformed setup, e.g. missing construction options.
type ConfigurationError struct {
	Msg string
}

func (e *ConfigurationError) Error() string        { return "configuration error: " + e.Msg }
func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

func configErrorf(format string, args ...any) error {
	return &ConfigurationError{Msg: fmt.Sprintf(format, args...)}
}

// ValidationError carries every violation found, not only the first one.
type ValidationError struct {
	Msg        string
	Violations []string
}

func (e *ValidationError) Error() string {
	if len(e.Violations) == 0 {
		return e.Msg
	}
	return fmt.Sprintf("%s: [%s]", e.Msg, strings.Join(e.Violations, "; "))
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func NewValidationError(msg string, violations ...string) *ValidationError {
	return &ValidationError{Msg: msg, Violations: violations}
}

// LookupError reports that no handler is registered for a message.
type LookupError struct {
	Kind          string
	Name          string
	Version       int
	AggregateType string
}

func (e *LookupError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "could not find %s handler for '%s'", e.Kind, e.Name)
	if e.Version > 0 {
		fmt.Fprintf(&sb, " v%d", e.Version)
	}
	if e.AggregateType != "" {
		fmt.Fprintf(&sb, " on aggregate %s", e.AggregateType)
	}
	return sb.String()
}

func (e *LookupError) Is(target error) bool { return target == ErrLookup }

// SequencingError reports an event whose version is not the next expected one.
type SequencingError struct {
	Expected Version
	Got      Version
}

func (e *SequencingError) Error() string {
	return fmt.Sprintf("event version mismatch: expected version %d, got version %d", e.Expected, e.Got)
}

func (e *SequencingError) Is(target error) bool { return target == ErrSequencing }

// TypeMismatchError reports a command executed against a stream of another aggregate type.
type TypeMismatchError struct {
	Expected string
	Got      string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("aggregate is of wrong type for this command: state(%s) aggregate(%s)", e.Got, e.Expected)
}

func (e *TypeMismatchError) Is(target error) bool { return target == ErrTypeMismatch }
