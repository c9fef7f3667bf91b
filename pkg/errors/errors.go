package errors

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnknownLevel         = errors.New("unknown IEAP level")
	ErrStructureExists      = errors.New("composite structure already exists for course")
	ErrNoActiveStructure    = errors.New("course has no active composite structure")
	ErrMappingConflict      = errors.New("SIS mapping conflict")
	ErrSyncInProgress       = errors.New("sync already in progress")
	ErrSISDisabled          = errors.New("SIS integration is disabled")
	ErrMissingConfig        = errors.New("missing SIS configuration")
	ErrPermissionDenied     = errors.New("permission denied")
	ErrNotFound             = errors.New("record not found")
	ErrInvalidGradeItem     = errors.New("invalid grade item")
	ErrInvalidGradeValue    = errors.New("invalid grade value")
	ErrUserNotEnrolled      = errors.New("user not enrolled in course")
	ErrCourseIDRequired     = errors.New("course id required for grade push")
	ErrInvalidSyncType      = errors.New("invalid sync type")
	ErrInvalidDirection     = errors.New("invalid sync direction")
	ErrFileNotFound         = errors.New("file not found")
	ErrInvalidFileFormat    = errors.New("invalid file format")
	ErrSchemaValidation     = errors.New("schema validation failed")
	ErrAuthenticationFailed = errors.New("authentication failed")
)

// Is and As forward to the standard library so callers need a single import.
func Is(err, target error) bool { return errors.Is(err, target) }

func As(err error, target interface{}) bool { return errors.As(err, target) }

func New(text string) error { return errors.New(text) }

type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
	Err     error
}

func (e ValidationError) Error() string {
	if e.Value == nil {
		return fmt.Sprintf("validation failed for field '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed for field '%s' with value '%v': %s",
		e.Field, e.Value, e.Message)
}

func (e ValidationError) Unwrap() error {
	return e.Err
}

// ValidationErrors collects every violation found in one pass.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	msgs := make([]string, len(e))
	for i, v := range e {
		msgs[i] = v.Error()
	}
	return strings.Join(msgs, "; ")
}

// Err returns nil for an empty list so callers can write `if err := v.Err(); err != nil`.
func (e ValidationErrors) Err() error {
	if len(e) == 0 {
		return nil
	}
	return e
}

type StructureCreationError struct {
	Err error
}

func (e *StructureCreationError) Error() string {
	return fmt.Sprintf("error creating composite structure: %s", e.Err.Error())
}

func (e *StructureCreationError) Unwrap() error {
	return e.Err
}

// TransportError means the SIS could not be reached at all (network, timeout).
type TransportError struct {
	Method string
	URL    string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("SIS transport error: %s %s: %s", e.Method, e.URL, e.Err.Error())
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("SIS returned HTTP %d: %s", e.StatusCode, e.Body)
}

type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("invalid JSON response from SIS: %s", e.Err.Error())
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// IsTransport reports whether err is batch fatal for a sync run.
func IsTransport(err error) bool {
	var te *TransportError
	var he *HTTPError
	var de *DecodeError
	return errors.As(err, &te) || errors.As(err, &he) || errors.As(err, &de)
}
