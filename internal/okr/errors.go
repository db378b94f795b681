package okr

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrNotAuthenticated is returned before any network call when no session token exists.
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrUnauthorized matches server rejections caused by an expired or invalid token.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrEmptyComment is returned when the comment composer holds only whitespace.
	ErrEmptyComment = errors.New("comment is empty")

	// ErrNotFound is returned when an entity is absent from the fetched list.
	ErrNotFound = errors.New("not found")
)

// ValidationError collects client-side field errors caught before any network call.
type ValidationError struct {
	Fields map[string]string
}

// NewValidationError returns an empty ValidationError ready for Add.
func NewValidationError() *ValidationError {
	return &ValidationError{Fields: make(map[string]string)}
}

// Add records a message for field. The first message per field wins.
func (e *ValidationError) Add(field, msg string) {
	if _, ok := e.Fields[field]; !ok {
		e.Fields[field] = msg
	}
}

// Field returns the message recorded for field, if any.
func (e *ValidationError) Field(field string) string {
	return e.Fields[field]
}

// OrNil returns nil when no field failed.
func (e *ValidationError) OrNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s: %s", k, e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// PartialCreateError reports an objective that was created while one or more
// of its key results were not. Nothing is rolled back unless compensation was
// requested, in which case Compensated is true.
type PartialCreateError struct {
	Objective   *Objective
	Created     []KeyResult
	FailedTitle string
	Compensated bool
	Err         error
}

func (e *PartialCreateError) Error() string {
	if e.Compensated {
		return fmt.Sprintf("creating key result %q: %v (objective removed)", e.FailedTitle, e.Err)
	}
	return fmt.Sprintf("creating key result %q: %v (objective %s kept with %d key result(s))",
		e.FailedTitle, e.Err, e.Objective.ID, len(e.Created))
}

func (e *PartialCreateError) Unwrap() error { return e.Err }
