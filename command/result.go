package command

import (
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/laguz/spatial"
)

// Result is the outcome of every command.
type Result struct {
	Success     bool           `json:"success"`
	ObjectIDs   []string       `json:"objectIds"`
	Warnings    []string       `json:"warnings"`
	Errors      []string       `json:"errors"`
	Suggestions []string       `json:"suggestions"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// ErrorKind identifies why a command was rejected.
type ErrorKind string

const (
	ErrorKindUnknownType           ErrorKind = "unknown_type"
	ErrorKindDegenerateGeometry    ErrorKind = "degenerate_geometry"
	ErrorKindInsufficientSelection ErrorKind = "insufficient_selection"
	ErrorKindUnknownAlignment      ErrorKind = "unknown_alignment"
	ErrorKindObjectNotFound        ErrorKind = "object_not_found"
	ErrorKindDuplicateID           ErrorKind = "duplicate_id"
	ErrorKindConstraintViolation   ErrorKind = "constraint_violation"
	ErrorKindOutOfBounds           ErrorKind = "out_of_bounds"
)

// Suggestion returns a generic hint to recover from the error kind.
func (k ErrorKind) Suggestion() string {
	switch k {
	case ErrorKindUnknownType:
		return "Check that the object type exists in the catalog"
	case ErrorKindDegenerateGeometry:
		return "Check the input coordinates"
	case ErrorKindInsufficientSelection:
		return "Select at least 2 existing objects"
	case ErrorKindUnknownAlignment:
		return "Use one of left, right, center, front, back, middle, top or bottom"
	case ErrorKindObjectNotFound:
		return "Check that the object exists"
	case ErrorKindDuplicateID:
		return "Use another object id"
	case ErrorKindConstraintViolation:
		return "Try another position or disable constraint enforcement"
	case ErrorKindOutOfBounds:
		return "Place the object inside the facility bounds"
	default:
		return "Try again"
	}
}

// Error is a rejected command.
type Error struct {
	Kind    ErrorKind
	Message string

	// The rule violations when the kind is ErrorKindConstraintViolation.
	Issues      []string
	Suggestions []string
}

func newError(kind ErrorKind, message string) *Error {
	return &Error{
		Kind:    kind,
		Message: message,
	}
}

func (e *Error) Error() string {
	return e.Message
}

// Result composes the error into a failed result.
func (e *Error) Result() Result {
	errs := e.Issues
	if len(errs) == 0 {
		errs = []string{e.Message}
	}

	return Result{
		Errors:      errs,
		Suggestions: append(append([]string{}, e.Suggestions...), e.Kind.Suggestion()),
		Metadata: map[string]any{
			"errorKind": e.Kind,
		},
	}
}

// KindOf returns the kind of the given error. Errors that did not originate
// from a command are of kind ErrorKindConstraintViolation.
func KindOf(err error) ErrorKind {
	if cerr, ok := err.(*Error); ok {
		return cerr.Kind
	}
	return ErrorKindConstraintViolation
}

// indexError converts a failed spatial index insertion.
func indexError(err error) *Error {
	switch {
	case errors.IsType(err, spatial.ErrTypeOutOfBounds):
		return newError(ErrorKindOutOfBounds, "Object is outside of the facility bounds")

	case errors.IsType(err, spatial.ErrTypeInvalidGeometry):
		return newError(ErrorKindDegenerateGeometry, "Object has an invalid bounding box")

	default:
		return newError(ErrorKindConstraintViolation, "Object could not be indexed")
	}
}
