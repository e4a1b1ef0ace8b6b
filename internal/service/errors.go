package service

import "errors"

// Error kinds returned by the lifecycle. Match them with errors.Is.
var (
	ErrNotFound     = errors.New("not found")
	ErrForbidden    = errors.New("forbidden")
	ErrInvalidState = errors.New("invalid state")
	ErrConflict     = errors.New("conflict")
	ErrValidation   = errors.New("validation failed")
)

// Error carries a human-readable reason next to its kind.
type Error struct {
	Kind   error
	Reason string
}

func (e *Error) Error() string {
	return e.Reason
}

func (e *Error) Unwrap() error {
	return e.Kind
}

func notFound(reason string) error     { return &Error{Kind: ErrNotFound, Reason: reason} }
func forbidden(reason string) error    { return &Error{Kind: ErrForbidden, Reason: reason} }
func invalidState(reason string) error { return &Error{Kind: ErrInvalidState, Reason: reason} }
func conflict(reason string) error     { return &Error{Kind: ErrConflict, Reason: reason} }
func invalid(reason string) error      { return &Error{Kind: ErrValidation, Reason: reason} }
