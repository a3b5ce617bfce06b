package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidSession         = errors.New("invalid session")
	ErrNotFound               = errors.New("not found")
	ErrInsufficientPrivileges = errors.New("insufficient privileges")
	ErrInvalidFields          = errors.New("invalid fields")
	ErrDuplicateApplication   = errors.New("duplicate application")
	ErrAlreadyJoinedOrInvited = errors.New("already joined or invited")
	ErrInterviewNotAvailable  = errors.New("interview not available")
	ErrInvalidTime            = errors.New("invalid time")
	ErrServer                 = errors.New("server error")
	ErrAlreadyJoined          = errors.New("already joined")
	ErrNotAllowed             = errors.New("not allowed")
)

// BusinessError is an expected failure of a service operation. It matches
// its kind with errors.Is.
type BusinessError struct {
	Kind     error
	Messages []string
}

func (e *BusinessError) Error() string {
	if len(e.Messages) == 0 {
		return e.Kind.Error()
	}
	return e.Kind.Error() + ": " + strings.Join(e.Messages, "; ")
}

func (e *BusinessError) Unwrap() error { return e.Kind }

func newError(kind error, messages ...string) *BusinessError {
	return &BusinessError{Kind: kind, Messages: messages}
}

func notFound(what string) error {
	return newError(ErrNotFound, what+" not found")
}

func forbidden(format string, args ...any) error {
	return newError(ErrInsufficientPrivileges, fmt.Sprintf(format, args...))
}

func invalidFields(messages ...string) error {
	return newError(ErrInvalidFields, messages...)
}

// Messages returns the human readable messages carried by err.
func Messages(err error) []string {
	var be *BusinessError
	if errors.As(err, &be) {
		if len(be.Messages) == 0 {
			return []string{be.Kind.Error()}
		}
		return be.Messages
	}
	return nil
}
