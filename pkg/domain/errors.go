package domain

import (
	"errors"
	"fmt"
)

// Kind classifies an error the way it is surfaced on the wire.
type Kind int8

const (
	KindUnspecified Kind = iota
	KindInvalidArgument
	KindNotFound
	KindAlreadyExists
	KindFailedPrecondition
	KindPermissionDenied
	KindUnavailable
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindInvalidArgument:
		return "invalid_argument"
	case KindNotFound:
		return "not_found"
	case KindAlreadyExists:
		return "already_exists"
	case KindFailedPrecondition:
		return "failed_precondition"
	case KindPermissionDenied:
		return "permission_denied"
	case KindUnavailable:
		return "unavailable"
	case KindInternal:
		return "internal"
	}
	return "unspecified"
}

// Error is a typed error carrying a stable ID for log correlation
// (e.g. "COMMAND-Org12"). IDs are never reused for a different condition.
type Error struct {
	Kind    Kind
	ID      string
	Message string
	Parent  error
}

func (e *Error) Error() string {
	if e.Parent != nil {
		return fmt.Sprintf("ID=%s Message=%s Parent=(%v)", e.ID, e.Message, e.Parent)
	}
	return fmt.Sprintf("ID=%s Message=%s", e.ID, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Parent
}

// Is matches another *Error by kind, and by ID when the target carries one.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.ID != "" && t.ID != e.ID {
		return false
	}
	return t.Kind == e.Kind
}

func newError(kind Kind, parent error, id, message string) *Error {
	return &Error{Kind: kind, ID: id, Message: message, Parent: parent}
}

func NewInvalidArgument(parent error, id, message string) *Error {
	return newError(KindInvalidArgument, parent, id, message)
}

func NewNotFound(parent error, id, message string) *Error {
	return newError(KindNotFound, parent, id, message)
}

func NewAlreadyExists(parent error, id, message string) *Error {
	return newError(KindAlreadyExists, parent, id, message)
}

func NewFailedPrecondition(parent error, id, message string) *Error {
	return newError(KindFailedPrecondition, parent, id, message)
}

func NewPermissionDenied(parent error, id, message string) *Error {
	return newError(KindPermissionDenied, parent, id, message)
}

func NewUnavailable(parent error, id, message string) *Error {
	return newError(KindUnavailable, parent, id, message)
}

func NewInternal(parent error, id, message string) *Error {
	return newError(KindInternal, parent, id, message)
}

// KindOf returns the kind of err, or KindUnspecified for untyped errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnspecified
}

func IsInvalidArgument(err error) bool    { return KindOf(err) == KindInvalidArgument }
func IsNotFound(err error) bool           { return KindOf(err) == KindNotFound }
func IsAlreadyExists(err error) bool      { return KindOf(err) == KindAlreadyExists }
func IsFailedPrecondition(err error) bool { return KindOf(err) == KindFailedPrecondition }
func IsPermissionDenied(err error) bool   { return KindOf(err) == KindPermissionDenied }
func IsUnavailable(err error) bool        { return KindOf(err) == KindUnavailable }
func IsInternal(err error) bool           { return KindOf(err) == KindInternal }

// StableID extracts the stable error ID, or "" for untyped errors.
func StableID(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.ID
	}
	return ""
}
