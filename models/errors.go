// Package models defines the core data structures of accessplane's
// authorization data plane: opaque identifiers, the temporal event
// envelope, and shard/configuration records shared by every component.
package models

import (
	"errors"
	"fmt"
)

// ErrorCode is the wire-level error code exposed to callers (§6).
type ErrorCode string

const (
	CodeArgument               ErrorCode = "ArgumentException"
	CodeArgumentNull           ErrorCode = "ArgumentNullException"
	CodeArgumentOutOfRange     ErrorCode = "ArgumentOutOfRangeException"
	CodeNotFound               ErrorCode = "NotFoundException"
	CodeUserNotFound           ErrorCode = "UserNotFoundException"
	CodeGroupNotFound          ErrorCode = "GroupNotFoundException"
	CodeEntityTypeNotFound     ErrorCode = "EntityTypeNotFoundException"
	CodeEntityNotFound         ErrorCode = "EntityNotFoundException"
	CodeAlreadyExists          ErrorCode = "AlreadyExistsException"
	CodeServiceUnavailable     ErrorCode = "ServiceUnavailableException"
	CodeEventCacheEmpty        ErrorCode = "EventCacheEmptyException"
	CodeEventNotCached         ErrorCode = "EventNotCachedException"
	CodePersistentStorageEmpty ErrorCode = "PersistentStorageEmptyException"
	CodeBufferFlushing         ErrorCode = "BufferFlushingException"
	CodeCancelled              ErrorCode = "Cancelled"
)

// Attribute is a single structured key/value attached to an Error, used to
// carry the offending identifier, range, or similar diagnostic detail.
type Attribute struct {
	Name  string
	Value string
}

// Error is the structured error type returned across every externally
// facing entry point: code, message, and optional attributes.
type Error struct {
	Code       ErrorCode
	Message    string
	Attributes []Attribute
	inner      error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.inner }

// Is allows errors.Is(err, models.ErrUserNotFound) style sentinel
// comparisons by code rather than by pointer identity.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return other.Code == e.Code
	}
	return false
}

// NewError builds a structured Error with the given code and message.
func NewError(code ErrorCode, message string, attrs ...Attribute) *Error {
	return &Error{Code: code, Message: message, Attributes: attrs}
}

// Wrap builds a structured Error that also carries the original cause,
// reachable through errors.Unwrap.
func Wrap(code ErrorCode, inner error, message string, attrs ...Attribute) *Error {
	return &Error{Code: code, Message: message, Attributes: attrs, inner: inner}
}

// Attr is a convenience constructor for Attribute.
func Attr(name, value string) Attribute { return Attribute{Name: name, Value: value} }

// Sentinel errors for the common cases, one per primary element kind, so
// callers can use errors.Is against a stable value.
var (
	ErrUserNotFound       = NewError(CodeUserNotFound, "user not found")
	ErrGroupNotFound      = NewError(CodeGroupNotFound, "group not found")
	ErrEntityTypeNotFound = NewError(CodeEntityTypeNotFound, "entity type not found")
	ErrEntityNotFound     = NewError(CodeEntityNotFound, "entity not found")
	ErrAlreadyExists      = NewError(CodeAlreadyExists, "already exists")
	ErrCycle              = NewError(CodeArgument, "edge would create a cycle")
	ErrServiceUnavailable = NewError(CodeServiceUnavailable, "service unavailable: trip switch engaged")
	ErrEventCacheEmpty    = NewError(CodeEventCacheEmpty, "event cache has never been populated")
	ErrEventNotCached     = NewError(CodeEventNotCached, "requested event id is older than the oldest cached event")
	ErrStorageEmpty       = NewError(CodePersistentStorageEmpty, "persistent storage contains no events")
	ErrCancelled          = NewError(CodeCancelled, "operation cancelled")
)

// NotFoundFor returns the specialized not-found error for a given Kind,
// falling back to the generic NotFoundException for mapping kinds.
func NotFoundFor(kind Kind, id string) *Error {
	switch kind {
	case KindUser:
		return NewError(CodeUserNotFound, "user not found", Attr("id", id))
	case KindGroup:
		return NewError(CodeGroupNotFound, "group not found", Attr("id", id))
	case KindEntityType:
		return NewError(CodeEntityTypeNotFound, "entity type not found", Attr("id", id))
	case KindEntity:
		return NewError(CodeEntityNotFound, "entity not found", Attr("id", id))
	default:
		return NewError(CodeNotFound, "not found", Attr("id", id))
	}
}
