package domain

import (
	"errors"
	"fmt"
)

// Code is the machine-readable error code surfaced in acknowledgements.
type Code string

const (
	CodeInvalidPayload          Code = "INVALID_PAYLOAD"
	CodeWorkspaceNotFound       Code = "WORKSPACE_NOT_FOUND"
	CodeDiagramNotFound         Code = "DIAGRAM_NOT_FOUND"
	CodeThreadNotFound          Code = "THREAD_NOT_FOUND"
	CodeThreadWorkspaceMismatch Code = "THREAD_WORKSPACE_MISMATCH"
	CodeForbidden               Code = "FORBIDDEN"
	CodeDiagramRoomNotJoined    Code = "DIAGRAM_ROOM_NOT_JOINED"
	CodeDiagramRequired         Code = "DIAGRAM_REQUIRED"
	CodeRateLimited             Code = "RATE_LIMITED"
	CodeInternal                Code = "INTERNAL"
)

// Store-level sentinels. Adapters wrap driver errors into these.
var (
	ErrNotFound         = errors.New("not found")
	ErrDuplicateMessage = errors.New("duplicate message")
)

// Error is an expected, user-facing failure.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func NewError(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// CodeOf returns the error's code, or CodeInternal for anything that is not a *Error.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// IsExpected reports whether err is a user-facing failure rather than a fault.
func IsExpected(err error) bool {
	return CodeOf(err) != CodeInternal
}
