package errors

import (
	"errors"
	"fmt"
)

// AppError provides a structured error carrying a stable machine-readable code.
type AppError struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Internal error  `json:"-"`
}

func (e *AppError) Error() string {
	if e == nil {
		return "<nil>"
	}

	if e.Internal != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Internal)
	}

	return e.Message
}

// Unwrap exposes the internal error for errors.Is / errors.As compatibility.
func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Internal
}

// Is matches AppErrors by code so wrapped copies still compare equal
// to their sentinel via errors.Is.
func (e *AppError) Is(target error) bool {
	var other *AppError
	if !errors.As(target, &other) {
		return false
	}
	return e != nil && other != nil && e.Code == other.Code
}

// WithInternal returns a copy of the AppError with an attached internal error.
func (e *AppError) WithInternal(err error) *AppError {
	if e == nil {
		return nil
	}

	cpy := *e
	cpy.Internal = err
	return &cpy
}

// Remote-resolution and command errors exposed to the rest of the application.
var (
	// ErrScopeNotFound means the guild is gone or the bot was removed from it.
	ErrScopeNotFound = &AppError{
		Code:    "SCOPE_NOT_FOUND",
		Message: "Server not found or unreachable",
	}

	// ErrSubjectNotFound means the member left or was removed from the guild.
	ErrSubjectNotFound = &AppError{
		Code:    "SUBJECT_NOT_FOUND",
		Message: "Member not found in server",
	}

	// ErrGrantNotFound means the tracked role was deleted from the guild.
	ErrGrantNotFound = &AppError{
		Code:    "GRANT_NOT_FOUND",
		Message: "Role no longer exists in server",
	}

	// ErrInsufficientPrivilege means the bot's highest role does not outrank
	// the tracked role, so the platform refuses the mutation.
	ErrInsufficientPrivilege = &AppError{
		Code:    "INSUFFICIENT_PRIVILEGE",
		Message: "Bot role is not high enough to remove this role",
	}

	// ErrRemoteUnavailable covers transient gateway/API failures.
	ErrRemoteUnavailable = &AppError{
		Code:    "REMOTE_UNAVAILABLE",
		Message: "Chat platform request failed",
	}

	ErrCommandForbidden = &AppError{
		Code:    "COMMAND_FORBIDDEN",
		Message: "You do not have permission to use this command",
	}

	ErrInternal = &AppError{
		Code:    "INTERNAL_ERROR",
		Message: "Internal error",
	}
)

// New builds a new application error with the provided metadata.
func New(code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap turns any error into an AppError while keeping the original error for logging.
func Wrap(err error, message string) *AppError {
	return &AppError{
		Code:     ErrInternal.Code,
		Message:  message,
		Internal: err,
	}
}

// FromError converts a generic error into an AppError, defaulting to ErrInternal.
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	return ErrInternal.WithInternal(err)
}
