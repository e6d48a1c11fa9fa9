package types

import (
	"errors"
	"fmt"
)

// Error kinds. Match them with errors.Is.
var (
	ErrValidation = errors.New("validation error")
	ErrPermission = errors.New("permission denied")
	ErrNotFound   = errors.New("not found")
	ErrBackend    = errors.New("backend error")
	ErrStorage    = errors.New("storage error")
)

// Error is a message tagged with one of the error kinds above. The message
// is what users get to see.
type Error struct {
	Kind    error
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message == "" && e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

func (e *Error) Is(target error) bool {
	return target == e.Kind
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NewValidationError(format string, args ...any) error {
	return &Error{Kind: ErrValidation, Message: fmt.Sprintf(format, args...)}
}

func NewPermissionError(format string, args ...any) error {
	return &Error{Kind: ErrPermission, Message: fmt.Sprintf(format, args...)}
}

func NewNotFoundError(format string, args ...any) error {
	return &Error{Kind: ErrNotFound, Message: fmt.Sprintf(format, args...)}
}

// NewBackendError wraps a failure of the inference backend. name is the
// backend display name, e.g. "Ollama".
func NewBackendError(name string, err error) error {
	return &Error{Kind: ErrBackend, Message: fmt.Sprintf("%s API Error: %v", name, err), Err: err}
}

func NewStorageError(path string, err error) error {
	return &Error{Kind: ErrStorage, Message: fmt.Sprintf("storage %s: %v", path, err), Err: err}
}
