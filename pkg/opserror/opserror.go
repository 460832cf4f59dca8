package opserror

import (
	"errors"
	"fmt"
)

// Error is a coded failure produced by a quarantine file operation or a path
// validation. Code is one of the operation status names (for example
// "INVALID_RESTORE_PATH").
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}

	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}

	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func New(code string, message string, details string) *Error {
	return &Error{Code: code, Message: message, Details: details}
}

// CodeOf returns the code carried by err, or "" when err is not an *Error.
func CodeOf(err error) string {
	var opErr *Error
	if errors.As(err, &opErr) {
		return opErr.Code
	}

	return ""
}

// MessageOf returns the human readable message of err without the code
// prefix. Non-coded errors return err.Error().
func MessageOf(err error) string {
	if err == nil {
		return ""
	}

	var opErr *Error
	if errors.As(err, &opErr) {
		return opErr.Message
	}

	return err.Error()
}
