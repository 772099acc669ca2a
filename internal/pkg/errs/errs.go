/*
Package errs provides custom error types and application-level error code constants.

This file defines CustomError, which carries a business code, the human-readable
message sent to chat clients and the HTTP status used by the ops surface.
*/
package errs

import (
	"fmt"
	"net/http"
	"strings"

	"linechat/internal/pkg/logx"
)

// CustomError is the custom error structure used throughout the application.
type CustomError struct {
	// Code is the business error code (see constants definition).
	Code int

	// Message is the user-facing description placed in protocol error replies.
	Message string

	// Status is the HTTP status code used when the error surfaces over HTTP.
	Status int
}

// Error implements the error interface.
func (e CustomError) Error() string {
	return fmt.Sprintf("error code %d: %s", e.Code, e.Message)
}

// Is reports whether target is a CustomError carrying the same code.
func (e *CustomError) Is(target error) bool {
	t, ok := target.(*CustomError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// NewError builds a *CustomError from a predefined code. Details are printf
// arguments for messages containing a verb. Unknown codes yield ErrUnknown.
func NewError(code int, details ...any) *CustomError {
	templateErr, ok := errorMap[code]
	if !ok {
		logx.Error(
			fmt.Errorf("unknown error code %d", code),
			"Unknown error code requested",
			"requested_code", code,
		)

		unknownErr := errorMap[ErrUnknown]
		return &unknownErr
	}

	customErr := templateErr

	if customErr.Status == 0 {
		customErr.Status = http.StatusOK
	}

	if strings.Contains(customErr.Message, "%") {
		if len(details) == 0 {
			details = []any{"unknown"}
		}
		customErr.Message = fmt.Sprintf(customErr.Message, details...)
	} else if code == ErrUnknown && len(details) > 0 {
		if originalErr, ok := details[0].(error); ok {
			logx.Error(originalErr, "Handling ErrUnknown with underlying error")
		}
	}

	return &customErr
}
