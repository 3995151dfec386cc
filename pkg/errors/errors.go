package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors for common scenarios.
var (
	ErrInvalidCredentials = New("INVALID_CREDENTIALS", http.StatusUnauthorized, "invalid username or password")
	ErrInactiveAccount    = New("ACCOUNT_INACTIVE", http.StatusForbidden, "account is inactive")
	ErrNotFound           = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrForbidden          = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrUnauthorized       = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrConflict           = New("CONFLICT", http.StatusConflict, "conflict")
	ErrValidation         = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal           = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")

	// PID registration taxonomy.
	ErrNotEnoughParameters = New("NOT_ENOUGH_PARAMETERS", http.StatusBadRequest, "not enough attributes to disambiguate the document")
	ErrMultipleRecords     = New("MULTIPLE_RECORDS", http.StatusConflict, "query matched more than one registered document")
	ErrForbiddenAOP        = New("FORBIDDEN_AOP_TRANSITION", http.StatusConflict, "an ahead-of-print submission cannot update a document already published in an issue")
	ErrPidSpaceExhausted   = New("PID_SPACE_EXHAUSTED", http.StatusInternalServerError, "unable to generate a unique pid")
	ErrXMLParse            = New("XML_PARSE_ERROR", http.StatusBadRequest, "malformed XML document")
	ErrRemoteUnavailable   = New("REMOTE_UNAVAILABLE", http.StatusBadGateway, "remote pid authority unavailable")
	ErrRemoteRejected      = New("REMOTE_REJECTED", http.StatusBadGateway, "remote pid authority rejected the request")
	ErrRemoteNotConfigured = New("REMOTE_NOT_CONFIGURED", http.StatusPreconditionFailed, "remote pid authority is not configured")
	ErrUniquenessViolation = New("UNIQUENESS_VIOLATION", http.StatusConflict, "pid value already registered")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}

// Is reports whether err carries the given error code.
func Is(err error, code string) bool {
	e := FromError(err)
	return e != nil && e.Code == code
}
