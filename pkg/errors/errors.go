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

// Is matches errors sharing the same code so cloned errors still compare
// equal to their predefined template.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Generic errors.
var (
	ErrInvalidCredentials = New("INVALID_CREDENTIALS", http.StatusUnauthorized, "invalid email or password")
	ErrNotFound           = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrForbidden          = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrUnauthorized       = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrConflict           = New("CONFLICT", http.StatusConflict, "conflict")
	ErrValidation         = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal           = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
)

// Attendance session errors.
var (
	ErrInvalidSessionParams = New("INVALID_SESSION_PARAMS", http.StatusBadRequest, "grade and time are required to start a session")
	ErrSessionNotActive     = New("SESSION_NOT_ACTIVE", http.StatusConflict, "attendance session is not active")
	ErrSessionConflict      = New("SESSION_CONFLICT", http.StatusConflict, "teacher already has an active session")
	ErrStudentNotFound      = New("STUDENT_NOT_FOUND", http.StatusNotFound, "student not found")
	ErrGradeMismatch        = New("GRADE_MISMATCH", http.StatusUnprocessableEntity, "student is not from the selected grade")
	ErrSubjectMismatch      = New("SUBJECT_MISMATCH", http.StatusUnprocessableEntity, "student is not enrolled in the session subject")
	ErrNotOnRoster          = New("NOT_ON_ROSTER", http.StatusUnprocessableEntity, "student was not on the roster when the session started")
	ErrAlreadyMarked        = New("ALREADY_MARKED", http.StatusConflict, "student already marked in this session")
	ErrMalformedPayload     = New("MALFORMED_PAYLOAD", http.StatusUnprocessableEntity, "invalid QR code format")
	ErrDeviceUnavailable    = New("DEVICE_UNAVAILABLE", http.StatusServiceUnavailable, "unable to access camera, check camera permissions")
)

// Notification errors.
var (
	ErrEmptyMessage = New("EMPTY_MESSAGE", http.StatusBadRequest, "title and message are required")
	ErrNoRecipients = New("NO_RECIPIENTS", http.StatusUnprocessableEntity, "no recipients match the selected criteria")
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

// HasCode reports whether err carries the code of the given template.
func HasCode(err error, template *Error) bool {
	if err == nil || template == nil {
		return false
	}
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Code == template.Code
}
