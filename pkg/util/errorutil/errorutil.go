package errorutil

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// Machine-readable codes returned in the error envelope.
const (
	CodeValidationFailed        = "VALIDATION_FAILED"
	CodeNotFound                = "NOT_FOUND"
	CodeConflict                = "CONFLICT"
	CodeInternal                = "INTERNAL_ERROR"
	CodeInvalidCredentials      = "INVALID_CREDENTIALS"
	CodeTokenMissing            = "TOKEN_MISSING"
	CodeTokenExpired            = "TOKEN_EXPIRED"
	CodeTokenInvalid            = "TOKEN_INVALID"
	CodeUserNotFound            = "USER_NOT_FOUND"
	CodeDBError                 = "DB_ERROR"
	CodeAuthRequired            = "AUTH_REQUIRED"
	CodeInsufficientPermissions = "INSUFFICIENT_PERMISSIONS"
	CodeAuthError               = "AUTH_ERROR"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError(CodeValidationFailed, message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

func NewConflict(message string, details map[string]any) error {
	return NewDomainError(CodeConflict, message, http.StatusConflict, details)
}

func NewInvalidCredentials() error {
	return NewDomainError(CodeInvalidCredentials, "invalid email or password", http.StatusUnauthorized, nil)
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// Authentication and authorization failures.

func NewTokenMissing() error {
	return NewDomainError(CodeTokenMissing, "access token required", http.StatusUnauthorized, nil)
}

func NewTokenExpired() error {
	return NewDomainError(CodeTokenExpired, "token expired", http.StatusUnauthorized, nil)
}

func NewTokenInvalid() error {
	return NewDomainError(CodeTokenInvalid, "invalid token", http.StatusUnauthorized, nil)
}

func NewUserNotFound() error {
	return NewDomainError(CodeUserNotFound, "user not found", http.StatusUnauthorized, nil)
}

func NewDBError(err error) error {
	return &DomainError{
		Code:       CodeDBError,
		Message:    "user lookup failed",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func NewAuthRequired() error {
	return NewDomainError(CodeAuthRequired, "authentication required", http.StatusUnauthorized, nil)
}

func NewInsufficientPermissions(required []string) error {
	return NewDomainError(CodeInsufficientPermissions, "insufficient permissions", http.StatusForbidden,
		map[string]any{"required_roles": required})
}

func NewAuthError(err error) error {
	return &DomainError{
		Code:       CodeAuthError,
		Message:    "authentication error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return &DomainError{
			Code:       codeForStatus(fiberErr.Code),
			Message:    fiberErr.Message,
			HTTPStatus: fiberErr.Code,
		}
	}
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return CodeValidationFailed
	case http.StatusNotFound:
		return CodeNotFound
	case http.StatusConflict:
		return CodeConflict
	case http.StatusUnauthorized:
		return CodeAuthRequired
	case http.StatusForbidden:
		return CodeInsufficientPermissions
	default:
		if status >= 500 {
			return CodeInternal
		}
		return "REQUEST_FAILED"
	}
}

// IsCode reports whether err carries the given domain code.
func IsCode(err error, code string) bool {
	var domainErr *DomainError
	return errors.As(err, &domainErr) && domainErr.Code == code
}
