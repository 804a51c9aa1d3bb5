package errors

import (
	"encoding/json"
	"fmt"
)

// ErrorCode represents a specific error condition
type ErrorCode string

const (
	// Input errors
	ErrCodeValidation  ErrorCode = "VALIDATION_ERROR"
	ErrCodeRateLimited ErrorCode = "RATE_LIMITED"

	// Process execution errors
	ErrCodeProcessFailed   ErrorCode = "PROCESS_FAILED"
	ErrCodeProcessTimeout  ErrorCode = "PROCESS_TIMEOUT"
	ErrCodeProcessSpawn    ErrorCode = "PROCESS_SPAWN"
	ErrCodeProcessCanceled ErrorCode = "PROCESS_CANCELED"

	// Context file errors (non-fatal)
	ErrCodeStorageWarning ErrorCode = "STORAGE_WARNING"

	// Configuration errors
	ErrCodeConfigNotFound ErrorCode = "CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  ErrorCode = "CONFIG_INVALID"

	// Boundary errors
	ErrCodeSessionNotFound ErrorCode = "SESSION_NOT_FOUND"
	ErrCodeUnauthorized    ErrorCode = "UNAUTHORIZED"
	ErrCodeForbidden       ErrorCode = "FORBIDDEN"

	// General errors
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

// CoworkError represents a structured error with context
type CoworkError struct {
	Code    ErrorCode              `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Cause   error                  `json:"-"`
}

// Error implements the error interface
func (e *CoworkError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap implements the errors.Unwrap interface
func (e *CoworkError) Unwrap() error {
	return e.Cause
}

// WithDetail adds a detail to the error
func (e *CoworkError) WithDetail(key string, value interface{}) *CoworkError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// ToJSON converts the error to JSON
func (e *CoworkError) ToJSON() string {
	data, _ := json.MarshalIndent(e, "", "  ")
	return string(data)
}

// New creates a new CoworkError
func New(code ErrorCode, message string) *CoworkError {
	return &CoworkError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with a CoworkError
func Wrap(err error, code ErrorCode, message string) *CoworkError {
	return &CoworkError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// Is checks if an error is a specific CoworkError code
func Is(err error, code ErrorCode) bool {
	return GetCode(err) == code && code != ""
}

// GetCode extracts the error code from an error
func GetCode(err error) ErrorCode {
	if err == nil {
		return ""
	}

	coworkErr, ok := err.(*CoworkError)
	if !ok {
		// Try to unwrap
		if unwrapper, ok := err.(interface{ Unwrap() error }); ok {
			return GetCode(unwrapper.Unwrap())
		}
		return ""
	}

	return coworkErr.Code
}

// As returns the first CoworkError in err's chain, if any.
func As(err error) (*CoworkError, bool) {
	for err != nil {
		if coworkErr, ok := err.(*CoworkError); ok {
			return coworkErr, true
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return nil, false
		}
		err = unwrapper.Unwrap()
	}
	return nil, false
}

// IsValidation reports whether err rejects malformed or unsafe input.
func IsValidation(err error) bool {
	return Is(err, ErrCodeValidation)
}

// IsRateLimit reports whether err is a quota rejection.
func IsRateLimit(err error) bool {
	return Is(err, ErrCodeRateLimited)
}

// IsProcess reports whether err came from running the external tool.
func IsProcess(err error) bool {
	switch GetCode(err) {
	case ErrCodeProcessFailed, ErrCodeProcessTimeout, ErrCodeProcessSpawn, ErrCodeProcessCanceled:
		return true
	}
	return false
}
