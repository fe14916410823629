package errors

import (
	"errors"
	"fmt"
)

// ErrCode represents an error code
type ErrCode string

const (
	ErrCodeNotFound      ErrCode = "NOT_FOUND"
	ErrCodeUnauthorized  ErrCode = "UNAUTHORIZED"
	ErrCodeRateLimited   ErrCode = "RATE_LIMITED"
	ErrCodeInternal      ErrCode = "INTERNAL_ERROR"
	ErrCodeBadRequest    ErrCode = "BAD_REQUEST"
	ErrCodeInvalidPeriod ErrCode = "INVALID_PERIOD"
	ErrCodeProvider      ErrCode = "PROVIDER_ERROR"
	ErrCodeCache         ErrCode = "CACHE_ERROR"
	ErrCodeMergeAborted  ErrCode = "MERGE_ABORTED"
)

// InvalidPeriodMessage lists the accepted period forms
const InvalidPeriodMessage = "Invalid period. Use YYYY, 'pastyear', 'pastmonth', or 'pastweek'."

// AppError represents an application error
type AppError struct {
	Code    ErrCode
	Message string
	Err     error

	// UpstreamStatus is the HTTP status returned by the provider, if any
	UpstreamStatus int
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(resource string) *AppError {
	return &AppError{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("%s not found", resource),
	}
}

// NewBadRequestError creates a new bad request error
func NewBadRequestError(message string) *AppError {
	return &AppError{
		Code:    ErrCodeBadRequest,
		Message: message,
	}
}

// NewInternalError creates a new internal error
func NewInternalError(message string, err error) *AppError {
	return &AppError{
		Code:    ErrCodeInternal,
		Message: message,
		Err:     err,
	}
}

// NewInvalidPeriodError creates an error for a malformed period token
func NewInvalidPeriodError(period string) *AppError {
	return &AppError{
		Code:    ErrCodeInvalidPeriod,
		Message: InvalidPeriodMessage,
		Err:     fmt.Errorf("unrecognized period %q", period),
	}
}

// NewProviderError creates an error for a failed upstream fetch.
// status is the upstream HTTP status, or 0 when the request never got a response.
func NewProviderError(message string, status int, err error) *AppError {
	return &AppError{
		Code:           ErrCodeProvider,
		Message:        message,
		Err:            err,
		UpstreamStatus: status,
	}
}

// NewCacheError creates an error for a failed storage operation
func NewCacheError(op string, err error) *AppError {
	return &AppError{
		Code:    ErrCodeCache,
		Message: op,
		Err:     err,
	}
}

// NewMergeAbortedError creates an error for a range request whose year fetch failed
func NewMergeAbortedError(year int, err error) *AppError {
	return &AppError{
		Code:    ErrCodeMergeAborted,
		Message: fmt.Sprintf("range request aborted: year %d failed", year),
		Err:     err,
	}
}

// CodeOf returns the code of the outermost AppError in err's chain
func CodeOf(err error) ErrCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// IsNotFound checks if the error is a not found error
func IsNotFound(err error) bool {
	return CodeOf(err) == ErrCodeNotFound
}

// IsInvalidPeriod checks if the error is an invalid period error
func IsInvalidPeriod(err error) bool {
	return CodeOf(err) == ErrCodeInvalidPeriod
}

// IsProviderError checks if the error is an upstream fetch error
func IsProviderError(err error) bool {
	return CodeOf(err) == ErrCodeProvider
}

// IsCacheError checks if the error is a storage error
func IsCacheError(err error) bool {
	return CodeOf(err) == ErrCodeCache
}

// IsMergeAborted checks if the error is an aborted range request
func IsMergeAborted(err error) bool {
	return CodeOf(err) == ErrCodeMergeAborted
}
