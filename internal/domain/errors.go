package domain

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode is the machine-readable category of an AdapterError.
type ErrorCode string

const (
	ErrCodeMissingCredential    ErrorCode = "missing_credential"
	ErrCodeInvalidCredential    ErrorCode = "invalid_credential"
	ErrCodePermissionDenied     ErrorCode = "permission_denied"
	ErrCodeNotFound             ErrorCode = "not_found"
	ErrCodeUnsupportedOperation ErrorCode = "unsupported_operation"
	ErrCodeRateLimited          ErrorCode = "rate_limited"
	ErrCodeBadRequest           ErrorCode = "bad_request"
	ErrCodeServiceUnavailable   ErrorCode = "service_unavailable"
	ErrCodeNetwork              ErrorCode = "network_error"
	ErrCodeTimeout              ErrorCode = "timeout"
	ErrCodeParse                ErrorCode = "parse_error"
	ErrCodeUnknown              ErrorCode = "unknown_error"
)

// defaultStatus maps caller-side categories to the status they would have on the wire,
// so errors raised before any network call are still classified as non-retryable.
var defaultStatus = map[ErrorCode]int{
	ErrCodeMissingCredential:    http.StatusUnauthorized,
	ErrCodeInvalidCredential:    http.StatusUnauthorized,
	ErrCodePermissionDenied:     http.StatusForbidden,
	ErrCodeNotFound:             http.StatusNotFound,
	ErrCodeUnsupportedOperation: http.StatusBadRequest,
	ErrCodeBadRequest:           http.StatusBadRequest,
	ErrCodeRateLimited:          http.StatusTooManyRequests,
}

// AdapterError is the single error currency crossing the adapter boundary.
type AdapterError struct {
	Code       ErrorCode
	Message    string
	Provider   string
	StatusCode int
	Cause      error
}

// NewAdapterError builds an AdapterError with the code's conventional status.
func NewAdapterError(provider string, code ErrorCode, message string) *AdapterError {
	return &AdapterError{
		Code:       code,
		Message:    message,
		Provider:   provider,
		StatusCode: defaultStatus[code],
	}
}

// WrapAdapterError builds an AdapterError carrying cause.
func WrapAdapterError(provider string, code ErrorCode, message string, cause error) *AdapterError {
	e := NewAdapterError(provider, code, message)
	e.Cause = cause
	return e
}

func (e *AdapterError) Error() string {
	prefix := string(e.Code)
	if e.Provider != "" {
		prefix = e.Provider + ": " + prefix
	}
	if e.StatusCode > 0 {
		prefix = fmt.Sprintf("%s (%d)", prefix, e.StatusCode)
	}
	if e.Message == "" {
		return prefix
	}
	return prefix + ": " + e.Message
}

func (e *AdapterError) Unwrap() error {
	return e.Cause
}

// WithStatus returns a copy of the error carrying status.
func (e *AdapterError) WithStatus(status int) *AdapterError {
	out := *e
	out.StatusCode = status
	return &out
}

// Retryable reports whether retrying the same call could succeed.
// Any 4xx status is final; without a status the category decides.
func (e *AdapterError) Retryable() bool {
	if e == nil {
		return false
	}
	if e.StatusCode >= 400 && e.StatusCode < 500 {
		return false
	}
	if e.StatusCode >= 500 {
		return true
	}
	switch e.Code {
	case ErrCodeRateLimited, ErrCodeServiceUnavailable, ErrCodeNetwork, ErrCodeTimeout, ErrCodeUnknown:
		return true
	default:
		return false
	}
}

// Bucket groups the error into a user-facing remediation category.
func (e *AdapterError) Bucket() FailureBucket {
	if e == nil {
		return BucketOther
	}
	switch e.Code {
	case ErrCodeMissingCredential, ErrCodeInvalidCredential, ErrCodePermissionDenied:
		return BucketCredential
	case ErrCodeNetwork, ErrCodeTimeout, ErrCodeServiceUnavailable:
		return BucketNetwork
	case ErrCodeRateLimited:
		return BucketRateLimit
	default:
		return BucketOther
	}
}

// AsAdapterError returns err as an AdapterError, classifying foreign errors.
// Context cancellation and deadlines become timeouts; anything else is unknown.
func AsAdapterError(provider string, err error) *AdapterError {
	if err == nil {
		return nil
	}
	var adapterErr *AdapterError
	if errors.As(err, &adapterErr) {
		return adapterErr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return WrapAdapterError(provider, ErrCodeTimeout, "request timed out", err)
	}
	if errors.Is(err, context.Canceled) {
		return WrapAdapterError(provider, ErrCodeTimeout, "request cancelled", err)
	}
	return WrapAdapterError(provider, ErrCodeUnknown, err.Error(), err)
}

// FailureBucket is the user-facing grouping of failure reasons.
type FailureBucket string

const (
	BucketCredential FailureBucket = "credential"
	BucketNetwork    FailureBucket = "network"
	BucketRateLimit  FailureBucket = "rate_limit"
	BucketOther      FailureBucket = "other"
)

// Hint returns remediation text for the bucket.
func (b FailureBucket) Hint() string {
	switch b {
	case BucketCredential:
		return "check your API key for this provider"
	case BucketNetwork:
		return "check your network connection or the provider endpoint"
	case BucketRateLimit:
		return "the provider is rate limiting requests, try again shortly"
	default:
		return "see the response error for details"
	}
}
