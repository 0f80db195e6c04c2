package models

import "fmt"

// Error codes used in API responses and internal error handling.
const (
	ErrCodeNavigationTimeout  = "NAVIGATION_TIMEOUT"
	ErrCodeNavigation         = "NAVIGATION_FAILED"
	ErrCodeParseAnomaly       = "PARSE_ANOMALY"
	ErrCodeUnexpected         = "UNEXPECTED_FAILURE"
	ErrCodeSessionAcquisition = "SESSION_ACQUISITION_FAILURE"
	ErrCodeCanceled           = "CANCELED"

	// API-only codes.
	ErrCodeInvalidInput = "INVALID_INPUT"
	ErrCodeRateLimited  = "RATE_LIMITED"
	ErrCodeUnauthorized = "UNAUTHORIZED"
	ErrCodeJobNotFound  = "JOB_NOT_FOUND"
	ErrCodeJobRunning   = "JOB_RUNNING"
	ErrCodeUnavailable  = "SERVICE_UNAVAILABLE"
	ErrCodeBusy         = "TOO_MANY_BATCHES"
	ErrCodeInternal     = "INTERNAL_ERROR"
)

// ErrorDetail is the structured error in API responses and result rows.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// RankError is the internal error type carrying an error code.
// It implements the error interface and supports error wrapping via Unwrap.
type RankError struct {
	Code    string
	Message string
	Err     error // wrapped original error
}

func (e *RankError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *RankError) Unwrap() error {
	return e.Err
}

// NewRankError creates a new RankError.
func NewRankError(code, message string, err error) *RankError {
	return &RankError{Code: code, Message: message, Err: err}
}

// ToDetail converts an internal error to an API-facing ErrorDetail.
func (e *RankError) ToDetail() *ErrorDetail {
	return &ErrorDetail{Code: e.Code, Message: e.Message}
}

// DetailOf converts any error into an ErrorDetail. Errors that are not a
// *RankError are reported as UNEXPECTED_FAILURE with their own message.
// A nil error yields nil.
func DetailOf(err error) *ErrorDetail {
	if err == nil {
		return nil
	}
	if re, ok := err.(*RankError); ok {
		return re.ToDetail()
	}
	return &ErrorDetail{Code: ErrCodeUnexpected, Message: err.Error()}
}
