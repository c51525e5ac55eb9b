package types

import (
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode is a typed string for categorizing application errors.
type ErrorCode string

// Error code constants. Handlers and services MUST use these constants
// instead of hardcoded strings.
const (
	// Validation (400)
	ErrCodeValidationInvalidJSON        ErrorCode = "validation_invalid_json"
	ErrCodeValidationInvalidDate        ErrorCode = "validation_invalid_date"
	ErrCodeValidationMissingField       ErrorCode = "validation_missing_required_field"
	ErrCodeValidationInvalidMeasurement ErrorCode = "validation_invalid_measurement"
	ErrCodeValidationInvalidFeatures    ErrorCode = "validation_invalid_features"
	ErrCodeValidationBatchSize          ErrorCode = "validation_batch_size_exceeded"
	ErrCodeValidationInvalidStatus      ErrorCode = "validation_invalid_status"
	ErrCodeValidationInvalidHorizons    ErrorCode = "validation_invalid_horizons"

	// Auth (401) -- the only auth surface this service owns is the shared
	// secret protecting the scheduled-job routes.
	ErrCodeAuthJobSecretInvalid ErrorCode = "auth_job_secret_invalid"
	ErrCodeAuthUserMissing      ErrorCode = "auth_user_missing"

	// Not Found (404)
	ErrCodeNotFoundRiskDaily ErrorCode = "not_found_risk_daily"
	ErrCodeNotFoundNudge     ErrorCode = "not_found_nudge"
	ErrCodeNotFoundUser      ErrorCode = "not_found_user"
	ErrCodeNotFoundSummary   ErrorCode = "not_found_weekly_summary"

	// Internal/Upstream (500/502)
	ErrCodeInternalDB                ErrorCode = "internal_database_error"
	ErrCodeInternalUnexpected        ErrorCode = "internal_unexpected_error"
	ErrCodeUpstreamScorerUnavailable ErrorCode = "upstream_scorer_unavailable"
	ErrCodeUpstreamScorerRejected    ErrorCode = "upstream_scorer_rejected_input"
)

// HTTPStatus maps an ErrorCode to its corresponding HTTP status code.
// Returns 500 for unrecognized error codes as a safe default.
func (c ErrorCode) HTTPStatus() int {
	s := string(c)
	switch {
	case strings.HasPrefix(s, "validation_"):
		return http.StatusBadRequest
	case strings.HasPrefix(s, "auth_"):
		return http.StatusUnauthorized
	case strings.HasPrefix(s, "not_found_"):
		return http.StatusNotFound
	case s == string(ErrCodeUpstreamScorerRejected):
		return http.StatusUnprocessableEntity
	case strings.HasPrefix(s, "upstream_"):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// AppError is the standard application error type. All domain and handler
// errors should be expressed as AppError to enable consistent error
// formatting, HTTP status mapping, and error chain support.
type AppError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Err     error          `json:"-"`
	Details map[string]any `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the HTTP status code corresponding to this error's code.
func (e *AppError) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// NewAppError creates a new AppError with the given code, message, and
// optional underlying error.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

// NewAppErrorWithDetails creates a new AppError carrying structured details.
func NewAppErrorWithDetails(code ErrorCode, message string, err error, details map[string]any) *AppError {
	return &AppError{Code: code, Message: message, Err: err, Details: details}
}
