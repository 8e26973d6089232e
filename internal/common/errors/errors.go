// Package errors provides the standardized error model shared by the HTTP surface
// and the workflow workers.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeValidation         ErrorCode = "VALIDATION_ERROR"
	ErrCodeVerificationFailed ErrorCode = "VERIFICATION_FAILED"
	ErrCodeRateLimited        ErrorCode = "RATE_LIMITED"
	ErrCodeRateLimitedDaily   ErrorCode = "RATE_LIMITED_DAILY"
	ErrCodeResolutionFailed   ErrorCode = "RESOLUTION_FAILED"
	ErrCodeProviderError      ErrorCode = "PROVIDER_ERROR"
	ErrCodePollTimeout        ErrorCode = "POLL_TIMEOUT"
	ErrCodeJobFailed          ErrorCode = "JOB_FAILED"

	ErrCodeRateLimitStoreFailed ErrorCode = "RATE_LIMIT_STORE_FAILED"
	ErrCodeHistoryWriteFailed   ErrorCode = "HISTORY_WRITE_FAILED"
	ErrCodeInputParsingFailed   ErrorCode = "INPUT_PARSING_FAILED"
	ErrCodeInternal             ErrorCode = "INTERNAL_ERROR"
)

// Display messages shown to the end user.
const (
	MsgHandleRequired     = "Please enter a X/Twitter handle"
	MsgUsernameRequired   = "Username is required"
	MsgImageURLRequired   = "image_url is required"
	MsgProfileNotFound    = "Profile not found"
	MsgResolutionFailed   = "Could not fetch profile picture. Please check the username."
	MsgBotChallenge       = "Bot challenge failed."
	MsgDailyRateLimited   = "Daily rate limit exceeded. Please try again tomorrow."
	MsgRateLimited        = "Rate limit exceeded. Please try again later."
	MsgInternal           = "Internal server error"
	MsgPollTimeout        = "Transformation timed out. Please try again."
	MsgJobFailed          = "Transformation failed."
	MsgSomethingWentWrong = "Something went wrong"
)

// StandardError represents a structured application error. Message is safe to
// show to a caller; Details may carry upstream detail and is only logged.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// Is matches on Code so callers can compare against a sentinel built with New.
func (e *StandardError) Is(target error) bool {
	t, ok := target.(*StandardError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithMetadata returns a copy of e with key set in Metadata.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	cp := *e
	cp.Metadata = make(map[string]interface{}, len(e.Metadata)+1)
	for k, v := range e.Metadata {
		cp.Metadata[k] = v
	}
	cp.Metadata[key] = value
	return &cp
}

// ==========================
// 2. BPMN Error Integration
// ==========================

// BPMNError represents an error that can be thrown to the Camunda workflow engine.
type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

// ToErrorVariables returns a map suitable for setting Camunda job fail variables.
func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}
	for k, v := range e.ErrorVariables {
		vars[k] = v
	}
	return vars
}

// ==========================
// 3. Error Constructors
// ==========================

// New builds a StandardError with the code's default retry policy.
func New(code ErrorCode, message, details string) *StandardError {
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: IsRetryableErrorCode(code),
		Timestamp: time.Now().UTC(),
	}
}

func NewValidationError(message, details string) *StandardError {
	return New(ErrCodeValidation, message, details)
}

func NewVerificationFailedError(details string) *StandardError {
	return New(ErrCodeVerificationFailed, MsgBotChallenge, details)
}

func NewRateLimitedError(clientID string) *StandardError {
	return New(ErrCodeRateLimited, MsgRateLimited, fmt.Sprintf("clientId: %s", clientID))
}

func NewDailyRateLimitedError() *StandardError {
	return New(ErrCodeRateLimitedDaily, MsgDailyRateLimited, "global daily quota exhausted")
}

// NewResolutionFailedError reports that no usable avatar could be found.
func NewResolutionFailedError(handle, details string) *StandardError {
	return New(ErrCodeResolutionFailed, MsgProfileNotFound, fmt.Sprintf("handle: %s, %s", handle, details))
}

// NewProviderError hides the upstream cause behind the generic message.
func NewProviderError(operation string, err error) *StandardError {
	details := operation
	if err != nil {
		details = fmt.Sprintf("operation: %s, error: %s", operation, err.Error())
	}
	return New(ErrCodeProviderError, MsgInternal, details)
}

func NewPollTimeoutError(jobID string, attempts int) *StandardError {
	return New(ErrCodePollTimeout, MsgPollTimeout, fmt.Sprintf("jobId: %s, attempts: %d", jobID, attempts))
}

func NewJobFailedError(jobID, reason string) *StandardError {
	return New(ErrCodeJobFailed, MsgJobFailed, fmt.Sprintf("jobId: %s, reason: %s", jobID, reason))
}

func NewRateLimitStoreError(err error) *StandardError {
	return New(ErrCodeRateLimitStoreFailed, MsgSomethingWentWrong, err.Error())
}

func NewHistoryWriteError(err error) *StandardError {
	return New(ErrCodeHistoryWriteFailed, "Failed to record transformation history", err.Error())
}

func NewInputParsingError(err error) *StandardError {
	return New(ErrCodeInputParsingFailed, "Failed to parse input", err.Error())
}

func NewInternalError(err error) *StandardError {
	return New(ErrCodeInternal, MsgSomethingWentWrong, err.Error())
}

// ==========================
// 4. Error Conversion to BPMN
// ==========================

// BPMNErrorMapping maps internal error codes to BPMN error codes.
var BPMNErrorMapping = map[ErrorCode]string{
	ErrCodeValidation:           "VALIDATION_ERROR",
	ErrCodeVerificationFailed:   "VERIFICATION_FAILED",
	ErrCodeRateLimited:          "RATE_LIMITED",
	ErrCodeRateLimitedDaily:     "RATE_LIMITED",
	ErrCodeResolutionFailed:     "PROFILE_NOT_FOUND",
	ErrCodeProviderError:        "TRANSFORMATION_FAILED",
	ErrCodePollTimeout:          "TRANSFORMATION_TIMEOUT",
	ErrCodeJobFailed:            "TRANSFORMATION_FAILED",
	ErrCodeRateLimitStoreFailed: "RATE_LIMIT_STORE_FAILED",
	ErrCodeHistoryWriteFailed:   "HISTORY_WRITE_FAILED",
	ErrCodeInputParsingFailed:   "INPUT_PARSING_FAILED",
}

// GetRetryCount returns the recommended job retry count for a code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeRateLimitStoreFailed, ErrCodeHistoryWriteFailed:
		return 3
	default:
		return 0
	}
}

// ConvertToBPMNError converts a StandardError to a BPMNError for Camunda.
func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	bpmnCode, exists := BPMNErrorMapping[stdErr.Code]
	if !exists {
		bpmnCode = string(stdErr.Code)
	}

	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	return &BPMNError{
		Code:      bpmnCode,
		Message:   stdErr.Message,
		Details:   stdErr.Details,
		Retryable: stdErr.Retryable,
		Retries:   retries,
		ErrorVariables: map[string]interface{}{
			"originalErrorCode": string(stdErr.Code),
			"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
		},
	}
}

// ==========================
// 5. Utility Functions
// ==========================

// IsRetryableErrorCode checks if an error code is retryable.
func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "RATE_LIMIT"):
		return "RATE_LIMIT"
	case strings.Contains(codeStr, "VERIFICATION"):
		return "VERIFICATION"
	case strings.Contains(codeStr, "RESOLUTION"):
		return "AVATAR"
	case strings.Contains(codeStr, "PROVIDER") || strings.Contains(codeStr, "POLL") || strings.Contains(codeStr, "JOB"):
		return "TRANSFORMATION"
	case strings.Contains(codeStr, "HISTORY"):
		return "DATABASE"
	case strings.Contains(codeStr, "VALIDATION") || strings.Contains(codeStr, "PARSING"):
		return "VALIDATION"
	default:
		return "OTHER"
	}
}

// AsStandardError unwraps err into a StandardError, if it holds one.
func AsStandardError(err error) (*StandardError, bool) {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr, true
	}
	return nil, false
}

// CodeOf returns the code carried by err, or INTERNAL_ERROR.
func CodeOf(err error) ErrorCode {
	if stdErr, ok := AsStandardError(err); ok {
		return stdErr.Code
	}
	return ErrCodeInternal
}

// DisplayMessage collapses any error into the single message shown to a user.
func DisplayMessage(err error) string {
	if err == nil {
		return ""
	}
	stdErr, ok := AsStandardError(err)
	if !ok {
		return MsgSomethingWentWrong
	}
	switch stdErr.Code {
	case ErrCodeValidation:
		if stdErr.Message != "" {
			return stdErr.Message
		}
		return MsgHandleRequired
	case ErrCodeVerificationFailed:
		return MsgBotChallenge
	case ErrCodeRateLimitedDaily:
		return MsgDailyRateLimited
	case ErrCodeRateLimited:
		return MsgRateLimited
	case ErrCodeResolutionFailed:
		return MsgResolutionFailed
	case ErrCodeProviderError:
		return MsgInternal
	case ErrCodePollTimeout:
		return MsgPollTimeout
	case ErrCodeJobFailed:
		return MsgJobFailed
	default:
		return MsgSomethingWentWrong
	}
}

// HTTPStatus maps an error to the status code returned by the HTTP surface.
func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case ErrCodeValidation, ErrCodeInputParsingFailed:
		return http.StatusBadRequest
	case ErrCodeVerificationFailed:
		return http.StatusForbidden
	case ErrCodeRateLimited, ErrCodeRateLimitedDaily:
		return http.StatusTooManyRequests
	case ErrCodeResolutionFailed:
		return http.StatusNotFound
	case ErrCodePollTimeout:
		return http.StatusGatewayTimeout
	case ErrCodeJobFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
