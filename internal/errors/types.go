// Package errors defines the error taxonomy shared by the turn pipeline and
// the generative-call boundary, plus the generic retry/backoff wrapper.
//
// Classification drives recovery: transient errors are retried with backoff,
// permanent errors fail the call immediately, validation rejections terminate
// the turn without touching state, and pipeline errors abort the whole turn.
package errors

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"syscall"
)

// TransientError marks an error as retry-able (timeout, rate limit,
// transient network failure).
type TransientError struct {
	Err     error
	Message string
}

func (e *TransientError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("transient error: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError marks an error that must not be retried (authentication,
// invalid request).
type PermanentError struct {
	Err     error
	Message string
}

func (e *PermanentError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("permanent error: %v", e.Err)
}

func (e *PermanentError) Unwrap() error { return e.Err }

// MalformedOutputError reports that a generative call produced output the
// extraction/repair layer could not turn into structured data. RawExcerpt
// carries a bounded slice of the offending text for diagnostics.
type MalformedOutputError struct {
	Err        error
	RawExcerpt string
}

func (e *MalformedOutputError) Error() string {
	return fmt.Sprintf("malformed generation output: %v", e.Err)
}

func (e *MalformedOutputError) Unwrap() error { return e.Err }

// NewMalformedOutput builds a MalformedOutputError, truncating the raw text
// to a bounded excerpt.
func NewMalformedOutput(err error, raw string) *MalformedOutputError {
	const excerptLimit = 200
	excerpt := raw
	if len(excerpt) > excerptLimit {
		excerpt = excerpt[:excerptLimit] + "..."
	}
	return &MalformedOutputError{Err: err, RawExcerpt: excerpt}
}

// IsMalformedOutput reports whether err is (or wraps) a MalformedOutputError.
func IsMalformedOutput(err error) bool {
	var malformed *MalformedOutputError
	return errors.As(err, &malformed)
}

// ValidationRejectedError terminates a turn at the input gate. It is
// user-facing, non-retryable, and never changes state.
type ValidationRejectedError struct {
	Code   string // machine-readable, e.g. "stale_turn", "empty_action"
	Reason string // human-readable explanation surfaced to the caller
}

func (e *ValidationRejectedError) Error() string {
	return fmt.Sprintf("turn rejected (%s): %s", e.Code, e.Reason)
}

// NewValidationRejected builds a rejection with a stable code and a
// human-readable reason.
func NewValidationRejected(code, reason string) *ValidationRejectedError {
	return &ValidationRejectedError{Code: code, Reason: reason}
}

// IsValidationRejected reports whether err is a gate rejection, returning the
// typed error when it is.
func IsValidationRejected(err error) (*ValidationRejectedError, bool) {
	var rejected *ValidationRejectedError
	if errors.As(err, &rejected) {
		return rejected, true
	}
	return nil, false
}

// PipelineError aborts a whole turn: a required stage exhausted its retries
// or failed permanently. No delta is committed and the turn counter does not
// advance.
type PipelineError struct {
	Stage string
	Err   error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("pipeline failed at stage %s: %v", e.Stage, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }

// NewPipelineError wraps a stage failure.
func NewPipelineError(stage string, err error) *PipelineError {
	return &PipelineError{Stage: stage, Err: err}
}

// IsPipelineError reports whether err aborted the pipeline.
func IsPipelineError(err error) (*PipelineError, bool) {
	var pipeErr *PipelineError
	if errors.As(err, &pipeErr) {
		return pipeErr, true
	}
	return nil, false
}

// RetryExhaustedError is the terminal result of a retried call: it carries
// the last error and how many attempts were made.
type RetryExhaustedError struct {
	Attempts int
	LastErr  error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("retries exhausted after %d attempts: %v", e.Attempts, e.LastErr)
}

func (e *RetryExhaustedError) Unwrap() error { return e.LastErr }

// NewTransientError creates a transient error with a readable message.
func NewTransientError(err error, message string) *TransientError {
	return &TransientError{Err: err, Message: message}
}

// NewPermanentError creates a permanent error with a readable message.
func NewPermanentError(err error, message string) *PermanentError {
	return &PermanentError{Err: err, Message: message}
}

// IsTransient checks whether an error should be retried.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var transientErr *TransientError
	if errors.As(err, &transientErr) {
		return true
	}

	var permanentErr *PermanentError
	if errors.As(err, &permanentErr) {
		return false
	}

	// Rejections and malformed output are never transported back through
	// the generic retry loop.
	if _, ok := IsValidationRejected(err); ok {
		return false
	}
	if IsMalformedOutput(err) {
		return false
	}

	if isNetworkError(err) {
		return true
	}

	if statusCode := extractHTTPStatusCode(err); statusCode > 0 {
		return isTransientHTTPStatus(statusCode)
	}

	if isSyscallError(err) {
		return true
	}

	return false
}

// IsPermanent checks whether an error must not be retried.
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}

	var permanentErr *PermanentError
	if errors.As(err, &permanentErr) {
		return true
	}

	var transientErr *TransientError
	if errors.As(err, &transientErr) {
		return false
	}

	if statusCode := extractHTTPStatusCode(err); statusCode > 0 {
		return isPermanentHTTPStatus(statusCode)
	}

	lowerErr := strings.ToLower(err.Error())
	permanentPatterns := []string{
		"unauthorized",
		"forbidden",
		"bad request",
		"invalid api key",
		"not found",
	}
	for _, pattern := range permanentPatterns {
		if strings.Contains(lowerErr, pattern) {
			return true
		}
	}

	return false
}

func isNetworkError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.Temporary()
	}

	errStr := strings.ToLower(err.Error())
	networkPatterns := []string{
		"connection refused",
		"timeout",
		"deadline exceeded",
		"connection reset",
		"broken pipe",
	}
	for _, pattern := range networkPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}

func isSyscallError(err error) bool {
	var syscallErr syscall.Errno
	if errors.As(err, &syscallErr) {
		switch syscallErr {
		case syscall.ECONNREFUSED, syscall.ECONNRESET, syscall.EPIPE,
			syscall.ETIMEDOUT, syscall.ENETUNREACH, syscall.EHOSTUNREACH:
			return true
		}
	}
	return false
}

func isTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

func isPermanentHTTPStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusBadRequest,
		http.StatusUnauthorized,
		http.StatusForbidden,
		http.StatusNotFound,
		http.StatusUnprocessableEntity:
		return true
	}
	return false
}

var knownStatusCodes = []int{400, 401, 403, 404, 422, 429, 500, 502, 503, 504}

func extractHTTPStatusCode(err error) int {
	lowerErr := strings.ToLower(err.Error())
	for _, code := range knownStatusCodes {
		if strings.Contains(lowerErr, fmt.Sprintf("status %d", code)) ||
			strings.Contains(lowerErr, fmt.Sprintf("http %d", code)) {
			return code
		}
	}
	return 0
}
