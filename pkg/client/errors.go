package client

import (
	"errors"
	"fmt"
	"net/http"
)

// Common errors returned by the client.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during retry.
	ErrContextCancelled = errors.New("context cancelled")

	// ErrMissingAPIKey is returned by New without an API key.
	ErrMissingAPIKey = errors.New("instantly api key is required")

	// ErrUnsupportedOperation is returned for collections without an endpoint.
	ErrUnsupportedOperation = errors.New("unsupported operation")
)

// ErrorClass represents a classification of upstream errors.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 Too Many Requests.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"
)

// classify categorizes a response status or transport error.
func classify(status int, err error) ErrorClass {
	if err != nil {
		return ErrorClassNetwork
	}
	switch {
	case status == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case status >= 400 && status < 500:
		return ErrorClassClient
	case status >= 500:
		return ErrorClassServer
	default:
		return ""
	}
}

// APIError is a failed Instantly call with the response context that was
// available.
type APIError struct {
	StatusCode int
	ErrorClass ErrorClass
	Message    string
	Header     http.Header
	Err        error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("instantly %s error (status %d): %s: %v",
			e.ErrorClass, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("instantly %s error (status %d): %s",
		e.ErrorClass, e.StatusCode, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *APIError) Unwrap() error {
	return e.Err
}

// ResponseHeader returns the headers of the failed response, so rate limit
// headers on a 429 still reach the governor.
func (e *APIError) ResponseHeader() http.Header {
	return e.Header
}

// RateLimited reports whether the upstream refused the call for quota.
func (e *APIError) RateLimited() bool {
	return e.ErrorClass == ErrorClassRateLimit
}

// shouldRetry determines if an error should be retried based on its classification.
func shouldRetry(errorClass ErrorClass) bool {
	switch errorClass {
	case ErrorClassServer, ErrorClassRateLimit, ErrorClassNetwork:
		return true
	default:
		// 4xx responses will not change on retry.
		return false
	}
}
