package api

import (
	"errors"
	"fmt"
)

// APIError represents a non-2xx response from an upstream.
type APIError struct {
	StatusCode int
	Message    string
	Body       []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

// IsRetryable returns true if the error should trigger a retry.
func (e *APIError) IsRetryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == 429
}

// NetworkError means a fetch failed: transport error, non-success status,
// or a feed-level failure status.
type NetworkError struct {
	Op  string // e.g. "get ticker"
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// DataShapeError means a payload was missing an expected field or carried a
// non-numeric value where a number was expected.
type DataShapeError struct {
	Field  string // e.g. "closing_price"
	Value  string // Offending raw value, empty if missing
	Reason string
}

func (e *DataShapeError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("data shape: %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("data shape: %s=%q: %s", e.Field, e.Value, e.Reason)
}

// FeedStatusError is returned when the ticker feed answers 200 with a
// non-success status code in its envelope.
type FeedStatusError struct {
	Status  string
	Message string
}

func (e *FeedStatusError) Error() string {
	return fmt.Sprintf("feed status %s: %s", e.Status, e.Message)
}

// IsNetworkError reports whether err is or wraps a *NetworkError.
func IsNetworkError(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}

// IsDataShapeError reports whether err is or wraps a *DataShapeError.
func IsDataShapeError(err error) bool {
	var de *DataShapeError
	return errors.As(err, &de)
}
