package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

/**
 * Custom error types for the inkcompare pipeline
 *
 * Design Pattern: Factory Pattern for error creation
 * Every comparison failure surfaces as a single ComparisonError carrying a code.
 */

// ErrorCode enum for structured error handling
type ErrorCode string

const (
	// Input errors
	ErrorInvalidInput ErrorCode = "INVALID_INPUT"

	// Pipeline errors
	ErrorExtractionFailed  ErrorCode = "EXTRACTION_FAILED"
	ErrorComputationFailed ErrorCode = "COMPUTATION_FAILED"
	ErrorProcessingTimeout ErrorCode = "PROCESSING_TIMEOUT"

	// Storage errors
	ErrorCacheFailed   ErrorCode = "CACHE_FAILED"
	ErrorStorageFailed ErrorCode = "STORAGE_FAILED"

	// Network errors
	ErrorAPICallFailed ErrorCode = "API_CALL_FAILED"
)

// ComparisonError represents a structured comparison error
type ComparisonError struct {
	Code         ErrorCode
	Message      string
	ComparisonID string
	Timestamp    time.Time
	Details      map[string]interface{}
	Cause        error
}

func (e *ComparisonError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ComparisonError) Unwrap() error {
	return e.Cause
}

// Factory functions for common errors

func NewInvalidInputError(comparisonID string, field string, reason string) *ComparisonError {
	return &ComparisonError{
		Code:         ErrorInvalidInput,
		Message:      fmt.Sprintf("Invalid %s: %s", field, reason),
		ComparisonID: comparisonID,
		Timestamp:    time.Now(),
		Details: map[string]interface{}{
			"field": field,
		},
	}
}

func NewExtractionError(comparisonID string, document string, cause error) *ComparisonError {
	return &ComparisonError{
		Code:         ErrorExtractionFailed,
		Message:      fmt.Sprintf("Feature extraction failed for %s", document),
		ComparisonID: comparisonID,
		Timestamp:    time.Now(),
		Details: map[string]interface{}{
			"document": document,
		},
		Cause: cause,
	}
}

func NewComputationError(comparisonID string, stage string, cause error) *ComparisonError {
	return &ComparisonError{
		Code:         ErrorComputationFailed,
		Message:      fmt.Sprintf("Computation failed at stage: %s", stage),
		ComparisonID: comparisonID,
		Timestamp:    time.Now(),
		Details: map[string]interface{}{
			"stage": stage,
		},
		Cause: cause,
	}
}

func NewCacheError(operation string, key string, cause error) *ComparisonError {
	return &ComparisonError{
		Code:      ErrorCacheFailed,
		Message:   fmt.Sprintf("Cache %s failed", operation),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"operation": operation,
			"cache_key": key,
		},
		Cause: cause,
	}
}

func NewProcessingTimeoutError(comparisonID string, duration time.Duration, cause error) *ComparisonError {
	return &ComparisonError{
		Code:         ErrorProcessingTimeout,
		Message:      fmt.Sprintf("Comparison timed out after %v", duration),
		ComparisonID: comparisonID,
		Timestamp:    time.Now(),
		Details: map[string]interface{}{
			"timeout_duration": duration.String(),
		},
		Cause: cause,
	}
}

func NewStorageFailedError(comparisonID string, cause error) *ComparisonError {
	return &ComparisonError{
		Code:         ErrorStorageFailed,
		Message:      "Failed to store comparison results",
		ComparisonID: comparisonID,
		Timestamp:    time.Now(),
		Cause:        cause,
	}
}

func NewAPICallError(service string, statusCode int, cause error) *ComparisonError {
	return &ComparisonError{
		Code:      ErrorAPICallFailed,
		Message:   fmt.Sprintf("%s call failed", service),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"service":     service,
			"status_code": statusCode,
		},
		Cause: cause,
	}
}

// CodeOf returns the code of the first ComparisonError in err's chain,
// or an empty code when there is none.
func CodeOf(err error) ErrorCode {
	var ce *ComparisonError
	if stderrors.As(err, &ce) {
		return ce.Code
	}
	return ""
}

// Is reports whether err carries the given code anywhere in its chain.
func Is(err error, code ErrorCode) bool {
	var ce *ComparisonError
	for err != nil {
		if !stderrors.As(err, &ce) {
			return false
		}
		if ce.Code == code {
			return true
		}
		err = ce.Cause
	}
	return false
}

// ToMap converts error to map for history storage and task results
func (e *ComparisonError) ToMap() map[string]interface{} {
	result := map[string]interface{}{
		"error_code": string(e.Code),
		"message":    e.Message,
		"timestamp":  e.Timestamp,
	}

	if e.ComparisonID != "" {
		result["comparison_id"] = e.ComparisonID
	}

	for k, v := range e.Details {
		result[k] = v
	}

	if e.Cause != nil {
		result["cause"] = e.Cause.Error()
	}

	return result
}
