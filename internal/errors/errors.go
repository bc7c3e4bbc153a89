package errors

import (
	"errors"
	"fmt"
	"io/fs"
	"syscall"
	"time"
)

/**
 * Custom error types for the docuparse pipeline
 *
 * Every failure that crosses a package boundary is a *ProcessingError carrying
 * an ErrorCode, so the dispatcher can decide between skipping a file and
 * aborting the run without string matching.
 */

// ErrorCode enum for structured error handling
type ErrorCode string

const (
	// Input errors
	ErrorInvalidDirectory ErrorCode = "INVALID_DIRECTORY"
	ErrorFileIO           ErrorCode = "FILE_IO"

	// Decode/format errors
	ErrorDocumentOpen ErrorCode = "DOCUMENT_OPEN_FAILED"
	ErrorDecodeFailed ErrorCode = "DECODE_FAILED"

	// Processing errors
	ErrorOCRFailed         ErrorCode = "OCR_FAILED"
	ErrorProcessingTimeout ErrorCode = "PROCESSING_TIMEOUT"

	// Storage errors
	ErrorStorageFailed ErrorCode = "STORAGE_FAILED"
	ErrorStoreUsage    ErrorCode = "STORE_USAGE"
)

// ProcessingError represents a structured processing error
type ProcessingError struct {
	Code      ErrorCode
	Message   string
	Path      string
	Timestamp time.Time
	Details   map[string]interface{}
	Cause     error
}

func (e *ProcessingError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ProcessingError) Unwrap() error {
	return e.Cause
}

// Factory functions for common errors

func NewInvalidDirectoryError(path string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorInvalidDirectory,
		Message:   fmt.Sprintf("%s is not a directory", path),
		Path:      path,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

func NewFileIOError(path string, op string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorFileIO,
		Message:   fmt.Sprintf("file operation %q failed", op),
		Path:      path,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"operation": op,
		},
		Cause: cause,
	}
}

func NewDocumentOpenError(path string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorDocumentOpen,
		Message:   "failed to open document",
		Path:      path,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

func NewDecodeFailedError(source string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorDecodeFailed,
		Message:   "failed to decode image",
		Path:      source,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

func NewOCRFailedError(source string, stage string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorOCRFailed,
		Message:   fmt.Sprintf("OCR failed at stage: %s", stage),
		Path:      source,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"ocr_stage": stage,
		},
		Cause: cause,
	}
}

func NewProcessingTimeoutError(path string, duration time.Duration, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorProcessingTimeout,
		Message:   fmt.Sprintf("Processing timed out after %v", duration),
		Path:      path,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"timeout_duration": duration.String(),
		},
		Cause: cause,
	}
}

func NewStorageFailedError(key string, backend string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorStorageFailed,
		Message:   fmt.Sprintf("%s store operation failed", backend),
		Path:      key,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"backend": backend,
		},
		Cause: cause,
	}
}

func NewStoreUsageError(keyCount int) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorStoreUsage,
		Message:   fmt.Sprintf("write payload must contain exactly one key, got %d", keyCount),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"key_count": keyCount,
		},
	}
}

// CodeOf returns the code of the first ProcessingError in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var pe *ProcessingError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

// HasCode reports whether any ProcessingError in err's chain carries code.
func HasCode(err error, code ErrorCode) bool {
	for err != nil {
		var pe *ProcessingError
		if !errors.As(err, &pe) {
			return false
		}
		if pe.Code == code {
			return true
		}
		err = pe.Cause
	}
	return false
}

// Categorize maps a per-file failure to the category used in log lines.
func Categorize(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, fs.ErrNotExist):
		return "file_not_found"
	case errors.Is(err, fs.ErrPermission):
		return "permission_denied"
	case errors.Is(err, syscall.EISDIR):
		return "is_a_directory"
	}

	switch CodeOf(err) {
	case ErrorDocumentOpen:
		return "document_open"
	case ErrorDecodeFailed:
		return "decode"
	case ErrorOCRFailed:
		return "ocr"
	case ErrorProcessingTimeout:
		return "timeout"
	case ErrorStorageFailed, ErrorStoreUsage:
		return "storage"
	case ErrorFileIO:
		return "io"
	}
	return "unknown"
}

// ToMap converts error to map for structured logging
func (e *ProcessingError) ToMap() map[string]interface{} {
	result := map[string]interface{}{
		"error_code": string(e.Code),
		"message":    e.Message,
		"timestamp":  e.Timestamp,
	}

	if e.Path != "" {
		result["path"] = e.Path
	}

	for k, v := range e.Details {
		result[k] = v
	}

	if e.Cause != nil {
		result["cause"] = e.Cause.Error()
	}

	return result
}
