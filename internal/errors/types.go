package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorType defines the category of the error
type ErrorType string

const (
	ErrorTypeMissingCredential ErrorType = "MISSING_CREDENTIAL"
	ErrorTypeUpload            ErrorType = "UPLOAD_ERROR"
	ErrorTypeRemoteProcessing  ErrorType = "REMOTE_PROCESSING_ERROR"
	ErrorTypeGeneration        ErrorType = "GENERATION_ERROR"
	ErrorTypeLocalIO           ErrorType = "LOCAL_IO_ERROR"
	ErrorTypeValidation        ErrorType = "VALIDATION_ERROR"
	ErrorTypeRateLimit         ErrorType = "RATE_LIMIT_ERROR"
	ErrorTypeNotFound          ErrorType = "NOT_FOUND_ERROR"
	ErrorTypeInternal          ErrorType = "INTERNAL_ERROR"
)

// AppError represents a structured error for the application
type AppError struct {
	Type          ErrorType `json:"type"`
	Message       string    `json:"message"`
	StatusCode    int       `json:"statusCode"`
	ErrorCode     string    `json:"errorCode"`
	IsOperational bool      `json:"isOperational"`
	Recovery      string    `json:"recoverySuggestion,omitempty"`
	Err           error     `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap exposes the underlying cause to errors.Is and errors.As.
func (e *AppError) Unwrap() error {
	return e.Err
}

// Code returns the application-specific error code
func (e *AppError) Code() string {
	return e.ErrorCode
}

// RecoverySuggestion returns the suggestion on how to recover from the error
func (e *AppError) RecoverySuggestion() string {
	return e.Recovery
}

// UserMessage renders the error as the single line shown to a user.
func (e *AppError) UserMessage() string {
	if e.Recovery == "" {
		return e.Error()
	}
	return fmt.Sprintf("%s (%s)", e.Error(), e.Recovery)
}

// IsRetryable reports whether a caller outside the transcription job may try
// the same request again later. Jobs themselves never retry.
func (e *AppError) IsRetryable() bool {
	switch e.Type {
	case ErrorTypeRateLimit:
		return true
	case ErrorTypeUpload, ErrorTypeGeneration:
		return e.StatusCode >= 500
	default:
		return false
	}
}

// As returns the first *AppError in err's chain.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsType reports whether err carries an *AppError of the given type.
func IsType(err error, t ErrorType) bool {
	appErr, ok := As(err)
	return ok && appErr.Type == t
}

// NewMissingCredentialError is returned when no API key could be resolved (401)
func NewMissingCredentialError(message string) *AppError {
	return &AppError{
		Type:          ErrorTypeMissingCredential,
		Message:       message,
		StatusCode:    http.StatusUnauthorized,
		ErrorCode:     "MISSING_CREDENTIAL",
		IsOperational: true,
		Recovery:      "Set GEMINI_API_KEY, add it to the secrets file, or enter it when prompted.",
	}
}

// NewUploadError creates an error for failures while sending audio to the remote service (502)
func NewUploadError(message string, errorCode string, err error) *AppError {
	return &AppError{
		Type:          ErrorTypeUpload,
		Message:       message,
		StatusCode:    http.StatusBadGateway,
		ErrorCode:     errorCode,
		IsOperational: true,
		Recovery:      "Check the network connection and the API key.",
		Err:           err,
	}
}

// NewRemoteProcessingError creates an error for audio the remote side could not process (502)
func NewRemoteProcessingError(message string, errorCode string, err error) *AppError {
	return &AppError{
		Type:          ErrorTypeRemoteProcessing,
		Message:       message,
		StatusCode:    http.StatusBadGateway,
		ErrorCode:     errorCode,
		IsOperational: true,
		Recovery:      "Verify the audio file plays correctly and try another format.",
		Err:           err,
	}
}

// NewGenerationError creates an error for a failed or unusable generation call (502)
func NewGenerationError(message string, errorCode string, err error) *AppError {
	return &AppError{
		Type:          ErrorTypeGeneration,
		Message:       message,
		StatusCode:    http.StatusBadGateway,
		ErrorCode:     errorCode,
		IsOperational: true,
		Recovery:      "Check the model quota or choose a different model.",
		Err:           err,
	}
}

// NewLocalIOError creates an error for temp-file handling failures (500)
func NewLocalIOError(message string, errorCode string, err error) *AppError {
	return &AppError{
		Type:          ErrorTypeLocalIO,
		Message:       message,
		StatusCode:    http.StatusInternalServerError,
		ErrorCode:     errorCode,
		IsOperational: true,
		Recovery:      "Check free disk space and permissions of the temp directory.",
		Err:           err,
	}
}

// NewValidationError creates a new validation error (400)
func NewValidationError(message string, errorCode string, suggestion string) *AppError {
	return &AppError{
		Type:          ErrorTypeValidation,
		Message:       message,
		StatusCode:    http.StatusBadRequest,
		ErrorCode:     errorCode,
		IsOperational: true,
		Recovery:      suggestion,
	}
}

// NewNotFoundError creates a new not found error (404)
func NewNotFoundError(message string, errorCode string, suggestion string) *AppError {
	return &AppError{
		Type:          ErrorTypeNotFound,
		Message:       message,
		StatusCode:    http.StatusNotFound,
		ErrorCode:     errorCode,
		IsOperational: true,
		Recovery:      suggestion,
	}
}

// NewRateLimitError creates a new rate limit error (429)
func NewRateLimitError(message string, errorCode string, suggestion string) *AppError {
	return &AppError{
		Type:          ErrorTypeRateLimit,
		Message:       message,
		StatusCode:    http.StatusTooManyRequests,
		ErrorCode:     errorCode,
		IsOperational: true,
		Recovery:      suggestion,
	}
}

// NewInternalError wraps an unexpected failure (500)
func NewInternalError(message string, err error) *AppError {
	return &AppError{
		Type:          ErrorTypeInternal,
		Message:       message,
		StatusCode:    http.StatusInternalServerError,
		ErrorCode:     "INTERNAL_ERROR",
		IsOperational: false,
		Err:           err,
	}
}
