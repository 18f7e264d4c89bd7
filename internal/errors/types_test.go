package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestAppError_Error(t *testing.T) {
	err := &AppError{
		Message: "something went wrong",
	}
	if err.Error() != "something went wrong" {
		t.Errorf("expected 'something went wrong', got %v", err.Error())
	}

	wrappedErr := errors.New("underlying error")
	errWithWrap := &AppError{
		Message: "failed operation",
		Err:     wrappedErr,
	}
	expected := "failed operation: underlying error"
	if errWithWrap.Error() != expected {
		t.Errorf("expected %q, got %q", expected, errWithWrap.Error())
	}
}

func TestAppError_Code(t *testing.T) {
	err := &AppError{
		ErrorCode: "ERR_CODE_123",
	}
	if err.Code() != "ERR_CODE_123" {
		t.Errorf("expected ERR_CODE_123, got %v", err.Code())
	}
}

func TestAppError_Unwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := NewUploadError("failed to upload audio", "UPLOAD_FAILED", cause)
	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to find the wrapped cause")
	}

	wrapped := fmt.Errorf("job failed: %w", err)
	appErr, ok := As(wrapped)
	if !ok {
		t.Fatal("expected As to find the AppError")
	}
	if appErr.Type != ErrorTypeUpload {
		t.Errorf("expected TypeUpload, got %v", appErr.Type)
	}
	if !IsType(wrapped, ErrorTypeUpload) {
		t.Error("expected IsType to match ErrorTypeUpload")
	}
	if IsType(wrapped, ErrorTypeGeneration) {
		t.Error("expected IsType not to match ErrorTypeGeneration")
	}
}

func TestAppError_UserMessage(t *testing.T) {
	err := NewValidationError("unsupported audio format", "UNSUPPORTED_FORMAT", "Use mp3, m4a or wav.")
	want := "unsupported audio format (Use mp3, m4a or wav.)"
	if got := err.UserMessage(); got != want {
		t.Errorf("expected %q, got %q", want, got)
	}

	bare := &AppError{Message: "boom"}
	if got := bare.UserMessage(); got != "boom" {
		t.Errorf("expected 'boom', got %q", got)
	}
}

func TestAppError_IsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  *AppError
		want bool
	}{
		{
			name: "rate limit is retryable",
			err: &AppError{
				Type:       ErrorTypeRateLimit,
				StatusCode: http.StatusTooManyRequests,
			},
			want: true,
		},
		{
			name: "validation error is not retryable",
			err: &AppError{
				Type:       ErrorTypeValidation,
				StatusCode: http.StatusBadRequest,
			},
			want: false,
		},
		{
			name: "502 upload error is retryable",
			err:  NewUploadError("upload failed", "UPLOAD_FAILED", nil),
			want: true,
		},
		{
			name: "remote processing failure is not retryable",
			err:  NewRemoteProcessingError("processing failed", "REMOTE_FAILED", nil),
			want: false,
		},
		{
			name: "missing credential is not retryable",
			err:  NewMissingCredentialError("no key"),
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.IsRetryable(); got != tt.want {
				t.Errorf("AppError.IsRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewValidationError(t *testing.T) {
	err := NewValidationError("invalid input", "VALIDATION_FAILED", "Check your fields")
	if err.Type != ErrorTypeValidation {
		t.Errorf("expected TypeValidation, got %v", err.Type)
	}
	if err.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %v", err.StatusCode)
	}
	if err.RecoverySuggestion() != "Check your fields" {
		t.Errorf("expected 'Check your fields', got %v", err.RecoverySuggestion())
	}
}

func TestNewGenerationError(t *testing.T) {
	underlying := errors.New("quota exceeded")
	err := NewGenerationError("could not transcribe", "GENERATION_FAILED", underlying)
	if err.Type != ErrorTypeGeneration {
		t.Errorf("expected TypeGeneration, got %v", err.Type)
	}
	if err.StatusCode != http.StatusBadGateway {
		t.Errorf("expected 502, got %v", err.StatusCode)
	}
	if err.Err != underlying {
		t.Error("underlying error not correctly wrapped")
	}
}

func TestNewLocalIOError(t *testing.T) {
	err := NewLocalIOError("failed to write temp file", "TEMP_FILE_WRITE", errors.New("disk full"))
	if err.Type != ErrorTypeLocalIO {
		t.Errorf("expected TypeLocalIO, got %v", err.Type)
	}
	if err.StatusCode != http.StatusInternalServerError {
		t.Errorf("expected 500, got %v", err.StatusCode)
	}
}
