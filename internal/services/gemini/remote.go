package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"google.golang.org/genai"

	"github.com/mojiokoshi/transcriber/internal/config"
	apperrors "github.com/mojiokoshi/transcriber/internal/errors"
	"github.com/mojiokoshi/transcriber/internal/services/transcription"
	"github.com/mojiokoshi/transcriber/internal/utils"
)

// Remote adapts Client to transcription.Remote.
type Remote struct {
	client *Client
}

var _ transcription.Remote = (*Remote)(nil)

func NewRemote(client *Client) *Remote {
	return &Remote{client: client}
}

func (r *Remote) Upload(ctx context.Context, audioPath string, format transcription.AudioFormat, displayName string) (transcription.Handle, error) {
	file, err := r.client.UploadFile(ctx, audioPath, format.MIMEType(), displayName)
	if err != nil {
		return transcription.Handle{}, apperrors.NewUploadError("failed to upload audio to Gemini", errorCode("UPLOAD", err), err)
	}
	return toHandle(file, format.MIMEType()), nil
}

func (r *Remote) GetStatus(ctx context.Context, handle transcription.Handle) (transcription.Handle, error) {
	file, err := r.client.GetFile(ctx, handle.Name)
	if err != nil {
		return handle, err
	}
	next := toHandle(file, handle.MIMEType)
	if next.Name == "" {
		next.Name = handle.Name
	}
	if next.URI == "" {
		next.URI = handle.URI
	}
	return next, nil
}

func (r *Remote) Generate(ctx context.Context, model, prompt string, handle transcription.Handle) (string, error) {
	text, err := r.client.GenerateContent(ctx, model, prompt, handle.URI, handle.MIMEType)
	if err != nil {
		return "", apperrors.NewGenerationError("Gemini transcription request failed", errorCode("GENERATION", err), err)
	}
	return text, nil
}

func (r *Remote) Delete(ctx context.Context, handle transcription.Handle) error {
	return r.client.DeleteFile(ctx, handle.Name)
}

// MapState converts a Files API state to the workflow state.
func MapState(state genai.FileState) transcription.State {
	switch state {
	case genai.FileStateActive:
		return transcription.StateReady
	case genai.FileStateFailed:
		return transcription.StateFailed
	default:
		return transcription.StateProcessing
	}
}

func toHandle(file *genai.File, mimeType string) transcription.Handle {
	if file.MIMEType != "" {
		mimeType = file.MIMEType
	}
	return transcription.Handle{
		Name:     file.Name,
		URI:      file.URI,
		MIMEType: mimeType,
		State:    MapState(file.State),
	}
}

// errorCode derives a stable error code such as GENERATION_HTTP_429.
func errorCode(prefix string, err error) string {
	var blocked *BlockedError
	if code, ok := apiStatus(err); ok {
		return fmt.Sprintf("%s_HTTP_%d", prefix, code)
	}
	switch {
	case errors.As(err, &blocked):
		return prefix + "_BLOCKED"
	case errors.Is(err, ErrNoCandidates):
		return prefix + "_NO_CANDIDATES"
	case errors.Is(err, ErrEmptyResponse):
		return prefix + "_EMPTY_RESPONSE"
	default:
		return prefix + "_FAILED"
	}
}

// apiStatus extracts the HTTP status of a genai.APIError. The SDK returns it
// by value, so the pointer form is checked too.
func apiStatus(err error) (int, bool) {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code, true
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return apiErrPtr.Code, true
	}
	return 0, false
}

// NewOrchestrator builds a single-job orchestrator talking to Gemini with
// apiKey, using the transcription settings from cfg.
func NewOrchestrator(cfg *config.Config, apiKey string) *transcription.Orchestrator {
	client := NewClient(apiKey, cfg.GeminiBaseURL, cfg.Transcription.RequestTimeout)
	return transcription.NewOrchestrator(NewRemote(client), transcription.Options{
		Models: cfg.Transcription.Models,
		Poll: utils.PollConfig{
			Interval:    cfg.Transcription.PollInterval,
			MaxAttempts: cfg.Transcription.PollMaxAttempts,
		},
		TempDir: cfg.TempDir,
		Logger:  slog.Default(),
	})
}
