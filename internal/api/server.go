package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/mojiokoshi/transcriber/internal/cache"
	"github.com/mojiokoshi/transcriber/internal/config"
	"github.com/mojiokoshi/transcriber/internal/db"
	apperrors "github.com/mojiokoshi/transcriber/internal/errors"
	"github.com/mojiokoshi/transcriber/internal/worker"
)

// JobStore is the part of db.JobStore the API reads and writes.
type JobStore interface {
	CreateJob(ctx context.Context, arg db.CreateJobParams) (*db.Job, error)
	GetJob(ctx context.Context, id uuid.UUID) (*db.Job, error)
	ListJobsByUser(ctx context.Context, userID string, limit int) ([]*db.Job, error)
	FailJob(ctx context.Context, id uuid.UUID, code, message string) error
}

// TranscriberFactory builds a transcriber bound to a Gemini API key.
type TranscriberFactory func(apiKey string) worker.Transcriber

type Server struct {
	cfg            *config.Config
	transcripts    *cache.TranscriptCache
	newTranscriber TranscriberFactory
	jobs           JobStore
	queue          worker.Enqueuer
}

// NewServer wires the web form handlers. jobs and queue may be nil, in which
// case the async API reports 503.
func NewServer(cfg *config.Config, transcripts *cache.TranscriptCache, newTranscriber TranscriberFactory, jobs JobStore, queue worker.Enqueuer) *Server {
	return &Server{
		cfg:            cfg,
		transcripts:    transcripts,
		newTranscriber: newTranscriber,
		jobs:           jobs,
		queue:          queue,
	}
}

// AsyncEnabled reports whether the queue-backed API is available.
func (s *Server) AsyncEnabled() bool {
	return s.jobs != nil && s.queue != nil
}

type errorResponse struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	Suggestion string `json:"suggestion,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Failed to write JSON response", "error", err)
	}
}

// writeError renders err as JSON using the AppError status when present.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	appErr, ok := apperrors.As(err)
	if !ok {
		slog.ErrorContext(r.Context(), "Unhandled error", "path", r.URL.Path, "error", err)
		appErr = apperrors.NewInternalError("internal server error", err)
	}
	writeJSON(w, appErr.StatusCode, errorResponse{
		Error:      appErr.Code(),
		Message:    appErr.Message,
		Suggestion: appErr.RecoverySuggestion(),
	})
}
