package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	apperrors "github.com/mojiokoshi/transcriber/internal/errors"
	"github.com/mojiokoshi/transcriber/internal/logger"
	"github.com/mojiokoshi/transcriber/internal/services/transcription"
)

// JobRetention is how long finished and abandoned jobs stay in the ledger.
const JobRetention = 7 * 24 * time.Hour

// JobLedger is the part of db.JobStore the worker writes to.
type JobLedger interface {
	UpdateJobProgress(ctx context.Context, id uuid.UUID, stage, message string) error
	CompleteJob(ctx context.Context, id uuid.UUID, transcript, message string) error
	FailJob(ctx context.Context, id uuid.UUID, code, message string) error
	DeleteOldJobs(ctx context.Context, olderThan time.Duration) (int64, error)
}

// Transcriber runs one job. *transcription.Orchestrator implements it.
type Transcriber interface {
	SubmitWithProgress(ctx context.Context, req transcription.Request, progress transcription.ProgressFunc) (*transcription.Result, error)
}

// TranscriberFactory returns a transcriber for a single task. Orchestrators
// run one job at a time, so concurrent tasks each get their own.
type TranscriberFactory func() Transcriber

type TranscriptionProcessor struct {
	ledger         JobLedger
	newTranscriber TranscriberFactory
}

func NewTranscriptionProcessor(ledger JobLedger, newTranscriber TranscriberFactory) *TranscriptionProcessor {
	return &TranscriptionProcessor{
		ledger:         ledger,
		newTranscriber: newTranscriber,
	}
}

// HandleTranscribe runs the orchestrator for one queued job and records the
// outcome in the ledger. Failures are never retried. A failure that reached
// the ledger completes the task, so asynq does not archive the audio.
func (p *TranscriptionProcessor) HandleTranscribe(ctx context.Context, t *asynq.Task) error {
	var payload TranscribePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}

	jobID, err := uuid.Parse(payload.JobID)
	if err != nil {
		return fmt.Errorf("invalid job id %q: %w", payload.JobID, asynq.SkipRetry)
	}

	slog.InfoContext(ctx, "Processing transcription", "job_id", jobID, "file_name", payload.FileName, "model", payload.Model)

	req, err := buildRequest(payload)
	if err != nil {
		return p.fail(ctx, jobID, err)
	}

	progress := func(stage transcription.Stage, message string) {
		if stage == transcription.StageCompleted || stage == transcription.StageFailed {
			return
		}
		if err := p.ledger.UpdateJobProgress(ctx, jobID, string(stage), message); err != nil {
			slog.WarnContext(ctx, "Failed to record progress", "job_id", jobID, "stage", stage, "error", err)
		}
	}

	result, err := p.newTranscriber().SubmitWithProgress(ctx, req, progress)
	if err != nil {
		return p.fail(ctx, jobID, err)
	}

	if err := p.ledger.CompleteJob(ctx, jobID, result.Composed, transcription.StageCompleted.Message()); err != nil {
		slog.ErrorContext(ctx, "Failed to save transcript", "job_id", jobID, "error", err)
		return fmt.Errorf("failed to save transcript: %v: %w", err, asynq.SkipRetry)
	}

	slog.InfoContext(ctx, "Transcription saved", "job_id", jobID, "chars", len(result.Composed))
	return nil
}

// HandleCleanupJobs removes ledger rows older than JobRetention.
func (p *TranscriptionProcessor) HandleCleanupJobs(ctx context.Context, t *asynq.Task) error {
	deleted, err := p.ledger.DeleteOldJobs(ctx, JobRetention)
	if err != nil {
		return fmt.Errorf("failed to cleanup jobs: %w", err)
	}
	slog.InfoContext(ctx, "Cleaned up old transcription jobs", "deleted", deleted)
	return nil
}

// fail records cause as the job outcome. It returns nil once the ledger
// holds the failure and a SkipRetry error when the ledger write fails.
func (p *TranscriptionProcessor) fail(ctx context.Context, jobID uuid.UUID, cause error) error {
	code := string(apperrors.ErrorTypeInternal)
	message := cause.Error()
	if appErr, ok := apperrors.As(cause); ok {
		code = appErr.Code()
		message = appErr.UserMessage()
	}

	if err := p.ledger.FailJob(ctx, jobID, code, message); err != nil {
		slog.ErrorContext(ctx, "Failed to mark job failed", "job_id", jobID, "error", err, logger.WithTraceContext(ctx))
		return fmt.Errorf("transcription job %s: %w: failed to record failure: %v: %w", jobID, cause, err, asynq.SkipRetry)
	}

	// The task succeeds from here on, so SentryMiddleware never sees cause.
	if hub := sentry.GetHubFromContext(ctx); hub != nil && reportable(cause) {
		hub.CaptureException(cause)
	}
	slog.WarnContext(ctx, "Transcription failed", "job_id", jobID, "error_code", code, "error", cause, logger.WithTraceContext(ctx))
	return nil
}

func buildRequest(payload TranscribePayload) (transcription.Request, error) {
	format := transcription.AudioFormat(payload.Format)
	if payload.Format == "" {
		f, err := transcription.ParseAudioFormat(payload.FileName)
		if err != nil {
			return transcription.Request{}, err
		}
		format = f
	}

	layout, ok := transcription.LookupLayout(transcription.MeetingType(payload.MeetingType))
	if !ok {
		return transcription.Request{}, apperrors.NewValidationError(
			fmt.Sprintf("unknown meeting type %q", payload.MeetingType),
			"UNKNOWN_MEETING_TYPE",
			"Use one of the listed meeting types.",
		)
	}

	return transcription.Request{
		Audio:    payload.Audio,
		Format:   format,
		FileName: payload.FileName,
		Model:    payload.Model,
		Header:   layout.Header(payload.Fields),
	}, nil
}
