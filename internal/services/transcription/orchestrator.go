package transcription

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"github.com/mojiokoshi/transcriber/internal/errors"
	"github.com/mojiokoshi/transcriber/internal/metrics"
	"github.com/mojiokoshi/transcriber/internal/services/ai"
	"github.com/mojiokoshi/transcriber/internal/telemetry"
	"github.com/mojiokoshi/transcriber/internal/utils"
)

// ErrJobInProgress is returned when Submit is called while the same
// orchestrator is still running a job.
var ErrJobInProgress = stderrors.New("a transcription job is already running")

// Stage is a step of the job reported to progress listeners.
type Stage string

const (
	StagePreparing    Stage = "preparing"
	StageUploading    Stage = "uploading"
	StageProcessing   Stage = "processing"
	StageTranscribing Stage = "transcribing"
	StageCompleted    Stage = "completed"
	StageFailed       Stage = "failed"
)

var stageMessages = map[Stage]string{
	StagePreparing:    "音声ファイルを準備しています...",
	StageUploading:    "音声ファイルをアップロードしています...",
	StageProcessing:   "音声ファイルの処理を待っています...",
	StageTranscribing: "文字起こしを実行しています...",
	StageCompleted:    "文字起こしが完了しました",
	StageFailed:       "文字起こしに失敗しました",
}

// Message returns the user-facing text for the stage.
func (s Stage) Message() string {
	return stageMessages[s]
}

// ProgressFunc receives stage transitions. It is called on the goroutine
// running Submit and must not block for long.
type ProgressFunc func(stage Stage, message string)

// Options configures an Orchestrator.
type Options struct {
	// Models is the allow-list of generation models.
	Models  []string
	Poll    utils.PollConfig
	TempDir string
	Logger  *slog.Logger
}

// Orchestrator runs the upload, wait, generate and compose workflow against a
// Remote. One instance runs at most one job at a time.
type Orchestrator struct {
	remote  Remote
	models  []string
	poll    utils.PollConfig
	tempDir string
	logger  *slog.Logger
	running atomic.Bool
}

func NewOrchestrator(remote Remote, opts Options) *Orchestrator {
	if opts.Poll.MaxAttempts <= 0 {
		opts.Poll = utils.DefaultPollConfig()
	}
	if opts.TempDir == "" {
		opts.TempDir = os.TempDir()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Orchestrator{
		remote:  remote,
		models:  opts.Models,
		poll:    opts.Poll,
		tempDir: opts.TempDir,
		logger:  opts.Logger,
	}
}

// Submit runs one job to completion and returns exactly one of a Result or
// an error.
func (o *Orchestrator) Submit(ctx context.Context, req Request) (*Result, error) {
	return o.SubmitWithProgress(ctx, req, nil)
}

// SubmitWithProgress is Submit with stage notifications.
func (o *Orchestrator) SubmitWithProgress(ctx context.Context, req Request, progress ProgressFunc) (*Result, error) {
	if !o.running.CompareAndSwap(false, true) {
		return nil, ErrJobInProgress
	}
	defer o.running.Store(false)

	if progress == nil {
		progress = func(Stage, string) {}
	}

	ctx, span := telemetry.Tracer("transcription").Start(ctx, "transcription.submit")
	defer span.End()
	span.SetAttributes(
		attribute.String("transcription.model", req.Model),
		attribute.String("transcription.format", string(req.Format)),
		attribute.Int("transcription.audio_bytes", len(req.Audio)),
	)

	start := time.Now()
	result, err := o.run(ctx, req, progress)
	duration := time.Since(start).Seconds()

	status := "completed"
	if err != nil {
		status = "failed"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		progress(StageFailed, StageFailed.Message())
		o.logger.ErrorContext(ctx, "Transcription failed",
			"file_name", req.FileName, "model", req.Model, "error", err)
	} else {
		progress(StageCompleted, StageCompleted.Message())
		o.logger.InfoContext(ctx, "Transcription completed",
			"file_name", req.FileName, "model", req.Model,
			"chars", len(result.Body), "duration_s", duration)
	}

	attrs := metric.WithAttributes(attribute.String("status", status), attribute.String("model", req.Model))
	metrics.TranscriptionJobsTotal.Add(ctx, 1, attrs)
	metrics.TranscriptionJobDuration.Record(ctx, duration, attrs)

	if err != nil {
		return nil, err
	}
	return result, nil
}

func (o *Orchestrator) run(ctx context.Context, req Request, progress ProgressFunc) (result *Result, err error) {
	progress(StagePreparing, StagePreparing.Message())
	if err := o.validate(req); err != nil {
		return nil, err
	}

	path, err := o.spool(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		rmErr := os.Remove(path)
		if rmErr == nil || stderrors.Is(rmErr, os.ErrNotExist) {
			return
		}
		if err != nil {
			o.logger.WarnContext(ctx, "Failed to remove temp audio file", "path", path, "error", rmErr)
			return
		}
		result = nil
		err = errors.NewLocalIOError("failed to remove temporary audio file", "TEMP_FILE_CLEANUP_FAILED", rmErr)
	}()

	progress(StageUploading, StageUploading.Message())
	handle, err := o.remote.Upload(ctx, path, req.Format, displayName(req))
	if err != nil {
		return nil, asUploadError(err)
	}
	o.logger.DebugContext(ctx, "Audio uploaded", "remote_name", handle.Name, "state", handle.State)

	defer o.discard(ctx, handle)

	handle, err = o.waitReady(ctx, handle, progress)
	if err != nil {
		return nil, err
	}

	progress(StageTranscribing, StageTranscribing.Message())
	prompt := req.Prompt
	if prompt == "" {
		prompt = ai.TranscriptionPrompt
	}
	body, err := o.remote.Generate(ctx, req.Model, prompt, handle)
	if err != nil {
		if appErr, ok := errors.As(err); ok && appErr.Type == errors.ErrorTypeGeneration {
			return nil, appErr
		}
		return nil, errors.NewGenerationError("transcription request failed", "GENERATION_FAILED", err)
	}
	if strings.TrimSpace(body) == "" {
		return nil, errors.NewGenerationError("the model returned an empty transcript", "EMPTY_TRANSCRIPT", nil)
	}

	return Compose(body, req.Header), nil
}

func (o *Orchestrator) validate(req Request) error {
	if len(req.Audio) == 0 {
		return errors.NewValidationError("audio file is empty", "EMPTY_AUDIO", "Choose a non-empty audio file.")
	}
	if !req.Format.Valid() {
		return errors.NewValidationError(
			fmt.Sprintf("unsupported audio format %q", req.Format),
			"UNSUPPORTED_AUDIO_FORMAT",
			"Upload an mp3, m4a or wav file.",
		)
	}
	if !slices.Contains(o.models, req.Model) {
		return errors.NewValidationError(
			fmt.Sprintf("unknown model %q", req.Model),
			"UNKNOWN_MODEL",
			"Choose one of: "+strings.Join(o.models, ", "),
		)
	}
	return nil
}

func (o *Orchestrator) spool(req Request) (string, error) {
	f, err := os.CreateTemp(o.tempDir, "audio-*"+req.Format.Extension())
	if err != nil {
		return "", errors.NewLocalIOError("failed to create temporary audio file", "TEMP_FILE_CREATE_FAILED", err)
	}
	path := f.Name()

	_, writeErr := f.Write(req.Audio)
	closeErr := f.Close()
	if writeErr == nil {
		writeErr = closeErr
	}
	if writeErr != nil {
		if rmErr := os.Remove(path); rmErr != nil {
			o.logger.Warn("Failed to remove temp audio file", "path", path, "error", rmErr)
		}
		return "", errors.NewLocalIOError("failed to write temporary audio file", "TEMP_FILE_WRITE_FAILED", writeErr)
	}
	return path, nil
}

// waitReady polls until the handle leaves PROCESSING. A failed status check
// ends the job.
func (o *Orchestrator) waitReady(ctx context.Context, handle Handle, progress ProgressFunc) (Handle, error) {
	if !handle.State.Terminal() {
		progress(StageProcessing, StageProcessing.Message())

		var attempts int
		var err error
		handle, attempts, err = utils.Poll(ctx, o.poll, func(ctx context.Context, attempt int) (Handle, bool, error) {
			h, err := o.remote.GetStatus(ctx, handle)
			if err != nil {
				return handle, false, err
			}
			return h, h.State.Terminal(), nil
		})
		metrics.PollAttempts.Record(ctx, int64(attempts))
		o.logger.DebugContext(ctx, "Remote processing wait finished", "attempts", attempts, "state", handle.State)

		switch {
		case err == nil:
		case stderrors.Is(err, utils.ErrPollExhausted):
			return handle, errors.NewRemoteProcessingError(
				fmt.Sprintf("audio still processing after %d status checks", attempts),
				"REMOTE_PROCESSING_TIMEOUT", err)
		case ctx.Err() != nil:
			return handle, errors.NewRemoteProcessingError("waiting for remote processing was cancelled", "REMOTE_PROCESSING_CANCELLED", err)
		default:
			return handle, errors.NewRemoteProcessingError("failed to check remote file status", "STATUS_CHECK_FAILED", err)
		}
	}

	if handle.State == StateFailed {
		return handle, errors.NewRemoteProcessingError("the remote service could not process the audio file", "REMOTE_PROCESSING_FAILED", nil)
	}
	return handle, nil
}

// discard deletes the remote file. It runs even when ctx was cancelled.
func (o *Orchestrator) discard(ctx context.Context, handle Handle) {
	if handle.Name == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if err := o.remote.Delete(ctx, handle); err != nil {
		o.logger.WarnContext(ctx, "Failed to delete remote audio file", "remote_name", handle.Name, "error", err)
	}
}

func asUploadError(err error) error {
	if appErr, ok := errors.As(err); ok && appErr.Type == errors.ErrorTypeUpload {
		return appErr
	}
	return errors.NewUploadError("failed to upload audio file", "UPLOAD_FAILED", err)
}

func displayName(req Request) string {
	if req.FileName != "" {
		return req.FileName
	}
	return "audio" + req.Format.Extension()
}
