package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/mojiokoshi/transcriber/internal/db"
	apperrors "github.com/mojiokoshi/transcriber/internal/errors"
	"github.com/mojiokoshi/transcriber/internal/middleware"
	"github.com/mojiokoshi/transcriber/internal/sentry"
	"github.com/mojiokoshi/transcriber/internal/services/transcription"
	"github.com/mojiokoshi/transcriber/internal/worker"
)

const listJobsLimit = 50

type CreateJobResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

type JobStatusResponse struct {
	ID              string `json:"id"`
	FileName        string `json:"file_name"`
	Model           string `json:"model"`
	MeetingType     string `json:"meeting_type"`
	Status          string `json:"status"`
	ProgressStage   string `json:"progress_stage,omitempty"`
	ProgressMessage string `json:"progress_message,omitempty"`
	ErrorCode       string `json:"error_code,omitempty"`
	Error           string `json:"error,omitempty"`
	TranscriptURL   string `json:"transcript_url,omitempty"`
	CreatedAt       string `json:"created_at"`
	UpdatedAt       string `json:"updated_at"`
}

type ListJobsResponse struct {
	Jobs []JobStatusResponse `json:"jobs"`
}

func toJobStatus(job *db.Job) JobStatusResponse {
	resp := JobStatusResponse{
		ID:              job.ID.String(),
		FileName:        job.FileName,
		Model:           job.Model,
		MeetingType:     job.MeetingType,
		Status:          string(job.Status),
		ProgressStage:   job.ProgressStage,
		ProgressMessage: job.ProgressMessage,
		CreatedAt:       job.CreatedAt.Format(time.RFC3339),
		UpdatedAt:       job.UpdatedAt.Format(time.RFC3339),
	}
	if job.ErrorCode != nil {
		resp.ErrorCode = *job.ErrorCode
	}
	if job.ErrorMessage != nil {
		resp.Error = *job.ErrorMessage
	}
	if job.Status == db.JobStatusCompleted {
		resp.TranscriptURL = "/api/transcriptions/" + resp.ID + "/transcript"
	}
	return resp
}

// HandleCreateJob accepts a multipart upload, records a pending job and
// queues it for the worker.
func (s *Server) HandleCreateJob(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	if !s.AsyncEnabled() {
		http.Error(w, "Async transcription is not configured", http.StatusServiceUnavailable)
		return
	}

	u, err := parseUpload(w, r, s.cfg)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !s.cfg.Transcription.HasModel(u.Model) {
		writeError(w, r, apperrors.NewValidationError("unknown model "+u.Model, "UNKNOWN_MODEL", "Choose one of the configured models."))
		return
	}

	jobID := uuid.New()
	if _, err := s.jobs.CreateJob(r.Context(), db.CreateJobParams{
		ID:          jobID,
		UserID:      userID,
		FileName:    u.FileName,
		Format:      string(u.Format),
		Model:       u.Model,
		MeetingType: string(u.MeetingType),
	}); err != nil {
		writeError(w, r, apperrors.NewInternalError("failed to create transcription job", err))
		return
	}

	task, err := worker.NewTranscribeTask(worker.TranscribePayload{
		JobID:       jobID.String(),
		UserID:      userID,
		FileName:    u.FileName,
		Format:      string(u.Format),
		Model:       u.Model,
		MeetingType: string(u.MeetingType),
		Fields:      u.Values,
		Audio:       u.Audio,
	}, s.cfg.Transcription.TaskTimeout())
	if err == nil {
		_, err = s.queue.EnqueueContext(r.Context(), task)
	}
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed to enqueue transcription", "job_id", jobID, "error", err)
		if failErr := s.jobs.FailJob(r.Context(), jobID, "ENQUEUE_FAILED", "failed to enqueue transcription"); failErr != nil {
			slog.ErrorContext(r.Context(), "Failed to mark job failed", "job_id", jobID, "error", failErr)
			sentry.CaptureError(failErr, map[string]string{"job_id": jobID.String(), "stage": "enqueue"})
		}
		writeError(w, r, apperrors.NewInternalError("failed to enqueue transcription", err))
		return
	}

	writeJSON(w, http.StatusAccepted, CreateJobResponse{JobID: jobID.String(), Status: string(db.JobStatusPending)})
}

// loadJob fetches the job named in the URL and checks it belongs to the
// caller. Other users' jobs are reported as missing.
func (s *Server) loadJob(w http.ResponseWriter, r *http.Request) (*db.Job, bool) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return nil, false
	}
	if !s.AsyncEnabled() {
		http.Error(w, "Async transcription is not configured", http.StatusServiceUnavailable)
		return nil, false
	}

	jobID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, apperrors.NewValidationError("invalid job id", "INVALID_JOB_ID", "Use the job_id returned on submission."))
		return nil, false
	}

	job, err := s.jobs.GetJob(r.Context(), jobID)
	if errors.Is(err, db.ErrJobNotFound) || (err == nil && job.UserID != userID) {
		writeError(w, r, apperrors.NewNotFoundError("transcription job not found", "JOB_NOT_FOUND", ""))
		return nil, false
	}
	if err != nil {
		writeError(w, r, apperrors.NewInternalError("failed to load transcription job", err))
		return nil, false
	}
	return job, true
}

func (s *Server) HandleJobStatus(w http.ResponseWriter, r *http.Request) {
	job, ok := s.loadJob(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toJobStatus(job))
}

// HandleJobTranscript downloads the transcript of a completed job. Unfinished
// and failed jobs answer 409.
func (s *Server) HandleJobTranscript(w http.ResponseWriter, r *http.Request) {
	job, ok := s.loadJob(w, r)
	if !ok {
		return
	}
	if job.Status != db.JobStatusCompleted || job.Transcript == nil {
		writeJSON(w, http.StatusConflict, errorResponse{
			Error:   "JOB_NOT_COMPLETED",
			Message: "transcription job is " + string(job.Status),
		})
		return
	}
	writeTextAttachment(w, transcription.OutputFileName(job.FileName, transcription.VariantWeb), *job.Transcript)
}

func (s *Server) HandleListJobs(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	if !s.AsyncEnabled() {
		http.Error(w, "Async transcription is not configured", http.StatusServiceUnavailable)
		return
	}

	jobs, err := s.jobs.ListJobsByUser(r.Context(), userID, listJobsLimit)
	if err != nil {
		writeError(w, r, apperrors.NewInternalError("failed to fetch jobs", err))
		return
	}

	response := ListJobsResponse{Jobs: make([]JobStatusResponse, len(jobs))}
	for i, job := range jobs {
		response.Jobs[i] = toJobStatus(job)
	}
	writeJSON(w, http.StatusOK, response)
}
