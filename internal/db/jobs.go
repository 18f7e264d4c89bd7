package db

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrJobNotFound is returned when no ledger row matches.
var ErrJobNotFound = errors.New("transcription job not found")

type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Done reports whether the job reached a final status.
func (s JobStatus) Done() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// DBTX is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Job struct {
	ID              uuid.UUID  `json:"id"`
	UserID          string     `json:"user_id"`
	FileName        string     `json:"file_name"`
	Format          string     `json:"format"`
	Model           string     `json:"model"`
	MeetingType     string     `json:"meeting_type"`
	Status          JobStatus  `json:"status"`
	ProgressStage   string     `json:"progress_stage"`
	ProgressMessage string     `json:"progress_message"`
	Transcript      *string    `json:"-"`
	ErrorCode       *string    `json:"error_code,omitempty"`
	ErrorMessage    *string    `json:"error_message,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

type CreateJobParams struct {
	ID          uuid.UUID
	UserID      string
	FileName    string
	Format      string
	Model       string
	MeetingType string
}

// JobStore reads and writes the transcription_jobs ledger.
type JobStore struct {
	db DBTX
}

func NewJobStore(db DBTX) *JobStore {
	return &JobStore{db: db}
}

const jobColumns = `id, user_id, file_name, format, model, meeting_type, status,
    progress_stage, progress_message, transcript, error_code, error_message,
    created_at, updated_at, completed_at`

func scanJob(row pgx.Row) (*Job, error) {
	var j Job
	err := row.Scan(
		&j.ID, &j.UserID, &j.FileName, &j.Format, &j.Model, &j.MeetingType, &j.Status,
		&j.ProgressStage, &j.ProgressMessage, &j.Transcript, &j.ErrorCode, &j.ErrorMessage,
		&j.CreatedAt, &j.UpdatedAt, &j.CompletedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}
	return &j, nil
}

const createJob = `INSERT INTO transcription_jobs (id, user_id, file_name, format, model, meeting_type, status)
VALUES ($1, $2, $3, $4, $5, $6, 'pending')
RETURNING ` + jobColumns

func (s *JobStore) CreateJob(ctx context.Context, arg CreateJobParams) (*Job, error) {
	row := s.db.QueryRow(ctx, createJob, arg.ID, arg.UserID, arg.FileName, arg.Format, arg.Model, arg.MeetingType)
	return scanJob(row)
}

const getJob = `SELECT ` + jobColumns + ` FROM transcription_jobs WHERE id = $1`

func (s *JobStore) GetJob(ctx context.Context, id uuid.UUID) (*Job, error) {
	return scanJob(s.db.QueryRow(ctx, getJob, id))
}

const listJobsByUser = `SELECT ` + jobColumns + ` FROM transcription_jobs
WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`

func (s *JobStore) ListJobsByUser(ctx context.Context, userID string, limit int) ([]*Job, error) {
	rows, err := s.db.Query(ctx, listJobsByUser, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

const updateJobProgress = `UPDATE transcription_jobs
SET status = 'processing', progress_stage = $2, progress_message = $3, updated_at = now()
WHERE id = $1 AND status IN ('pending', 'processing')`

// UpdateJobProgress marks the job processing and records the current stage.
// Finished jobs are left untouched.
func (s *JobStore) UpdateJobProgress(ctx context.Context, id uuid.UUID, stage, message string) error {
	_, err := s.db.Exec(ctx, updateJobProgress, id, stage, message)
	return err
}

const completeJob = `UPDATE transcription_jobs
SET status = 'completed', transcript = $2, progress_stage = 'completed', progress_message = $3,
    updated_at = now(), completed_at = now()
WHERE id = $1`

func (s *JobStore) CompleteJob(ctx context.Context, id uuid.UUID, transcript, message string) error {
	tag, err := s.db.Exec(ctx, completeJob, id, transcript, message)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}

const failJob = `UPDATE transcription_jobs
SET status = 'failed', error_code = $2, error_message = $3, progress_stage = 'failed',
    updated_at = now(), completed_at = now()
WHERE id = $1`

func (s *JobStore) FailJob(ctx context.Context, id uuid.UUID, code, message string) error {
	tag, err := s.db.Exec(ctx, failJob, id, code, message)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}

const deleteOldJobs = `DELETE FROM transcription_jobs WHERE created_at < $1`

// DeleteOldJobs removes jobs created before now minus olderThan and returns
// how many rows were deleted.
func (s *JobStore) DeleteOldJobs(ctx context.Context, olderThan time.Duration) (int64, error) {
	tag, err := s.db.Exec(ctx, deleteOldJobs, time.Now().Add(-olderThan))
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
