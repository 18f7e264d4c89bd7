package worker

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

// Task type constants
const (
	TypeTranscribeAudio = "transcription:process"
	TypeCleanupJobs     = "cleanup:jobs"
)

// TranscribePayload is the payload for transcription tasks. Audio travels
// inside the task so the worker needs no shared storage.
type TranscribePayload struct {
	JobID       string            `json:"job_id"`
	UserID      string            `json:"user_id"`
	FileName    string            `json:"file_name"`
	Format      string            `json:"format"`
	Model       string            `json:"model"`
	MeetingType string            `json:"meeting_type"`
	Fields      map[string]string `json:"fields,omitempty"`
	Audio       []byte            `json:"audio"`
}

// NewTranscribeTask creates a transcription task that is never retried.
// timeout should cover the remote work, see config.TranscriptionConfig.TaskTimeout.
func NewTranscribeTask(payload TranscribePayload, timeout time.Duration) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	opts := []asynq.Option{asynq.MaxRetry(0)}
	if timeout > 0 {
		opts = append(opts, asynq.Timeout(timeout))
	}
	return asynq.NewTask(TypeTranscribeAudio, data, opts...), nil
}

// NewCleanupJobsTask creates a new cleanup task
func NewCleanupJobsTask() *asynq.Task {
	return asynq.NewTask(TypeCleanupJobs, nil, asynq.MaxRetry(1))
}
