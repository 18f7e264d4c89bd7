package worker

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "github.com/mojiokoshi/transcriber/internal/errors"
)

// startQueue runs an asynq server for processor against an in-memory Redis.
func startQueue(t *testing.T, processor *TranscriptionProcessor) (*asynq.Client, *asynq.Inspector) {
	t.Helper()
	mini, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mini.Close)

	opt := asynq.RedisClientOpt{Addr: mini.Addr()}
	srv := asynq.NewServer(opt, asynq.Config{
		Concurrency:     1,
		Logger:          newAsynqLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		ShutdownTimeout: time.Second,
	})
	require.NoError(t, srv.Start(NewMux(processor, nil)))
	t.Cleanup(srv.Shutdown)

	client := asynq.NewClient(opt)
	t.Cleanup(func() { _ = client.Close() })
	inspector := asynq.NewInspector(opt)
	t.Cleanup(func() { _ = inspector.Close() })
	return client, inspector
}

func failingTranscriber() *MockTranscriber {
	transcriber := new(MockTranscriber)
	transcriber.On("SubmitWithProgress", mock.Anything, mock.Anything).
		Return(nil, apperrors.NewUploadError("failed to upload audio", "UPLOAD_HTTP_503", errors.New("unavailable")))
	return transcriber
}

// queueIdle reports whether no task is waiting or running.
func queueIdle(inspector *asynq.Inspector) bool {
	pending, err := inspector.ListPendingTasks("default")
	if err != nil || len(pending) > 0 {
		return false
	}
	active, err := inspector.ListActiveTasks("default")
	return err == nil && len(active) == 0
}

func TestQueue_FailedJobIsNotArchived(t *testing.T) {
	jobID := uuid.New()
	recorded := make(chan struct{})

	ledger := new(MockLedger)
	ledger.On("FailJob", mock.Anything, jobID, "UPLOAD_HTTP_503", mock.Anything).
		Run(func(mock.Arguments) { close(recorded) }).
		Return(nil)
	transcriber := failingTranscriber()
	client, inspector := startQueue(t, NewTranscriptionProcessor(ledger, func() Transcriber { return transcriber }))

	task, err := NewTranscribeTask(samplePayload(jobID), time.Minute)
	require.NoError(t, err)
	info, err := client.Enqueue(task)
	require.NoError(t, err)
	assert.Equal(t, time.Minute, info.Timeout)
	assert.Equal(t, 0, info.MaxRetry)

	select {
	case <-recorded:
	case <-time.After(10 * time.Second):
		t.Fatal("job failure was never recorded")
	}
	require.Eventually(t, func() bool { return queueIdle(inspector) }, 10*time.Second, 20*time.Millisecond)

	archived, err := inspector.ListArchivedTasks("default")
	require.NoError(t, err)
	assert.Empty(t, archived)
	ledger.AssertExpectations(t)
}

func TestQueue_LedgerFailureIsArchived(t *testing.T) {
	jobID := uuid.New()

	ledger := new(MockLedger)
	ledger.On("FailJob", mock.Anything, jobID, "UPLOAD_HTTP_503", mock.Anything).Return(errors.New("db down"))
	transcriber := failingTranscriber()
	client, inspector := startQueue(t, NewTranscriptionProcessor(ledger, func() Transcriber { return transcriber }))

	task, err := NewTranscribeTask(samplePayload(jobID), time.Minute)
	require.NoError(t, err)
	_, err = client.Enqueue(task)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		archived, err := inspector.ListArchivedTasks("default")
		return err == nil && len(archived) == 1
	}, 10*time.Second, 20*time.Millisecond)
	transcriber.AssertNumberOfCalls(t, "SubmitWithProgress", 1)
}
