package integration

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/mojiokoshi/transcriber/internal/api"
	"github.com/mojiokoshi/transcriber/internal/db"
	"github.com/mojiokoshi/transcriber/internal/worker"
)

func submitJob(t *testing.T, f *testFixtures, token string, fields map[string]string) string {
	t.Helper()
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, uploadRequest(t, token, fields, "面談.wav", []byte("RIFF....WAVE")))
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())

	var resp api.CreateJobResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	return resp.JobID
}

func jobStatus(t *testing.T, f *testFixtures, token, jobID string) api.JobStatusResponse {
	t.Helper()
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, authedGet("/api/transcriptions/"+jobID, token))
	require.Equal(t, http.StatusOK, rr.Code)

	var resp api.JobStatusResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	return resp
}

func TestTranscriptionJob_EndToEnd(t *testing.T) {
	g := NewFakeGemini(t, 2, genai.FileStateActive, "本日はよろしくお願いします。")
	f := setupTestFixtures(t, g)
	token := createTestToken(testJWTSecret, "user-1", time.Hour)

	jobID := submitJob(t, f, token, map[string]string{
		"meeting_type":   "support",
		"in_charge_name": "山田",
		"user_name":      "鈴木",
	})
	assert.Equal(t, "pending", jobStatus(t, f, token, jobID).Status)

	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, authedGet("/api/transcriptions/"+jobID+"/transcript", token))
	assert.Equal(t, http.StatusConflict, rr.Code)

	errs := f.queue.Drain(context.Background(), f.mux)
	require.Len(t, errs, 1)
	require.NoError(t, errs[0])

	status := jobStatus(t, f, token, jobID)
	assert.Equal(t, "completed", status.Status)
	assert.NotEmpty(t, status.TranscriptURL)
	assert.Equal(t, []string{"preparing", "uploading", "processing", "transcribing"}, f.ledger.Stages(uuid.MustParse(jobID)))
	assert.Equal(t, int32(1), g.Deletes())

	rr = httptest.NewRecorder()
	f.router.ServeHTTP(rr, authedGet(status.TranscriptURL, token))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "担当者：山田\n利用者名：鈴木\n")
	assert.Contains(t, rr.Body.String(), "\n\n本日はよろしくお願いします。")
	assert.Contains(t, rr.Header().Get("Content-Disposition"), "_transcription.txt")
}

func TestTranscriptionJob_RemoteFailure(t *testing.T) {
	g := NewFakeGemini(t, 1, genai.FileStateFailed, "unused")
	f := setupTestFixtures(t, g)
	token := createTestToken(testJWTSecret, "user-1", time.Hour)

	jobID := submitJob(t, f, token, nil)

	errs := f.queue.Drain(context.Background(), f.mux)
	require.Len(t, errs, 1)
	require.NoError(t, errs[0])

	status := jobStatus(t, f, token, jobID)
	assert.Equal(t, "failed", status.Status)
	assert.Equal(t, "REMOTE_PROCESSING_FAILED", status.ErrorCode)
	assert.Empty(t, status.TranscriptURL)
	assert.Equal(t, int32(1), g.Deletes())

	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, authedGet("/api/transcriptions/"+jobID+"/transcript", token))
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestCleanupTask(t *testing.T) {
	f := setupTestFixtures(t, NewFakeGemini(t, 0, genai.FileStateActive, "text"))

	old := uuid.New()
	_, err := f.ledger.CreateJob(context.Background(), db.CreateJobParams{ID: old, UserID: "u"})
	require.NoError(t, err)
	f.ledger.jobs[old].CreatedAt = time.Now().Add(-worker.JobRetention - time.Hour)

	recent := uuid.New()
	_, err = f.ledger.CreateJob(context.Background(), db.CreateJobParams{ID: recent, UserID: "u"})
	require.NoError(t, err)

	require.NoError(t, f.mux.ProcessTask(context.Background(), worker.NewCleanupJobsTask()))

	_, err = f.ledger.GetJob(context.Background(), old)
	assert.ErrorIs(t, err, db.ErrJobNotFound)
	_, err = f.ledger.GetJob(context.Background(), recent)
	assert.NoError(t, err)
}
