// Package integration runs the HTTP API, the queue handler and the Gemini
// adapter together against in-memory fakes.
package integration

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/mojiokoshi/transcriber/internal/api"
	"github.com/mojiokoshi/transcriber/internal/cache"
	"github.com/mojiokoshi/transcriber/internal/config"
	"github.com/mojiokoshi/transcriber/internal/db"
	"github.com/mojiokoshi/transcriber/internal/services/gemini"
	"github.com/mojiokoshi/transcriber/internal/worker"
)

// ============================================================================
// Job ledger
// ============================================================================

// MemoryLedger implements both api.JobStore and worker.JobLedger.
type MemoryLedger struct {
	mu       sync.Mutex
	jobs     map[uuid.UUID]*db.Job
	progress map[uuid.UUID][]string
}

var (
	_ api.JobStore     = (*MemoryLedger)(nil)
	_ worker.JobLedger = (*MemoryLedger)(nil)
)

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		jobs:     make(map[uuid.UUID]*db.Job),
		progress: make(map[uuid.UUID][]string),
	}
}

func (m *MemoryLedger) CreateJob(ctx context.Context, arg db.CreateJobParams) (*db.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	job := &db.Job{
		ID:          arg.ID,
		UserID:      arg.UserID,
		FileName:    arg.FileName,
		Format:      arg.Format,
		Model:       arg.Model,
		MeetingType: arg.MeetingType,
		Status:      db.JobStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	m.jobs[arg.ID] = job
	copied := *job
	return &copied, nil
}

func (m *MemoryLedger) GetJob(ctx context.Context, id uuid.UUID) (*db.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, db.ErrJobNotFound
	}
	copied := *job
	return &copied, nil
}

func (m *MemoryLedger) ListJobsByUser(ctx context.Context, userID string, limit int) ([]*db.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var jobs []*db.Job
	for _, job := range m.jobs {
		if job.UserID == userID {
			copied := *job
			jobs = append(jobs, &copied)
		}
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].CreatedAt.After(jobs[j].CreatedAt) })
	if len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs, nil
}

func (m *MemoryLedger) UpdateJobProgress(ctx context.Context, id uuid.UUID, stage, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok || job.Status.Done() {
		return nil
	}
	job.Status = db.JobStatusProcessing
	job.ProgressStage = stage
	job.ProgressMessage = message
	job.UpdatedAt = time.Now()
	m.progress[id] = append(m.progress[id], stage)
	return nil
}

func (m *MemoryLedger) CompleteJob(ctx context.Context, id uuid.UUID, transcript, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return db.ErrJobNotFound
	}
	now := time.Now()
	job.Status = db.JobStatusCompleted
	job.ProgressStage = "completed"
	job.ProgressMessage = message
	job.Transcript = &transcript
	job.CompletedAt = &now
	return nil
}

func (m *MemoryLedger) FailJob(ctx context.Context, id uuid.UUID, code, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return db.ErrJobNotFound
	}
	now := time.Now()
	job.Status = db.JobStatusFailed
	job.ProgressStage = "failed"
	job.ErrorCode = &code
	job.ErrorMessage = &message
	job.CompletedAt = &now
	return nil
}

func (m *MemoryLedger) DeleteOldJobs(ctx context.Context, olderThan time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := time.Now().Add(-olderThan)
	var deleted int64
	for id, job := range m.jobs {
		if job.CreatedAt.Before(cutoff) {
			delete(m.jobs, id)
			deleted++
		}
	}
	return deleted, nil
}

func (m *MemoryLedger) Stages(id uuid.UUID) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.progress[id]...)
}

// ============================================================================
// Queue
// ============================================================================

// CapturingQueue records tasks so a test can hand them to the worker mux.
type CapturingQueue struct {
	mu    sync.Mutex
	tasks []*asynq.Task
}

func (q *CapturingQueue) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = append(q.tasks, task)
	return &asynq.TaskInfo{ID: uuid.NewString(), Type: task.Type()}, nil
}

func (q *CapturingQueue) Close() error { return nil }

// Drain runs every captured task through mux and returns the handler errors.
func (q *CapturingQueue) Drain(ctx context.Context, mux *asynq.ServeMux) []error {
	q.mu.Lock()
	tasks := q.tasks
	q.tasks = nil
	q.mu.Unlock()

	var errs []error
	for _, task := range tasks {
		errs = append(errs, mux.ProcessTask(ctx, task))
	}
	return errs
}

// ============================================================================
// Gemini
// ============================================================================

// FakeGemini serves the Files API and generateContent from memory.
type FakeGemini struct {
	*httptest.Server
	ProcessingPolls int32
	FinalState      genai.FileState
	Text            string

	polls   atomic.Int32
	deletes atomic.Int32
}

func NewFakeGemini(t *testing.T, processingPolls int32, finalState genai.FileState, text string) *FakeGemini {
	t.Helper()
	g := &FakeGemini{ProcessingPolls: processingPolls, FinalState: finalState, Text: text}
	g.Server = httptest.NewServer(http.HandlerFunc(g.serve))
	t.Cleanup(g.Close)
	return g
}

func (g *FakeGemini) serve(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/upload/v1beta/files":
		w.Header().Set("X-Goog-Upload-URL", g.URL+"/session")
	case r.URL.Path == "/session":
		_, _ = io.Copy(io.Discard, r.Body)
		w.Header().Set("X-Goog-Upload-Status", "final")
		_, _ = w.Write([]byte(`{"file":{"name":"files/f1","uri":"` + g.URL + `/files/f1","state":"PROCESSING"}}`))
	case r.Method == http.MethodGet && r.URL.Path == "/v1beta/files/f1":
		state := g.FinalState
		if g.polls.Add(1) <= g.ProcessingPolls {
			state = genai.FileStateProcessing
		}
		_, _ = w.Write([]byte(`{"name":"files/f1","state":"` + string(state) + `"}`))
	case r.Method == http.MethodDelete:
		g.deletes.Add(1)
		_, _ = w.Write([]byte(`{}`))
	case strings.HasSuffix(r.URL.Path, ":generateContent"):
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"` + g.Text + `"}]}}]}`))
	default:
		http.NotFound(w, r)
	}
}

func (g *FakeGemini) Deletes() int32 { return g.deletes.Load() }

// ============================================================================
// Fixtures
// ============================================================================

const testJWTSecret = "integration-secret"

type testFixtures struct {
	cfg    *config.Config
	ledger *MemoryLedger
	queue  *CapturingQueue
	gemini *FakeGemini
	router http.Handler
	mux    *asynq.ServeMux
}

func setupTestFixtures(t *testing.T, g *FakeGemini) *testFixtures {
	t.Helper()
	cfg := &config.Config{
		GeminiAPIKey:  "test-key",
		GeminiBaseURL: g.URL,
		AuthJWTSecret: testJWTSecret,
		TempDir:       t.TempDir(),
	}
	cfg.SetDefaults()
	cfg.SetTranscriptionDefaults()
	cfg.Transcription.PollInterval = time.Millisecond
	cfg.Transcription.PollMaxAttempts = 20

	ledger := NewMemoryLedger()
	queue := &CapturingQueue{}
	transcripts := cache.NewTranscriptCache(cache.NewMemoryCache(), time.Hour)

	server := api.NewServer(cfg, transcripts, func(apiKey string) worker.Transcriber {
		return gemini.NewOrchestrator(cfg, apiKey)
	}, ledger, queue)

	processor := worker.NewTranscriptionProcessor(ledger, func() worker.Transcriber {
		return gemini.NewOrchestrator(cfg, cfg.GeminiAPIKey)
	})

	return &testFixtures{
		cfg:    cfg,
		ledger: ledger,
		queue:  queue,
		gemini: g,
		router: api.NewRouter(server),
		mux:    worker.NewMux(processor, nil),
	}
}

func createTestToken(secret, userID string, ttl time.Duration) string {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": userID,
		"exp": time.Now().Add(ttl).Unix(),
	})
	tokenString, _ := token.SignedString([]byte(secret))
	return tokenString
}

func uploadRequest(t *testing.T, token string, fields map[string]string, fileName string, audio []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	fw, err := mw.CreateFormFile("audio", fileName)
	require.NoError(t, err)
	_, _ = fw.Write(audio)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/transcriptions", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func authedGet(path, token string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}
