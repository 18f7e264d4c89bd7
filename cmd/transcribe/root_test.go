package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mojiokoshi/transcriber/internal/config"
	apperrors "github.com/mojiokoshi/transcriber/internal/errors"
	"github.com/mojiokoshi/transcriber/internal/services/transcription"
	"github.com/mojiokoshi/transcriber/internal/worker"
)

type stubTranscriber struct {
	apiKey string
	req    transcription.Request
	err    error
}

func (s *stubTranscriber) SubmitWithProgress(ctx context.Context, req transcription.Request, progress transcription.ProgressFunc) (*transcription.Result, error) {
	s.req = req
	for _, stage := range []transcription.Stage{transcription.StagePreparing, transcription.StageUploading, transcription.StageTranscribing} {
		progress(stage, stage.Message())
	}
	if s.err != nil {
		progress(transcription.StageFailed, transcription.StageFailed.Message())
		return nil, s.err
	}
	progress(transcription.StageCompleted, transcription.StageCompleted.Message())
	return transcription.Compose("こんにちは", req.Header), nil
}

func testDeps(t *testing.T, apiKey string, stub *stubTranscriber) deps {
	t.Helper()
	return deps{
		loadConfig: func() (*config.Config, error) {
			cfg := &config.Config{GeminiAPIKey: apiKey}
			cfg.SetDefaults()
			cfg.SetTranscriptionDefaults()
			return cfg, nil
		},
		newTranscriber: func(cfg *config.Config, key string) worker.Transcriber {
			stub.apiKey = key
			return stub
		},
	}
}

func writeAudio(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("audio"), 0o600))
	return path
}

func execute(t *testing.T, d deps, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand(d)
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestTranscribe_WritesNextToAudio(t *testing.T) {
	stub := &stubTranscriber{}
	audio := writeAudio(t, "会議.m4a")

	stdout, stderr, err := execute(t, testDeps(t, "key-1", stub), audio)

	require.NoError(t, err)
	want := filepath.Join(filepath.Dir(audio), "会議.txt")
	assert.Equal(t, want+"\n", stdout)
	assert.Contains(t, stderr, string(transcription.StageUploading))

	data, err := os.ReadFile(want)
	require.NoError(t, err)
	assert.Equal(t, "こんにちは", string(data))
	assert.Equal(t, "key-1", stub.apiKey)
	assert.Equal(t, transcription.FormatM4A, stub.req.Format)
	assert.Equal(t, config.DefaultModel, stub.req.Model)
}

func TestTranscribe_HeaderFromFields(t *testing.T) {
	stub := &stubTranscriber{}
	audio := writeAudio(t, "a.mp3")
	out := filepath.Join(t.TempDir(), "out.txt")

	_, _, err := execute(t, testDeps(t, "k", stub), audio,
		"--type", "support",
		"--field", "in_charge_name=山田",
		"--field", "user_name=鈴木",
		"--model", "gemini-2.5-flash",
		"--out", out,
	)

	require.NoError(t, err)
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "担当者：山田\n利用者名：鈴木\n"))
	assert.True(t, strings.HasSuffix(string(data), "\n\nこんにちは"))
	assert.Equal(t, "gemini-2.5-flash", stub.req.Model)
}

func TestTranscribe_Errors(t *testing.T) {
	tests := []struct {
		name   string
		file   string
		args   []string
		apiKey string
		err    error
		code   string
	}{
		{name: "unsupported format", file: "a.ogg", apiKey: "k", code: "UNSUPPORTED_AUDIO_FORMAT"},
		{name: "unknown type", file: "a.mp3", apiKey: "k", args: []string{"--type", "party"}, code: "UNKNOWN_MEETING_TYPE"},
		{name: "unknown field", file: "a.mp3", apiKey: "k", args: []string{"--type", "general", "--field", "user_name=x"}, code: "UNKNOWN_FIELD"},
		{name: "malformed field", file: "a.mp3", apiKey: "k", args: []string{"--type", "general", "--field", "subject"}, code: "INVALID_FIELD"},
		{name: "no credential", file: "a.mp3", code: "MISSING_CREDENTIAL"},
		{
			name:   "generation failure",
			file:   "a.mp3",
			apiKey: "k",
			err:    apperrors.NewGenerationError("boom", "GENERATION_HTTP_500", nil),
			code:   "GENERATION_HTTP_500",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			audio := writeAudio(t, tt.file)
			args := append([]string{audio}, tt.args...)

			_, _, err := execute(t, testDeps(t, tt.apiKey, &stubTranscriber{err: tt.err}), args...)

			require.Error(t, err)
			appErr, ok := apperrors.As(err)
			require.True(t, ok, "expected AppError, got %v", err)
			assert.Equal(t, tt.code, appErr.Code())
			assert.NotContains(t, errorLine(err), "\n")

			_, statErr := os.Stat(transcription.DesktopOutputPath(audio))
			assert.True(t, os.IsNotExist(statErr))
		})
	}
}

func TestTranscribe_MissingFile(t *testing.T) {
	_, _, err := execute(t, testDeps(t, "k", &stubTranscriber{}), filepath.Join(t.TempDir(), "missing.mp3"))

	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, "AUDIO_READ_FAILED", appErr.Code())
}

func TestModelsCommand(t *testing.T) {
	stdout, _, err := execute(t, testDeps(t, "k", &stubTranscriber{}), "models")

	require.NoError(t, err)
	for _, m := range config.DefaultModels {
		assert.Contains(t, stdout, m)
	}
}

func TestLayoutsCommand(t *testing.T) {
	stdout, _, err := execute(t, testDeps(t, "k", &stubTranscriber{}), "layouts")

	require.NoError(t, err)
	assert.Contains(t, stdout, "conference")
	assert.Contains(t, stdout, "meeting_name")
}
