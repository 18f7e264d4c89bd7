package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mojiokoshi/transcriber/internal/services/transcription"
)

// gatedTranscriber blocks until release is closed.
type gatedTranscriber struct {
	release chan struct{}
	result  *transcription.Result
	err     error
}

func (g *gatedTranscriber) SubmitWithProgress(ctx context.Context, req transcription.Request, progress transcription.ProgressFunc) (*transcription.Result, error) {
	progress(transcription.StagePreparing, transcription.StagePreparing.Message())
	progress(transcription.StageUploading, transcription.StageUploading.Message())
	<-g.release
	if g.err != nil {
		progress(transcription.StageFailed, transcription.StageFailed.Message())
		return nil, g.err
	}
	progress(transcription.StageCompleted, transcription.StageCompleted.Message())
	return g.result, nil
}

func drain(t *testing.T, updates <-chan Update) []Update {
	t.Helper()
	var out []Update
	timeout := time.After(2 * time.Second)
	for {
		select {
		case u, ok := <-updates:
			if !ok {
				return out
			}
			out = append(out, u)
		case <-timeout:
			t.Fatal("timed out waiting for updates")
		}
	}
}

func TestRunner_StreamsProgressThenResult(t *testing.T) {
	g := &gatedTranscriber{release: make(chan struct{}), result: &transcription.Result{Composed: "本文"}}
	r := NewRunner(g)

	updates, err := r.Start(context.Background(), transcription.Request{})
	require.NoError(t, err)
	close(g.release)

	got := drain(t, updates)
	require.Len(t, got, 3)
	assert.Equal(t, transcription.StagePreparing, got[0].Stage)
	assert.Equal(t, transcription.StageUploading, got[1].Stage)
	assert.False(t, got[1].Done)

	final := got[2]
	assert.True(t, final.Done)
	assert.Equal(t, transcription.StageCompleted, final.Stage)
	assert.NoError(t, final.Err)
	assert.Equal(t, "本文", final.Result.Composed)
	assert.False(t, r.Busy())
}

func TestRunner_FinalError(t *testing.T) {
	g := &gatedTranscriber{release: make(chan struct{}), err: errors.New("boom")}
	r := NewRunner(g)

	updates, err := r.Start(context.Background(), transcription.Request{})
	require.NoError(t, err)
	close(g.release)

	got := drain(t, updates)
	final := got[len(got)-1]
	assert.True(t, final.Done)
	assert.Equal(t, transcription.StageFailed, final.Stage)
	assert.Nil(t, final.Result)
	assert.EqualError(t, final.Err, "boom")
}

func TestRunner_RejectsSecondJob(t *testing.T) {
	g := &gatedTranscriber{release: make(chan struct{}), result: &transcription.Result{}}
	r := NewRunner(g)

	updates, err := r.Start(context.Background(), transcription.Request{})
	require.NoError(t, err)
	assert.True(t, r.Busy())

	_, err = r.Start(context.Background(), transcription.Request{})
	assert.ErrorIs(t, err, ErrBusy)

	close(g.release)
	drain(t, updates)

	g.release = make(chan struct{})
	close(g.release)
	updates, err = r.Start(context.Background(), transcription.Request{})
	require.NoError(t, err)
	drain(t, updates)
}
