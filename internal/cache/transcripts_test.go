package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranscriptCache_RoundTrip(t *testing.T) {
	backend := NewMemoryCache()
	c := NewTranscriptCache(backend, time.Hour)
	ctx := context.Background()

	want := &CachedTranscript{FileName: "meeting_transcription.txt", Text: "担当者：山田\n\nこんにちは"}
	require.NoError(t, c.Set(ctx, "id-1", want))

	raw, _ := backend.Get(ctx, "transcript:id-1")
	assert.NotNil(t, raw, "transcripts are stored under the transcript: prefix")

	got, err := c.Get(ctx, "id-1")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestTranscriptCache_Missing(t *testing.T) {
	c := NewTranscriptCache(NewMemoryCache(), 0)

	got, err := c.Get(context.Background(), "nope")

	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Equal(t, DefaultTranscriptTTL, c.ttl)
}

func TestTranscriptCache_CorruptEntry(t *testing.T) {
	backend := NewMemoryCache()
	c := NewTranscriptCache(backend, time.Hour)
	ctx := context.Background()
	_ = backend.Set(ctx, "transcript:bad", []byte("{not json"), time.Hour)

	got, err := c.Get(ctx, "bad")

	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestTranscriptCache_Redis(t *testing.T) {
	redisURL := os.Getenv("TEST_REDIS_URL")
	if redisURL == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	backend, err := NewRedisCacheFromURL(redisURL)
	require.NoError(t, err)
	defer backend.Close()

	ctx := context.Background()
	require.NoError(t, backend.Ping(ctx))

	c := NewTranscriptCache(backend, time.Minute)
	require.NoError(t, c.Set(ctx, "redis-test", &CachedTranscript{FileName: "a.txt", Text: "x"}))
	defer c.Delete(ctx, "redis-test")

	got, err := c.Get(ctx, "redis-test")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "x", got.Text)
}
