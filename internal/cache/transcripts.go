package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"
)

// DefaultTranscriptTTL keeps a finished transcript downloadable for an hour.
const DefaultTranscriptTTL = time.Hour

// CachedTranscript is a composed transcript waiting to be downloaded.
type CachedTranscript struct {
	FileName string `json:"file_name"`
	Text     string `json:"text"`
}

// TranscriptCache stores finished transcripts keyed by download id.
type TranscriptCache struct {
	backend Cache
	prefix  string
	ttl     time.Duration
}

func NewTranscriptCache(backend Cache, ttl time.Duration) *TranscriptCache {
	if ttl <= 0 {
		ttl = DefaultTranscriptTTL
	}
	return &TranscriptCache{
		backend: backend,
		prefix:  "transcript:",
		ttl:     ttl,
	}
}

func (c *TranscriptCache) makeKey(id string) string {
	return c.prefix + id
}

// Get returns nil when the transcript is unknown or expired.
func (c *TranscriptCache) Get(ctx context.Context, id string) (*CachedTranscript, error) {
	data, err := c.backend.Get(ctx, c.makeKey(id))
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, nil
	}

	var t CachedTranscript
	if err := json.Unmarshal(data, &t); err != nil {
		slog.WarnContext(ctx, "Failed to unmarshal cached transcript", "id", id, "error", err)
		return nil, nil
	}
	return &t, nil
}

func (c *TranscriptCache) Set(ctx context.Context, id string, t *CachedTranscript) error {
	data, err := json.Marshal(t)
	if err != nil {
		return err
	}
	return c.backend.Set(ctx, c.makeKey(id), data, c.ttl)
}

func (c *TranscriptCache) Delete(ctx context.Context, id string) error {
	return c.backend.Delete(ctx, c.makeKey(id))
}
