package cache

import (
	"context"
	"testing"
	"time"
)

func TestMemoryCache_SetGetDelete(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	if err := c.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	got, err := c.Get(ctx, "k")
	if err != nil || string(got) != "v" {
		t.Fatalf("Get = %q, %v; want v", got, err)
	}

	if err := c.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	got, _ = c.Get(ctx, "k")
	if got != nil {
		t.Errorf("expected nil after delete, got %q", got)
	}
}

func TestMemoryCache_Expiry(t *testing.T) {
	c := NewMemoryCache()
	now := time.Date(2024, 11, 29, 10, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	_ = c.Set(ctx, "k", []byte("v"), time.Hour)

	now = now.Add(59 * time.Minute)
	if got, _ := c.Get(ctx, "k"); string(got) != "v" {
		t.Errorf("expected value before expiry, got %q", got)
	}

	now = now.Add(time.Minute)
	if got, _ := c.Get(ctx, "k"); got != nil {
		t.Errorf("expected nil after expiry, got %q", got)
	}
}

func TestMemoryCache_SetCopiesValue(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()
	buf := []byte("abc")

	_ = c.Set(ctx, "k", buf, 0)
	buf[0] = 'x'

	if got, _ := c.Get(ctx, "k"); string(got) != "abc" {
		t.Errorf("stored value changed with caller's buffer: %q", got)
	}
}
