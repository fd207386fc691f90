package blobstore

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	if err := store.Put(ctx, "doc", []byte("hello")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	data, err := store.Get(ctx, "doc")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(data) != "hello" {
		t.Errorf("Get = %q, want hello", data)
	}

	// Mutating the returned slice must not affect the stored copy
	data[0] = 'X'
	again, err := store.Get(ctx, "doc")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(again) != "hello" {
		t.Errorf("stored object mutated through returned slice: %q", again)
	}
}

func TestMemoryStoreNotFound(t *testing.T) {
	store := NewMemoryStore()

	_, err := store.Get(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Get of missing key = %v, want ErrNotFound", err)
	}
}

func TestMemoryStoreOverwrite(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	if err := store.Put(ctx, "doc", []byte("one")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := store.Put(ctx, "doc", []byte("two")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	data, err := store.Get(ctx, "doc")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(data) != "two" {
		t.Errorf("Get = %q, want two", data)
	}
	if store.Len() != 1 {
		t.Errorf("Len = %d, want 1", store.Len())
	}
}

func TestMemoryStorePutStream(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	if err := store.PutStream(ctx, "video.mp4", strings.NewReader("frames"), -1, "video/mp4"); err != nil {
		t.Fatalf("PutStream: %v", err)
	}

	data, err := store.Get(ctx, "video.mp4")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(data) != "frames" {
		t.Errorf("Get = %q, want frames", data)
	}
}

func TestMemoryStoreCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	store := NewMemoryStore()

	if _, err := store.Get(ctx, "doc"); err == nil {
		t.Error("Get with cancelled context should fail")
	}
	if err := store.Put(ctx, "doc", nil); err == nil {
		t.Error("Put with cancelled context should fail")
	}
}
