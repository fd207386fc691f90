package secrets

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestEnvSource(t *testing.T) {
	t.Setenv("TOKENVAULT_SECRET_TIKTOK_CLIENT_SECRET", "shh")

	source, err := NewEnvSource("TOKENVAULT_SECRET_")
	if err != nil {
		t.Fatalf("NewEnvSource: %v", err)
	}

	value, err := source.Get(context.Background(), "tiktok_client_secret")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if value != "shh" {
		t.Errorf("Get = %q, want shh", value)
	}

	if _, err := source.Get(context.Background(), "unset_secret"); err == nil {
		t.Error("Get of unset variable should fail")
	}
}

func TestNewEnvSourceEmptyPrefix(t *testing.T) {
	if _, err := NewEnvSource(""); err == nil {
		t.Error("empty prefix should be rejected")
	}
}

func TestFileSource(t *testing.T) {
	dir := t.TempDir()

	write := func(name, content string, perm os.FileMode) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), perm); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
	}

	write("storage_access_key_id", "AKID\n", 0o600)
	write("world_readable", "leaky", 0o644)
	write("empty", "  \n", 0o600)

	source, err := NewFileSource(dir)
	if err != nil {
		t.Fatalf("NewFileSource: %v", err)
	}
	ctx := context.Background()

	value, err := source.Get(ctx, "storage_access_key_id")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if value != "AKID" {
		t.Errorf("Get = %q, want trimmed AKID", value)
	}

	if _, err := source.Get(ctx, "world_readable"); err == nil {
		t.Error("world-readable secret file should be rejected")
	}
	if _, err := source.Get(ctx, "empty"); err == nil {
		t.Error("empty secret file should be rejected")
	}
	if _, err := source.Get(ctx, "missing"); err == nil {
		t.Error("missing secret file should fail")
	}
}

func TestSourcesRespectCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	env, err := NewEnvSource("X_")
	if err != nil {
		t.Fatalf("NewEnvSource: %v", err)
	}
	if _, err := env.Get(ctx, "anything"); err == nil {
		t.Error("env Get with cancelled context should fail")
	}

	file, err := NewFileSource(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileSource: %v", err)
	}
	if _, err := file.Get(ctx, "anything"); err == nil {
		t.Error("file Get with cancelled context should fail")
	}
}
