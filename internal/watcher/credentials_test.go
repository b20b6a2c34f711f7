package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

type countingReloader struct {
	count atomic.Int64
}

func (r *countingReloader) Reload() { r.count.Add(1) }

func waitForReloads(t *testing.T, r *countingReloader, want int64) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if r.count.Load() >= want {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("expected %d reload(s), got %d", want, r.count.Load())
}

func TestWatchCredentials_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "token.json")
	if err := os.WriteFile(path, []byte("{}"), 0o600); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	target := &countingReloader{}
	if err := WatchCredentials(ctx, path, target); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := os.WriteFile(path, []byte(`{"refreshToken":"rt"}`), 0o600); err != nil {
		t.Fatal(err)
	}
	waitForReloads(t, target, 1)
}

func TestWatchCredentials_DebouncesBursts(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "token.json")
	if err := os.WriteFile(path, []byte("{}"), 0o600); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	target := &countingReloader{}
	if err := WatchCredentials(ctx, path, target); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for i := 0; i < 5; i++ {
		if err := os.WriteFile(path, []byte("{}"), 0o600); err != nil {
			t.Fatal(err)
		}
		time.Sleep(10 * time.Millisecond)
	}
	waitForReloads(t, target, 1)

	// The burst settles into a single reload.
	time.Sleep(debounce + 200*time.Millisecond)
	if got := target.count.Load(); got != 1 {
		t.Fatalf("expected 1 reload after burst, got %d", got)
	}
}

func TestWatchCredentials_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "token.json")
	if err := os.WriteFile(path, []byte("{}"), 0o600); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	target := &countingReloader{}
	if err := WatchCredentials(ctx, path, target); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "other.json"), []byte("{}"), 0o600); err != nil {
		t.Fatal(err)
	}
	time.Sleep(debounce + 300*time.Millisecond)
	if got := target.count.Load(); got != 0 {
		t.Fatalf("expected no reloads for unrelated files, got %d", got)
	}
}

func TestWatchCredentials_MissingDirectory(t *testing.T) {
	target := &countingReloader{}
	err := WatchCredentials(context.Background(), "/nonexistent-dir-for-test/token.json", target)
	if err == nil {
		t.Fatal("expected error for missing directory")
	}
}
