package watcher

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"opensig/internal/crypt"
)

func TestWatcherCreation(t *testing.T) {
	tmpDir := t.TempDir()

	w, err := New([]string{tmpDir}, time.Second)
	if err != nil {
		t.Fatalf("failed to create watcher: %v", err)
	}

	if len(w.WatchedPaths()) != 1 {
		t.Errorf("expected 1 watched path, got %d", len(w.WatchedPaths()))
	}
	if w.TrackedFiles() != 0 {
		t.Errorf("expected 0 tracked files before start, got %d", w.TrackedFiles())
	}
}

func TestWatcherStartStop(t *testing.T) {
	tmpDir := t.TempDir()

	testFile := filepath.Join(tmpDir, "initial.txt")
	if err := os.WriteFile(testFile, []byte("initial"), 0600); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	w, err := New([]string{tmpDir}, time.Second)
	if err != nil {
		t.Fatalf("failed to create watcher: %v", err)
	}

	if err := w.Start(); err != nil {
		t.Fatalf("failed to start watcher: %v", err)
	}

	if w.TrackedFiles() != 1 {
		t.Errorf("expected 1 tracked file, got %d", w.TrackedFiles())
	}

	if err := w.Stop(); err != nil {
		t.Fatalf("failed to stop watcher: %v", err)
	}
}

func TestWatcherEvents(t *testing.T) {
	tmpDir := t.TempDir()

	w, err := New([]string{tmpDir}, 500*time.Millisecond)
	if err != nil {
		t.Fatalf("failed to create watcher: %v", err)
	}

	if err := w.Start(); err != nil {
		t.Fatalf("failed to start watcher: %v", err)
	}
	defer w.Stop()

	testFile := filepath.Join(tmpDir, "test.txt")
	content := []byte("test content")
	if err := os.WriteFile(testFile, content, 0600); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	select {
	case event := <-w.Events():
		if event.Path != testFile {
			t.Errorf("expected path %s, got %s", testFile, event.Path)
		}
		if event.Hash != crypt.Hash(content) {
			t.Error("event hash does not match file contents")
		}
	case <-time.After(5 * time.Second):
		t.Error("timeout waiting for event")
	}
}

func TestWatcherDebounce(t *testing.T) {
	tmpDir := t.TempDir()

	w, err := New([]string{tmpDir}, time.Second)
	if err != nil {
		t.Fatalf("failed to create watcher: %v", err)
	}

	if err := w.Start(); err != nil {
		t.Fatalf("failed to start watcher: %v", err)
	}
	defer w.Stop()

	testFile := filepath.Join(tmpDir, "debounce.txt")

	// Write several times quickly; only one event should surface once
	// the file settles.
	for i := 0; i < 5; i++ {
		if err := os.WriteFile(testFile, []byte{byte('0' + i)}, 0600); err != nil {
			t.Fatalf("failed to write: %v", err)
		}
		time.Sleep(100 * time.Millisecond)
	}

	eventCount := 0
	timeout := time.After(4 * time.Second)

	for {
		select {
		case <-w.Events():
			eventCount++
			if eventCount > 1 {
				t.Error("expected only one event due to debouncing")
				return
			}
		case <-timeout:
			if eventCount != 1 {
				t.Errorf("expected 1 event, got %d", eventCount)
			}
			return
		}
	}
}
