package fsx

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestAppendLineLockedWritesOneLinePerCall(t *testing.T) {
	targetPath := filepath.Join(t.TempDir(), "logs", "events.jsonl")
	if err := AppendLineLocked(targetPath, []byte(`{"event":"a"}`), 0o600); err != nil {
		t.Fatalf("append first line: %v", err)
	}
	if err := AppendLineLocked(targetPath, []byte(`{"event":"b"}`), 0o600); err != nil {
		t.Fatalf("append second line: %v", err)
	}
	raw, err := os.ReadFile(targetPath)
	if err != nil {
		t.Fatalf("read target: %v", err)
	}
	expected := "{\"event\":\"a\"}\n{\"event\":\"b\"}\n"
	if string(raw) != expected {
		t.Fatalf("unexpected append output:\n%s", string(raw))
	}
	if _, err := os.Stat(targetPath + ".lock"); !os.IsNotExist(err) {
		t.Fatalf("expected lock file to be released, stat err=%v", err)
	}
}

func TestAppendLineLockedRejectsBadInput(t *testing.T) {
	if err := AppendLineLocked(filepath.Join("..", "escape.jsonl"), []byte(`{"ok":true}`), 0o600); err == nil {
		t.Fatalf("expected traversal path to be rejected")
	}
	if err := AppendLineLocked("  ", []byte(`{"ok":true}`), 0o600); err == nil {
		t.Fatalf("expected empty path to be rejected")
	}
	target := filepath.Join(t.TempDir(), "events.jsonl")
	if err := AppendLineLocked(target, []byte("a\nb"), 0o600); err == nil {
		t.Fatalf("expected embedded newline to be rejected")
	}
}

func TestAppendLineLockedConcurrentJSONLIntegrity(t *testing.T) {
	targetPath := filepath.Join(t.TempDir(), "concurrent.jsonl")
	const writers = 50
	var group sync.WaitGroup
	group.Add(writers)
	for index := 0; index < writers; index++ {
		line := []byte(fmt.Sprintf(`{"idx":%d}`, index))
		go func(payload []byte) {
			defer group.Done()
			if err := AppendLineLocked(targetPath, payload, 0o600); err != nil {
				t.Errorf("append line: %v", err)
			}
		}(line)
	}
	group.Wait()

	raw, err := os.ReadFile(targetPath)
	if err != nil {
		t.Fatalf("read concurrent target: %v", err)
	}
	lines := strings.Split(strings.TrimSuffix(string(raw), "\n"), "\n")
	if len(lines) != writers {
		t.Fatalf("unexpected line count: got=%d want=%d", len(lines), writers)
	}
	for index, entry := range lines {
		var parsed map[string]any
		if err := json.Unmarshal([]byte(entry), &parsed); err != nil {
			t.Fatalf("invalid json line %d: %v (%q)", index+1, err, entry)
		}
	}
}

func TestStaleLockIsRecovered(t *testing.T) {
	targetPath := filepath.Join(t.TempDir(), "events.jsonl")
	lockPath := targetPath + ".lock"
	if err := os.WriteFile(lockPath, []byte("lock"), 0o600); err != nil {
		t.Fatalf("write lock file: %v", err)
	}
	old := time.Now().Add(-2 * lockStaleAfter)
	if err := os.Chtimes(lockPath, old, old); err != nil {
		t.Fatalf("age lock file: %v", err)
	}
	if err := AppendLineLocked(targetPath, []byte(`{"ok":true}`), 0o600); err != nil {
		t.Fatalf("append with stale lock: %v", err)
	}
}

func TestIsLockContention(t *testing.T) {
	t.Parallel()

	lockPath := filepath.Join(t.TempDir(), "append.lock")
	permissionErr := &os.PathError{Op: "open", Path: lockPath, Err: os.ErrPermission}

	if !isLockContention(os.ErrExist, lockPath) {
		t.Fatalf("expected os.ErrExist to be treated as lock contention")
	}
	if isLockContention(permissionErr, lockPath) {
		t.Fatalf("expected permission error without lock file to be non-contention")
	}
	if err := os.WriteFile(lockPath, []byte("lock"), 0o600); err != nil {
		t.Fatalf("write lock file: %v", err)
	}
	if !isLockContention(permissionErr, lockPath) {
		t.Fatalf("expected permission error with existing lock file to be contention")
	}
	if isLockContention(os.ErrNotExist, lockPath) {
		t.Fatalf("expected unrelated error to be non-contention")
	}
}
