package testutil

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func RepoRoot(t *testing.T) string {
	t.Helper()
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatalf("unable to locate testutil source file")
	}
	return filepath.Clean(filepath.Join(filepath.Dir(filename), "..", ".."))
}

func BuildArchiveprepBinary(t *testing.T, root string) string {
	t.Helper()
	binDir := t.TempDir()
	binName := "archiveprep"
	if runtime.GOOS == "windows" {
		binName = "archiveprep.exe"
	}
	binPath := filepath.Join(binDir, binName)

	// #nosec G204 -- arguments are fixed and used only in test binaries.
	build := exec.Command("go", "build", "-o", binPath, "./cmd/archiveprep")
	build.Dir = root
	if out, err := build.CombinedOutput(); err != nil {
		t.Fatalf("build archiveprep binary: %v\n%s", err, string(out))
	}
	return binPath
}

// IsolatedEnv returns the current environment without any variable that
// changes archiveprep behavior, plus the given overrides.
func IsolatedEnv(overrides ...string) []string {
	blocked := map[string]bool{
		"ARCHIVE_URL":                 true,
		"archive_url":                 true,
		"ARCHIVEPREP_CONFIG":          true,
		"ARCHIVEPREP_SESSION_DIR":     true,
		"ARCHIVEPREP_METADATA_PATH":   true,
		"ARCHIVEPREP_OPERATIONAL_LOG": true,
		"ARCHIVEPREP_LOG_LEVEL":       true,
		"ARCHIVEPREP_LOG_FORMAT":      true,
		"RENKU_USERNAME":              true,
		"RENKU_PROJECT_NAME":          true,
		"HOSTNAME":                    true,
	}
	env := make([]string, 0, len(os.Environ())+len(overrides))
	for _, entry := range os.Environ() {
		name, _, _ := strings.Cut(entry, "=")
		if blocked[name] {
			continue
		}
		env = append(env, entry)
	}
	return append(env, overrides...)
}

func CommandExitCode(t *testing.T, err error) int {
	t.Helper()
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("expected command exit error, got: %v", err)
	}
	return exitErr.ExitCode()
}

func WriteFile(t *testing.T, path string, content []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		t.Fatalf("create parent directory for %s: %v", path, err)
	}
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func MustReadFile(t *testing.T, path string) []byte {
	t.Helper()
	content, err := os.ReadFile(path) // #nosec G304 -- test helper for controlled paths.
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return content
}

func FormatJSON(raw []byte) string {
	var parsed any
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return string(raw)
	}
	encoded, err := json.MarshalIndent(parsed, "", "  ")
	if err != nil {
		return string(raw)
	}
	return fmt.Sprintf("%s\n", string(encoded))
}
