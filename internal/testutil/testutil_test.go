package testutil

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

func TestRepoRootContainsGoMod(t *testing.T) {
	root := RepoRoot(t)
	if _, err := os.Stat(filepath.Join(root, "go.mod")); err != nil {
		t.Fatalf("expected go.mod at repo root: %v", err)
	}
}

func TestBuildArchiveprepBinary(t *testing.T) {
	if testing.Short() {
		t.Skip("builds the CLI")
	}
	root := RepoRoot(t)
	binPath := BuildArchiveprepBinary(t, root)
	info, err := os.Stat(binPath)
	if err != nil {
		t.Fatalf("expected built binary to exist: %v", err)
	}
	if info.Size() == 0 {
		t.Fatalf("expected non-empty binary at %s", binPath)
	}
}

func TestIsolatedEnv(t *testing.T) {
	t.Setenv("ARCHIVE_URL", "https://archive.example.org/records/a/files/b.aiida")
	t.Setenv("ARCHIVEPREP_TEST_KEEP", "1")
	env := IsolatedEnv("HOSTNAME=pod-1")
	joined := "\n" + strings.Join(env, "\n") + "\n"
	if strings.Contains(joined, "\nARCHIVE_URL=") {
		t.Fatalf("expected ARCHIVE_URL to be removed")
	}
	if !strings.Contains(joined, "\nARCHIVEPREP_TEST_KEEP=1\n") {
		t.Fatalf("expected unrelated variables to be kept")
	}
	if env[len(env)-1] != "HOSTNAME=pod-1" {
		t.Fatalf("expected override appended last, got %q", env[len(env)-1])
	}
}

func TestWriteFileAndMustReadFile(t *testing.T) {
	target := filepath.Join(t.TempDir(), "nested", "output.json")
	WriteFile(t, target, []byte(`{"ok":true}`))
	got := MustReadFile(t, target)
	if string(got) != `{"ok":true}` {
		t.Fatalf("unexpected file content: %q", string(got))
	}
}

func TestFormatJSON(t *testing.T) {
	formatted := FormatJSON([]byte(`{"ok":true}`))
	if !strings.Contains(formatted, "\"ok\": true") {
		t.Fatalf("expected pretty-printed json, got=%q", formatted)
	}

	raw := "not-json"
	if got := FormatJSON([]byte(raw)); got != raw {
		t.Fatalf("expected raw passthrough for invalid json, got=%q", got)
	}
}

func TestCommandExitCode(t *testing.T) {
	shell, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}
	runErr := exec.Command(shell, "-c", "exit 6").Run()
	if got := CommandExitCode(t, runErr); got != 6 {
		t.Fatalf("unexpected exit code: %d", got)
	}
}
