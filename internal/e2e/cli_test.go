package e2e

import (
	"encoding/json"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/davidahmann/archiveprep/internal/testutil"
)

const manualTemplate = `{
 "cells": [
  {"cell_type": "markdown", "metadata": {"tags": ["archive-setup"]}, "source": ["# {{ title }}"]},
  {"cell_type": "markdown", "metadata": {"tags": ["manual-setup"]}, "source": ["Upload an archive."]}
 ],
 "metadata": {},
 "nbformat": 4,
 "nbformat_minor": 5
}`

func TestCLINormalizeAndLaunch(t *testing.T) {
	if testing.Short() {
		t.Skip("builds the CLI")
	}
	root := testutil.RepoRoot(t)
	binPath := testutil.BuildArchiveprepBinary(t, root)
	workDir := t.TempDir()
	configPath := filepath.Join(workDir, "config.yaml")
	testutil.WriteFile(t, configPath, []byte("archive:\n  host: archive.example.org\n"))
	sessionDir := filepath.Join(workDir, "sessions")
	baseEnv := []string{
		"ARCHIVEPREP_CONFIG=" + configPath,
		"ARCHIVEPREP_SESSION_DIR=" + sessionDir,
		"ARCHIVEPREP_METADATA_PATH=" + filepath.Join(workDir, "mca_metadata.json"),
		"RENKU_PROJECT_NAME=materials",
		"HOSTNAME=pod-1",
	}

	normalize := exec.Command(binPath, "normalize", "https://archive.example.org/api/records/yf0rj-w3r97/files/data%20set.aiida/content", "--json")
	normalize.Dir = workDir
	normalize.Env = testutil.IsolatedEnv(baseEnv...)
	normalizeOut, err := normalize.Output()
	if err != nil {
		t.Fatalf("archiveprep normalize failed: %v\n%s", err, string(normalizeOut))
	}
	var normalizeResult struct {
		OK            bool   `json:"ok"`
		CanonicalURL  string `json:"canonical_url"`
		RecordID      string `json:"record_id"`
		Filename      string `json:"filename"`
		CorrelationID string `json:"correlation_id"`
	}
	if err := json.Unmarshal(normalizeOut, &normalizeResult); err != nil {
		t.Fatalf("parse normalize json output: %v\n%s", err, string(normalizeOut))
	}
	if !normalizeResult.OK || normalizeResult.CanonicalURL != "https://archive.example.org/records/yf0rj-w3r97/files/data set.aiida" {
		t.Fatalf("unexpected normalize result: %s", testutil.FormatJSON(normalizeOut))
	}
	if normalizeResult.RecordID != "yf0rj-w3r97" || normalizeResult.Filename != "data set.aiida" || len(normalizeResult.CorrelationID) != 24 {
		t.Fatalf("unexpected normalize result: %s", testutil.FormatJSON(normalizeOut))
	}

	recordOnly := exec.Command(binPath, "normalize", "--json")
	recordOnly.Dir = workDir
	recordOnly.Env = testutil.IsolatedEnv(append(baseEnv, "ARCHIVE_URL=https://archive.example.org/records/yf0rj-w3r97")...)
	recordOnlyOut, err := recordOnly.Output()
	if code := testutil.CommandExitCode(t, err); code != 6 {
		t.Fatalf("expected exit 6 for a record-only link, got %d\n%s", code, string(recordOnlyOut))
	}
	if !strings.Contains(string(recordOnlyOut), `"error_code":"ambiguous_record"`) {
		t.Fatalf("unexpected record-only output: %s", string(recordOnlyOut))
	}

	templatePath := filepath.Join(workDir, "template.ipynb")
	testutil.WriteFile(t, templatePath, []byte(manualTemplate))
	notebookPath := filepath.Join(workDir, "notebook.ipynb")
	prepare := exec.Command(binPath, "prepare", "--template", templatePath, "--out", notebookPath)
	prepare.Dir = workDir
	prepare.Env = testutil.IsolatedEnv(append(baseEnv, "RENKU_USERNAME=alice")...)
	prepareOut, err := prepare.CombinedOutput()
	if err != nil {
		t.Fatalf("archiveprep prepare failed: %v\n%s", err, string(prepareOut))
	}
	if !strings.Contains(string(prepareOut), "prepare: mode=manual") || !strings.Contains(string(prepareOut), "classification=new_session") {
		t.Fatalf("unexpected prepare output: %s", string(prepareOut))
	}
	rendered := string(testutil.MustReadFile(t, notebookPath))
	if !strings.Contains(rendered, "Upload an archive.") || strings.Contains(rendered, "{{ title }}") {
		t.Fatalf("unexpected manual notebook: %s", rendered)
	}

	conflict := exec.Command(binPath, "session")
	conflict.Dir = workDir
	conflict.Env = testutil.IsolatedEnv(append(baseEnv, "RENKU_USERNAME=bob")...)
	conflictOut, err := conflict.CombinedOutput()
	if err != nil {
		t.Fatalf("conflicting session must not fail: %v\n%s", err, string(conflictOut))
	}
	if !strings.Contains(string(conflictOut), "SESSION CONFLICT DETECTED") || !strings.Contains(string(conflictOut), "classification=session_conflict") {
		t.Fatalf("unexpected conflict output: %s", string(conflictOut))
	}
	warning := string(testutil.MustReadFile(t, filepath.Join(sessionDir, "session_warning.txt")))
	if !strings.Contains(warning, "SESSION CONFLICT DETECTED") {
		t.Fatalf("unexpected warning file: %s", warning)
	}
}
