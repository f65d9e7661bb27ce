package main

import (
	"encoding/json"
	stderrors "errors"
	"strings"
	"testing"

	coreerrors "github.com/davidahmann/archiveprep/core/errors"
)

func TestMarshalOutputWithErrorEnvelope(t *testing.T) {
	setCurrentCorrelationID("cid-test")
	t.Cleanup(func() {
		setCurrentCorrelationID("")
	})
	payload := map[string]any{
		"ok":    false,
		"error": "boom",
	}
	encoded, err := marshalOutputWithErrorEnvelope(payload, exitInvalidInput)
	if err != nil {
		t.Fatalf("marshalOutputWithErrorEnvelope error: %v", err)
	}
	result := string(encoded)
	if !strings.Contains(result, `"error_code":"invalid_input"`) {
		t.Fatalf("missing error_code in output: %s", result)
	}
	if !strings.Contains(result, `"error_category":"invalid_input"`) {
		t.Fatalf("missing error_category in output: %s", result)
	}
	if !strings.Contains(result, `"retryable":false`) {
		t.Fatalf("missing retryable in output: %s", result)
	}
	if !strings.Contains(result, `"hint":"check command usage and the archive link"`) {
		t.Fatalf("missing hint in output: %s", result)
	}
	if !strings.Contains(result, `"correlation_id":"cid-test"`) {
		t.Fatalf("missing correlation id in output: %s", result)
	}
}

func TestMarshalOutputWithCorrelationForSuccess(t *testing.T) {
	setCurrentCorrelationID("cid-success")
	t.Cleanup(func() {
		setCurrentCorrelationID("")
	})
	encoded, err := marshalOutputWithErrorEnvelope(normalizeOutput{OK: true, CanonicalURL: "https://example.org/records/a/files/b.aiida"}, exitOK)
	if err != nil {
		t.Fatalf("marshalOutputWithErrorEnvelope error: %v", err)
	}
	result := string(encoded)
	if !strings.Contains(result, `"correlation_id":"cid-success"`) {
		t.Fatalf("missing correlation_id for success output: %s", result)
	}
	if strings.Contains(result, `"error_code"`) {
		t.Fatalf("success output must not carry an error envelope: %s", result)
	}
}

func TestMarshalOutputKeepsClassifiedDetails(t *testing.T) {
	cause := coreerrors.Wrap(stderrors.New("archive API unavailable"), coreerrors.CategoryNetworkTransient, "archive_api_unavailable", "retry later", true)
	encoded, err := marshalOutputWithErrorEnvelope(metadataOutput{errorDetails: detailsFor(cause)}, exitCodeForError(cause, exitInvalidInput))
	if err != nil {
		t.Fatalf("marshalOutputWithErrorEnvelope: %v", err)
	}
	decoded := map[string]any{}
	if err := json.Unmarshal(encoded, &decoded); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if decoded["error_code"] != "archive_api_unavailable" || decoded["error_category"] != "network_transient" {
		t.Fatalf("classified details were overwritten: %v", decoded)
	}
	if decoded["hint"] != "retry later" || decoded["retryable"] != true {
		t.Fatalf("unexpected hint/retryable: %v", decoded)
	}
}

func TestExitCodeForError(t *testing.T) {
	if got := exitCodeForError(nil, exitInvalidInput); got != exitOK {
		t.Fatalf("nil error: expected %d got %d", exitOK, got)
	}
	if got := exitCodeForError(stderrors.New("plain"), exitInvalidInput); got != exitInvalidInput {
		t.Fatalf("expected fallback invalid-input exit, got %d", got)
	}
	cases := []struct {
		category coreerrors.Category
		want     int
	}{
		{coreerrors.CategoryInvalidInput, exitInvalidInput},
		{coreerrors.CategoryVerification, exitVerifyFailed},
		{coreerrors.CategoryDependencyMissing, exitMissingDependency},
		{coreerrors.CategoryIOFailure, exitInternalFailure},
		{coreerrors.CategoryNetworkTransient, exitInternalFailure},
		{coreerrors.CategoryNetworkPermanent, exitInternalFailure},
	}
	for _, tc := range cases {
		wrapped := coreerrors.Wrap(stderrors.New("boom"), tc.category, "code", "", false)
		if got := exitCodeForError(wrapped, exitInvalidInput); got != tc.want {
			t.Fatalf("exitCodeForError(%s): got %d want %d", tc.category, got, tc.want)
		}
	}
}

func TestDefaultErrorMappings(t *testing.T) {
	cases := []struct {
		exitCode int
		category string
		code     string
	}{
		{exitInvalidInput, string(coreerrors.CategoryInvalidInput), "invalid_input"},
		{exitVerifyFailed, string(coreerrors.CategoryVerification), "verification_failed"},
		{exitMissingDependency, string(coreerrors.CategoryDependencyMissing), "dependency_missing"},
		{exitUnsafeOperation, string(coreerrors.CategoryInternalFailure), "unsafe_operation"},
		{exitInternalFailure, string(coreerrors.CategoryInternalFailure), "internal_failure"},
	}
	for _, tc := range cases {
		if got := string(defaultErrorCategory(tc.exitCode)); got != tc.category {
			t.Fatalf("defaultErrorCategory(%d): got %s want %s", tc.exitCode, got, tc.category)
		}
		if got := defaultErrorCode(tc.exitCode); got != tc.code {
			t.Fatalf("defaultErrorCode(%d): got %s want %s", tc.exitCode, got, tc.code)
		}
		if strings.TrimSpace(defaultHint(tc.exitCode)) == "" {
			t.Fatalf("defaultHint(%d) is empty", tc.exitCode)
		}
	}
	if !defaultRetryable(coreerrors.CategoryNetworkTransient) {
		t.Fatalf("network transient category should be retryable")
	}
	if defaultRetryable(coreerrors.CategoryIOFailure) {
		t.Fatalf("io failure category should not be retryable")
	}
}

func TestWriteJSONOutputEncodingFailureFallback(t *testing.T) {
	raw := captureStdout(t, func() {
		code := writeJSONOutput(map[string]any{
			"ok":    false,
			"error": "boom",
			"bad":   make(chan int),
		}, exitInvalidInput)
		if code != exitInternalFailure {
			t.Fatalf("writeJSONOutput fallback exit code: got %d want %d", code, exitInternalFailure)
		}
	})
	if !strings.Contains(raw, `"error_code":"encode_failed"`) {
		t.Fatalf("expected encode_failed fallback envelope, got %s", raw)
	}
}
