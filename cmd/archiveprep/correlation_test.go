package main

import (
	"testing"
)

func TestCorrelationIDHelpers(t *testing.T) {
	idA := newCorrelationID([]string{"archiveprep", "normalize", "a", "--json"})
	idB := newCorrelationID([]string{"archiveprep", "normalize", " a ", "--json"})
	idC := newCorrelationID([]string{"archiveprep", "normalize", "b", "--json"})
	if len(idA) != 24 {
		t.Fatalf("unexpected correlation id length: %s", idA)
	}
	if idA != idB {
		t.Fatalf("expected deterministic correlation ids for the same trimmed input")
	}
	if idA == idC {
		t.Fatalf("expected different correlation ids for different inputs")
	}
	if got := newCorrelationID(nil); got != "000000000000000000000000" {
		t.Fatalf("unexpected empty correlation id: %s", got)
	}
	setCurrentCorrelationID(" cid ")
	if got := currentCorrelationID(); got != "cid" {
		t.Fatalf("unexpected current correlation id: %q", got)
	}
	setCurrentCorrelationID("")
}

func TestReorderInterspersedFlags(t *testing.T) {
	got := reorderInterspersedFlags(
		[]string{"https://example.org/x.aiida", "--config", "c.yaml", "--json", "--", "--literal"},
		map[string]bool{"config": true},
	)
	want := []string{"--config", "c.yaml", "--json", "https://example.org/x.aiida", "--literal"}
	if len(got) != len(want) {
		t.Fatalf("unexpected reorder result: %v", got)
	}
	for index := range want {
		if got[index] != want[index] {
			t.Fatalf("unexpected reorder result: %v", got)
		}
	}
	if !hasExplainFlag([]string{"--json", " --explain"}) || hasExplainFlag([]string{"--json"}) {
		t.Fatalf("unexpected explain detection")
	}
}
