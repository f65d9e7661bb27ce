package jcs

import "testing"

func TestCanonicalizeJSON(t *testing.T) {
	in := []byte(`{ "workspace":"w", "user":"u" }`)
	want := `{"user":"u","workspace":"w"}`
	out, err := CanonicalizeJSON(in)
	if err != nil {
		t.Fatalf("canonicalize error: %v", err)
	}
	if string(out) != want {
		t.Fatalf("unexpected canonical form: %s", string(out))
	}
}

func TestDigestJCSStable(t *testing.T) {
	da, err := DigestJCS([]byte(`{"a":1,"b":2}`))
	if err != nil {
		t.Fatalf("digest error: %v", err)
	}
	db, err := DigestJCS([]byte(`{ "b":2, "a":1 }`))
	if err != nil {
		t.Fatalf("digest error: %v", err)
	}
	if da != db {
		t.Fatalf("expected same digest for equivalent JSON")
	}
	if len(da) != 64 {
		t.Fatalf("expected sha256 hex digest, got %q", da)
	}
}

func TestDigestValueIgnoresFieldOrder(t *testing.T) {
	type forward struct {
		User      string `json:"user"`
		Workspace string `json:"workspace"`
	}
	type backward struct {
		Workspace string `json:"workspace"`
		User      string `json:"user"`
	}
	left, err := DigestValue(forward{User: "u", Workspace: "w"})
	if err != nil {
		t.Fatalf("digest forward: %v", err)
	}
	right, err := DigestValue(backward{Workspace: "w", User: "u"})
	if err != nil {
		t.Fatalf("digest backward: %v", err)
	}
	if left != right {
		t.Fatalf("expected order-independent digest: %s != %s", left, right)
	}
	mapped, err := DigestValue(map[string]string{"workspace": "w", "user": "u"})
	if err != nil {
		t.Fatalf("digest map: %v", err)
	}
	if mapped != left {
		t.Fatalf("expected map digest to match struct digest")
	}
}

func TestDigestInvalid(t *testing.T) {
	if _, err := CanonicalizeJSON([]byte(`{`)); err == nil {
		t.Fatalf("expected error for invalid JSON")
	}
	if _, err := DigestJCS([]byte(`{`)); err == nil {
		t.Fatalf("expected error for invalid JSON digest")
	}
	if _, err := DigestValue(func() {}); err == nil {
		t.Fatalf("expected error for unmarshalable value")
	}
}
