package archiveurl

import (
	"errors"
	"fmt"

	coreerrors "github.com/davidahmann/archiveprep/core/errors"
)

type Kind string

const (
	KindInvalidInput       Kind = "invalid_input"
	KindAmbiguousRecord    Kind = "ambiguous_record"
	KindWrongFileType      Kind = "wrong_file_type"
	KindUnrecognizedFormat Kind = "unrecognized_format"
)

// Error describes why a link could not be normalized. RecordID is set whenever
// the link still identified a record, so callers can point at its page.
type Error struct {
	Kind      Kind
	Input     string
	RecordID  string
	Filename  string
	Extension string
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindInvalidInput:
		return "archive URL is empty"
	case KindAmbiguousRecord:
		return fmt.Sprintf("archive URL %q identifies record %s but not a file in it", e.Input, e.RecordID)
	case KindWrongFileType:
		return fmt.Sprintf("archive file %q is not a %s archive", e.Filename, e.Extension)
	default:
		return fmt.Sprintf("unrecognized archive URL %q", e.Input)
	}
}

func (n *Normalizer) fail(kind Kind, input, recordID, filename string) error {
	cause := &Error{
		Kind:      kind,
		Input:     input,
		RecordID:  recordID,
		Filename:  filename,
		Extension: n.extension,
	}
	return coreerrors.Wrap(cause, coreerrors.CategoryInvalidInput, string(kind), n.Hint(kind, recordID), false)
}

// Hint is the guidance shown next to a normalization failure.
func (n *Normalizer) Hint(kind Kind, recordID string) string {
	expected := fmt.Sprintf("expected %s://%s/records/<record_id>/files/<name>%s", n.scheme, n.host, n.extension)
	browse := ""
	if recordID != "" {
		browse = fmt.Sprintf("; browse %s and copy the link of the %s file", n.RecordURL(recordID), n.extension)
	}
	switch kind {
	case KindInvalidInput:
		return "pass --url or set ARCHIVE_URL; " + expected
	case KindAmbiguousRecord:
		return "the link names a record, not a file" + browse + "; " + expected
	case KindWrongFileType:
		return fmt.Sprintf("only %s archives can be loaded%s; %s", n.extension, browse, expected)
	default:
		return expected
	}
}

// KindOf returns the normalization failure kind of err, or "" for other errors.
func KindOf(err error) Kind {
	var normalizationErr *Error
	if errors.As(err, &normalizationErr) {
		return normalizationErr.Kind
	}
	return ""
}

func RecordIDOf(err error) string {
	var normalizationErr *Error
	if errors.As(err, &normalizationErr) {
		return normalizationErr.RecordID
	}
	return ""
}
