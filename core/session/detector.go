// Package session classifies a notebook launch against the session record
// left by the previous launch in the same cache directory.
//
// The record file is shared by every launch of a workspace and is written
// without a lock. Concurrent launches can lose each other's update; the last
// writer wins and the next launch reports the mismatch as a conflict.
package session

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	coreerrors "github.com/davidahmann/archiveprep/core/errors"
	"github.com/davidahmann/archiveprep/core/fsx"
	"github.com/davidahmann/archiveprep/core/logging"
	"github.com/davidahmann/archiveprep/core/schema"
	schemasession "github.com/davidahmann/archiveprep/core/schema/v1/session"
	"github.com/davidahmann/archiveprep/core/schema/validate"
)

const (
	RecordFile  = "current_session.json"
	WarningFile = "session_warning.txt"
	SummaryFile = "session_conflict.json"

	recordSchemaID        = "archiveprep.session.record"
	recordSchemaVersion   = "1.0.0"
	conflictSchemaID      = "archiveprep.session.conflict"
	conflictSchemaVersion = "1.0.0"

	SeverityInfo    = "info"
	SeverityWarning = "warning"

	maxRecordBytes = 64 * 1024
)

type Classification string

const (
	NewSession      Classification = "new_session"
	SameSession     Classification = "same_session"
	URLChanged      Classification = "url_changed"
	SessionConflict Classification = "session_conflict"
)

// DefaultCacheDir is used when neither a flag nor the configuration names one.
func DefaultCacheDir() string {
	return filepath.Join(os.TempDir(), "archiveprep_sessions")
}

type Options struct {
	CacheDir        string
	Identity        IdentityProvider
	Now             func() time.Time
	PID             int
	ProducerVersion string
	Logger          *slog.Logger
}

type Outcome struct {
	Classification Classification        `json:"classification"`
	SessionID      string                `json:"session_id"`
	Previous       *schemasession.Record `json:"previous,omitempty"`
	Current        schemasession.Record  `json:"current"`
	Message        string                `json:"message,omitempty"`
	RecordPath     string                `json:"record_path"`
	WarningPath    string                `json:"warning_path,omitempty"`
	SummaryPath    string                `json:"summary_path,omitempty"`
}

// Conflicted reports whether the outcome carries a message for the user.
func (o Outcome) Conflicted() bool {
	return o.Classification == URLChanged || o.Classification == SessionConflict
}

type Detector struct {
	cacheDir        string
	sessionID       string
	now             func() time.Time
	pid             int
	producerVersion string
	logger          *slog.Logger
}

func New(opts Options) (*Detector, error) {
	cacheDir := strings.TrimSpace(opts.CacheDir)
	if cacheDir == "" {
		return nil, coreerrors.Newf(coreerrors.CategoryInvalidInput, "session_cache_dir_required", "set --cache-dir or session.cache_dir", "session cache directory is required")
	}
	identity := opts.Identity
	if identity == nil {
		identity = EnvIdentity{}
	}
	sessionID, err := SessionID(identity.Identity())
	if err != nil {
		return nil, coreerrors.Wrap(err, coreerrors.CategoryInternalFailure, "session_id_failed", "", false)
	}
	if err := os.MkdirAll(cacheDir, 0o750); err != nil {
		return nil, coreerrors.Wrap(fmt.Errorf("create session cache dir: %w", err), coreerrors.CategoryIOFailure, "session_cache_dir_failed", "check that the cache directory is writable", false)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	pid := opts.PID
	if pid <= 0 {
		pid = os.Getpid()
	}
	producerVersion := strings.TrimSpace(opts.ProducerVersion)
	if producerVersion == "" {
		producerVersion = "0.0.0-dev"
	}
	return &Detector{
		cacheDir:        cacheDir,
		sessionID:       sessionID,
		now:             now,
		pid:             pid,
		producerVersion: producerVersion,
		logger:          logging.OrDiscard(opts.Logger),
	}, nil
}

func (d *Detector) SessionID() string   { return d.sessionID }
func (d *Detector) CacheDir() string    { return d.cacheDir }
func (d *Detector) RecordPath() string  { return filepath.Join(d.cacheDir, RecordFile) }
func (d *Detector) WarningPath() string { return filepath.Join(d.cacheDir, WarningFile) }
func (d *Detector) SummaryPath() string { return filepath.Join(d.cacheDir, SummaryFile) }

// Load returns the persisted record. A missing, unreadable or invalid record
// is reported as absent.
func (d *Detector) Load() (*schemasession.Record, bool) {
	path := d.RecordPath()
	raw, err := fsx.ReadFileLimit(path, maxRecordBytes)
	if err != nil {
		if !os.IsNotExist(err) {
			d.logger.Warn("ignoring unreadable session record", "path", path, "error", err)
		}
		return nil, false
	}
	if err := validate.ValidateJSON(schema.SessionRecord, raw); err != nil {
		d.logger.Warn("ignoring invalid session record", "path", path, "error", err)
		return nil, false
	}
	var record schemasession.Record
	if err := json.Unmarshal(raw, &record); err != nil {
		d.logger.Warn("ignoring invalid session record", "path", path, "error", err)
		return nil, false
	}
	return &record, true
}

func (d *Detector) Classify(currentURL string) (Classification, *schemasession.Record) {
	previous, ok := d.Load()
	if !ok {
		return NewSession, nil
	}
	if previous.SessionID != d.sessionID {
		return SessionConflict, previous
	}
	if previous.ArchiveURL == strings.TrimSpace(currentURL) {
		return SameSession, previous
	}
	return URLChanged, previous
}

// Run classifies the launch, updates the warning artifacts and persists the
// current record. Only filesystem failures are returned.
func (d *Detector) Run(currentURL string) (Outcome, error) {
	current := strings.TrimSpace(currentURL)
	classification, previous := d.Classify(current)
	record := schemasession.Record{
		SchemaID:        recordSchemaID,
		SchemaVersion:   recordSchemaVersion,
		SessionID:       d.sessionID,
		ArchiveURL:      current,
		Timestamp:       d.now().UTC(),
		PID:             d.pid,
		ProducerVersion: d.producerVersion,
	}
	outcome := Outcome{
		Classification: classification,
		SessionID:      d.sessionID,
		Previous:       previous,
		Current:        record,
		RecordPath:     d.RecordPath(),
	}

	switch classification {
	case NewSession, SameSession:
		if err := d.ClearWarnings(); err != nil {
			return outcome, err
		}
	case URLChanged:
		outcome.Message = Message(classification, previous, current)
		if err := removeArtifact(d.WarningPath()); err != nil {
			return outcome, err
		}
		if err := d.writeSummary(outcome, SeverityInfo); err != nil {
			return outcome, err
		}
		outcome.SummaryPath = d.SummaryPath()
	case SessionConflict:
		outcome.Message = Message(classification, previous, current)
		if err := fsx.WriteFileAtomic(d.WarningPath(), []byte(outcome.Message+"\n"), 0o644); err != nil {
			return outcome, persistError(err, "session_warning_write_failed")
		}
		outcome.WarningPath = d.WarningPath()
		if err := d.writeSummary(outcome, SeverityWarning); err != nil {
			return outcome, err
		}
		outcome.SummaryPath = d.SummaryPath()
	}

	if err := d.persist(record); err != nil {
		return outcome, err
	}
	attrs := []any{"classification", string(classification), "session_id", d.sessionID, "archive_url", current}
	if previous != nil {
		attrs = append(attrs, "previous_session_id", previous.SessionID, "previous_archive_url", previous.ArchiveURL)
	}
	if classification == SessionConflict {
		d.logger.Warn("session conflict detected", attrs...)
	} else {
		d.logger.Info("session classified", attrs...)
	}
	return outcome, nil
}

// ClearWarnings removes the warning text and conflict summary left by an
// earlier launch.
func (d *Detector) ClearWarnings() error {
	if err := removeArtifact(d.WarningPath()); err != nil {
		return err
	}
	return removeArtifact(d.SummaryPath())
}

func (d *Detector) persist(record schemasession.Record) error {
	encoded, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return coreerrors.Wrap(fmt.Errorf("encode session record: %w", err), coreerrors.CategoryInternalFailure, "session_record_encode_failed", "", false)
	}
	if err := fsx.WriteFileAtomic(d.RecordPath(), append(encoded, '\n'), 0o644); err != nil {
		return persistError(err, "session_record_write_failed")
	}
	return nil
}

func (d *Detector) writeSummary(outcome Outcome, severity string) error {
	summary := schemasession.ConflictSummary{
		SchemaID:         conflictSchemaID,
		SchemaVersion:    conflictSchemaVersion,
		CreatedAt:        outcome.Current.Timestamp,
		ProducerVersion:  d.producerVersion,
		Classification:   string(outcome.Classification),
		Severity:         severity,
		CurrentSessionID: d.sessionID,
		CurrentURL:       outcome.Current.ArchiveURL,
		CurrentArchive:   ArchiveInfo(outcome.Current.ArchiveURL),
		Message:          outcome.Message,
	}
	if previous := outcome.Previous; previous != nil {
		summary.PreviousSessionID = previous.SessionID
		summary.PreviousURL = previous.ArchiveURL
		summary.PreviousArchive = ArchiveInfo(previous.ArchiveURL)
		summary.PreviousStartedAt = previous.Timestamp.UTC()
		summary.PreviousPID = previous.PID
	}
	encoded, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return coreerrors.Wrap(fmt.Errorf("encode conflict summary: %w", err), coreerrors.CategoryInternalFailure, "session_summary_encode_failed", "", false)
	}
	if err := validate.ValidateJSON(schema.ConflictSummary, encoded); err != nil {
		return coreerrors.Wrap(err, coreerrors.CategoryInternalFailure, "session_summary_invalid", "", false)
	}
	if err := fsx.WriteFileAtomic(d.SummaryPath(), append(encoded, '\n'), 0o644); err != nil {
		return persistError(err, "session_summary_write_failed")
	}
	return nil
}

// ReadSummary loads a conflict summary written by Run.
func ReadSummary(path string) (schemasession.ConflictSummary, error) {
	raw, err := fsx.ReadFileLimit(path, maxRecordBytes)
	if err != nil {
		return schemasession.ConflictSummary{}, coreerrors.Wrap(fmt.Errorf("read conflict summary: %w", err), coreerrors.CategoryIOFailure, "session_summary_read_failed", "", false)
	}
	if err := validate.ValidateJSON(schema.ConflictSummary, raw); err != nil {
		return schemasession.ConflictSummary{}, coreerrors.Wrap(err, coreerrors.CategoryInvalidInput, "session_summary_invalid", "remove the summary file or rerun the session command", false)
	}
	var summary schemasession.ConflictSummary
	if err := json.Unmarshal(raw, &summary); err != nil {
		return schemasession.ConflictSummary{}, coreerrors.Wrap(fmt.Errorf("decode conflict summary: %w", err), coreerrors.CategoryInvalidInput, "session_summary_invalid", "", false)
	}
	return summary, nil
}

func removeArtifact(path string) error {
	if err := fsx.RemoveIfExists(path); err != nil {
		return persistError(err, "session_artifact_remove_failed")
	}
	return nil
}

func persistError(err error, code string) error {
	return coreerrors.Wrap(err, coreerrors.CategoryIOFailure, code, "check that the session cache directory is writable", false)
}
