package session

import "time"

type Record struct {
	SchemaID        string    `json:"schema_id"`
	SchemaVersion   string    `json:"schema_version"`
	SessionID       string    `json:"session_id"`
	ArchiveURL      string    `json:"archive_url"`
	Timestamp       time.Time `json:"timestamp"`
	PID             int       `json:"pid"`
	ProducerVersion string    `json:"producer_version"`
}

type ConflictSummary struct {
	SchemaID          string    `json:"schema_id"`
	SchemaVersion     string    `json:"schema_version"`
	CreatedAt         time.Time `json:"created_at"`
	ProducerVersion   string    `json:"producer_version"`
	Classification    string    `json:"classification"`
	Severity          string    `json:"severity"`
	PreviousSessionID string    `json:"previous_session_id"`
	CurrentSessionID  string    `json:"current_session_id"`
	PreviousURL       string    `json:"previous_archive_url"`
	CurrentURL        string    `json:"current_archive_url"`
	PreviousArchive   string    `json:"previous_archive"`
	CurrentArchive    string    `json:"current_archive"`
	PreviousStartedAt time.Time `json:"previous_started_at"`
	PreviousPID       int       `json:"previous_pid,omitempty"`
	Message           string    `json:"message"`
}
