// Package oplog records one JSONL start and end event per command invocation.
package oplog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/google/uuid"

	coreerrors "github.com/davidahmann/archiveprep/core/errors"
	"github.com/davidahmann/archiveprep/core/fsx"
	"github.com/davidahmann/archiveprep/core/schema"
	schemaops "github.com/davidahmann/archiveprep/core/schema/v1/ops"
	"github.com/davidahmann/archiveprep/core/schema/validate"
)

const (
	EnvPath = "ARCHIVEPREP_OPERATIONAL_LOG"

	operationalEventSchemaID = "archiveprep.ops.operational_event"
	operationalEventSchemaV1 = "1.0.0"
	maxOperationalLineBytes  = 1024 * 1024
)

func NewStartEvent(command, correlationID, producerVersion string, now time.Time) schemaops.OperationalEvent {
	return newEvent(command, correlationID, producerVersion, "start", 0, "none", false, 0, now)
}

func NewEndEvent(
	command string,
	correlationID string,
	producerVersion string,
	exitCode int,
	errorCategory string,
	retryable bool,
	elapsed time.Duration,
	now time.Time,
) schemaops.OperationalEvent {
	elapsedMS := elapsed.Milliseconds()
	if elapsedMS < 0 {
		elapsedMS = 0
	}
	return newEvent(command, correlationID, producerVersion, "end", exitCode, errorCategory, retryable, elapsedMS, now)
}

// Append writes event as one line. Concurrent writers are serialized by the
// fsx lock file.
func Append(path string, event schemaops.OperationalEvent) error {
	trimmedPath := strings.TrimSpace(path)
	if trimmedPath == "" {
		return fmt.Errorf("operational log path is required")
	}
	normalized, err := normalizeEvent(event)
	if err != nil {
		return err
	}
	encoded, err := json.Marshal(normalized)
	if err != nil {
		return fmt.Errorf("marshal operational event: %w", err)
	}
	if err := validate.ValidateJSON(schema.OperationalEvent, encoded); err != nil {
		return fmt.Errorf("validate operational event: %w", err)
	}
	if err := fsx.AppendLineLocked(trimmedPath, encoded, 0o600); err != nil {
		return fmt.Errorf("append operational log: %w", err)
	}
	return nil
}

func Load(path string) ([]schemaops.OperationalEvent, error) {
	trimmedPath := strings.TrimSpace(path)
	if trimmedPath == "" {
		return nil, fmt.Errorf("operational log path is required")
	}
	// #nosec G304 -- operational log path is explicit local user input.
	file, err := os.Open(trimmedPath)
	if err != nil {
		return nil, fmt.Errorf("open operational log: %w", err)
	}
	defer func() {
		_ = file.Close()
	}()

	events := make([]schemaops.OperationalEvent, 0)
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), maxOperationalLineBytes)
	line := 0
	for scanner.Scan() {
		line++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}
		var event schemaops.OperationalEvent
		if err := json.Unmarshal([]byte(raw), &event); err != nil {
			return nil, fmt.Errorf("parse operational log line %d: %w", line, err)
		}
		normalized, err := normalizeEvent(event)
		if err != nil {
			return nil, fmt.Errorf("validate operational log line %d: %w", line, err)
		}
		events = append(events, normalized)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan operational log: %w", err)
	}
	return events, nil
}

func normalizeEvent(event schemaops.OperationalEvent) (schemaops.OperationalEvent, error) {
	if strings.TrimSpace(event.SchemaID) != operationalEventSchemaID {
		return schemaops.OperationalEvent{}, fmt.Errorf("invalid schema_id %q", event.SchemaID)
	}
	if strings.TrimSpace(event.SchemaVersion) != operationalEventSchemaV1 {
		return schemaops.OperationalEvent{}, fmt.Errorf("invalid schema_version %q", event.SchemaVersion)
	}
	if strings.TrimSpace(event.EventID) == "" {
		return schemaops.OperationalEvent{}, fmt.Errorf("event_id is required")
	}
	if event.CreatedAt.IsZero() {
		return schemaops.OperationalEvent{}, fmt.Errorf("created_at is required")
	}
	if strings.TrimSpace(event.ProducerVersion) == "" {
		return schemaops.OperationalEvent{}, fmt.Errorf("producer_version is required")
	}
	if strings.TrimSpace(event.CorrelationID) == "" {
		return schemaops.OperationalEvent{}, fmt.Errorf("correlation_id is required")
	}
	if strings.TrimSpace(event.Command) == "" {
		return schemaops.OperationalEvent{}, fmt.Errorf("command is required")
	}
	phase := strings.ToLower(strings.TrimSpace(event.Phase))
	if phase != "start" && phase != "end" {
		return schemaops.OperationalEvent{}, fmt.Errorf("phase must be start or end")
	}
	if event.ExitCode < 0 || event.ExitCode > 255 {
		return schemaops.OperationalEvent{}, fmt.Errorf("exit_code out of range")
	}
	if event.ElapsedMS < 0 {
		return schemaops.OperationalEvent{}, fmt.Errorf("elapsed_ms out of range")
	}
	category := strings.ToLower(strings.TrimSpace(event.ErrorCategory))
	if category == "" {
		return schemaops.OperationalEvent{}, fmt.Errorf("error_category is required")
	}
	if category != "none" && !coreerrors.IsKnownCategory(coreerrors.Category(category)) {
		return schemaops.OperationalEvent{}, fmt.Errorf("unsupported error_category %q", event.ErrorCategory)
	}
	if strings.TrimSpace(event.Environment.OS) == "" || strings.TrimSpace(event.Environment.Arch) == "" {
		return schemaops.OperationalEvent{}, fmt.Errorf("environment os/arch are required")
	}

	return schemaops.OperationalEvent{
		SchemaID:        operationalEventSchemaID,
		SchemaVersion:   operationalEventSchemaV1,
		EventID:         strings.TrimSpace(event.EventID),
		CreatedAt:       event.CreatedAt.UTC(),
		ProducerVersion: strings.TrimSpace(event.ProducerVersion),
		CorrelationID:   strings.TrimSpace(event.CorrelationID),
		Command:         strings.TrimSpace(event.Command),
		Phase:           phase,
		ExitCode:        event.ExitCode,
		ErrorCategory:   category,
		Retryable:       event.Retryable,
		ElapsedMS:       event.ElapsedMS,
		Environment: schemaops.EnvContext{
			OS:   strings.TrimSpace(event.Environment.OS),
			Arch: strings.TrimSpace(event.Environment.Arch),
		},
	}, nil
}

func newEvent(
	command string,
	correlationID string,
	producerVersion string,
	phase string,
	exitCode int,
	errorCategory string,
	retryable bool,
	elapsedMS int64,
	now time.Time,
) schemaops.OperationalEvent {
	createdAt := now.UTC()
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	trimmedCommand := strings.TrimSpace(command)
	if trimmedCommand == "" {
		trimmedCommand = "unknown"
	}
	trimmedCorrelationID := strings.TrimSpace(correlationID)
	if trimmedCorrelationID == "" {
		trimmedCorrelationID = "unknown"
	}
	trimmedProducerVersion := strings.TrimSpace(producerVersion)
	if trimmedProducerVersion == "" {
		trimmedProducerVersion = "0.0.0-dev"
	}
	trimmedCategory := strings.ToLower(strings.TrimSpace(errorCategory))
	if trimmedCategory == "" {
		trimmedCategory = "none"
	}
	return schemaops.OperationalEvent{
		SchemaID:        operationalEventSchemaID,
		SchemaVersion:   operationalEventSchemaV1,
		EventID:         uuid.NewString(),
		CreatedAt:       createdAt,
		ProducerVersion: trimmedProducerVersion,
		CorrelationID:   trimmedCorrelationID,
		Command:         trimmedCommand,
		Phase:           phase,
		ExitCode:        exitCode,
		ErrorCategory:   trimmedCategory,
		Retryable:       retryable,
		ElapsedMS:       elapsedMS,
		Environment: schemaops.EnvContext{
			OS:   runtime.GOOS,
			Arch: runtime.GOARCH,
		},
	}
}
