// Package schema embeds the JSON schemas of every artifact archiveprep writes.
package schema

import (
	"embed"
	"fmt"
)

const (
	SessionRecord    = "v1/session/session_record.schema.json"
	ConflictSummary  = "v1/session/conflict_summary.schema.json"
	ArchiveMetadata  = "v1/archive/metadata.schema.json"
	OperationalEvent = "v1/ops/operational_event.schema.json"
)

//go:embed v1/session/*.schema.json v1/archive/*.schema.json v1/ops/*.schema.json
var files embed.FS

// Load returns the raw schema document registered under name.
func Load(name string) ([]byte, error) {
	data, err := files.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("unknown schema %q: %w", name, err)
	}
	return data, nil
}

// Names lists the embedded schemas.
func Names() []string {
	return []string{SessionRecord, ConflictSummary, ArchiveMetadata, OperationalEvent}
}
