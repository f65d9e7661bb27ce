package archive

import "time"

type Metadata struct {
	SchemaID        string    `json:"schema_id"`
	SchemaVersion   string    `json:"schema_version"`
	CreatedAt       time.Time `json:"created_at"`
	ProducerVersion string    `json:"producer_version"`
	RecordID        string    `json:"record_id"`
	Title           string    `json:"title"`
	DOI             string    `json:"doi,omitempty"`
	DOIURL          string    `json:"doi_url,omitempty"`
	MCAEntry        string    `json:"mca_entry,omitempty"`
	RecordCreated   string    `json:"record_created,omitempty"`
	ArchiveFilename string    `json:"archive_filename"`
	ArchiveURL      string    `json:"archive_url"`
	AiidaProfile    string    `json:"aiida_profile"`
	Fetched         bool      `json:"fetched"`
	Files           []File    `json:"files,omitempty"`
}

type File struct {
	Filename string `json:"filename"`
	Size     int64  `json:"size,omitempty"`
	Checksum string `json:"checksum,omitempty"`
	Type     string `json:"type"`
}
