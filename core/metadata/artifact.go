package metadata

import (
	"encoding/json"
	"fmt"

	coreerrors "github.com/davidahmann/archiveprep/core/errors"
	"github.com/davidahmann/archiveprep/core/fsx"
	"github.com/davidahmann/archiveprep/core/schema"
	schemaarchive "github.com/davidahmann/archiveprep/core/schema/v1/archive"
	"github.com/davidahmann/archiveprep/core/schema/validate"
)

const maxArtifactBytes = 2 * 1024 * 1024

// Write validates metadata and replaces the artifact at path.
func Write(path string, metadata schemaarchive.Metadata) error {
	encoded, err := json.MarshalIndent(metadata, "", "  ")
	if err != nil {
		return coreerrors.Wrap(fmt.Errorf("encode metadata: %w", err), coreerrors.CategoryInternalFailure, "metadata_encode_failed", "", false)
	}
	if err := validate.ValidateJSON(schema.ArchiveMetadata, encoded); err != nil {
		return coreerrors.Wrap(err, coreerrors.CategoryInternalFailure, "metadata_invalid", "", false)
	}
	if err := fsx.WriteFileAtomic(path, append(encoded, '\n'), 0o644); err != nil {
		return coreerrors.Wrap(fmt.Errorf("write metadata: %w", err), coreerrors.CategoryIOFailure, "metadata_write_failed", "check that the metadata path is writable", false)
	}
	return nil
}

func Read(path string) (schemaarchive.Metadata, error) {
	raw, err := fsx.ReadFileLimit(path, maxArtifactBytes)
	if err != nil {
		return schemaarchive.Metadata{}, coreerrors.Wrap(fmt.Errorf("read metadata: %w", err), coreerrors.CategoryIOFailure, "metadata_read_failed", "run the metadata command first", false)
	}
	if err := validate.ValidateJSON(schema.ArchiveMetadata, raw); err != nil {
		return schemaarchive.Metadata{}, coreerrors.Wrap(err, coreerrors.CategoryInvalidInput, "metadata_invalid", "regenerate the metadata artifact", false)
	}
	var metadata schemaarchive.Metadata
	if err := json.Unmarshal(raw, &metadata); err != nil {
		return schemaarchive.Metadata{}, coreerrors.Wrap(fmt.Errorf("decode metadata: %w", err), coreerrors.CategoryInvalidInput, "metadata_invalid", "", false)
	}
	return metadata, nil
}
