// Package notebook renders the exploration notebook from its tagged template.
//
// Cells tagged archive-setup are kept only when the session has an archive;
// cells tagged manual-setup only when it does not. Cells carrying both tags,
// or neither, are always kept. Markdown cells tagged only archive-setup have
// their {{ expression }} placeholders filled from the archive metadata.
package notebook

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tidwall/gjson"

	coreerrors "github.com/davidahmann/archiveprep/core/errors"
	"github.com/davidahmann/archiveprep/core/fsx"
	"github.com/davidahmann/archiveprep/core/logging"
	schemaarchive "github.com/davidahmann/archiveprep/core/schema/v1/archive"
	schemasession "github.com/davidahmann/archiveprep/core/schema/v1/session"
)

const (
	TagArchiveSetup   = "archive-setup"
	TagManualSetup    = "manual-setup"
	TagSessionWarning = "session-warning"

	defaultTitle    = "Unknown Dataset"
	defaultDOIURL   = "DOI not available"
	defaultUnknown  = "Unknown"
	defaultProfile  = "aiida-renku"
	maxTemplateSize = 16 * 1024 * 1024
)

type Options struct {
	HasArchive bool
	// Metadata fills the placeholders of archive-setup cells. Missing fields
	// render with their defaults.
	Metadata *schemaarchive.Metadata
	// Warning prepends a banner cell when its severity is "warning".
	Warning *schemasession.ConflictSummary
	Logger  *slog.Logger
}

type Result struct {
	Kept     int  `json:"kept_cells"`
	Dropped  int  `json:"dropped_cells"`
	Rendered int  `json:"rendered_cells"`
	Banner   bool `json:"warning_banner"`
}

// Variables are the placeholder values derived from metadata.
func Variables(metadata *schemaarchive.Metadata) map[string]any {
	vars := map[string]any{
		"title":            defaultTitle,
		"doi_url":          defaultDOIURL,
		"mca_entry":        defaultUnknown,
		"archive_filename": defaultUnknown,
		"aiida_profile":    defaultProfile,
	}
	if metadata == nil {
		return vars
	}
	set := func(key, value string) {
		if strings.TrimSpace(value) != "" {
			vars[key] = value
		}
	}
	set("title", metadata.Title)
	if metadata.DOI != "" {
		vars["doi_url"] = "https://doi.org/" + metadata.DOI
	}
	set("mca_entry", metadata.MCAEntry)
	set("archive_filename", metadata.ArchiveFilename)
	set("aiida_profile", metadata.AiidaProfile)
	vars["record_id"] = metadata.RecordID
	vars["archive_url"] = metadata.ArchiveURL
	return vars
}

// Process filters and renders a notebook template. Fields of the notebook the
// processor does not touch are passed through.
func Process(template []byte, opts Options) ([]byte, Result, error) {
	logger := logging.OrDiscard(opts.Logger)
	var document map[string]json.RawMessage
	if err := json.Unmarshal(template, &document); err != nil {
		return nil, Result{}, invalidTemplate(fmt.Errorf("decode notebook: %w", err))
	}
	var cells []json.RawMessage
	if rawCells, ok := document["cells"]; ok {
		if err := json.Unmarshal(rawCells, &cells); err != nil {
			return nil, Result{}, invalidTemplate(fmt.Errorf("decode notebook cells: %w", err))
		}
	}

	result := Result{}
	vars := Variables(opts.Metadata)
	templates := newRenderer()
	out := make([]json.RawMessage, 0, len(cells)+1)
	if banner, ok := warningCell(opts.Warning); ok {
		out = append(out, banner)
		result.Banner = true
	}
	for index, cell := range cells {
		archiveTag, manualTag := cellTags(cell)
		archiveOnly := archiveTag && !manualTag
		manualOnly := manualTag && !archiveTag
		if (opts.HasArchive && manualOnly) || (!opts.HasArchive && archiveOnly) {
			result.Dropped++
			continue
		}
		if opts.HasArchive && archiveOnly && gjson.GetBytes(cell, "cell_type").String() == "markdown" {
			rendered, err := renderCell(cell, templates, vars)
			if err != nil {
				return nil, Result{}, invalidTemplate(fmt.Errorf("render cell %d: %w", index, err))
			}
			cell = rendered
			result.Rendered++
		}
		out = append(out, cell)
		result.Kept++
	}

	encodedCells, err := marshalNoEscape(out)
	if err != nil {
		return nil, Result{}, coreerrors.Wrap(fmt.Errorf("encode notebook cells: %w", err), coreerrors.CategoryInternalFailure, "notebook_encode_failed", "", false)
	}
	document["cells"] = encodedCells

	var buffer bytes.Buffer
	encoder := json.NewEncoder(&buffer)
	encoder.SetEscapeHTML(false)
	encoder.SetIndent("", " ")
	if err := encoder.Encode(document); err != nil {
		return nil, Result{}, coreerrors.Wrap(fmt.Errorf("encode notebook: %w", err), coreerrors.CategoryInternalFailure, "notebook_encode_failed", "", false)
	}
	logger.Info("notebook processed", "has_archive", opts.HasArchive, "kept", result.Kept, "dropped", result.Dropped, "rendered", result.Rendered, "banner", result.Banner)
	return buffer.Bytes(), result, nil
}

// ProcessFile reads templatePath and atomically writes the result to outputPath.
func ProcessFile(templatePath, outputPath string, opts Options) (Result, error) {
	template, err := fsx.ReadFileLimit(templatePath, maxTemplateSize)
	if err != nil {
		return Result{}, coreerrors.Wrap(fmt.Errorf("read notebook template: %w", err), coreerrors.CategoryIOFailure, "notebook_template_read_failed", "check --template", false)
	}
	rendered, result, err := Process(template, opts)
	if err != nil {
		return Result{}, err
	}
	if err := fsx.WriteFileAtomic(outputPath, rendered, 0o644); err != nil {
		return Result{}, coreerrors.Wrap(fmt.Errorf("write notebook: %w", err), coreerrors.CategoryIOFailure, "notebook_write_failed", "check --out", false)
	}
	return result, nil
}

func cellTags(cell json.RawMessage) (archiveTag bool, manualTag bool) {
	for _, tag := range gjson.GetBytes(cell, "metadata.tags").Array() {
		switch tag.String() {
		case TagArchiveSetup:
			archiveTag = true
		case TagManualSetup:
			manualTag = true
		}
	}
	return archiveTag, manualTag
}

func renderCell(cell json.RawMessage, templates *renderer, vars map[string]any) (json.RawMessage, error) {
	decoder := json.NewDecoder(bytes.NewReader(cell))
	decoder.UseNumber()
	var fields map[string]any
	if err := decoder.Decode(&fields); err != nil {
		return nil, fmt.Errorf("decode cell: %w", err)
	}
	rendered, err := templates.render(joinSource(gjson.GetBytes(cell, "source")), vars)
	if err != nil {
		return nil, err
	}
	fields["source"] = splitSource(rendered)
	encoded, err := marshalNoEscape(fields)
	if err != nil {
		return nil, fmt.Errorf("encode cell: %w", err)
	}
	return encoded, nil
}

func warningCell(summary *schemasession.ConflictSummary) (json.RawMessage, bool) {
	if summary == nil || summary.Severity != "warning" {
		return nil, false
	}
	text := "### Session conflict detected\n\n" +
		"Another session of this workspace may be running. " +
		"Close the other sessions before working with the archive.\n\n" +
		"```text\n" + strings.TrimRight(summary.Message, "\n") + "\n```"
	cell := map[string]any{
		"cell_type": "markdown",
		"id":        TagSessionWarning,
		"metadata":  map[string]any{"tags": []string{TagSessionWarning}},
		"source":    splitSource(text),
	}
	encoded, err := marshalNoEscape(cell)
	if err != nil {
		return nil, false
	}
	return encoded, true
}

// joinSource accepts both notebook source forms: one string or a list of lines.
func joinSource(source gjson.Result) string {
	if !source.IsArray() {
		return source.String()
	}
	var builder strings.Builder
	for _, line := range source.Array() {
		builder.WriteString(line.String())
	}
	return builder.String()
}

// splitSource converts text to notebook line form: every line but the last
// keeps its trailing newline.
func splitSource(text string) []string {
	lines := strings.Split(text, "\n")
	for index := 0; index < len(lines)-1; index++ {
		lines[index] += "\n"
	}
	return lines
}

func marshalNoEscape(value any) (json.RawMessage, error) {
	var buffer bytes.Buffer
	encoder := json.NewEncoder(&buffer)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(value); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buffer.Bytes(), "\n"), nil
}

func invalidTemplate(err error) error {
	return coreerrors.Wrap(err, coreerrors.CategoryInvalidInput, "notebook_template_invalid", "the template must be a notebook JSON document with a cells list", false)
}
