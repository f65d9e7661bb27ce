package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	coreerrors "github.com/davidahmann/archiveprep/core/errors"
	"github.com/davidahmann/archiveprep/core/metadata"
	"github.com/davidahmann/archiveprep/core/notebook"
	schemaarchive "github.com/davidahmann/archiveprep/core/schema/v1/archive"
	schemasession "github.com/davidahmann/archiveprep/core/schema/v1/session"
	"github.com/davidahmann/archiveprep/core/session"
)

type notebookOutput struct {
	OK           bool             `json:"ok"`
	Template     string           `json:"template,omitempty"`
	Path         string           `json:"path,omitempty"`
	Mode         string           `json:"mode,omitempty"`
	MetadataPath string           `json:"metadata_path,omitempty"`
	Result       *notebook.Result `json:"result,omitempty"`
	Warnings     []string         `json:"warnings,omitempty"`
	errorDetails
}

const (
	modeArchive = "archive"
	modeManual  = "manual"
)

func runNotebook(arguments []string) int {
	if hasExplainFlag(arguments) {
		return writeExplain("Render the exploration notebook from its tagged template: keep the archive-setup or manual-setup cells, fill archive placeholders from the metadata artifact and prepend a banner when a session conflict was recorded.")
	}
	arguments = reorderInterspersedFlags(arguments, map[string]bool{
		"template":        true,
		"out":             true,
		"url":             true,
		"metadata":        true,
		"warning-summary": true,
		"cache-dir":       true,
		"config":          true,
	})
	flagSet := flag.NewFlagSet("notebook", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)

	var templatePath string
	var outPath string
	var archiveFlag bool
	var urlFlag string
	var metadataPath string
	var summaryPath string
	var cacheDir string
	var configPath string
	var jsonOutput bool
	var helpFlag bool

	flagSet.StringVar(&templatePath, "template", "", "notebook template path")
	flagSet.StringVar(&outPath, "out", "", "rendered notebook path")
	flagSet.BoolVar(&archiveFlag, "archive", false, "render in archive mode even without an archive URL")
	flagSet.StringVar(&urlFlag, "url", "", "archive URL (defaults to $ARCHIVE_URL, then $archive_url)")
	flagSet.StringVar(&metadataPath, "metadata", "", "metadata artifact path")
	flagSet.StringVar(&summaryPath, "warning-summary", "", "session conflict summary path")
	flagSet.StringVar(&cacheDir, "cache-dir", "", "session cache directory")
	flagSet.StringVar(&configPath, "config", "", "project config path")
	flagSet.BoolVar(&jsonOutput, "json", false, "emit JSON output")
	flagSet.BoolVar(&helpFlag, "help", false, "show help")

	if err := flagSet.Parse(arguments); err != nil {
		return writeNotebookOutput(jsonOutput, notebookOutput{errorDetails: messageDetails(err.Error())}, exitInvalidInput)
	}
	if helpFlag {
		printNotebookUsage()
		return exitOK
	}
	if len(flagSet.Args()) > 0 {
		return writeNotebookOutput(jsonOutput, notebookOutput{errorDetails: messageDetails("unexpected positional arguments")}, exitInvalidInput)
	}

	resolved, err := loadSettings(configPath)
	if err != nil {
		return writeNotebookOutput(jsonOutput, notebookOutput{errorDetails: detailsFor(err)}, exitCodeForError(err, exitInvalidInput))
	}
	templatePath = resolved.notebookTemplate(templatePath)
	outPath = resolved.notebookOutput(outPath)
	if templatePath == "" || outPath == "" {
		return writeNotebookOutput(jsonOutput, notebookOutput{errorDetails: messageDetails("--template and --out are required (or set notebook.template and notebook.output in the project config)")}, exitInvalidInput)
	}
	rawURL, _ := archiveURL(urlFlag)
	hasArchive := archiveFlag || rawURL != ""

	output := notebookOutput{Template: templatePath, Path: outPath, Mode: modeManual}
	options := notebook.Options{HasArchive: hasArchive, Logger: resolved.logger}
	if hasArchive {
		output.Mode = modeArchive
		record, path, warning, err := loadNotebookMetadata(resolved, metadataPath)
		if err != nil {
			return writeNotebookOutput(jsonOutput, notebookOutput{errorDetails: detailsFor(err)}, exitCodeForError(err, exitInvalidInput))
		}
		options.Metadata = record
		output.MetadataPath = path
		if warning != "" {
			output.Warnings = append(output.Warnings, warning)
		}
	}

	if summaryPath == "" {
		summaryPath = filepath.Join(resolved.cacheDir(cacheDir), session.SummaryFile)
	}
	summary, err := loadWarningSummary(summaryPath)
	if err != nil {
		resolved.logger.Warn("ignoring session conflict summary", "path", summaryPath, "error", err)
		output.Warnings = append(output.Warnings, fmt.Sprintf("ignored session conflict summary %s: %v", summaryPath, err))
	}
	options.Warning = summary

	result, err := notebook.ProcessFile(templatePath, outPath, options)
	if err != nil {
		return writeNotebookOutput(jsonOutput, notebookOutput{errorDetails: detailsFor(err)}, exitCodeForError(err, exitInternalFailure))
	}
	output.OK = true
	output.Result = &result
	return writeNotebookOutput(jsonOutput, output, exitOK)
}

// loadNotebookMetadata reads the metadata artifact. An explicit path must
// load; the defaulted path may be absent, in which case placeholders render
// with their defaults.
func loadNotebookMetadata(resolved settings, flagValue string) (*schemaarchive.Metadata, string, string, error) {
	path := resolved.metadataPath(flagValue)
	record, err := metadata.Read(path)
	if err == nil {
		return &record, path, "", nil
	}
	if flagValue == "" && errors.Is(err, os.ErrNotExist) {
		return nil, path, fmt.Sprintf("metadata artifact %s not found; rendering with defaults", path), nil
	}
	if flagValue == "" {
		return nil, path, fmt.Sprintf("metadata artifact %s unusable (%v); rendering with defaults", path, err), nil
	}
	return nil, path, "", coreerrors.Wrap(err, coreerrors.CategoryInvalidInput, "metadata_unavailable", "run `archiveprep metadata` first or pass a valid --metadata", false)
}

// loadWarningSummary returns nil without error when no summary was recorded.
func loadWarningSummary(path string) (*schemasession.ConflictSummary, error) {
	summary, err := session.ReadSummary(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	return &summary, nil
}

func writeNotebookOutput(jsonOutput bool, output notebookOutput, exitCode int) int {
	if jsonOutput {
		return writeJSONOutput(output, exitCode)
	}
	if output.Error != "" {
		writeErrorText("notebook", output.errorDetails)
		return exitCode
	}
	for _, warning := range output.Warnings {
		fmt.Fprintf(os.Stderr, "warning: %s\n", warning)
	}
	fmt.Printf("notebook: %s mode=%s\n", output.Path, output.Mode)
	if output.Result != nil {
		fmt.Printf("cells: kept=%d dropped=%d rendered=%d warning_banner=%t\n", output.Result.Kept, output.Result.Dropped, output.Result.Rendered, output.Result.Banner)
	}
	return exitCode
}

func printNotebookUsage() {
	fmt.Println("Usage:")
	fmt.Println("  archiveprep notebook --template <template.ipynb> --out <notebook.ipynb> [--archive] [--url <archive_url>] [--metadata <path>] [--warning-summary <path>] [--cache-dir <dir>] [--config <path>] [--json] [--explain]")
}
