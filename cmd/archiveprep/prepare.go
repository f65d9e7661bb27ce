package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/davidahmann/archiveprep/core/archiveurl"
	"github.com/davidahmann/archiveprep/core/metadata"
	"github.com/davidahmann/archiveprep/core/notebook"
	schemaarchive "github.com/davidahmann/archiveprep/core/schema/v1/archive"
	"github.com/davidahmann/archiveprep/core/session"
)

type prepareOutput struct {
	OK             bool                  `json:"ok"`
	Mode           string                `json:"mode,omitempty"`
	Source         string                `json:"source,omitempty"`
	Reference      *archiveurl.Reference `json:"reference,omitempty"`
	Metadata       *metadataOutput       `json:"metadata,omitempty"`
	Session        *sessionOutput        `json:"session,omitempty"`
	Notebook       *notebookOutput       `json:"notebook,omitempty"`
	Warnings       []string              `json:"warnings,omitempty"`
	SessionMessage string                `json:"-"`
	errorDetails
}

func runPrepare(arguments []string) int {
	if hasExplainFlag(arguments) {
		return writeExplain("Run the whole launch: normalize the archive link, fetch and store its metadata, check the session record for conflicts and render the notebook. Without an archive link the notebook is rendered in manual-setup mode.")
	}
	arguments = reorderInterspersedFlags(arguments, map[string]bool{
		"url":         true,
		"cache-dir":   true,
		"metadata":    true,
		"template":    true,
		"out":         true,
		"api-timeout": true,
		"profile":     true,
		"config":      true,
	})
	flagSet := flag.NewFlagSet("prepare", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)

	var urlFlag string
	var cacheDir string
	var metadataPath string
	var templatePath string
	var outPath string
	var apiTimeout time.Duration
	var profile string
	var configPath string
	var jsonOutput bool
	var helpFlag bool

	flagSet.StringVar(&urlFlag, "url", "", "archive URL (defaults to $ARCHIVE_URL, then $archive_url)")
	flagSet.StringVar(&cacheDir, "cache-dir", "", "session cache directory")
	flagSet.StringVar(&metadataPath, "metadata", "", "metadata artifact path")
	flagSet.StringVar(&templatePath, "template", "", "notebook template path")
	flagSet.StringVar(&outPath, "out", "", "rendered notebook path")
	flagSet.DurationVar(&apiTimeout, "api-timeout", 0, "archive API request timeout")
	flagSet.StringVar(&profile, "profile", "", "AiiDA profile name (defaults to the archive filename)")
	flagSet.StringVar(&configPath, "config", "", "project config path")
	flagSet.BoolVar(&jsonOutput, "json", false, "emit JSON output")
	flagSet.BoolVar(&helpFlag, "help", false, "show help")

	if err := flagSet.Parse(arguments); err != nil {
		return writePrepareOutput(jsonOutput, prepareOutput{errorDetails: messageDetails(err.Error())}, exitInvalidInput)
	}
	if helpFlag {
		printPrepareUsage()
		return exitOK
	}
	if len(flagSet.Args()) > 0 {
		return writePrepareOutput(jsonOutput, prepareOutput{errorDetails: messageDetails("unexpected positional arguments")}, exitInvalidInput)
	}

	resolved, err := loadSettings(configPath)
	if err != nil {
		return writePrepareOutput(jsonOutput, prepareOutput{errorDetails: detailsFor(err)}, exitCodeForError(err, exitInvalidInput))
	}
	templatePath = resolved.notebookTemplate(templatePath)
	outPath = resolved.notebookOutput(outPath)
	if templatePath != "" && outPath == "" {
		return writePrepareOutput(jsonOutput, prepareOutput{errorDetails: messageDetails("--out is required when a notebook template is set")}, exitInvalidInput)
	}

	rawURL, source := archiveURL(urlFlag)
	output := prepareOutput{Mode: modeManual, Source: source}
	var record *schemaarchive.Metadata
	currentURL := ""
	if rawURL != "" {
		output.Mode = modeArchive
		reference, err := resolved.normalizer.Normalize(rawURL)
		if err != nil {
			return writePrepareOutput(jsonOutput, prepareOutput{Mode: modeArchive, Source: source, errorDetails: detailsFor(err)}, exitCodeForError(err, exitInvalidInput))
		}
		output.Reference = &reference
		currentURL = reference.CanonicalURL

		prepared, warnings := prepareMetadata(resolved, reference, metadataPath, apiTimeout, profile)
		record = &prepared
		output.Warnings = append(output.Warnings, warnings...)
		summary := metadataOutputFor(resolved.metadataPath(metadataPath), prepared)
		output.Metadata = &summary
	}

	outcome, err := runDetector(resolved, cacheDir, currentURL)
	if err != nil {
		output.errorDetails = detailsFor(err)
		return writePrepareOutput(jsonOutput, output, exitCodeForError(err, exitInternalFailure))
	}
	sessionSummary := sessionOutputFor(outcome)
	output.Session = &sessionSummary
	output.SessionMessage = outcome.Message

	if templatePath != "" {
		rendered, err := prepareNotebook(resolved, outcome, record, output.Mode, templatePath, outPath)
		if err != nil {
			output.errorDetails = detailsFor(err)
			return writePrepareOutput(jsonOutput, output, exitCodeForError(err, exitInternalFailure))
		}
		output.Notebook = &rendered
		output.Warnings = append(output.Warnings, rendered.Warnings...)
	}
	output.OK = true
	return writePrepareOutput(jsonOutput, output, exitOK)
}

// prepareMetadata fetches and stores the archive metadata. Failures degrade to
// the metadata known from the link and are reported as warnings; the launch
// continues either way.
func prepareMetadata(resolved settings, reference archiveurl.Reference, metadataFlag string, timeoutFlag time.Duration, profileFlag string) (schemaarchive.Metadata, []string) {
	var warnings []string
	var record schemaarchive.Metadata
	if reference.RecordID == "" {
		record = metadata.FromReference(reference, metadata.FetchOptions{
			Normalizer:      resolved.normalizer,
			Profile:         resolved.aiidaProfile(profileFlag),
			ProducerVersion: version,
		})
		warnings = append(warnings, fmt.Sprintf("archive host is not trusted; metadata for %s was not fetched", reference.CanonicalURL))
	} else {
		fetched, err := fetchMetadata(context.Background(), resolved, reference, timeoutFlag, profileFlag)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("archive metadata unavailable: %v", err))
		}
		record = fetched
	}
	path := resolved.metadataPath(metadataFlag)
	if err := metadata.Write(path, record); err != nil {
		resolved.logger.Warn("metadata artifact not written", "path", path, "error", err)
		warnings = append(warnings, fmt.Sprintf("metadata artifact not written: %v", err))
	}
	return record, warnings
}

func prepareNotebook(resolved settings, outcome session.Outcome, record *schemaarchive.Metadata, mode string, templatePath, outPath string) (notebookOutput, error) {
	output := notebookOutput{OK: true, Template: templatePath, Path: outPath, Mode: mode}
	options := notebook.Options{
		HasArchive: mode == modeArchive,
		Metadata:   record,
		Logger:     resolved.logger,
	}
	if outcome.SummaryPath != "" {
		summary, err := loadWarningSummary(outcome.SummaryPath)
		if err != nil {
			output.Warnings = append(output.Warnings, fmt.Sprintf("ignored session conflict summary %s: %v", outcome.SummaryPath, err))
		}
		options.Warning = summary
	}
	result, err := notebook.ProcessFile(templatePath, outPath, options)
	if err != nil {
		return notebookOutput{}, err
	}
	output.Result = &result
	return output, nil
}

func writePrepareOutput(jsonOutput bool, output prepareOutput, exitCode int) int {
	if jsonOutput {
		return writeJSONOutput(output, exitCode)
	}
	if output.SessionMessage != "" {
		fmt.Fprintln(os.Stderr, output.SessionMessage)
	}
	for _, warning := range output.Warnings {
		fmt.Fprintf(os.Stderr, "warning: %s\n", warning)
	}
	if output.Error != "" {
		writeErrorText("prepare", output.errorDetails)
		return exitCode
	}
	fmt.Printf("prepare: mode=%s\n", output.Mode)
	if output.Reference != nil {
		fmt.Printf("canonical_url=%s\n", output.Reference.CanonicalURL)
	}
	if output.Metadata != nil {
		fmt.Printf("metadata=%s fetched=%t\n", output.Metadata.Path, output.Metadata.Fetched)
	}
	if output.Session != nil {
		fmt.Printf("session: classification=%s session_id=%s\n", output.Session.Classification, output.Session.SessionID)
	}
	if output.Notebook != nil {
		fmt.Printf("notebook=%s\n", output.Notebook.Path)
	}
	return exitCode
}

func printPrepareUsage() {
	fmt.Println("Usage:")
	fmt.Println("  archiveprep prepare [--url <archive_url>] [--cache-dir <dir>] [--metadata <path>] [--template <template.ipynb> --out <notebook.ipynb>] [--api-timeout <duration>] [--profile <name>] [--config <path>] [--json] [--explain]")
}
