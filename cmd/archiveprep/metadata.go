package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/davidahmann/archiveprep/core/archiveurl"
	"github.com/davidahmann/archiveprep/core/metadata"
	schemaarchive "github.com/davidahmann/archiveprep/core/schema/v1/archive"
)

type metadataOutput struct {
	OK              bool     `json:"ok"`
	Path            string   `json:"path,omitempty"`
	RecordID        string   `json:"record_id,omitempty"`
	Title           string   `json:"title,omitempty"`
	DOI             string   `json:"doi,omitempty"`
	ArchiveURL      string   `json:"archive_url,omitempty"`
	ArchiveFilename string   `json:"archive_filename,omitempty"`
	AiidaProfile    string   `json:"aiida_profile,omitempty"`
	ArchiveFiles    []string `json:"archive_files,omitempty"`
	Fetched         bool     `json:"fetched"`
	FetchError      string   `json:"fetch_error,omitempty"`
	errorDetails
}

func runMetadata(arguments []string) int {
	if hasExplainFlag(arguments) {
		return writeExplain("Normalize the archive link, fetch the record metadata from the archive API and write the metadata artifact used to render the notebook.")
	}
	arguments = reorderInterspersedFlags(arguments, map[string]bool{
		"url":         true,
		"out":         true,
		"api-timeout": true,
		"profile":     true,
		"config":      true,
	})
	flagSet := flag.NewFlagSet("metadata", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)

	var urlFlag string
	var outPath string
	var apiTimeout time.Duration
	var profile string
	var offlineFallback bool
	var configPath string
	var jsonOutput bool
	var helpFlag bool

	flagSet.StringVar(&urlFlag, "url", "", "archive URL (defaults to $ARCHIVE_URL, then $archive_url)")
	flagSet.StringVar(&outPath, "out", "", "metadata artifact path")
	flagSet.DurationVar(&apiTimeout, "api-timeout", 0, "archive API request timeout")
	flagSet.StringVar(&profile, "profile", "", "AiiDA profile name (defaults to the archive filename)")
	flagSet.BoolVar(&offlineFallback, "offline-fallback", false, "write metadata derived from the link when the archive API fails")
	flagSet.StringVar(&configPath, "config", "", "project config path")
	flagSet.BoolVar(&jsonOutput, "json", false, "emit JSON output")
	flagSet.BoolVar(&helpFlag, "help", false, "show help")

	if err := flagSet.Parse(arguments); err != nil {
		return writeMetadataOutput(jsonOutput, metadataOutput{errorDetails: messageDetails(err.Error())}, exitInvalidInput)
	}
	if helpFlag {
		printMetadataUsage()
		return exitOK
	}
	if len(flagSet.Args()) > 0 {
		return writeMetadataOutput(jsonOutput, metadataOutput{errorDetails: messageDetails("unexpected positional arguments")}, exitInvalidInput)
	}

	resolved, err := loadSettings(configPath)
	if err != nil {
		return writeMetadataOutput(jsonOutput, metadataOutput{errorDetails: detailsFor(err)}, exitCodeForError(err, exitInvalidInput))
	}
	rawURL, _ := archiveURL(urlFlag)
	reference, err := resolved.normalizer.Normalize(rawURL)
	if err != nil {
		return writeMetadataOutput(jsonOutput, metadataOutput{errorDetails: detailsFor(err)}, exitCodeForError(err, exitInvalidInput))
	}

	if reference.Untrusted() {
		// Links outside the archive host carry no record id to fetch.
		offlineFallback = true
	}
	record, fetchErr := fetchMetadata(context.Background(), resolved, reference, apiTimeout, profile)
	if fetchErr != nil && !offlineFallback {
		return writeMetadataOutput(jsonOutput, metadataOutput{errorDetails: detailsFor(fetchErr)}, exitCodeForError(fetchErr, exitInternalFailure))
	}
	path := resolved.metadataPath(outPath)
	if err := metadata.Write(path, record); err != nil {
		return writeMetadataOutput(jsonOutput, metadataOutput{errorDetails: detailsFor(err)}, exitCodeForError(err, exitInternalFailure))
	}
	output := metadataOutputFor(path, record)
	if fetchErr != nil {
		output.FetchError = fetchErr.Error()
	}
	return writeMetadataOutput(jsonOutput, output, exitOK)
}

// fetchMetadata returns the fetched record, or on failure the metadata known
// from the link together with the fetch error.
func fetchMetadata(ctx context.Context, resolved settings, reference archiveurl.Reference, timeoutFlag time.Duration, profileFlag string) (schemaarchive.Metadata, error) {
	options := metadata.FetchOptions{
		Reference:       reference,
		Normalizer:      resolved.normalizer,
		Timeout:         resolved.apiTimeout(timeoutFlag),
		Profile:         resolved.aiidaProfile(profileFlag),
		ProducerVersion: version,
		Logger:          resolved.logger,
	}
	record, err := metadata.Fetch(ctx, options)
	if err != nil {
		resolved.logger.Warn("archive metadata fetch failed", "record_id", reference.RecordID, "error", err)
		return metadata.FromReference(reference, options), err
	}
	return record, nil
}

func metadataOutputFor(path string, record schemaarchive.Metadata) metadataOutput {
	output := metadataOutput{
		OK:              true,
		Path:            path,
		RecordID:        record.RecordID,
		Title:           record.Title,
		DOI:             record.DOI,
		ArchiveURL:      record.ArchiveURL,
		ArchiveFilename: record.ArchiveFilename,
		AiidaProfile:    record.AiidaProfile,
		Fetched:         record.Fetched,
	}
	for _, file := range metadata.ArchiveFiles(record) {
		output.ArchiveFiles = append(output.ArchiveFiles, file.Filename)
	}
	return output
}

func writeMetadataOutput(jsonOutput bool, output metadataOutput, exitCode int) int {
	if jsonOutput {
		return writeJSONOutput(output, exitCode)
	}
	if output.Error != "" {
		writeErrorText("metadata", output.errorDetails)
		return exitCode
	}
	fmt.Printf("metadata: %s\n", output.Path)
	fmt.Printf("title=%s\n", output.Title)
	if output.DOI != "" {
		fmt.Printf("doi=%s\n", output.DOI)
	}
	fmt.Printf("archive_url=%s\n", output.ArchiveURL)
	fmt.Printf("aiida_profile=%s\n", output.AiidaProfile)
	if len(output.ArchiveFiles) > 1 {
		fmt.Printf("note: the record contains %d archive files\n", len(output.ArchiveFiles))
	}
	if output.FetchError != "" {
		fmt.Printf("warning: metadata written without the archive API: %s\n", output.FetchError)
	}
	return exitCode
}

func printMetadataUsage() {
	fmt.Println("Usage:")
	fmt.Println("  archiveprep metadata [--url <archive_url>] [--out <metadata.json>] [--api-timeout <duration>] [--profile <name>] [--offline-fallback] [--config <path>] [--json] [--explain]")
}
