package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/davidahmann/archiveprep/core/archiveurl"
)

type normalizeOutput struct {
	OK           bool     `json:"ok"`
	Input        string   `json:"input,omitempty"`
	Source       string   `json:"source,omitempty"`
	CanonicalURL string   `json:"canonical_url,omitempty"`
	RecordID     string   `json:"record_id,omitempty"`
	Filename     string   `json:"filename,omitempty"`
	Warnings     []string `json:"warnings,omitempty"`
	RecordURL    string   `json:"record_url,omitempty"`
	errorDetails
}

func runNormalize(arguments []string) int {
	if hasExplainFlag(arguments) {
		return writeExplain("Normalize an archive link into its canonical record/file URL and report the record id and filename.")
	}
	arguments = reorderInterspersedFlags(arguments, map[string]bool{
		"url":    true,
		"config": true,
	})
	flagSet := flag.NewFlagSet("normalize", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)

	var urlFlag string
	var configPath string
	var jsonOutput bool
	var helpFlag bool

	flagSet.StringVar(&urlFlag, "url", "", "archive URL (defaults to $ARCHIVE_URL, then $archive_url)")
	flagSet.StringVar(&configPath, "config", "", "project config path")
	flagSet.BoolVar(&jsonOutput, "json", false, "emit JSON output")
	flagSet.BoolVar(&helpFlag, "help", false, "show help")

	if err := flagSet.Parse(arguments); err != nil {
		return writeNormalizeOutput(jsonOutput, normalizeOutput{errorDetails: messageDetails(err.Error())}, exitInvalidInput)
	}
	if helpFlag {
		printNormalizeUsage()
		return exitOK
	}
	remaining := flagSet.Args()
	if len(remaining) > 1 || (len(remaining) == 1 && strings.TrimSpace(urlFlag) != "") {
		return writeNormalizeOutput(jsonOutput, normalizeOutput{errorDetails: messageDetails("expected one archive URL")}, exitInvalidInput)
	}
	if len(remaining) == 1 {
		urlFlag = remaining[0]
	}

	resolved, err := loadSettings(configPath)
	if err != nil {
		return writeNormalizeOutput(jsonOutput, normalizeOutput{errorDetails: detailsFor(err)}, exitCodeForError(err, exitInvalidInput))
	}
	rawURL, source := archiveURL(urlFlag)
	output := normalizeOutput{Input: rawURL, Source: source}
	reference, err := resolved.normalizer.Normalize(rawURL)
	if err != nil {
		output.errorDetails = detailsFor(err)
		if recordID := archiveurl.RecordIDOf(err); recordID != "" {
			output.RecordID = recordID
			output.RecordURL = resolved.normalizer.RecordURL(recordID)
		}
		resolved.logger.Debug("archive URL rejected", "input", rawURL, "kind", string(archiveurl.KindOf(err)))
		return writeNormalizeOutput(jsonOutput, output, exitCodeForError(err, exitInvalidInput))
	}

	output.OK = true
	output.CanonicalURL = reference.CanonicalURL
	output.RecordID = reference.RecordID
	output.Filename = reference.Filename
	for _, warning := range reference.Warnings {
		output.Warnings = append(output.Warnings, string(warning))
	}
	if reference.RecordID != "" {
		output.RecordURL = resolved.normalizer.RecordURL(reference.RecordID)
	}
	if reference.Untrusted() {
		resolved.logger.Warn("archive URL is not on the configured archive host", "url", reference.CanonicalURL, "host", resolved.normalizer.Host())
	}
	return writeNormalizeOutput(jsonOutput, output, exitOK)
}

func writeNormalizeOutput(jsonOutput bool, output normalizeOutput, exitCode int) int {
	if jsonOutput {
		return writeJSONOutput(output, exitCode)
	}
	if output.Error != "" {
		writeErrorText("normalize", output.errorDetails)
		return exitCode
	}
	fmt.Printf("canonical_url=%s\n", output.CanonicalURL)
	if output.RecordID != "" {
		fmt.Printf("record_id=%s\n", output.RecordID)
	}
	fmt.Printf("filename=%s\n", output.Filename)
	for _, warning := range output.Warnings {
		fmt.Fprintf(os.Stderr, "warning: %s\n", warning)
	}
	return exitCode
}

func printNormalizeUsage() {
	fmt.Println("Usage:")
	fmt.Println("  archiveprep normalize [--url <archive_url>|<archive_url>] [--config <path>] [--json] [--explain]")
}
