package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/davidahmann/archiveprep/core/oplog"
)

// version is stamped at release time via ldflags; default stays dev for local builds.
var version = "0.0.0-dev"

func main() {
	os.Exit(run(os.Args))
}

func run(arguments []string) int {
	startedAt := time.Now()
	correlationID := newCorrelationID(arguments)
	setCurrentCorrelationID(correlationID)
	command := normalizeCommandName(arguments)
	writeOperationalEventStart(command, correlationID, startedAt.UTC())
	exitCode := runDispatch(arguments)
	writeOperationalEventEnd(command, correlationID, exitCode, time.Since(startedAt), time.Now().UTC())
	setCurrentCorrelationID("")
	return exitCode
}

func runDispatch(arguments []string) int {
	if len(arguments) < 2 {
		printUsage()
		return exitOK
	}
	if arguments[1] == "--explain" {
		return writeExplain("archiveprep prepares a notebook session for an archive: it normalizes the archive link, fetches the record metadata, detects conflicting sessions and renders the exploration notebook.")
	}

	switch arguments[1] {
	case "normalize":
		return runNormalize(arguments[2:])
	case "session":
		return runSession(arguments[2:])
	case "metadata":
		return runMetadata(arguments[2:])
	case "notebook":
		return runNotebook(arguments[2:])
	case "prepare":
		return runPrepare(arguments[2:])
	case "version", "--version", "-v":
		if hasExplainFlag(arguments[2:]) {
			return writeExplain("Print the CLI version.")
		}
		fmt.Println("archiveprep", version)
		return exitOK
	case "help", "--help", "-h":
		printUsage()
		return exitOK
	default:
		printUsage()
		return exitInvalidInput
	}
}

func normalizeCommandName(arguments []string) string {
	if len(arguments) < 2 {
		return "usage"
	}
	command := strings.TrimSpace(arguments[1])
	switch command {
	case "":
		return "unknown"
	case "--version", "-v", "version":
		return "version"
	case "--explain":
		return "explain"
	}
	return command
}

func writeOperationalEventStart(command string, correlationID string, now time.Time) {
	operationalPath := strings.TrimSpace(os.Getenv(oplog.EnvPath))
	if operationalPath == "" {
		return
	}
	event := oplog.NewStartEvent(command, correlationID, version, now)
	reportOperationalWriteFailure(oplog.Append(operationalPath, event))
}

func writeOperationalEventEnd(command string, correlationID string, exitCode int, elapsed time.Duration, now time.Time) {
	operationalPath := strings.TrimSpace(os.Getenv(oplog.EnvPath))
	if operationalPath == "" {
		return
	}
	category := "none"
	retryable := false
	if exitCode != exitOK {
		resolvedCategory := defaultErrorCategory(exitCode)
		category = string(resolvedCategory)
		retryable = defaultRetryable(resolvedCategory)
	}
	event := oplog.NewEndEvent(command, correlationID, version, exitCode, category, retryable, elapsed, now)
	reportOperationalWriteFailure(oplog.Append(operationalPath, event))
}

func reportOperationalWriteFailure(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "archiveprep warning: operational log write failed: %v\n", err)
}

func printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  archiveprep normalize [--url <archive_url>|<archive_url>] [--config <path>] [--json] [--explain]")
	fmt.Println("  archiveprep session [--url <archive_url>] [--cache-dir <dir>] [--config <path>] [--json] [--explain]")
	fmt.Println("  archiveprep metadata [--url <archive_url>] [--out <metadata.json>] [--api-timeout <duration>] [--profile <name>] [--offline-fallback] [--config <path>] [--json] [--explain]")
	fmt.Println("  archiveprep notebook --template <template.ipynb> --out <notebook.ipynb> [--archive] [--url <archive_url>] [--metadata <metadata.json>] [--warning-summary <session_conflict.json>] [--cache-dir <dir>] [--config <path>] [--json] [--explain]")
	fmt.Println("  archiveprep prepare [--url <archive_url>] [--cache-dir <dir>] [--metadata <path>] [--template <path> --out <path>] [--api-timeout <duration>] [--profile <name>] [--config <path>] [--json] [--explain]")
	fmt.Println("  archiveprep version")
	fmt.Println("")
	fmt.Println("The archive URL is read from --url, then $ARCHIVE_URL, then $archive_url.")
}
