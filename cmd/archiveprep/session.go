package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/davidahmann/archiveprep/core/archiveurl"
	"github.com/davidahmann/archiveprep/core/session"
)

type sessionOutput struct {
	OK                 bool   `json:"ok"`
	Classification     string `json:"classification,omitempty"`
	SessionID          string `json:"session_id,omitempty"`
	ArchiveURL         string `json:"archive_url"`
	PreviousSessionID  string `json:"previous_session_id,omitempty"`
	PreviousArchiveURL string `json:"previous_archive_url,omitempty"`
	Message            string `json:"message,omitempty"`
	RecordPath         string `json:"record_path,omitempty"`
	WarningPath        string `json:"warning_path,omitempty"`
	SummaryPath        string `json:"summary_path,omitempty"`
	errorDetails
}

func runSession(arguments []string) int {
	if hasExplainFlag(arguments) {
		return writeExplain("Compare this launch with the session record left by the previous launch, report url changes or conflicting sessions, and persist the current record. Conflicts never fail the command.")
	}
	arguments = reorderInterspersedFlags(arguments, map[string]bool{
		"url":       true,
		"cache-dir": true,
		"config":    true,
	})
	flagSet := flag.NewFlagSet("session", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)

	var urlFlag string
	var cacheDir string
	var configPath string
	var jsonOutput bool
	var helpFlag bool

	flagSet.StringVar(&urlFlag, "url", "", "archive URL (defaults to $ARCHIVE_URL, then $archive_url)")
	flagSet.StringVar(&cacheDir, "cache-dir", "", "session cache directory")
	flagSet.StringVar(&configPath, "config", "", "project config path")
	flagSet.BoolVar(&jsonOutput, "json", false, "emit JSON output")
	flagSet.BoolVar(&helpFlag, "help", false, "show help")

	if err := flagSet.Parse(arguments); err != nil {
		return writeSessionOutput(jsonOutput, sessionOutput{errorDetails: messageDetails(err.Error())}, exitInvalidInput)
	}
	if helpFlag {
		printSessionUsage()
		return exitOK
	}
	if len(flagSet.Args()) > 0 {
		return writeSessionOutput(jsonOutput, sessionOutput{errorDetails: messageDetails("unexpected positional arguments")}, exitInvalidInput)
	}

	resolved, err := loadSettings(configPath)
	if err != nil {
		return writeSessionOutput(jsonOutput, sessionOutput{errorDetails: detailsFor(err)}, exitCodeForError(err, exitInvalidInput))
	}
	rawURL, _ := archiveURL(urlFlag)
	outcome, err := runDetector(resolved, cacheDir, sessionURL(resolved.normalizer, rawURL))
	if err != nil {
		return writeSessionOutput(jsonOutput, sessionOutput{errorDetails: detailsFor(err)}, exitCodeForError(err, exitInternalFailure))
	}
	return writeSessionOutput(jsonOutput, sessionOutputFor(outcome), exitOK)
}

// sessionURL is the value recorded for the launch. Links that normalize are
// recorded in canonical form so equivalent links compare equal.
func sessionURL(normalizer *archiveurl.Normalizer, rawURL string) string {
	if rawURL == "" {
		return ""
	}
	if reference, err := normalizer.Normalize(rawURL); err == nil {
		return reference.CanonicalURL
	}
	return rawURL
}

func runDetector(resolved settings, cacheDirFlag string, currentURL string) (session.Outcome, error) {
	detector, err := session.New(session.Options{
		CacheDir:        resolved.cacheDir(cacheDirFlag),
		Identity:        session.EnvIdentity{},
		ProducerVersion: version,
		Logger:          resolved.logger,
	})
	if err != nil {
		return session.Outcome{}, err
	}
	return detector.Run(currentURL)
}

func sessionOutputFor(outcome session.Outcome) sessionOutput {
	output := sessionOutput{
		OK:             true,
		Classification: string(outcome.Classification),
		SessionID:      outcome.SessionID,
		ArchiveURL:     outcome.Current.ArchiveURL,
		Message:        outcome.Message,
		RecordPath:     outcome.RecordPath,
		WarningPath:    outcome.WarningPath,
		SummaryPath:    outcome.SummaryPath,
	}
	if outcome.Previous != nil {
		output.PreviousSessionID = outcome.Previous.SessionID
		output.PreviousArchiveURL = outcome.Previous.ArchiveURL
	}
	return output
}

func writeSessionOutput(jsonOutput bool, output sessionOutput, exitCode int) int {
	if jsonOutput {
		return writeJSONOutput(output, exitCode)
	}
	if output.Error != "" {
		writeErrorText("session", output.errorDetails)
		return exitCode
	}
	if output.Message != "" {
		fmt.Fprintln(os.Stderr, output.Message)
	}
	fmt.Printf("session: classification=%s session_id=%s\n", output.Classification, output.SessionID)
	if output.WarningPath != "" {
		fmt.Printf("warning: %s\n", output.WarningPath)
	}
	return exitCode
}

func printSessionUsage() {
	fmt.Println("Usage:")
	fmt.Println("  archiveprep session [--url <archive_url>] [--cache-dir <dir>] [--config <path>] [--json] [--explain]")
}
