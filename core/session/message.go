package session

import (
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/davidahmann/archiveprep/core/archiveurl"
	schemasession "github.com/davidahmann/archiveprep/core/schema/v1/session"
)

// MaxInfoLength bounds the label returned by ArchiveInfo, ellipsis included.
const MaxInfoLength = 60

const (
	ellipsis      = "..."
	bannerWidth   = 78
	bannerPadding = 2
)

// ArchiveInfo is a short label for an archive link: the filename and record id
// when the link follows a known pattern, else its last path segment, else the
// link itself. It accepts any string.
func ArchiveInfo(rawURL string) string {
	trimmed := sanitize(strings.TrimSpace(rawURL))
	if trimmed == "" {
		return "none"
	}
	parts := archiveurl.Extract(trimmed)
	label := trimmed
	switch {
	case parts.Filename != "" && parts.RecordID != "":
		label = sanitize(parts.Filename) + " (record " + sanitize(parts.RecordID) + ")"
	case parts.LastSegment != "":
		label = sanitize(parts.LastSegment)
	}
	if strings.TrimSpace(label) == "" {
		label = trimmed
	}
	return truncate(label, MaxInfoLength)
}

// Message is the banner shown for url_changed and session_conflict launches.
// Other classifications have no message.
func Message(classification Classification, previous *schemasession.Record, currentURL string) string {
	previousURL := ""
	startedAt := "unknown"
	if previous != nil {
		previousURL = previous.ArchiveURL
		if !previous.Timestamp.IsZero() {
			startedAt = previous.Timestamp.UTC().Format(time.RFC3339)
		}
	}
	switch classification {
	case SessionConflict:
		return banner("SESSION CONFLICT DETECTED", []string{
			"",
			"Another notebook session may be running for this workspace.",
			"",
			"Previous session:",
			"  - Archive: " + ArchiveInfo(previousURL),
			"  - Started: " + startedAt,
			"",
			"Current session:",
			"  - Archive: " + ArchiveInfo(currentURL),
			"",
			"Recommended actions:",
			"  1. Close other sessions of this project in the sessions list.",
			"  2. Wait a few seconds for them to shut down.",
			"  3. Refresh this page or restart this session.",
			"",
			"If this is the only session, this message can be ignored.",
			"",
		})
	case URLChanged:
		return banner("ARCHIVE URL CHANGED", []string{
			"",
			"This session was started with a different archive.",
			"",
			"  - Previous: " + ArchiveInfo(previousURL),
			"  - Current:  " + ArchiveInfo(currentURL),
			"",
			"The session now uses the new archive.",
			"",
		})
	default:
		return ""
	}
}

func banner(title string, lines []string) string {
	inner := bannerWidth - 2*bannerPadding
	rule := strings.Repeat("=", bannerWidth)
	var builder strings.Builder
	builder.WriteString("+" + rule + "+\n")
	builder.WriteString(bannerLine(center(title, inner), inner))
	builder.WriteString("+" + rule + "+\n")
	for _, line := range lines {
		builder.WriteString(bannerLine(truncate(line, inner), inner))
	}
	builder.WriteString("+" + rule + "+")
	return builder.String()
}

func bannerLine(text string, inner int) string {
	pad := inner - utf8.RuneCountInString(text)
	if pad < 0 {
		pad = 0
	}
	margin := strings.Repeat(" ", bannerPadding)
	return "|" + margin + text + strings.Repeat(" ", pad) + margin + "|\n"
}

func center(text string, width int) string {
	pad := width - utf8.RuneCountInString(text)
	if pad <= 0 {
		return text
	}
	return strings.Repeat(" ", pad/2) + text
}

func truncate(value string, limit int) string {
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit-len(ellipsis)]) + ellipsis
}

func sanitize(value string) string {
	if !utf8.ValidString(value) {
		value = strings.ToValidUTF8(value, "?")
	}
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, value)
}
