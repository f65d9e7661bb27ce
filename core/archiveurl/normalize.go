// Package archiveurl turns user-supplied archive links into one canonical
// record/file reference.
//
// Accepted inputs include the public file link, the API file link, download
// wrappers such as ".../content" or "?download=1", and links with extra
// trailing path noise. Record-only links are rejected as ambiguous because
// they do not name a file. The package performs no network or filesystem
// access.
package archiveurl

import (
	"net"
	"net/url"
	"strings"
)

const (
	DefaultScheme    = "https"
	DefaultHost      = "archive.materialscloud.org"
	DefaultExtension = ".aiida"
)

type Warning string

const WarningUntrustedHost Warning = "untrusted_host"

// Reference is the normalized form of an archive link. CanonicalURL is always
// rebuilt from RecordID and Filename for trusted hosts.
type Reference struct {
	CanonicalURL string    `json:"canonical_url"`
	RecordID     string    `json:"record_id,omitempty"`
	Filename     string    `json:"filename"`
	Warnings     []Warning `json:"warnings,omitempty"`
}

func (r Reference) Untrusted() bool {
	for _, warning := range r.Warnings {
		if warning == WarningUntrustedHost {
			return true
		}
	}
	return false
}

type Options struct {
	Scheme    string
	Host      string
	Extension string
}

type Normalizer struct {
	scheme    string
	host      string
	hostname  string
	extension string
}

var defaultNormalizer = New(Options{})

// Normalize runs the default normalizer (materialscloud host, .aiida files).
func Normalize(raw string) (Reference, error) {
	return defaultNormalizer.Normalize(raw)
}

func New(opts Options) *Normalizer {
	scheme := strings.ToLower(strings.TrimSpace(opts.Scheme))
	if scheme == "" {
		scheme = DefaultScheme
	}
	host := strings.ToLower(strings.Trim(strings.TrimSpace(opts.Host), "."))
	if host == "" {
		host = DefaultHost
	}
	extension := strings.ToLower(strings.TrimSpace(opts.Extension))
	if extension == "" {
		extension = DefaultExtension
	}
	if !strings.HasPrefix(extension, ".") {
		extension = "." + extension
	}
	// host may carry a port; trust is decided on the bare name.
	hostname := host
	if splitHost, _, err := net.SplitHostPort(host); err == nil {
		hostname = splitHost
	}
	return &Normalizer{scheme: scheme, host: host, hostname: hostname, extension: extension}
}

func (n *Normalizer) Scheme() string    { return n.scheme }
func (n *Normalizer) Host() string      { return n.host }
func (n *Normalizer) Extension() string { return n.extension }

// CanonicalURL rebuilds the public file link for a record and decoded filename.
func (n *Normalizer) CanonicalURL(recordID, filename string) string {
	return n.scheme + "://" + n.host + "/records/" + escapeSegment(recordID) + "/files/" + escapeSegment(filename)
}

// RecordURL is the public landing page of a record.
func (n *Normalizer) RecordURL(recordID string) string {
	return n.scheme + "://" + n.host + "/records/" + escapeSegment(recordID)
}

// APIRecordURL is the metadata endpoint of a record.
func (n *Normalizer) APIRecordURL(recordID string) string {
	return n.scheme + "://" + n.host + "/api/records/" + url.PathEscape(recordID)
}

func (n *Normalizer) Normalize(raw string) (Reference, error) {
	input := strings.TrimSpace(raw)
	if input == "" {
		return Reference{}, n.fail(KindInvalidInput, raw, "", "")
	}
	return n.normalize(input, input, true)
}

func (n *Normalizer) normalize(original, candidate string, allowQueryRetry bool) (Reference, error) {
	candidate = stripWrapperSuffixes(candidate)
	parts, ok := splitURL(candidate)
	if !ok || (parts.scheme != "http" && parts.scheme != "https") {
		return Reference{}, n.fail(KindUnrecognizedFormat, original, "", "")
	}
	if !n.trustedHost(parts.host) {
		return n.untrusted(original, candidate, parts)
	}

	match := matchPath(pathSegments(parts.path))
	switch match.shape {
	case shapeFile:
		return n.reference(original, match.recordID, match.filename)
	case shapeRecordOnly:
		return Reference{}, n.fail(KindAmbiguousRecord, original, match.recordID, "")
	}

	if allowQueryRetry && parts.tail != "" {
		return n.normalize(original, candidate[:len(candidate)-len(parts.tail)], false)
	}
	return Reference{}, n.fail(KindUnrecognizedFormat, original, "", "")
}

func (n *Normalizer) reference(original, rawRecordID, rawFilename string) (Reference, error) {
	recordID := unescapeSegment(rawRecordID)
	filename := unescapeSegment(rawFilename)
	if strings.TrimSpace(recordID) == "" || strings.Contains(recordID, "/") {
		return Reference{}, n.fail(KindUnrecognizedFormat, original, "", "")
	}
	if !n.hasExtension(filename) {
		return Reference{}, n.fail(KindWrongFileType, original, recordID, filename)
	}
	return Reference{
		CanonicalURL: n.CanonicalURL(recordID, filename),
		RecordID:     recordID,
		Filename:     filename,
	}, nil
}

// untrusted keeps the link as given; only the extension gate still applies.
func (n *Normalizer) untrusted(original, candidate string, parts urlParts) (Reference, error) {
	segments := pathSegments(parts.path)
	if len(segments) == 0 {
		return Reference{}, n.fail(KindUnrecognizedFormat, original, "", "")
	}
	filename := unescapeSegment(segments[len(segments)-1])
	if !n.hasExtension(filename) {
		return Reference{}, n.fail(KindWrongFileType, original, "", filename)
	}
	return Reference{
		CanonicalURL: candidate,
		Filename:     filename,
		Warnings:     []Warning{WarningUntrustedHost},
	}, nil
}

func (n *Normalizer) trustedHost(host string) bool {
	return host == n.hostname || strings.HasSuffix(host, "."+n.hostname)
}

func (n *Normalizer) hasExtension(filename string) bool {
	lower := strings.ToLower(filename)
	return len(lower) > len(n.extension) && strings.HasSuffix(lower, n.extension)
}

// Wrapper suffixes are removed as whole strings, repeatedly, so
// ".../files/x.aiida/content/" and ".../files/x.aiida/download?dl=1" both
// reduce to the file link.
var wrapperSuffixes = []string{"?download=1", "?dl=1", "/content", "/download", "/"}

func stripWrapperSuffixes(value string) string {
	for {
		stripped := value
		for _, suffix := range wrapperSuffixes {
			if strings.HasSuffix(stripped, suffix) && !strings.HasSuffix(stripped, "://") {
				stripped = strings.TrimSuffix(stripped, suffix)
			}
		}
		if stripped == value {
			return value
		}
		value = stripped
	}
}

type urlParts struct {
	scheme string
	host   string
	path   string
	// tail holds the query and fragment including the leading '?' or '#'.
	tail string
}

// splitURL is deliberately lenient: filenames in canonical links may carry
// spaces or a literal '%', which url.Parse would reject.
func splitURL(value string) (urlParts, bool) {
	schemeEnd := strings.Index(value, "://")
	if schemeEnd <= 0 {
		return urlParts{}, false
	}
	scheme := strings.ToLower(value[:schemeEnd])
	rest := value[schemeEnd+3:]

	authorityEnd := strings.IndexAny(rest, "/?#")
	if authorityEnd < 0 {
		authorityEnd = len(rest)
	}
	authority := rest[:authorityEnd]
	rest = rest[authorityEnd:]

	path := rest
	tail := ""
	if tailStart := strings.IndexAny(rest, "?#"); tailStart >= 0 {
		path = rest[:tailStart]
		tail = rest[tailStart:]
	}

	host := authority
	if at := strings.LastIndex(host, "@"); at >= 0 {
		host = host[at+1:]
	}
	if splitHost, _, err := net.SplitHostPort(host); err == nil {
		host = splitHost
	}
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	if host == "" || strings.ContainsAny(host, " \t") {
		return urlParts{}, false
	}
	return urlParts{scheme: scheme, host: host, path: path, tail: tail}, true
}

func pathSegments(path string) []string {
	raw := strings.Split(path, "/")
	segments := make([]string, 0, len(raw))
	for _, segment := range raw {
		if segment == "" {
			continue
		}
		segments = append(segments, segment)
	}
	return segments
}

type pathShape int

const (
	shapeNone pathShape = iota
	shapeFile
	shapeRecordOnly
)

type pathMatch struct {
	shape    pathShape
	recordID string
	filename string
}

// matchPath applies the path patterns in priority order: API file link,
// canonical file link, legacy singular record, records-only, then a file link
// embedded in a longer path.
func matchPath(segments []string) pathMatch {
	count := len(segments)
	switch {
	case count == 5 && segments[0] == "api" && segments[1] == "records" && segments[3] == "files":
		return pathMatch{shape: shapeFile, recordID: segments[2], filename: segments[4]}
	case count == 4 && segments[0] == "records" && segments[2] == "files":
		return pathMatch{shape: shapeFile, recordID: segments[1], filename: segments[3]}
	case count == 2 && segments[0] == "record":
		return pathMatch{shape: shapeRecordOnly, recordID: unescapeSegment(segments[1])}
	case count == 2 && segments[0] == "records":
		return pathMatch{shape: shapeRecordOnly, recordID: unescapeSegment(segments[1])}
	case count == 3 && segments[0] == "records" && segments[2] == "files":
		return pathMatch{shape: shapeRecordOnly, recordID: unescapeSegment(segments[1])}
	case count == 3 && segments[0] == "api" && segments[1] == "records":
		return pathMatch{shape: shapeRecordOnly, recordID: unescapeSegment(segments[2])}
	}
	for index := 0; index+3 < count; index++ {
		if segments[index] == "records" && segments[index+2] == "files" {
			return pathMatch{shape: shapeFile, recordID: segments[index+1], filename: segments[index+3]}
		}
	}
	return pathMatch{shape: shapeNone}
}

func unescapeSegment(segment string) string {
	decoded, err := url.PathUnescape(segment)
	if err != nil {
		return segment
	}
	return decoded
}

// escapeSegment escapes only the characters that would change how a
// canonical link splits, which keeps normalization idempotent while leaving
// spaces readable.
var segmentEscaper = strings.NewReplacer("%", "%25", "/", "%2F", "?", "%3F", "#", "%23")

func escapeSegment(segment string) string {
	return segmentEscaper.Replace(segment)
}
