package archiveurl

import "strings"

// Parts is the best-effort decomposition of a link that may not normalize.
type Parts struct {
	RecordID    string
	Filename    string
	LastSegment string
}

// Extract applies the normalizer's path patterns without any host check or
// extension gate. It never fails; unknown shapes yield empty fields.
func Extract(raw string) Parts {
	candidate := stripWrapperSuffixes(strings.TrimSpace(raw))
	path := candidate
	if parts, ok := splitURL(candidate); ok {
		path = parts.path
	} else if tailStart := strings.IndexAny(candidate, "?#"); tailStart >= 0 {
		path = candidate[:tailStart]
	}
	segments := pathSegments(path)
	result := Parts{}
	if len(segments) > 0 {
		result.LastSegment = unescapeSegment(segments[len(segments)-1])
	}
	match := matchPath(segments)
	switch match.shape {
	case shapeFile:
		result.RecordID = unescapeSegment(match.recordID)
		result.Filename = unescapeSegment(match.filename)
	case shapeRecordOnly:
		result.RecordID = match.recordID
	}
	return result
}
