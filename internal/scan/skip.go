package scan

import "strings"

// CanonicalSkipReason folds the walker's detailed raw reasons into the
// small vocabulary the status histogram reports. Unknown reasons pass
// through unchanged.
func CanonicalSkipReason(raw string) string {
	switch {
	case strings.HasPrefix(raw, "unsupported-extension:"):
		return "unsupported extension"
	case strings.HasPrefix(raw, "unreadable"):
		return "unreadable"
	case raw == "missing-album-tag":
		return "missing album tag"
	case strings.HasPrefix(raw, "missing-artist-tag"):
		return "missing artist tag"
	case strings.HasPrefix(raw, "deduped"):
		return "duplicate"
	case strings.HasPrefix(raw, "parse-error"):
		return "parse error"
	default:
		return raw
	}
}
