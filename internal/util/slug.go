package util

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Slugify projects a display name to a lowercase, hyphen-separated,
// filesystem- and URL-safe identifier. Diacritics are stripped via NFKD;
// anything that is not a letter or digit becomes a hyphen.
func Slugify(s string) string {
	s = norm.NFKD.String(s)

	var b strings.Builder
	lastHyphen := true // suppress leading hyphen
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) && r < 128:
			b.WriteRune(unicode.ToLower(r))
			lastHyphen = false
		case unicode.IsDigit(r):
			b.WriteRune(r)
			lastHyphen = false
		case unicode.Is(unicode.Mn, r):
			// combining mark left over from NFKD, drop it
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}

	out := strings.Trim(b.String(), "-")
	if out == "" {
		// Names made entirely of symbols still need a stable slug
		out = "x" + ShortHash(s)
	}
	return out
}
