package meta

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Title normalization projects album titles to the canonical comparison
// form used for owned-vs-expected matching. The same projection is applied
// to both sides, so it only has to be stable, not pretty.

var (
	// Trailing year forms: " (1998)", " [1998]", " - 1998" (hyphen, en or
	// em dash) and the bare " 1998". Years are restricted to 1900-2099.
	yearBracketRe = regexp.MustCompile(`^(.*\S)\s*[(\[]((?:19|20)\d{2})[)\]]$`)
	yearDashRe    = regexp.MustCompile(`^(.*\S)\s*[-\x{2013}\x{2014}]\s*((?:19|20)\d{2})$`)
	yearBareRe    = regexp.MustCompile(`^(.*\S)\s+((?:19|20)\d{2})$`)

	// Edition noise removed as whole words after lowercasing. Multi-word
	// phrases must come before their substrings.
	editionNoiseRe = regexp.MustCompile(`\b(special edition|bonus tracks|bonus track|remastered|remaster|anniversary|expanded|deluxe|edition)\b`)

	whitespaceRe = regexp.MustCompile(`\s+`)
)

// bareYearExclusions are prefixes for which a bare trailing year is part
// of the title, not a release-year suffix ("Live 1998", "The 1975").
var bareYearExclusions = map[string]bool{
	"live": true,
	"the":  true,
}

// StripTrailingYearSuffix removes a trailing release-year decoration from
// a title. Bracketed and dash-separated years are always removed when a
// non-empty title precedes them; a bare trailing year is removed only when
// the preceding portion is not in the conservative exclusion set.
func StripTrailingYearSuffix(s string) string {
	if m := yearBracketRe.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	if m := yearDashRe.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	if m := yearBareRe.FindStringSubmatch(s); m != nil {
		prefix := strings.ToLower(strings.TrimSpace(m[1]))
		if prefix != "" && !bareYearExclusions[prefix] {
			return strings.TrimSpace(m[1])
		}
	}
	return s
}

// NormalizeTitle projects a title to its canonical comparison form.
// The projection is idempotent.
func NormalizeTitle(s string) string {
	if s == "" {
		return ""
	}

	s = StripTrailingYearSuffix(s)

	s = norm.NFKD.String(s)

	// Straighten typographic quotes before the punctuation pass
	replacer := strings.NewReplacer(
		"’", "'",
		"‘", "'",
		"“", "\"",
		"”", "\"",
	)
	s = replacer.Replace(s)

	s = strings.ToLower(s)

	s = strings.ReplaceAll(s, "+", " and ")
	s = strings.ReplaceAll(s, "&", " and ")

	s = strings.Map(func(r rune) rune {
		switch {
		case unicode.Is(unicode.Mn, r):
			return -1 // combining mark left over from NFKD
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			return ' '
		default:
			return r
		}
	}, s)

	s = editionNoiseRe.ReplaceAllString(s, " ")

	s = strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))

	// Removing brackets and edition noise can leave a year trailing again
	// ("Waiting (1998) [Deluxe]" is "waiting 1998" by this point), so the
	// year strip runs once more on the collapsed form. Without it the
	// projection would not be idempotent.
	return StripTrailingYearSuffix(s)
}

// NormalizeArtist normalizes an artist name for folder-vs-tag comparison.
// Reuses the title projection; artist names have no year suffixes worth
// special-casing but the exclusion set keeps this safe anyway.
func NormalizeArtist(s string) string {
	return NormalizeTitle(s)
}

// IsStrongTitleAliasMatch reports whether two already-normalized titles
// are close enough to be treated as the same release. Equal strings match.
// Otherwise one must fully contain the other and the smaller title must
// have at least three tokens with minOverlap of them present in the larger.
func IsStrongTitleAliasMatch(a, b string, minOverlap float64) bool {
	if a == b {
		return true
	}
	if a == "" || b == "" {
		return false
	}
	if !strings.Contains(a, b) && !strings.Contains(b, a) {
		return false
	}

	tokensA := tokenSet(a)
	tokensB := tokenSet(b)

	smaller, larger := tokensA, tokensB
	if len(tokensB) < len(tokensA) {
		smaller, larger = tokensB, tokensA
	}
	if len(smaller) < 3 {
		return false
	}

	overlap := 0
	for tok := range smaller {
		if larger[tok] {
			overlap++
		}
	}

	return float64(overlap)/float64(len(smaller)) >= minOverlap
}

func tokenSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range strings.Fields(s) {
		set[tok] = true
	}
	return set
}
