package core

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// slugWords are transliterated before slugification.
var slugWords = []struct{ from, to string }{
	{"실기", "practical"},
	{"평가", "evaluation"},
	{"이론", "theory"},
	{"태도", "attitude"},
	{"활동", "activity"},
	{"일지", "journal"},
	{"점수", "score"},
}

var (
	slugSpaceRegex   = regexp.MustCompile(`\s+`)
	slugInvalidRegex = regexp.MustCompile(`[^a-z0-9_]`)
	slugUnderRegex   = regexp.MustCompile(`_+`)
)

// Slugify derives a stable code from a human name: known words are transliterated,
// accents are dropped, whitespace becomes "_" and anything outside [a-z0-9_] is removed.
// The same name always yields the same code; the result may be empty.
func Slugify(name string) string {
	s := name
	for _, w := range slugWords {
		s = strings.ReplaceAll(s, w.from, " "+w.to+" ")
	}

	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if out, _, err := transform.String(t, s); err == nil {
		s = out
	}

	s = strings.ToLower(strings.TrimSpace(s))
	s = slugSpaceRegex.ReplaceAllString(s, "_")
	s = slugInvalidRegex.ReplaceAllString(s, "")
	s = slugUnderRegex.ReplaceAllString(s, "_")
	return strings.Trim(s, "_")
}

// UniqueSlug slugifies `name` (using `fallback` when nothing is left) and appends _2, _3...
// until `taken` reports the code as free.
func UniqueSlug(name, fallback string, taken func(code string) bool) string {
	base := Slugify(name)
	if base == "" {
		base = fallback
	}
	code := base
	for i := 2; taken(code); i++ {
		code = base + "_" + strconv.Itoa(i)
	}
	return code
}
