// Package tagging attaches free-text tags to stories and keeps the global
// per-tag usage counters in step with the attachments.
package tagging

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	// MinTagLength and MaxTagLength bound the trimmed display name, in characters.
	MinTagLength = 2
	MaxTagLength = 30
)

var (
	// Matches anything that is not a lowercase letter, digit, whitespace or hyphen.
	disallowed = regexp.MustCompile(`[^a-z0-9\s-]`)
	// Matches whitespace runs.
	whitespace = regexp.MustCompile(`\s+`)
	// Matches multiple hyphens.
	multipleHyphens = regexp.MustCompile(`-+`)
)

// Letters that carry no decomposition and would otherwise be stripped.
var transliterations = map[rune]string{
	'ı': "i", 'ø': "o", 'Ø': "O", 'đ': "d", 'Đ': "D", 'ł': "l", 'Ł': "L",
	'ß': "ss", 'æ': "ae", 'Æ': "AE", 'œ': "oe", 'Œ': "OE", 'þ': "th", 'Þ': "TH",
}

func transliterate(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if sub, ok := transliterations[r]; ok {
			b.WriteString(sub)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Normalized is a tag value accepted for storage.
type Normalized struct {
	Name string
	Slug string
}

// Slugify converts a display string to its canonical key.
// "Güçlü Kadın" -> "guclu-kadin".
// "  Hope -- Healing " -> "hope-healing".
// Slugify(Slugify(s)) == Slugify(s).
func Slugify(s string) string {
	// Canonical decomposition only: compatibility characters such as "²"
	// or "ﬁ" are not folded and get stripped below.
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)))
	stripped, _, err := transform.String(t, transliterate(s))
	if err != nil {
		stripped = s
	}

	slug := strings.ToLower(stripped)
	slug = disallowed.ReplaceAllString(slug, "")
	slug = whitespace.ReplaceAllString(strings.TrimSpace(slug), "-")
	slug = multipleHyphens.ReplaceAllString(slug, "-")
	return strings.Trim(slug, "-")
}

// Normalize validates a single tag value. It reports false for values that
// are not strings, are too short or too long once trimmed, or have no
// characters left after slugging.
func Normalize(value any) (Normalized, bool) {
	s, ok := value.(string)
	if !ok {
		return Normalized{}, false
	}

	name := strings.TrimSpace(s)
	if n := utf8.RuneCountInString(name); n < MinTagLength || n > MaxTagLength {
		return Normalized{}, false
	}

	slug := Slugify(name)
	if slug == "" {
		return Normalized{}, false
	}
	return Normalized{Name: name, Slug: slug}, true
}

// NormalizeAll normalizes a batch of values, dropping invalid ones and
// keeping only the first value seen for each slug.
func NormalizeAll(values []any) []Normalized {
	seen := make(map[string]bool, len(values))
	out := make([]Normalized, 0, len(values))
	for _, v := range values {
		n, ok := Normalize(v)
		if !ok || seen[n.Slug] {
			continue
		}
		seen[n.Slug] = true
		out = append(out, n)
	}
	return out
}

// Strings adapts a string slice for NormalizeAll.
func Strings(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
