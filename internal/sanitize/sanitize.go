// Package sanitize converts arbitrary column headers into short, valid
// variable identifiers and resolves collisions across a batch.
package sanitize

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

const (
	// MaxLen is the longest identifier the statistical exporter accepts.
	MaxLen = 64
	// Prefix is prepended when a name is empty or starts with a non-letter.
	Prefix = "V_"
	// Fallback is the identifier of last resort when nothing survives.
	Fallback = "UnnamedVar"
)

var (
	punctRe   = regexp.MustCompile(`[.:\-/]`)
	spaceRe   = regexp.MustCompile(`\s+`)
	invalidRe = regexp.MustCompile(`[^A-Za-z0-9_]`)
	noiseRe   = regexp.MustCompile(`[¿?.:!]`)
)

// Sanitize turns raw into a valid identifier: common punctuation and
// whitespace runs become single underscores, every other disallowed
// character is stripped, the result is forced to start with a letter and
// truncated to MaxLen. Sanitize is idempotent on already-valid input.
func Sanitize(raw string) string {
	s := punctRe.ReplaceAllString(raw, "_")
	s = spaceRe.ReplaceAllString(s, "_")
	s = invalidRe.ReplaceAllString(s, "")
	if s == "" || !isLetter(s[0]) {
		s = Prefix + s
	}
	if len(s) > MaxLen {
		// Only ASCII survives the strip, so byte slicing is safe.
		s = s[:MaxLen]
	}
	if s == "" {
		return Fallback
	}
	return s
}

// UniqueBatch sanitizes every name in order and forces the outputs to be
// pairwise distinct. Output order matches input order.
func UniqueBatch(raw []string) []string {
	out := make([]string, 0, len(raw))
	taken := make(map[string]struct{}, len(raw))
	for _, r := range raw {
		name := UniqueAgainst(Sanitize(r), taken)
		taken[name] = struct{}{}
		out = append(out, name)
	}
	return out
}

// UniqueAgainst returns name unchanged when it is not in taken, otherwise
// the first name_N (N = 1, 2, ...) that is free, shortening name as needed
// so the suffixed result still fits MaxLen. The caller is responsible for
// recording the returned identifier in taken.
func UniqueAgainst(name string, taken map[string]struct{}) string {
	if _, ok := taken[name]; !ok {
		return name
	}
	for n := 1; ; n++ {
		suffix := fmt.Sprintf("_%d", n)
		base := name
		if len(base)+len(suffix) > MaxLen {
			base = base[:MaxLen-len(suffix)]
		}
		cand := base + suffix
		if _, ok := taken[cand]; !ok {
			return cand
		}
	}
}

// FromWords derives an identifier from free text without any external help:
// sentence punctuation is dropped, the first maxWords words are capitalized
// and concatenated, and the result goes through Sanitize. Used when a name
// simplification collaborator cannot supply a proposal.
func FromWords(raw string, maxWords int) string {
	words := strings.Fields(noiseRe.ReplaceAllString(raw, ""))
	if maxWords > 0 && len(words) > maxWords {
		words = words[:maxWords]
	}
	var b strings.Builder
	for _, w := range words {
		b.WriteString(capitalize(w))
	}
	if b.Len() == 0 {
		return Sanitize(raw)
	}
	return Sanitize(b.String())
}

func capitalize(w string) string {
	r := []rune(w)
	if len(r) == 0 {
		return w
	}
	r[0] = unicode.ToUpper(r[0])
	for i := 1; i < len(r); i++ {
		r[i] = unicode.ToLower(r[i])
	}
	return string(r)
}

func isLetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}
