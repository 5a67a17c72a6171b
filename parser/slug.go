package parser

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var nonSlugRun = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify converts a display name into a lowercase, hyphen-delimited ASCII token.
// It never fails: input that has no letters or digits yields "".
func Slugify(s string) string {
	if s == "" {
		return ""
	}

	s = stripMarks(s)
	s = strings.ToLower(s)
	s = nonSlugRun.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// stripMarks decomposes s and drops nonspacing marks (accents, diacritics).
func stripMarks(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)))
	result, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return result
}

// SlugTokens splits a slug into its hyphen-delimited tokens.
func SlugTokens(slug string) []string {
	if slug == "" {
		return nil
	}
	return strings.Split(slug, "-")
}
