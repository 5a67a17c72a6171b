// Package parser holds the normalisation helpers shared by the extractors:
// slugs, URL resolution, numeric and date parsing, the HTML allow-list and
// record validation.
package parser

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/araddon/dateparse"

	"github.com/aluiziolira/go-scrape-gamewiki/models"
)

// DateLayout is the layout used for normalised publish dates.
const DateLayout = "2006-01-02"

// DefaultCategory is used when an event URL carries no category segment.
const DefaultCategory = "Announcement"

var (
	whitespaceRun = regexp.MustCompile(`\s+`)
	expDigits     = regexp.MustCompile(`\d{6,}`)
)

// ValidateItem ensures the extractor captured the required fields.
func ValidateItem(item *models.ScrapedItem) error {
	if item == nil {
		return fmt.Errorf("item is nil")
	}
	if strings.TrimSpace(item.Identifier) == "" {
		return fmt.Errorf("item missing identifier")
	}
	if utf8.RuneCountInString(strings.TrimSpace(item.DisplayName)) < 2 {
		return fmt.Errorf("item %s missing display name", item.Identifier)
	}
	return nil
}

// ValidateEvent ensures an event is complete enough to create downstream.
func ValidateEvent(ev *models.ScrapedEvent) error {
	if ev == nil {
		return fmt.Errorf("event is nil")
	}
	if strings.TrimSpace(ev.SourceURL) == "" {
		return fmt.Errorf("event missing source url")
	}
	if strings.TrimSpace(ev.Title) == "" {
		return fmt.Errorf("event missing title for %s", ev.SourceURL)
	}
	if strings.TrimSpace(ev.ContentHTML) == "" {
		return fmt.Errorf("event missing content for %s", ev.SourceURL)
	}
	return nil
}

// ValidateRecord dispatches to the validator for the record's concrete type.
func ValidateRecord(rec models.Record) error {
	switch r := rec.(type) {
	case *models.ScrapedItem:
		return ValidateItem(r)
	case *models.ScrapedEvent:
		return ValidateEvent(r)
	case nil:
		return fmt.Errorf("record is nil")
	default:
		if rec.RecordKey() == "" {
			return fmt.Errorf("record missing key")
		}
		return nil
	}
}

// CleanText collapses runs of whitespace and trims the result.
func CleanText(s string) string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(s, " "))
}

// ResolveURL turns a scraped src/href into an absolute URL against base.
// Protocol-relative URLs get https, root-relative ones get base prepended.
// Script and data URIs resolve to "".
func ResolveURL(base, raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	lower := strings.ToLower(raw)
	switch {
	case strings.HasPrefix(lower, "javascript:"), strings.HasPrefix(lower, "vbscript:"), strings.HasPrefix(lower, "data:"):
		return ""
	case strings.HasPrefix(raw, "#"), strings.HasPrefix(lower, "mailto:"), strings.HasPrefix(lower, "tel:"):
		return raw
	case strings.HasPrefix(raw, "//"):
		return "https:" + raw
	case strings.HasPrefix(lower, "http://"), strings.HasPrefix(lower, "https://"):
		return raw
	case strings.HasPrefix(raw, "/"):
		return strings.TrimRight(base, "/") + raw
	}

	baseURL, err := url.Parse(base)
	if err != nil || baseURL.Host == "" {
		return raw
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return baseURL.ResolveReference(ref).String()
}

// SiteBase returns scheme://host of rawURL, or "" when rawURL is not absolute.
func SiteBase(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

// ParseExpRequired finds the first number of six or more digits in text,
// ignoring thousands separators and quote characters.
func ParseExpRequired(text string) (int64, bool) {
	stripped := strings.NewReplacer(",", "", `"`, "", "'", "", "’", "", "“", "", "”", "").Replace(text)
	match := expDigits.FindString(stripped)
	if match == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(match, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// NormalizeDate renders raw in DateLayout when it can be parsed and returns the
// trimmed site text unchanged otherwise.
func NormalizeDate(raw string) string {
	raw = PlainText(raw)
	if raw == "" {
		return ""
	}
	t, err := dateparse.ParseAny(raw)
	if err != nil {
		return raw
	}
	return t.Format(DateLayout)
}

// Today returns now formatted in DateLayout.
func Today(now time.Time) string {
	return now.Format(DateLayout)
}

// CategoryFromURL derives a display category from the path segment that follows
// /categories/, e.g. ".../categories/patch-notes/..." -> "Patch notes".
func CategoryFromURL(rawURL string) string {
	path := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Path != "" {
		path = u.Path
	}

	const marker = "/categories/"
	idx := strings.Index(path, marker)
	if idx < 0 {
		return DefaultCategory
	}
	segment := path[idx+len(marker):]
	if end := strings.IndexAny(segment, "/?#"); end >= 0 {
		segment = segment[:end]
	}
	if unescaped, err := url.PathUnescape(segment); err == nil {
		segment = unescaped
	}
	segment = PlainText(strings.ReplaceAll(segment, "-", " "))
	if segment == "" {
		return DefaultCategory
	}

	r, size := utf8.DecodeRuneInString(segment)
	return string(unicode.ToUpper(r)) + segment[size:]
}
