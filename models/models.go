// Package models defines the records produced by the scrapers.
package models

import (
	"sort"
	"strings"
	"time"
)

// ScrapedItem is one entry pulled from a game-data listing page (rank, mode, weapon).
type ScrapedItem struct {
	Identifier  string            `json:"identifier"`
	Kind        string            `json:"kind"`
	DisplayName string            `json:"displayName"`
	ImageURL    string            `json:"imageUrl"`
	Description string            `json:"description,omitempty"`
	ExtraFields map[string]string `json:"extraFields,omitempty"`
}

// ScrapedEvent is a forum announcement normalised for the events/news section.
// SourceURL is the identity key used downstream to avoid duplicate events.
type ScrapedEvent struct {
	SourceURL   string `json:"sourceUrl"`
	Title       string `json:"title"`
	PublishedAt string `json:"publishedAt"`
	ImageURL    string `json:"imageUrl"`
	ContentHTML string `json:"contentHtml"`
	Category    string `json:"category"`
}

// SkipReason records why a candidate item was dropped during list extraction.
type SkipReason struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

// FailedURL is a target the bulk event scraper could not process.
type FailedURL struct {
	URL   string `json:"url"`
	Error string `json:"error"`
}

// ScrapeResult holds the overall result of a scraping operation.
type ScrapeResult struct {
	RunID     string         `json:"runId"`
	Kind      string         `json:"kind"`
	SourceURL string         `json:"sourceUrl"`
	Items     []ScrapedItem  `json:"items,omitempty"`
	Events    []ScrapedEvent `json:"events,omitempty"`
	Skipped   []SkipReason   `json:"skipped,omitempty"`
	Failed    []FailedURL    `json:"failed,omitempty"`
	// Degraded names the fallback that produced the result, if any
	// ("fallback_scan", "placeholder", "invalid_response").
	Degraded  string    `json:"degraded,omitempty"`
	Warnings  []string  `json:"warnings,omitempty"`
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
}

// Count returns the number of records retrieved. Zero is a valid outcome.
func (r *ScrapeResult) Count() int {
	if r == nil {
		return 0
	}
	return len(r.Items) + len(r.Events)
}

// Records flattens items and events for the export pipeline.
func (r *ScrapeResult) Records() []Record {
	if r == nil {
		return nil
	}
	out := make([]Record, 0, r.Count())
	for i := range r.Items {
		out = append(out, &r.Items[i])
	}
	for i := range r.Events {
		out = append(out, &r.Events[i])
	}
	return out
}

// Record is anything the export pipeline can dedupe and write.
type Record interface {
	RecordKind() string
	RecordKey() string
	Row() []string
}

// CSVHeader is the column layout shared by every Record.Row.
var CSVHeader = []string{"kind", "key", "name", "image_url", "content", "published_at", "category", "extra"}

func (i *ScrapedItem) RecordKind() string { return i.Kind }
func (i *ScrapedItem) RecordKey() string  { return i.Identifier }

func (i *ScrapedItem) Row() []string {
	return []string{i.Kind, i.Identifier, i.DisplayName, i.ImageURL, i.Description, "", "", FormatExtra(i.ExtraFields)}
}

func (e *ScrapedEvent) RecordKind() string { return "event" }
func (e *ScrapedEvent) RecordKey() string  { return e.SourceURL }

func (e *ScrapedEvent) Row() []string {
	return []string{"event", e.SourceURL, e.Title, e.ImageURL, e.ContentHTML, e.PublishedAt, e.Category, ""}
}

// FormatExtra renders extra fields as "key=value; key=value" in key order.
func FormatExtra(extra map[string]string) string {
	if len(extra) == 0 {
		return ""
	}
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+extra[k])
	}
	return strings.Join(parts, "; ")
}
