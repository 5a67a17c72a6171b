package pipeline

import (
	"bufio"
	"fmt"
	"html"
	"os"
	"strings"
	"sync"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"

	"github.com/aluiziolira/go-scrape-gamewiki/models"
)

// MarkdownWriter renders records as a human-readable digest. Events become
// sections with their sanitized content converted to Markdown; items become
// bullet lines.
type MarkdownWriter struct {
	file   *os.File
	writer *bufio.Writer
	mu     sync.Mutex
}

// NewMarkdownWriter creates the digest file and writes its title.
func NewMarkdownWriter(filename string) (*MarkdownWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create markdown file: %w", err)
	}

	buffer := bufio.NewWriter(f)
	if _, err := buffer.WriteString("# Scrape digest\n\n"); err != nil {
		f.Close()
		return nil, fmt.Errorf("write markdown title: %w", err)
	}

	return &MarkdownWriter{file: f, writer: buffer}, nil
}

// Write appends one block per record.
func (mw *MarkdownWriter) Write(records []models.Record) error {
	mw.mu.Lock()
	defer mw.mu.Unlock()

	for _, rec := range records {
		var block string
		switch r := rec.(type) {
		case *models.ScrapedEvent:
			rendered, err := RenderEvent(r)
			if err != nil {
				return err
			}
			block = rendered
		case *models.ScrapedItem:
			block = RenderItem(r)
		default:
			block = "- " + strings.Join(rec.Row(), " | ") + "\n"
		}
		if _, err := mw.writer.WriteString(block); err != nil {
			return fmt.Errorf("write markdown record: %w", err)
		}
	}

	if err := mw.writer.Flush(); err != nil {
		return fmt.Errorf("flush markdown writer: %w", err)
	}
	return nil
}

// Close flushes buffers and closes the underlying file.
func (mw *MarkdownWriter) Close() error {
	mw.mu.Lock()
	defer mw.mu.Unlock()

	if err := mw.writer.Flush(); err != nil {
		return fmt.Errorf("flush markdown writer: %w", err)
	}
	return mw.file.Close()
}

// Validate ensures the digest has data.
func (mw *MarkdownWriter) Validate() error {
	return validateFile(mw.file, "markdown")
}

// RenderEvent formats an event as a Markdown section. Text fields are
// escaped; ContentHTML is trusted as already sanitized.
func RenderEvent(ev *models.ScrapedEvent) (string, error) {
	body, err := htmltomarkdown.ConvertString(ev.ContentHTML)
	if err != nil {
		return "", fmt.Errorf("convert event %s: %w", ev.SourceURL, err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "## %s\n\n", mdText(ev.Title))
	fmt.Fprintf(&b, "_%s · %s_\n\n", mdText(ev.Category), mdText(ev.PublishedAt))
	if img := mdURL(ev.ImageURL); img != "" {
		fmt.Fprintf(&b, "![](%s)\n\n", img)
	}
	if body = strings.TrimSpace(body); body != "" {
		b.WriteString(body)
		b.WriteString("\n\n")
	}
	if src := mdURL(ev.SourceURL); src != "" {
		fmt.Fprintf(&b, "[Source](%s)\n\n", src)
	}
	return b.String(), nil
}

// RenderItem formats an item as a single bullet line.
func RenderItem(item *models.ScrapedItem) string {
	var b strings.Builder
	fmt.Fprintf(&b, "- **%s** (`%s`)", mdText(item.DisplayName), strings.ReplaceAll(item.Identifier, "`", ""))
	if img := mdURL(item.ImageURL); img != "" {
		fmt.Fprintf(&b, " ![](%s)", img)
	}
	if item.Description != "" {
		b.WriteString(" ")
		b.WriteString(mdText(item.Description))
	}
	if extra := models.FormatExtra(item.ExtraFields); extra != "" {
		fmt.Fprintf(&b, " [%s]", mdText(extra))
	}
	b.WriteString("\n")
	return b.String()
}

var markdownEscaper = strings.NewReplacer(
	`\`, `\\`,
	"*", `\*`,
	"_", `\_`,
	"`", "\\`",
	"[", `\[`,
	"]", `\]`,
)

// mdText escapes s for inline Markdown, including any raw HTML.
func mdText(s string) string {
	return markdownEscaper.Replace(html.EscapeString(s))
}

var urlEscaper = strings.NewReplacer(" ", "%20", "(", "%28", ")", "%29", "<", "%3C", ">", "%3E", `"`, "%22")

// mdURL returns u ready for a Markdown link target, or "" unless it is an
// http(s) or root-relative URL.
func mdURL(u string) string {
	u = strings.TrimSpace(u)
	lower := strings.ToLower(u)
	if !strings.HasPrefix(lower, "https://") && !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(u, "/") {
		return ""
	}
	return urlEscaper.Replace(u)
}
