package extract

import (
	"errors"
	"html"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/aluiziolira/go-scrape-gamewiki/models"
	"github.com/aluiziolira/go-scrape-gamewiki/parser"
)

// DefaultEventTitle is used when no title selector matches.
const DefaultEventTitle = "Untitled Event"

// minContentLength is the sanitized length below which the body is replaced
// by a plain-text paragraph.
const minContentLength = 50

// ErrNilDocument is returned when an extractor receives no document.
var ErrNilDocument = errors.New("extract: nil document")

// EventConfig holds the selector cascades used on a forum discussion page.
type EventConfig struct {
	// BaseURL resolves relative links; empty means the source URL's origin.
	BaseURL string

	TitleSelectors      []string
	DateSelectors       []string
	ContentSelectors    []string
	DiscussionSelectors []string
	ChromeSelectors     []string
	ImageSelectors      []string
	CategorySelectors   []string

	// ImageExcludes filters content images; FallbackImageExcludes filters the
	// whole-document scan that runs when no content image survives.
	ImageExcludes         []string
	FallbackImageExcludes []string

	Policy parser.Policy
	Now    func() time.Time
}

// DefaultEventConfig returns the cascades for the forum's discussion pages.
func DefaultEventConfig() EventConfig {
	return EventConfig{
		TitleSelectors: []string{
			".Discussion .PageTitle h1",
			"h1.DiscussionTitle",
			".PageTitle h1",
			".Discussion h1",
			"h1.title",
			"h1",
			"h2.title",
		},
		DateSelectors: []string{
			".Discussion .DateCreated time",
			".Discussion time[datetime]",
			".MItem.DateCreated time",
			"time[datetime]",
			".DateCreated",
			".post-date",
			".date",
		},
		ContentSelectors: []string{
			".Discussion .Message.userContent",
			".Discussion .Message",
			".ItemDiscussion .Message",
			".Item-Body .Message",
			".userContent",
			".post-content",
			".message-body",
			".comment-body",
		},
		DiscussionSelectors: []string{
			".Discussion",
			".ItemDiscussion",
			"article",
			"#Content",
			"main",
		},
		ChromeSelectors: []string{
			"script", "style", "iframe", "noscript", "form", "button",
			".Signature", ".UserSignature", ".signature",
			".Meta", ".DiscussionMeta", ".AuthorWrap",
			".Reactions", ".ReactionRecord", ".reactions", ".Options",
		},
		ImageSelectors: []string{
			".Discussion .Message img",
			".userContent img",
			".post-content img",
			"article img",
			"meta[property='og:image']",
		},
		CategorySelectors: []string{
			".Breadcrumbs a[href*='/categories/']",
			".Category a[href*='/categories/']",
		},
		ImageExcludes:         []string{"emoji", "icon", "avatar"},
		FallbackImageExcludes: []string{"emoji", "icon", "avatar", "logo"},
		Policy:                parser.DefaultPolicy(),
		Now:                   time.Now,
	}
}

// ExtractEventDetail builds a ScrapedEvent from a forum discussion page with
// DefaultEventConfig.
func ExtractEventDetail(doc *goquery.Document, sourceURL string) (models.ScrapedEvent, error) {
	return DefaultEventConfig().Extract(doc, sourceURL)
}

// Extract builds a ScrapedEvent from doc. The returned ContentHTML is
// sanitized and never empty.
func (c EventConfig) Extract(doc *goquery.Document, sourceURL string) (models.ScrapedEvent, error) {
	if doc == nil {
		return models.ScrapedEvent{}, ErrNilDocument
	}

	base := c.BaseURL
	if base == "" {
		base = parser.SiteBase(sourceURL)
	}
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	policy := c.Policy
	if len(policy.AllowedTags) == 0 {
		policy = parser.DefaultPolicy()
	}

	title := c.title(doc)
	ev := models.ScrapedEvent{
		SourceURL:   sourceURL,
		Title:       title,
		PublishedAt: c.publishedAt(doc, now),
		ImageURL:    c.image(doc, base),
		Category:    c.category(doc, sourceURL),
	}

	container := c.container(doc)
	content, text := "", ""
	if container != nil {
		container = container.Clone()
		for _, sel := range c.ChromeSelectors {
			container.Find(sel).Remove()
		}
		rewriteLinks(container, base)

		inner, err := container.Html()
		if err == nil {
			content = parser.Sanitize(inner, policy)
		}
		text = parser.PlainText(container.Text())
	}

	if utf8.RuneCountInString(strings.TrimSpace(content)) < minContentLength {
		switch {
		case text != "":
			content = "<p>" + html.EscapeString(text) + "</p>"
		default:
			content = "<p>" + html.EscapeString(title) + "</p>"
		}
	}
	ev.ContentHTML = content
	return ev, nil
}

func (c EventConfig) title(doc *goquery.Document) string {
	for _, sel := range c.TitleSelectors {
		if text := parser.PlainText(doc.Find(sel).First().Text()); text != "" {
			return text
		}
	}
	return DefaultEventTitle
}

// publishedAt prefers datetime/title attributes over visible text.
func (c EventConfig) publishedAt(doc *goquery.Document, now func() time.Time) string {
	for _, sel := range c.DateSelectors {
		match := doc.Find(sel).First()
		if match.Length() == 0 {
			continue
		}
		for _, attr := range []string{"datetime", "title"} {
			if v := strings.TrimSpace(match.AttrOr(attr, "")); v != "" {
				return parser.NormalizeDate(v)
			}
		}
		if text := parser.PlainText(match.Text()); text != "" {
			return parser.NormalizeDate(text)
		}
	}
	return parser.Today(now())
}

func (c EventConfig) container(doc *goquery.Document) *goquery.Selection {
	for _, group := range [][]string{c.ContentSelectors, c.DiscussionSelectors} {
		for _, sel := range group {
			if match := doc.Find(sel).First(); match.Length() > 0 {
				return match
			}
		}
	}
	return nil
}

func (c EventConfig) image(doc *goquery.Document, base string) string {
	for _, sel := range c.ImageSelectors {
		var found string
		doc.Find(sel).EachWithBreak(func(_ int, img *goquery.Selection) bool {
			if goquery.NodeName(img) == "meta" {
				found = parser.ResolveURL(base, img.AttrOr("content", ""))
				return found == ""
			}
			found = contentImage(img, base, c.ImageExcludes)
			return found == ""
		})
		if found != "" {
			return found
		}
	}

	var found string
	doc.Find("img").EachWithBreak(func(_ int, img *goquery.Selection) bool {
		found = contentImage(img, base, c.FallbackImageExcludes)
		return found == ""
	})
	return found
}

func contentImage(img *goquery.Selection, base string, excludes []string) string {
	src := strings.TrimSpace(img.AttrOr("src", ""))
	dataSrc := strings.TrimSpace(img.AttrOr("data-src", ""))
	if containsAny(strings.ToLower(src+" "+dataSrc), excludes) {
		return ""
	}
	return imageFromAttrs(img, base)
}

func (c EventConfig) category(doc *goquery.Document, sourceURL string) string {
	if category := parser.CategoryFromURL(sourceURL); category != parser.DefaultCategory {
		return category
	}
	for _, sel := range c.CategorySelectors {
		if href := doc.Find(sel).Last().AttrOr("href", ""); href != "" {
			return parser.CategoryFromURL(href)
		}
	}
	return parser.DefaultCategory
}

// rewriteLinks makes img src and a href inside s absolute against base.
func rewriteLinks(s *goquery.Selection, base string) {
	s.Find("img").Each(func(_ int, img *goquery.Selection) {
		src := strings.TrimSpace(img.AttrOr("src", ""))
		if src == "" || strings.HasPrefix(strings.ToLower(src), "data:") {
			src = strings.TrimSpace(img.AttrOr("data-src", ""))
		}
		if resolved := parser.ResolveURL(base, src); resolved != "" {
			img.SetAttr("src", resolved)
		} else {
			img.RemoveAttr("src")
		}
	})
	s.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		if resolved := parser.ResolveURL(base, a.AttrOr("href", "")); resolved != "" {
			a.SetAttr("href", resolved)
		} else {
			a.RemoveAttr("href")
		}
	})
}
