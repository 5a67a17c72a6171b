// Package extract turns fetched game-site and forum documents into
// ScrapedItem and ScrapedEvent records. Cascades and field selectors are
// plain data so each source can be tuned without touching the extraction loop.
package extract

import (
	"path"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/aluiziolira/go-scrape-gamewiki/config"
	"github.com/aluiziolira/go-scrape-gamewiki/models"
	"github.com/aluiziolira/go-scrape-gamewiki/parser"
)

// Skip reasons reported in ListResult.Skipped.
const (
	SkipNoName    = "no name"
	SkipDuplicate = "duplicate"
)

const minNameLength = 2

// fallbackExcluded marks site chrome images ignored by the fallback scan.
var fallbackExcluded = []string{"logo", "icon", "button"}

// AssetMatcher resolves a display name to a local asset path ("" when none).
type AssetMatcher interface {
	Match(name string) string
}

// ListConfig drives ExtractList for one listing source.
type ListConfig struct {
	Kind                 string
	BaseURL              string
	Cascade              []string
	NameSelectors        []string
	DescriptionSelectors []string
	StatRowSelectors     []string
	MaxResults           int
	Assets               AssetMatcher

	// Extra runs for every accepted item with the element it came from.
	Extra func(sel *goquery.Selection, item *models.ScrapedItem)
}

// ListConfigFromProfile maps a configured source profile onto a ListConfig.
func ListConfigFromProfile(p config.SourceProfile, assets AssetMatcher) ListConfig {
	base := p.BaseURL
	if base == "" {
		base = parser.SiteBase(p.URL)
	}
	return ListConfig{
		Kind:                 p.Kind,
		BaseURL:              base,
		Cascade:              p.Cascade,
		NameSelectors:        p.NameSelectors,
		DescriptionSelectors: p.DescriptionSelectors,
		StatRowSelectors:     p.StatRowSelectors,
		MaxResults:           p.MaxResults,
		Assets:               assets,
	}
}

// ListResult is the outcome of one list extraction.
type ListResult struct {
	Items   []models.ScrapedItem
	Skipped []models.SkipReason
	// Selector is the cascade entry that matched, empty when the fallback scan ran.
	Selector     string
	FallbackUsed bool
	Placeholder  bool
}

// ExtractList finds the repeating item blocks in doc via cfg.Cascade and
// builds one item per block. When no cascade selector matches, every content
// image in the document is scanned instead.
func ExtractList(doc *goquery.Document, cfg ListConfig) ListResult {
	if doc == nil {
		return ListResult{}
	}

	selector, blocks := applyCascade(doc.Selection, cfg.Cascade)
	if blocks == nil {
		return FallbackScan(doc, cfg)
	}

	b := newListBuilder(cfg)
	b.result.Selector = selector
	blocks.EachWithBreak(func(i int, s *goquery.Selection) bool {
		name := itemName(s, cfg.NameSelectors)
		if name == "" {
			b.skip(i, SkipNoName)
			return true
		}
		item := models.ScrapedItem{
			DisplayName: name,
			ImageURL:    itemImage(s, cfg.BaseURL),
			Description: firstText(s, cfg.DescriptionSelectors, name),
		}
		if stats := statRows(s, cfg.StatRowSelectors); len(stats) > 0 {
			item.ExtraFields = stats
		}
		return b.add(i, s, item)
	})
	return b.result
}

// FallbackScan synthesises items from the document's images, skipping logos,
// icons and buttons. The name comes from the image's parent heading, the
// parent's first text line, the alt text, and finally the file name.
func FallbackScan(doc *goquery.Document, cfg ListConfig) ListResult {
	b := newListBuilder(cfg)
	b.result.FallbackUsed = true
	if doc == nil {
		return b.result
	}

	doc.Find("img").EachWithBreak(func(i int, img *goquery.Selection) bool {
		src := strings.TrimSpace(img.AttrOr("src", ""))
		dataSrc := strings.TrimSpace(img.AttrOr("data-src", ""))
		if containsAny(strings.ToLower(src+" "+dataSrc), fallbackExcluded) {
			return true
		}

		parent := img.Parent()
		name := firstQualified(
			parent.Find("h1, h2, h3, h4, h5, h6").First().Text(),
			firstLine(parent),
			img.AttrOr("alt", ""),
			nameFromImageURL(src),
			nameFromImageURL(dataSrc),
		)
		if name == "" {
			b.skip(i, SkipNoName)
			return true
		}

		item := models.ScrapedItem{
			DisplayName: name,
			ImageURL:    imageFromAttrs(img, cfg.BaseURL),
		}
		return b.add(i, parent, item)
	})
	return b.result
}

// Identifier returns "<kind>-<slug>" or "<kind>-<index>" for names without
// any slug characters.
func Identifier(kind, name string, index int) string {
	slug := parser.Slugify(name)
	if slug == "" {
		slug = strconv.Itoa(index)
	}
	if kind == "" {
		return slug
	}
	return kind + "-" + slug
}

type listBuilder struct {
	cfg    ListConfig
	result ListResult
	seen   map[string]struct{}
}

func newListBuilder(cfg ListConfig) *listBuilder {
	return &listBuilder{cfg: cfg, seen: make(map[string]struct{})}
}

func (b *listBuilder) skip(index int, reason string) {
	b.result.Skipped = append(b.result.Skipped, models.SkipReason{Index: index, Reason: reason})
}

// add finalises item and reports whether extraction should continue.
func (b *listBuilder) add(index int, s *goquery.Selection, item models.ScrapedItem) bool {
	item.Kind = b.cfg.Kind
	item.Identifier = Identifier(b.cfg.Kind, item.DisplayName, index)
	if _, dup := b.seen[item.Identifier]; dup {
		b.skip(index, SkipDuplicate)
		return true
	}
	if item.ImageURL == "" && b.cfg.Assets != nil {
		item.ImageURL = b.cfg.Assets.Match(item.DisplayName)
	}
	if b.cfg.Extra != nil {
		b.cfg.Extra(s, &item)
	}
	item.Description = parser.PlainText(item.Description)
	for k, v := range item.ExtraFields {
		item.ExtraFields[k] = parser.PlainText(v)
	}

	b.seen[item.Identifier] = struct{}{}
	b.result.Items = append(b.result.Items, item)
	return b.cfg.MaxResults <= 0 || len(b.result.Items) < b.cfg.MaxResults
}

func applyCascade(root *goquery.Selection, cascade []string) (string, *goquery.Selection) {
	for _, selector := range cascade {
		if strings.TrimSpace(selector) == "" {
			continue
		}
		if found := root.Find(selector); found.Length() > 0 {
			return selector, found
		}
	}
	return "", nil
}

func itemName(s *goquery.Selection, selectors []string) string {
	img := s.Find("img").First()
	if goquery.NodeName(s) == "img" {
		img = s
	}
	return firstQualified(
		firstText(s, selectors, ""),
		firstLine(s),
		img.AttrOr("alt", ""),
		img.AttrOr("title", ""),
		s.Find("a").First().Text(),
	)
}

// firstText returns the first selector match with usable text, ignoring
// matches equal to exclude.
func firstText(s *goquery.Selection, selectors []string, exclude string) string {
	for _, selector := range selectors {
		var text string
		s.Find(selector).EachWithBreak(func(_ int, m *goquery.Selection) bool {
			candidate := parser.PlainText(m.Text())
			if qualifies(candidate) && candidate != exclude {
				text = candidate
				return false
			}
			return true
		})
		if text != "" {
			return text
		}
	}
	return ""
}

func firstQualified(candidates ...string) string {
	for _, c := range candidates {
		c = parser.PlainText(c)
		if qualifies(c) {
			return c
		}
	}
	return ""
}

func qualifies(name string) bool {
	return utf8.RuneCountInString(name) >= minNameLength
}

func itemImage(s *goquery.Selection, base string) string {
	img := s.Find("img").First()
	if goquery.NodeName(s) == "img" {
		img = s
	}
	if img.Length() == 0 {
		return ""
	}
	return imageFromAttrs(img, base)
}

func imageFromAttrs(img *goquery.Selection, base string) string {
	for _, attr := range []string{"src", "data-src", "data-lazy-src"} {
		raw := strings.TrimSpace(img.AttrOr(attr, ""))
		if raw == "" || strings.HasPrefix(strings.ToLower(raw), "data:") {
			continue
		}
		if resolved := parser.ResolveURL(base, raw); resolved != "" {
			return resolved
		}
	}
	return ""
}

// firstLine returns the text that precedes the first line break or block
// boundary inside s.
func firstLine(s *goquery.Selection) string {
	if s == nil || s.Length() == 0 {
		return ""
	}

	var sb strings.Builder
	var walk func(n *html.Node) bool
	walk = func(n *html.Node) bool {
		switch n.Type {
		case html.TextNode:
			sb.WriteString(n.Data)
			return true
		case html.ElementNode:
			if n.DataAtom == atom.Script || n.DataAtom == atom.Style || n.DataAtom == atom.Noscript {
				return true
			}
			if breaksLine(n.DataAtom) && strings.TrimSpace(sb.String()) != "" {
				return false
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if !walk(c) {
				return false
			}
		}
		return true
	}

	root := s.Get(0)
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		if !walk(c) {
			break
		}
	}
	return parser.CleanText(sb.String())
}

func breaksLine(a atom.Atom) bool {
	switch a {
	case atom.Br, atom.P, atom.Div, atom.Li, atom.Ul, atom.Ol, atom.Table, atom.Tr, atom.Td, atom.Th,
		atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6, atom.Dl, atom.Dt, atom.Dd, atom.Section, atom.Article:
		return true
	}
	return false
}

// statRows reads label/value pairs from the first stat-row selector that
// matches, keyed by the slugged label.
func statRows(s *goquery.Selection, selectors []string) map[string]string {
	if len(selectors) == 0 {
		return nil
	}
	_, rows := applyCascade(s, selectors)
	if rows == nil {
		return nil
	}

	out := make(map[string]string)
	rows.Each(func(_ int, row *goquery.Selection) {
		label, value := statPair(row)
		key := parser.Slugify(label)
		if key == "" || value == "" {
			return
		}
		if _, exists := out[key]; !exists {
			out[key] = value
		}
	})
	return out
}

func statPair(row *goquery.Selection) (string, string) {
	pairs := [][2]string{
		{"th", "td"},
		{"dt", "dd"},
		{"[class*='label'], [class*='name']", "[class*='value']"},
	}
	for _, p := range pairs {
		label := parser.PlainText(row.Find(p[0]).First().Text())
		value := parser.PlainText(row.Find(p[1]).First().Text())
		if label != "" && value != "" {
			return label, value
		}
	}

	cells := row.Children()
	if cells.Length() >= 2 {
		return parser.PlainText(cells.First().Text()), parser.PlainText(cells.Last().Text())
	}
	if text := parser.PlainText(row.Text()); strings.Contains(text, ":") {
		label, value, _ := strings.Cut(text, ":")
		return strings.TrimSpace(label), strings.TrimSpace(value)
	}
	return "", ""
}

// nameFromImageURL turns ".../merc-wolf_v2.png?x=1" into "merc wolf v2".
func nameFromImageURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.HasPrefix(strings.ToLower(raw), "data:") {
		return ""
	}
	if i := strings.IndexAny(raw, "?#"); i >= 0 {
		raw = raw[:i]
	}
	base := path.Base(raw)
	base = strings.TrimSuffix(base, path.Ext(base))
	if base == "." || base == "/" {
		return ""
	}
	return strings.Join(strings.FieldsFunc(base, func(r rune) bool {
		return r == '-' || r == '_' || r == '.' || r == '+'
	}), " ")
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
