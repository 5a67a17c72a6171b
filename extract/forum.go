package extract

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"github.com/aluiziolira/go-scrape-gamewiki/parser"
)

// DiscussionSelectors locate discussion links on an HTML forum listing.
var DiscussionSelectors = []string{
	".ItemDiscussion .Title a[href]",
	".DataList.Discussions a.Title[href]",
	"a.Title[href*='/discussion/']",
	"a[href*='/discussion/']",
}

// ExtractDiscussionLinks returns up to limit absolute, de-duplicated
// discussion URLs from a forum listing. RSS and Atom listings are read
// through their item links; HTML listings through DiscussionSelectors.
func ExtractDiscussionLinks(body []byte, listingURL string, limit int) ([]string, error) {
	base := parser.SiteBase(listingURL)
	if base == "" {
		return nil, fmt.Errorf("listing url %q is not absolute", listingURL)
	}

	var raw []string
	if looksLikeFeed(body) {
		feed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("parse forum feed: %w", err)
		}
		for _, item := range feed.Items {
			if item == nil {
				continue
			}
			link := item.Link
			if link == "" && len(item.Links) > 0 {
				link = item.Links[0]
			}
			raw = append(raw, link)
		}
	} else {
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("parse forum listing: %w", err)
		}
		_, links := applyCascade(doc.Selection, DiscussionSelectors)
		if links != nil {
			links.Each(func(_ int, a *goquery.Selection) {
				raw = append(raw, a.AttrOr("href", ""))
			})
		}
	}

	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, href := range raw {
		link := canonicalLink(base, href)
		if link == "" {
			continue
		}
		if _, dup := seen[link]; dup {
			continue
		}
		seen[link] = struct{}{}
		out = append(out, link)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func looksLikeFeed(body []byte) bool {
	head := bytes.TrimSpace(body)
	if len(head) > 512 {
		head = head[:512]
	}
	lower := strings.ToLower(string(head))
	if strings.Contains(lower, "<html") || strings.Contains(lower, "<!doctype html") {
		return false
	}
	return strings.Contains(lower, "<rss") || strings.Contains(lower, "<feed") || strings.Contains(lower, "<rdf:rdf")
}

// canonicalLink resolves href against base and drops fragments, keeping only
// http(s) targets.
func canonicalLink(base, href string) string {
	resolved := parser.ResolveURL(base, href)
	if resolved == "" {
		return ""
	}
	u, err := url.Parse(resolved)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ""
	}
	u.Fragment = ""
	return u.String()
}
