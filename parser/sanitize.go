package parser

import (
	"html"
	"strings"

	"github.com/kennygrant/sanitize"
)

// Policy is a tag and attribute allow-list.
type Policy struct {
	AllowedTags       []string
	AllowedAttributes []string
}

var defaultPolicy = Policy{
	AllowedTags: []string{
		"p", "br", "strong", "b", "em", "i", "u", "strike", "s", "del",
		"h1", "h2", "h3", "h4", "h5", "h6",
		"ul", "ol", "li", "a", "img", "blockquote", "pre", "code",
		"table", "thead", "tbody", "tr", "th", "td",
		"div", "span", "hr",
	},
	AllowedAttributes: []string{
		"href", "src", "alt", "title", "style", "class", "width", "height", "target", "rel",
	},
}

// DefaultPolicy returns the allow-list applied to every rich-text field.
func DefaultPolicy() Policy {
	return Policy{
		AllowedTags:       append([]string(nil), defaultPolicy.AllowedTags...),
		AllowedAttributes: append([]string(nil), defaultPolicy.AllowedAttributes...),
	}
}

// Sanitize filters html through policy. Tags outside the allow-list are
// unwrapped (their text survives); script, style, iframe and similar
// elements are dropped together with their content. data-* and on*
// attributes are never allowed, whatever the policy says.
func Sanitize(html string, policy Policy) string {
	if strings.TrimSpace(html) == "" {
		return ""
	}

	attrs := make([]string, 0, len(policy.AllowedAttributes))
	for _, a := range policy.AllowedAttributes {
		a = strings.ToLower(strings.TrimSpace(a))
		if a == "" || strings.HasPrefix(a, "data-") || strings.HasPrefix(a, "on") {
			continue
		}
		attrs = append(attrs, a)
	}

	tags := make([]string, 0, len(policy.AllowedTags))
	for _, tag := range policy.AllowedTags {
		tags = append(tags, strings.ToLower(strings.TrimSpace(tag)))
	}

	clean, err := sanitize.HTMLAllowing(html, tags, attrs)
	if err != nil {
		// The tokenizer gave up; plain escaped text is still safe to store.
		return sanitize.HTML(html)
	}
	return strings.TrimSpace(clean)
}

// SanitizeHTML applies DefaultPolicy.
func SanitizeHTML(html string) string {
	return Sanitize(html, defaultPolicy)
}

// PlainText reduces s to tag-free text. Markup that only appears once
// entities are decoded, such as "&lt;script&gt;", is stripped as well, so
// the result is safe to place in any plain-text field. Callers rendering it
// as HTML still escape it.
func PlainText(s string) string {
	if strings.TrimSpace(s) == "" {
		return ""
	}
	text := html.UnescapeString(sanitize.HTML(CleanText(s)))
	return CleanText(angleBrackets.Replace(text))
}

var angleBrackets = strings.NewReplacer("<", "", ">", "")
