package parser

import (
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/aluiziolira/go-scrape-gamewiki/models"
)

func TestSlugify(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "basic ascii", input: "Hello World", expected: "hello-world"},
		{name: "punctuation", input: "M4A1-S: Hyper Beast!", expected: "m4a1-s-hyper-beast"},
		{name: "diacritics", input: "Élite Café Señor", expected: "elite-cafe-senor"},
		{name: "runs collapse", input: "a___b   c--d", expected: "a-b-c-d"},
		{name: "leading and trailing", input: "  --Wolf--  ", expected: "wolf"},
		{name: "symbols only", input: "★★★", expected: ""},
		{name: "empty", input: "", expected: ""},
		{name: "non latin", input: "Снайпер", expected: ""},
		{name: "digits", input: "Rank 12", expected: "rank-12"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Slugify(tt.input); got != tt.expected {
				t.Errorf("Slugify(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestSlugifyIdempotentAndTotal(t *testing.T) {
	valid := regexp.MustCompile(`^([a-z0-9]+(-[a-z0-9]+)*)?$`)
	inputs := []string{
		"", " ", "-", "Hello, World", "Ünïcödé Ñame", "a--b", "__x__", "Sgt. O'Neil (Vet)",
		"日本語 title", "tab\tand\nnewline", "ǅungla", "İstanbul", "ﬁre", "K-9 Unit",
	}

	for _, in := range inputs {
		once := Slugify(in)
		if !valid.MatchString(once) {
			t.Errorf("Slugify(%q) = %q contains characters outside [a-z0-9-] or stray hyphens", in, once)
		}
		if twice := Slugify(once); twice != once {
			t.Errorf("Slugify not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		contains []string
		absent   []string
		exact    string
	}{
		{
			name:  "script dropped with content",
			input: "<script>alert(1)</script><p>hi</p>",
			exact: "<p>hi</p>",
		},
		{
			name:     "custom tag unwrapped inside allowed div",
			input:    `<div style="x"><custom>text</custom></div>`,
			contains: []string{"<div", "text", "</div>"},
			absent:   []string{"<custom", "</custom>"},
		},
		{
			name:     "data attributes removed",
			input:    `<span data-id="7" class="tag">ok</span>`,
			contains: []string{`class="tag"`, "ok"},
			absent:   []string{"data-id"},
		},
		{
			name:     "event handlers removed",
			input:    `<img src="https://cdn.example.com/a.png" onerror="alert(1)" alt="a">`,
			contains: []string{`src="https://cdn.example.com/a.png"`},
			absent:   []string{"onerror", "alert"},
		},
		{
			name:   "javascript href neutralised",
			input:  `<a href="javascript:alert(1)">click</a>`,
			absent: []string{"javascript"},
		},
		{
			name:   "iframe and style dropped",
			input:  `<iframe src="https://evil.example"></iframe><style>p{}</style><b>bold</b>`,
			exact:  "<b>bold</b>",
			absent: []string{"iframe", "p{}"},
		},
		{
			name:  "empty input",
			input: "   ",
			exact: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SanitizeHTML(tt.input)
			if tt.exact != "" || tt.input == "   " {
				if got != tt.exact {
					t.Fatalf("SanitizeHTML(%q) = %q, want %q", tt.input, got, tt.exact)
				}
			}
			for _, want := range tt.contains {
				if !strings.Contains(got, want) {
					t.Fatalf("SanitizeHTML(%q) = %q, missing %q", tt.input, got, want)
				}
			}
			for _, bad := range tt.absent {
				if strings.Contains(got, bad) {
					t.Fatalf("SanitizeHTML(%q) = %q, should not contain %q", tt.input, got, bad)
				}
			}
		})
	}
}

func TestSanitizeIgnoresDataAttributesInPolicy(t *testing.T) {
	policy := DefaultPolicy()
	policy.AllowedAttributes = append(policy.AllowedAttributes, "data-src", "onclick")

	got := Sanitize(`<img data-src="x.png" onclick="go()" alt="pic">`, policy)
	if strings.Contains(got, "data-src") || strings.Contains(got, "onclick") {
		t.Fatalf("policy must not enable data-* or on* attributes, got %q", got)
	}
	if !strings.Contains(got, `alt="pic"`) {
		t.Fatalf("expected alt to survive, got %q", got)
	}
}

func TestPlainText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "decoded image tag removed", input: "<img src=x onerror=alert(1)>", want: ""},
		{name: "decoded script keeps only text", input: "<script>alert(2)</script>", want: "alert(2)"},
		{name: "double encoded markup", input: "&lt;b&gt;Elite&lt;/b&gt; Sniper", want: "bElite/b Sniper"},
		{name: "ampersand kept", input: "Search &amp; Destroy", want: "Search & Destroy"},
		{name: "whitespace collapsed", input: "  Team\n  Deathmatch ", want: "Team Deathmatch"},
		{name: "blank", input: "   ", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PlainText(tt.input)
			if got != tt.want {
				t.Fatalf("PlainText(%q) = %q, want %q", tt.input, got, tt.want)
			}
			if strings.ContainsAny(got, "<>") {
				t.Fatalf("PlainText(%q) left markup: %q", tt.input, got)
			}
		})
	}
}

func TestResolveURL(t *testing.T) {
	base := "https://game.example.com"
	tests := []struct {
		raw  string
		want string
	}{
		{raw: "//cdn.example.com/x.png", want: "https://cdn.example.com/x.png"},
		{raw: "/img/x.png", want: "https://game.example.com/img/x.png"},
		{raw: "https://other.example.com/a.png", want: "https://other.example.com/a.png"},
		{raw: "img/x.png", want: "https://game.example.com/img/x.png"},
		{raw: "  ", want: ""},
		{raw: "javascript:alert(1)", want: ""},
		{raw: "data:image/gif;base64,R0lGOD", want: ""},
		{raw: "#comments", want: "#comments"},
		{raw: "mailto:team@example.com", want: "mailto:team@example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			if got := ResolveURL(base, tt.raw); got != tt.want {
				t.Errorf("ResolveURL(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}

	if got := ResolveURL(base+"/", "/img/x.png"); got != "https://game.example.com/img/x.png" {
		t.Errorf("trailing slash on base should not double up, got %q", got)
	}
}

func TestParseExpRequired(t *testing.T) {
	tests := []struct {
		text   string
		want   int64
		wantOK bool
	}{
		{text: `Requires "1,250,000" EXP`, want: 1250000, wantOK: true},
		{text: "EXP 500000 to promote", want: 500000, wantOK: true},
		{text: "Level 12, 99,999 EXP", want: 0, wantOK: false},
		{text: "no numbers", want: 0, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, ok := ParseExpRequired(tt.text)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("ParseExpRequired(%q) = %d, %v; want %d, %v", tt.text, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestNormalizeDate(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{raw: "2024-03-05T14:22:00+00:00", want: "2024-03-05"},
		{raw: "March 7, 2024", want: "2024-03-07"},
		{raw: "  ", want: ""},
		{raw: "a while ago", want: "a while ago"},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			if got := NormalizeDate(tt.raw); got != tt.want {
				t.Errorf("NormalizeDate(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}

	now := time.Date(2025, 1, 2, 9, 0, 0, 0, time.UTC)
	if got := Today(now); got != "2025-01-02" {
		t.Errorf("Today = %q", got)
	}
}

func TestCategoryFromURL(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{url: "https://forum.example.com/categories/patch-notes", want: "Patch notes"},
		{url: "https://forum.example.com/categories/events/p2", want: "Events"},
		{url: "https://forum.example.com/discussion/123/season-2", want: "Announcement"},
		{url: "https://forum.example.com/categories/", want: "Announcement"},
		{url: "not a url /categories/maintenance?x=1", want: "Maintenance"},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			if got := CategoryFromURL(tt.url); got != tt.want {
				t.Errorf("CategoryFromURL(%q) = %q, want %q", tt.url, got, tt.want)
			}
		})
	}
}

func TestValidateRecord(t *testing.T) {
	tests := []struct {
		name    string
		rec     models.Record
		wantErr bool
	}{
		{
			name:    "valid item",
			rec:     &models.ScrapedItem{Identifier: "weapon-ak-47", Kind: "weapon", DisplayName: "AK-47"},
			wantErr: false,
		},
		{
			name:    "item missing identifier",
			rec:     &models.ScrapedItem{DisplayName: "AK-47"},
			wantErr: true,
		},
		{
			name:    "item with one character name",
			rec:     &models.ScrapedItem{Identifier: "rank-x", DisplayName: "X"},
			wantErr: true,
		},
		{
			name:    "valid event",
			rec:     &models.ScrapedEvent{SourceURL: "https://forum.example.com/d/1", Title: "Patch", ContentHTML: "<p>Patch</p>"},
			wantErr: false,
		},
		{
			name:    "event without content",
			rec:     &models.ScrapedEvent{SourceURL: "https://forum.example.com/d/1", Title: "Patch"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRecord(tt.rec)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateRecord() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
