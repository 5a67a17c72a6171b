package extract

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aluiziolira/go-scrape-gamewiki/parser"
)

const discussionURL = "https://forum.example.com/discussion/4821/season-4-patch-notes"

func fixedClock() time.Time {
	return time.Date(2025, 6, 14, 10, 30, 0, 0, time.UTC)
}

func TestExtractEventDetailFallsBackToTitle(t *testing.T) {
	doc := mustDoc(t, `<html><body><h1>Patch Notes</h1></body></html>`)

	ev, err := ExtractEventDetail(doc, discussionURL)
	require.NoError(t, err)

	require.Equal(t, "Patch Notes", ev.Title)
	require.Equal(t, parser.Today(time.Now()), ev.PublishedAt)
	require.Equal(t, "<p>Patch Notes</p>", ev.ContentHTML)
	require.Equal(t, discussionURL, ev.SourceURL)
	require.Equal(t, "Announcement", ev.Category)
}

func TestExtractEventDetailEmptyMessage(t *testing.T) {
	doc := mustDoc(t, `
<div class="Discussion">
  <div class="PageTitle"><h1>Patch Notes</h1></div>
  <div class="Message userContent"></div>
</div>`)

	cfg := DefaultEventConfig()
	cfg.Now = fixedClock
	ev, err := cfg.Extract(doc, discussionURL)
	require.NoError(t, err)

	require.Equal(t, "Patch Notes", ev.Title)
	require.Equal(t, "2025-06-14", ev.PublishedAt)
	require.Equal(t, "<p>Patch Notes</p>", ev.ContentHTML)
}

func TestExtractEventDetailFullPage(t *testing.T) {
	body := `
<html><head><title>Forum</title></head><body>
<img src="/themes/forum-logo.png">
<div class="Breadcrumbs"><a href="/">Home</a><a href="/categories/patch-notes">Patch Notes</a></div>
<div class="Discussion">
  <div class="PageTitle"><h1> Season 4   Update </h1></div>
  <div class="Meta DiscussionMeta">
    <span class="MItem DateCreated"><time datetime="2024-11-02T18:04:11+00:00" title="November 2, 2024">Nov 2</time></span>
  </div>
  <div class="Message userContent">
    <img src="https://cdn.example.com/emoji/smile.png" class="emoji">
    <p>New map <strong>Harbor</strong> is live! <a href="/discussion/4800/maps">Map list</a></p>
    <p><img src="//cdn.example.com/uploads/harbor.jpg" alt="Harbor"></p>
    <script>steal()</script>
    <iframe src="https://video.example.com/embed"></iframe>
    <div class="Signature">Cheers, the team</div>
    <div class="Reactions"><button>Like</button></div>
    <p onclick="x()" data-track="1">Balance changes for all rifles and shotguns.</p>
  </div>
</div>
</body></html>`
	doc := mustDoc(t, body)

	cfg := DefaultEventConfig()
	cfg.Now = fixedClock
	ev, err := cfg.Extract(doc, discussionURL)
	require.NoError(t, err)

	require.Equal(t, "Season 4 Update", ev.Title)
	require.Equal(t, "2024-11-02", ev.PublishedAt)
	require.Equal(t, "https://cdn.example.com/uploads/harbor.jpg", ev.ImageURL)
	require.Equal(t, "Patch notes", ev.Category)

	content := ev.ContentHTML
	require.Contains(t, content, "<strong>Harbor</strong>")
	require.Contains(t, content, `href="https://forum.example.com/discussion/4800/maps"`)
	require.Contains(t, content, `src="https://cdn.example.com/uploads/harbor.jpg"`)
	require.Contains(t, content, "Balance changes")
	for _, banned := range []string{"<script", "steal()", "<iframe", "Cheers, the team", "<button", "onclick", "data-track"} {
		require.NotContains(t, content, banned)
	}
}

func TestExtractEventDetailShortContentUsesText(t *testing.T) {
	doc := mustDoc(t, `
<h1>Maintenance</h1>
<time datetime="not a date">soon</time>
<div class="userContent"><em>Down at 5 &amp; back at 6</em></div>`)

	ev, err := ExtractEventDetail(doc, "https://forum.example.com/categories/server-status/123")
	require.NoError(t, err)

	require.Equal(t, "<p>Down at 5 &amp; back at 6</p>", ev.ContentHTML)
	require.Equal(t, "not a date", ev.PublishedAt)
	require.Equal(t, "Server status", ev.Category)
}

func TestExtractEventDetailStripsEncodedMarkupFromTitle(t *testing.T) {
	doc := mustDoc(t, `<html><body><h1>&lt;script&gt;alert(3)&lt;/script&gt;</h1></body></html>`)

	ev, err := ExtractEventDetail(doc, discussionURL)
	require.NoError(t, err)

	require.Equal(t, "alert(3)", ev.Title)
	require.Equal(t, "<p>alert(3)</p>", ev.ContentHTML)
	require.NotContains(t, ev.ContentHTML, "<script")
}

func TestExtractEventDetailImageFallback(t *testing.T) {
	doc := mustDoc(t, `
<img src="/img/logo.png">
<img src="/img/avatar-42.png">
<h1>Weekend Event</h1>
<div class="sidebar"><img data-src="/img/banner.jpg"></div>`)

	ev, err := ExtractEventDetail(doc, discussionURL)
	require.NoError(t, err)

	require.Equal(t, "Weekend Event", ev.Title)
	require.Equal(t, "https://forum.example.com/img/banner.jpg", ev.ImageURL)
}

func TestExtractEventDetailDefaults(t *testing.T) {
	doc := mustDoc(t, `<html><body><p>nothing here</p></body></html>`)

	ev, err := ExtractEventDetail(doc, discussionURL)
	require.NoError(t, err)
	require.Equal(t, DefaultEventTitle, ev.Title)
	require.Equal(t, "<p>"+DefaultEventTitle+"</p>", ev.ContentHTML)
	require.Empty(t, ev.ImageURL)

	_, err = ExtractEventDetail(nil, discussionURL)
	require.ErrorIs(t, err, ErrNilDocument)
}

func TestExtractEventDetailLongContentIsSanitizedHTML(t *testing.T) {
	long := strings.Repeat("Ranked rewards are now distributed weekly. ", 3)
	doc := mustDoc(t, `<h1>Ranked</h1><div class="post-content"><custom-tag><p>`+long+`</p></custom-tag></div>`)

	ev, err := ExtractEventDetail(doc, discussionURL)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(ev.ContentHTML, "<p>Ranked rewards"), ev.ContentHTML)
	require.NotContains(t, ev.ContentHTML, "custom-tag")
}
