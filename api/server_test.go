package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aluiziolira/go-scrape-gamewiki/config"
	"github.com/aluiziolira/go-scrape-gamewiki/models"
	"github.com/aluiziolira/go-scrape-gamewiki/scraper"
)

type fakeService struct {
	mu        sync.Mutex
	listKinds []string
	forumURL  string
	forumMax  int
	err       error
}

func (f *fakeService) ScrapeList(_ context.Context, kind string) (*models.ScrapeResult, error) {
	f.mu.Lock()
	f.listKinds = append(f.listKinds, kind)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return &models.ScrapeResult{
		Kind: kind,
		Items: []models.ScrapedItem{
			{Identifier: kind + "-alpha", Kind: kind, DisplayName: "Alpha"},
			{Identifier: kind + "-bravo", Kind: kind, DisplayName: "Bravo"},
		},
	}, nil
}

func (f *fakeService) ScrapeEvent(_ context.Context, url string) (*models.ScrapedEvent, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.ScrapedEvent{SourceURL: url, Title: "Patch Notes", ContentHTML: "<p>Patch Notes</p>", Category: "Announcement"}, nil
}

func (f *fakeService) ScrapeEvents(_ context.Context, urls []string) (*models.ScrapeResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	result := &models.ScrapeResult{Kind: scraper.KindEvent}
	for _, u := range urls {
		if strings.Contains(u, "broken") {
			result.Failed = append(result.Failed, models.FailedURL{URL: u, Error: "boom"})
			continue
		}
		result.Events = append(result.Events, models.ScrapedEvent{SourceURL: u, Title: "T", ContentHTML: "<p>T</p>"})
	}
	return result, nil
}

func (f *fakeService) ScrapeForum(_ context.Context, listingURL string, limit int) (*models.ScrapeResult, error) {
	f.mu.Lock()
	f.forumURL, f.forumMax = listingURL, limit
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return &models.ScrapeResult{Kind: scraper.KindForum}, nil
}

type recordingSink struct {
	mu      sync.Mutex
	results []*models.ScrapeResult
}

func (s *recordingSink) ProcessResult(result *models.ScrapeResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, result)
	return nil
}

func do(t *testing.T, h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func errorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp["error"]
}

func TestHandleHealth(t *testing.T) {
	h := NewServer(":0", &fakeService{}).Handler()

	rec := do(t, h, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"healthy"`)

	rec = do(t, h, http.MethodPost, "/health", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandleList(t *testing.T) {
	tests := []struct {
		name     string
		method   string
		path     string
		wantCode int
		wantKind string
	}{
		{name: "ranks", method: http.MethodGet, path: "/api/scrape/ranks", wantCode: http.StatusOK, wantKind: config.KindRank},
		{name: "modes", method: http.MethodGet, path: "/api/scrape/modes", wantCode: http.StatusOK, wantKind: config.KindMode},
		{name: "weapons trailing slash", method: http.MethodGet, path: "/api/scrape/weapons/", wantCode: http.StatusOK, wantKind: config.KindWeapon},
		{name: "unknown kind", method: http.MethodGet, path: "/api/scrape/maps", wantCode: http.StatusNotFound},
		{name: "wrong method", method: http.MethodPost, path: "/api/scrape/ranks", wantCode: http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeService{}
			rec := do(t, NewServer(":0", svc).Handler(), tt.method, tt.path, nil)
			require.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			if tt.wantCode != http.StatusOK {
				assert.NotEmpty(t, errorMessage(t, rec))
				return
			}

			var resp ListResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantKind, resp.Kind)
			assert.Equal(t, 2, resp.Count)
			assert.Len(t, resp.Items, 2)
			assert.Equal(t, []string{tt.wantKind}, svc.listKinds)
		})
	}
}

func TestHandleListUpstreamFailure(t *testing.T) {
	svc := &fakeService{err: &scraper.ScrapeError{URL: "https://game.example.com/modes", Err: errors.New("http status 503")}}
	rec := do(t, NewServer(":0", svc).Handler(), http.MethodGet, "/api/scrape/modes", nil)

	require.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, errorMessage(t, rec), "503")
}

func TestHandleEvent(t *testing.T) {
	sink := &recordingSink{}
	h := NewServer(":0", &fakeService{}, WithSink(sink)).Handler()

	rec := do(t, h, http.MethodPost, "/api/scrape/event", EventRequest{URL: " https://forum.example.com/discussion/1/patch "})
	require.Equal(t, http.StatusOK, rec.Code)

	var ev models.ScrapedEvent
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ev))
	assert.Equal(t, "https://forum.example.com/discussion/1/patch", ev.SourceURL)
	assert.Equal(t, "Patch Notes", ev.Title)

	require.Len(t, sink.results, 1)
	assert.Len(t, sink.results[0].Events, 1)
}

func TestHandleEventBadInput(t *testing.T) {
	h := NewServer(":0", &fakeService{}).Handler()

	rec := do(t, h, http.MethodPost, "/api/scrape/event", EventRequest{})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "url is required", errorMessage(t, rec))

	rec = do(t, h, http.MethodPost, "/api/scrape/event", "{not json")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid request body", errorMessage(t, rec))

	rec = do(t, h, http.MethodGet, "/api/scrape/event", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandleEventRelativeURL(t *testing.T) {
	svc := &fakeService{err: &scraper.ScrapeError{URL: "/discussion/1", Err: &scraper.FetchError{URL: "/discussion/1", Err: scraper.ErrRelativeURL}}}
	rec := do(t, NewServer(":0", svc).Handler(), http.MethodPost, "/api/scrape/event", EventRequest{URL: "/discussion/1"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleEvents(t *testing.T) {
	h := NewServer(":0", &fakeService{}).Handler()

	rec := do(t, h, http.MethodPost, "/api/scrape/events", EventsRequest{URLs: []string{
		"https://forum.example.com/discussion/1/a",
		"https://forum.example.com/discussion/2/broken",
		"https://forum.example.com/discussion/3/c",
	}})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp EventsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)
	assert.Len(t, resp.Events, 2)
	require.Len(t, resp.Failed, 1)
	assert.Contains(t, resp.Failed[0].URL, "broken")

	rec = do(t, h, http.MethodPost, "/api/scrape/events", EventsRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleForum(t *testing.T) {
	svc := &fakeService{}
	h := NewServer(":0", svc).Handler()

	rec := do(t, h, http.MethodPost, "/api/scrape/forum", ForumRequest{Limit: 5})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "", svc.forumURL)
	assert.Equal(t, 5, svc.forumMax)

	var resp EventsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 0, resp.Count)
	assert.NotNil(t, resp.Events)
	assert.NotNil(t, resp.Failed)

	rec = do(t, h, http.MethodPost, "/api/scrape/forum", ForumRequest{Limit: -1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	registry := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "gamewiki_test_total", Help: "test counter"})
	registry.MustRegister(counter)
	counter.Add(3)

	h := NewServer(":0", &fakeService{}, WithGatherer(registry)).Handler()
	rec := do(t, h, http.MethodGet, "/metrics", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), fmt.Sprintf("gamewiki_test_total %d", 3))
}

func TestMetricsEndpointDisabled(t *testing.T) {
	h := NewServer(":0", &fakeService{}).Handler()
	rec := do(t, h, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
