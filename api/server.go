// Package api exposes the game wiki scrapes over JSON HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aluiziolira/go-scrape-gamewiki/config"
	"github.com/aluiziolira/go-scrape-gamewiki/models"
	"github.com/aluiziolira/go-scrape-gamewiki/scraper"
)

const maxBodyBytes = 1 << 20

// Service is the subset of *scraper.Scraper the handlers call.
type Service interface {
	ScrapeList(ctx context.Context, kind string) (*models.ScrapeResult, error)
	ScrapeEvent(ctx context.Context, url string) (*models.ScrapedEvent, error)
	ScrapeEvents(ctx context.Context, urls []string) (*models.ScrapeResult, error)
	ScrapeForum(ctx context.Context, listingURL string, limit int) (*models.ScrapeResult, error)
}

// Sink receives every successful scrape result, typically the export pipeline.
type Sink interface {
	ProcessResult(result *models.ScrapeResult) error
}

// Server represents the API server.
type Server struct {
	svc      Service
	gatherer prometheus.Gatherer
	sink     Sink
	mux      *http.ServeMux
	server   *http.Server
}

// Option customises a Server.
type Option func(*Server)

// WithGatherer serves gatherer on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// WithSink forwards results to sink after each scrape.
func WithSink(sink Sink) Option {
	return func(s *Server) { s.sink = sink }
}

// NewServer wires the routes for svc and listens on addr once started.
func NewServer(addr string, svc Service, opts ...Option) *Server {
	s := &Server{
		svc: svc,
		mux: http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.registerRoutes()

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.middleware(s.mux),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Minute, // bulk event scrapes are paced
		IdleTimeout:  120 * time.Second,
	}
	return s
}

// Handler returns the routed handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/api/scrape/event", s.handleEvent)
	s.mux.HandleFunc("/api/scrape/events", s.handleEvents)
	s.mux.HandleFunc("/api/scrape/forum", s.handleForum)
	s.mux.HandleFunc("/api/scrape/", s.handleList) // /api/scrape/{ranks|modes|weapons}
	if s.gatherer != nil {
		s.mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
}

// Start blocks serving requests until Shutdown.
func (s *Server) Start() error {
	slog.Info("starting API server", slog.String("addr", s.server.Addr))
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("shutting down API server")
	return s.server.Shutdown(ctx)
}

func (s *Server) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		if r.URL.Path != "/health" {
			slog.Debug("request handled",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Duration("elapsed", time.Since(start)),
			)
		}
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "healthy",
		"time":   time.Now(),
	})
}

// listKinds maps the plural path segment to a source kind.
var listKinds = map[string]string{
	"ranks":   config.KindRank,
	"modes":   config.KindMode,
	"weapons": config.KindWeapon,
}

// ListResponse is returned by GET /api/scrape/{kind}.
type ListResponse struct {
	Kind     string               `json:"kind"`
	Count    int                  `json:"count"`
	Items    []models.ScrapedItem `json:"items"`
	Skipped  []models.SkipReason  `json:"skipped,omitempty"`
	Degraded string               `json:"degraded,omitempty"`
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	segment := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/scrape/"), "/")
	kind, ok := listKinds[segment]
	if !ok {
		respondError(w, http.StatusNotFound, "unknown source: "+segment)
		return
	}

	result, err := s.svc.ScrapeList(r.Context(), kind)
	if err != nil {
		respondScrapeError(w, err)
		return
	}
	s.forward(result)

	items := result.Items
	if items == nil {
		items = []models.ScrapedItem{}
	}
	respondJSON(w, http.StatusOK, ListResponse{
		Kind:     kind,
		Count:    len(items),
		Items:    items,
		Skipped:  result.Skipped,
		Degraded: result.Degraded,
	})
}

// EventRequest is the body of POST /api/scrape/event.
type EventRequest struct {
	URL string `json:"url"`
}

func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req EventRequest
	if !decodeBody(w, r, &req) {
		return
	}
	req.URL = strings.TrimSpace(req.URL)
	if req.URL == "" {
		respondError(w, http.StatusBadRequest, "url is required")
		return
	}

	ev, err := s.svc.ScrapeEvent(r.Context(), req.URL)
	if err != nil {
		respondScrapeError(w, err)
		return
	}
	s.forward(&models.ScrapeResult{Kind: scraper.KindEvent, Events: []models.ScrapedEvent{*ev}})
	respondJSON(w, http.StatusOK, ev)
}

// EventsRequest is the body of POST /api/scrape/events.
type EventsRequest struct {
	URLs []string `json:"urls"`
}

// EventsResponse is returned by the bulk event and forum endpoints.
type EventsResponse struct {
	Count  int                   `json:"count"`
	Events []models.ScrapedEvent `json:"events"`
	Failed []models.FailedURL    `json:"failed"`
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req EventsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.URLs) == 0 {
		respondError(w, http.StatusBadRequest, "urls is required")
		return
	}

	result, err := s.svc.ScrapeEvents(r.Context(), req.URLs)
	if err != nil {
		respondScrapeError(w, err)
		return
	}
	s.forward(result)
	respondJSON(w, http.StatusOK, eventsResponse(result))
}

// ForumRequest is the body of POST /api/scrape/forum. An empty URL means
// the configured announcements listing.
type ForumRequest struct {
	URL   string `json:"url"`
	Limit int    `json:"limit"`
}

func (s *Server) handleForum(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req ForumRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Limit < 0 {
		respondError(w, http.StatusBadRequest, "limit cannot be negative")
		return
	}

	result, err := s.svc.ScrapeForum(r.Context(), req.URL, req.Limit)
	if err != nil {
		respondScrapeError(w, err)
		return
	}
	s.forward(result)
	respondJSON(w, http.StatusOK, eventsResponse(result))
}

func (s *Server) forward(result *models.ScrapeResult) {
	if s.sink == nil || result == nil {
		return
	}
	if err := s.sink.ProcessResult(result); err != nil {
		slog.Warn("export sink rejected result", slog.String("kind", result.Kind), slog.Any("error", err))
	}
}

func eventsResponse(result *models.ScrapeResult) EventsResponse {
	resp := EventsResponse{
		Count:  len(result.Events),
		Events: result.Events,
		Failed: result.Failed,
	}
	if resp.Events == nil {
		resp.Events = []models.ScrapedEvent{}
	}
	if resp.Failed == nil {
		resp.Failed = []models.FailedURL{}
	}
	return resp
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// respondScrapeError maps scraper failures onto HTTP statuses: bad input is
// the caller's fault, anything else is an upstream failure.
func respondScrapeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, scraper.ErrUnknownSource):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, scraper.ErrRelativeURL):
		respondError(w, http.StatusBadRequest, err.Error())
	default:
		slog.Warn("scrape failed", slog.String("category", scraper.ErrorLabel(err)), slog.Any("error", err))
		respondError(w, http.StatusBadGateway, err.Error())
	}
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Debug("encode response", slog.Any("error", err))
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}
