package scraper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"

	"github.com/aluiziolira/go-scrape-gamewiki/assets"
	"github.com/aluiziolira/go-scrape-gamewiki/config"
	"github.com/aluiziolira/go-scrape-gamewiki/extract"
	"github.com/aluiziolira/go-scrape-gamewiki/models"
)

// Degraded modes reported on ScrapeResult.
const (
	DegradedFallbackScan    = "fallback_scan"
	DegradedPlaceholder     = "placeholder"
	DegradedInvalidResponse = "invalid_response"
)

// Result kinds for event scrapes.
const (
	KindEvent = "event"
	KindForum = "forum"
)

// Scraper runs the list, event and forum scrapes against the configured sources.
type Scraper struct {
	cfg      *config.Config
	profiles config.Profiles
	fetcher  *Fetcher
	assets   *assets.Catalog
	ranks    extract.RankTable
	events   extract.EventConfig
	retry    retryPolicy
	Metrics  *Metrics
}

// NewScraper builds a scraper from cfg and the source profiles.
func NewScraper(cfg *config.Config, profiles config.Profiles) (*Scraper, error) {
	if cfg == nil {
		return nil, errors.New("scraper: nil config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if len(profiles.Sources) == 0 {
		profiles = config.DefaultProfiles(cfg)
	}

	metrics := NewMetrics()
	events := extract.DefaultEventConfig()
	events.BaseURL = strings.TrimRight(cfg.ForumBaseURL, "/")

	return &Scraper{
		cfg:      cfg,
		profiles: profiles,
		fetcher:  NewFetcher(cfg, metrics),
		assets:   assets.NewCatalog(cfg.AssetDir, cfg.AssetPrefix),
		ranks:    extract.RankTableFromConfig(profiles.Ranks),
		events:   events,
		retry:    newRetryPolicy(cfg.RankRetries, cfg.RetryBackoff, cfg.RetryBackoffMax, metrics),
		Metrics:  metrics,
	}, nil
}

// WithTransport replaces the HTTP transport used for every fetch.
func (s *Scraper) WithTransport(rt http.RoundTripper) {
	s.fetcher.WithTransport(rt)
}

// Assets exposes the local asset catalog so callers can reset it.
func (s *Scraper) Assets() *assets.Catalog {
	return s.assets
}

// ScrapeRanks scrapes the ranks page.
func (s *Scraper) ScrapeRanks(ctx context.Context) (*models.ScrapeResult, error) {
	return s.ScrapeList(ctx, config.KindRank)
}

// ScrapeModes scrapes the game modes page.
func (s *Scraper) ScrapeModes(ctx context.Context) (*models.ScrapeResult, error) {
	return s.ScrapeList(ctx, config.KindMode)
}

// ScrapeWeapons scrapes the weapons page.
func (s *Scraper) ScrapeWeapons(ctx context.Context) (*models.ScrapeResult, error) {
	return s.ScrapeList(ctx, config.KindWeapon)
}

// ScrapeList fetches the listing page configured for kind and extracts its
// items. Fetch failures and 4xx answers are returned as *ScrapeError, except
// for ranks, which are retried and then degrade to the placeholder set. An
// empty response yields an empty result marked as degraded. A cancelled ctx
// returns ctx's error and no result.
func (s *Scraper) ScrapeList(ctx context.Context, kind string) (*models.ScrapeResult, error) {
	profile, ok := s.profiles.Sources[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSource, kind)
	}

	result := newResult(kind, profile.URL)
	logger := slog.With(slog.String("run_id", result.RunID), slog.String("kind", kind), slog.String("url", profile.URL))

	opts := Options{Timeout: profile.Timeout, Phase: PhaseListing}
	if opts.Timeout <= 0 {
		opts.Timeout = s.cfg.ListingTimeout
	}

	var resp *RawResponse
	fetch := func() error {
		var err error
		resp, err = s.fetcher.Fetch(ctx, profile.URL, opts)
		if err != nil {
			return err
		}
		return s.checkStatus(resp)
	}

	var err error
	if kind == config.KindRank {
		err = s.retry.do(ctx, profile.URL, fetch)
	} else {
		err = fetch()
	}

	if err != nil {
		if cerr := ctx.Err(); cerr != nil {
			logger.Info("list scrape interrupted", slog.Any("error", cerr))
			return nil, cerr
		}
		var invalid *InvalidResponseError
		switch {
		case kind == config.KindRank:
			logger.Warn("ranks unavailable, using placeholder set", slog.Any("error", err))
			s.degrade(result, DegradedPlaceholder, err)
			result.Items = extract.PlaceholderRanks(s.cfg.AssetPrefix)
			return s.finish(result), nil
		case errors.As(err, &invalid):
			logger.Warn("empty listing response", slog.Int("status", invalid.Status))
			s.degrade(result, DegradedInvalidResponse, err)
			return s.finish(result), nil
		default:
			return nil, &ScrapeError{URL: profile.URL, Err: err}
		}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		scrapeErr := s.parseError(profile.URL, fmt.Errorf("parse listing: %w", err))
		if kind == config.KindRank {
			logger.Warn("ranks unparseable, using placeholder set", slog.Any("error", err))
			s.degrade(result, DegradedPlaceholder, scrapeErr)
			result.Items = extract.PlaceholderRanks(s.cfg.AssetPrefix)
			return s.finish(result), nil
		}
		return nil, scrapeErr
	}

	listCfg := extract.ListConfigFromProfile(profile, s.assets)
	var extracted extract.ListResult
	if kind == config.KindRank {
		extracted = extract.ExtractRanks(doc, listCfg, s.ranks, s.cfg.AssetPrefix)
	} else {
		extracted = extract.ExtractList(doc, listCfg)
	}

	result.Items = extracted.Items
	result.Skipped = extracted.Skipped
	switch {
	case extracted.Placeholder:
		s.degrade(result, DegradedPlaceholder, nil)
	case extracted.FallbackUsed:
		s.degrade(result, DegradedFallbackScan, nil)
	}
	for _, skip := range extracted.Skipped {
		s.Metrics.IncSkipped(kind, skip.Reason)
		logger.Debug("item skipped", slog.Int("index", skip.Index), slog.String("reason", skip.Reason))
	}
	s.Metrics.AddItems(kind, len(result.Items))

	logger.Info("list scrape complete",
		slog.Int("status", resp.Status),
		slog.String("selector", extracted.Selector),
		slog.Int("items", len(result.Items)),
		slog.Int("skipped", len(result.Skipped)),
		slog.String("degraded", result.Degraded),
	)
	return s.finish(result), nil
}

// ScrapeEvent fetches one forum discussion page and extracts its event.
// Every failure is returned as *ScrapeError.
func (s *Scraper) ScrapeEvent(ctx context.Context, sourceURL string) (*models.ScrapedEvent, error) {
	sourceURL = strings.TrimSpace(sourceURL)
	resp, err := s.fetcher.Fetch(ctx, sourceURL, Options{Timeout: s.cfg.DetailTimeout, Phase: PhaseDetail})
	if err != nil {
		return nil, &ScrapeError{URL: sourceURL, Err: err}
	}
	if err := s.checkStatus(resp); err != nil {
		return nil, &ScrapeError{URL: sourceURL, Err: err}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, s.parseError(sourceURL, fmt.Errorf("parse discussion: %w", err))
	}

	ev, err := s.events.Extract(doc, sourceURL)
	if err != nil {
		return nil, s.parseError(sourceURL, err)
	}
	s.Metrics.IncEvents()
	return &ev, nil
}

// ScrapeEvents scrapes each URL in order, one at a time, waiting the
// configured event delay after each fetch before starting the next. A failed
// URL is logged and recorded in Failed; the rest continue. Cancelling ctx
// stops the loop and returns the partial result with ctx's error.
func (s *Scraper) ScrapeEvents(ctx context.Context, urls []string) (*models.ScrapeResult, error) {
	result := newResult(KindEvent, "")
	logger := slog.With(slog.String("run_id", result.RunID))

	fetched := 0
	seen := make(map[string]struct{}, len(urls))
	for _, raw := range urls {
		target := strings.TrimSpace(raw)
		if target == "" {
			continue
		}
		if _, dup := seen[target]; dup {
			continue
		}
		seen[target] = struct{}{}

		if fetched > 0 && s.cfg.EventDelay > 0 {
			if err := pause(ctx, s.cfg.EventDelay); err != nil {
				logger.Info("event scrape interrupted", slog.Int("done", len(result.Events)))
				return s.finish(result), err
			}
		}

		ev, err := s.ScrapeEvent(ctx, target)
		fetched++
		if err != nil {
			if ctx.Err() != nil {
				return s.finish(result), ctx.Err()
			}
			logger.Warn("event scrape failed",
				slog.String("url", target),
				slog.String("category", ErrorLabel(err)),
				slog.Any("error", err),
			)
			result.Failed = append(result.Failed, models.FailedURL{URL: target, Error: err.Error()})
			continue
		}
		result.Events = append(result.Events, *ev)
	}

	logger.Info("event scrape complete",
		slog.Int("events", len(result.Events)),
		slog.Int("failed", len(result.Failed)),
	)
	return s.finish(result), nil
}

// ScrapeForum reads a forum listing (HTML or RSS/Atom), discovers up to limit
// discussion URLs and scrapes each as an event. An empty listingURL means the
// configured announcements listing.
func (s *Scraper) ScrapeForum(ctx context.Context, listingURL string, limit int) (*models.ScrapeResult, error) {
	listingURL = strings.TrimSpace(listingURL)
	if listingURL == "" {
		listingURL = s.cfg.ForumListingURL
	}

	resp, err := s.fetcher.Fetch(ctx, listingURL, Options{Timeout: s.cfg.ListingTimeout, Phase: PhaseForum})
	if err != nil {
		return nil, &ScrapeError{URL: listingURL, Err: err}
	}
	if err := s.checkStatus(resp); err != nil {
		return nil, &ScrapeError{URL: listingURL, Err: err}
	}

	links, err := extract.ExtractDiscussionLinks(resp.Body, listingURL, limit)
	if err != nil {
		return nil, s.parseError(listingURL, err)
	}
	slog.Info("forum listing read", slog.String("url", listingURL), slog.Int("discussions", len(links)))

	result, err := s.ScrapeEvents(ctx, links)
	result.Kind = KindForum
	result.SourceURL = listingURL
	return result, err
}

func (s *Scraper) degrade(result *models.ScrapeResult, mode string, cause error) {
	result.Degraded = mode
	if cause != nil {
		result.Warnings = append(result.Warnings, cause.Error())
	}
	s.Metrics.IncDegraded(result.Kind, mode)
}

// checkStatus rejects and counts the 4xx answers the fetcher passes through.
func (s *Scraper) checkStatus(resp *RawResponse) error {
	if resp.Status < http.StatusBadRequest {
		return nil
	}
	err := classifyError(nil, resp.Status)
	s.Metrics.IncError(ErrorLabel(err))
	return err
}

func (s *Scraper) parseError(target string, err error) error {
	scrapeErr := &ScrapeError{URL: target, Err: err}
	s.Metrics.IncError(ErrorLabel(scrapeErr))
	return scrapeErr
}

func (s *Scraper) finish(result *models.ScrapeResult) *models.ScrapeResult {
	result.EndTime = time.Now()
	return result
}

func newResult(kind, sourceURL string) *models.ScrapeResult {
	return &models.ScrapeResult{
		RunID:     uuid.NewString(),
		Kind:      kind,
		SourceURL: sourceURL,
		StartTime: time.Now(),
	}
}

// pause waits d or until ctx is done.
func pause(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// ctxErr prefers the context's own error over the limiter's wrapper.
func ctxErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}
