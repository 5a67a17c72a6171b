package scraper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"golang.org/x/time/rate"

	"github.com/aluiziolira/go-scrape-gamewiki/config"
)

// Request phases used as metric labels.
const (
	PhaseListing = "listing"
	PhaseDetail  = "detail"
	PhaseForum   = "forum"
)

// Options tunes a single fetch.
type Options struct {
	Timeout   time.Duration
	UserAgent string
	Accept    string
	Phase     string
}

// RawResponse is the body and status of a fetched page.
type RawResponse struct {
	URL    string
	Status int
	Body   []byte
	Header http.Header
}

// Fetcher issues single GET requests through a colly collector. It never
// retries; callers own the retry policy. With a host rate set, requests to
// the same host are spaced across every caller sharing the fetcher.
type Fetcher struct {
	userAgent     string
	accept        string
	maxBodySize   int
	respectRobots bool
	transport     http.RoundTripper
	metrics       *Metrics

	hostRate rate.Limit
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewFetcher builds a fetcher with the headers and limits from cfg.
func NewFetcher(cfg *config.Config, metrics *Metrics) *Fetcher {
	return &Fetcher{
		userAgent:     cfg.UserAgent,
		accept:        cfg.Accept,
		maxBodySize:   cfg.MaxBodySize,
		respectRobots: cfg.RespectRobotsTxt,
		transport:     newTransport(),
		metrics:       metrics,
		hostRate:      rate.Limit(cfg.HostRPS),
		limiters:      make(map[string]*rate.Limiter),
	}
}

func newTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
}

// WithTransport replaces the underlying HTTP transport.
func (f *Fetcher) WithTransport(rt http.RoundTripper) {
	f.transport = rt
}

// Fetch GETs rawURL. Transport failures and 5xx responses return a
// *FetchError; other responses with an empty body return an
// *InvalidResponseError. 4xx responses with a body are returned as-is for
// the caller to judge.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, opts Options) (*RawResponse, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	parsed, err := url.Parse(rawURL)
	if err != nil || !parsed.IsAbs() || parsed.Host == "" {
		fetchErr := &FetchError{URL: rawURL, Err: ErrRelativeURL}
		f.fail(fetchErr)
		return nil, fetchErr
	}
	if err := ctx.Err(); err != nil {
		return nil, &FetchError{URL: rawURL, Err: err}
	}
	if err := f.waitHost(ctx, parsed.Host); err != nil {
		return nil, &FetchError{URL: rawURL, Err: ctxErr(ctx, err)}
	}

	phase := opts.Phase
	if phase == "" {
		phase = PhaseDetail
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = f.userAgent
	}
	accept := opts.Accept
	if accept == "" {
		accept = f.accept
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	collector := colly.NewCollector(
		colly.UserAgent(userAgent),
		colly.AllowURLRevisit(),
		colly.ParseHTTPErrorResponse(),
	)
	if f.maxBodySize > 0 {
		collector.MaxBodySize = f.maxBodySize
	}
	collector.IgnoreRobotsTxt = !f.respectRobots
	collector.SetRequestTimeout(timeout)
	collector.WithTransport(&contextTransport{ctx: reqCtx, next: f.transport})

	var response *colly.Response
	collector.OnRequest(func(r *colly.Request) {
		if accept != "" {
			r.Headers.Set("Accept", accept)
		}
	})
	collector.OnResponse(func(r *colly.Response) {
		response = r
	})

	f.metrics.IncRequest(phase)
	start := time.Now()
	visitErr := collector.Visit(rawURL)
	f.metrics.ObserveDuration(phase, time.Since(start))

	if visitErr != nil {
		status := 0
		if response != nil {
			status = response.StatusCode
		}
		fetchErr := &FetchError{URL: rawURL, Status: status, Err: classifyError(visitErr, 0)}
		f.fail(fetchErr)
		return nil, fetchErr
	}
	if response == nil {
		fetchErr := &FetchError{URL: rawURL, Err: errors.New("no response received")}
		f.fail(fetchErr)
		return nil, fetchErr
	}
	if response.StatusCode >= http.StatusInternalServerError {
		fetchErr := &FetchError{URL: rawURL, Status: response.StatusCode, Err: fmt.Errorf("http status %d", response.StatusCode)}
		f.fail(fetchErr)
		return nil, fetchErr
	}
	if len(bytes.TrimSpace(response.Body)) == 0 {
		invalid := &InvalidResponseError{URL: rawURL, Status: response.StatusCode}
		f.fail(invalid)
		return nil, invalid
	}

	header := http.Header{}
	if response.Headers != nil {
		header = response.Headers.Clone()
	}
	if response.StatusCode >= http.StatusBadRequest {
		slog.Warn("non-2xx response",
			slog.Int("status", response.StatusCode),
			slog.String("url", rawURL),
		)
	}
	return &RawResponse{
		URL:    rawURL,
		Status: response.StatusCode,
		Body:   response.Body,
		Header: header,
	}, nil
}

// waitHost blocks until the limiter for host admits another request.
func (f *Fetcher) waitHost(ctx context.Context, host string) error {
	if f.hostRate <= 0 {
		return nil
	}
	f.mu.Lock()
	limiter, ok := f.limiters[host]
	if !ok {
		limiter = rate.NewLimiter(f.hostRate, 1)
		f.limiters[host] = limiter
	}
	f.mu.Unlock()
	return limiter.Wait(ctx)
}

// fail counts err. Fetch failures are counted here only; callers that pass
// them on do not count them again.
func (f *Fetcher) fail(err error) {
	label := ErrorLabel(err)
	f.metrics.IncError(label)
	slog.Debug("fetch failed", slog.String("category", label), slog.Any("error", err))
}

// contextTransport binds every request to ctx so a cancelled caller aborts
// the in-flight fetch.
type contextTransport struct {
	ctx  context.Context
	next http.RoundTripper
}

func (t *contextTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	next := t.next
	if next == nil {
		next = http.DefaultTransport
	}
	return next.RoundTrip(req.WithContext(t.ctx))
}
