// Package vndb is a metadata provider for the VNDB visual novel database.
//
// Every request goes through a shared ratelimit.Limiter that enforces the
// published limits (200 requests per 5 minutes, 1.5s apart). Throttling
// signals from the API, a 429 status or an HTML page served with a success
// status, are absorbed by waiting and retrying; only failures that need the
// caller's attention are returned.
package vndb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ryanm101/vnmeta/internal/metadata"
	"github.com/ryanm101/vnmeta/internal/metrics"
	"github.com/ryanm101/vnmeta/internal/ratelimit"
	"github.com/ryanm101/vnmeta/internal/tracing"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	// Slug identifies this provider on every record it produces.
	Slug = "vndb"

	DefaultBaseURL   = "https://api.vndb.org/kana"
	DefaultUserAgent = "vnmeta/1.0 (+https://github.com/ryanm101/vnmeta)"
	DefaultPageSize  = 10

	siteURL = "https://vndb.org"
)

// Config holds client settings.
type Config struct {
	BaseURL   string           `yaml:"base_url"`
	UserAgent string           `yaml:"user_agent"`
	Timeout   time.Duration    `yaml:"timeout"`
	PageSize  int              `yaml:"page_size"`
	RateLimit ratelimit.Config `yaml:"rate_limit"`
	Retry     RetryPolicy      `yaml:"retry"`
}

// DefaultConfig returns the settings used against the public API.
func DefaultConfig() Config {
	return Config{
		BaseURL:   DefaultBaseURL,
		UserAgent: DefaultUserAgent,
		Timeout:   30 * time.Second,
		PageSize:  DefaultPageSize,
		RateLimit: ratelimit.DefaultConfig(),
		Retry:     DefaultRetryPolicy(),
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.BaseURL == "" {
		c.BaseURL = def.BaseURL
	}
	if c.UserAgent == "" {
		c.UserAgent = def.UserAgent
	}
	if c.Timeout <= 0 {
		c.Timeout = def.Timeout
	}
	if c.PageSize <= 0 {
		c.PageSize = def.PageSize
	}
	c.Retry = c.Retry.withDefaults()
	return c
}

// Client queries VNDB. It implements metadata.Provider and is safe for
// concurrent use.
type Client struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	pageSize   int
	retry      RetryPolicy
	limitCfg   ratelimit.Config

	limiter *ratelimit.Limiter
	clock   ratelimit.Clock
	images  metadata.ImageFetcher
	logger  *slog.Logger
	mapper  *mapper
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the default instrumented HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithClock sets the clock used for rate limiting and retry waits.
func WithClock(clock ratelimit.Clock) Option {
	return func(c *Client) { c.clock = clock }
}

// WithLimiter shares an existing limiter, e.g. between clients that talk to
// the same API.
func WithLimiter(l *ratelimit.Limiter) Option {
	return func(c *Client) { c.limiter = l }
}

// WithImageFetcher sets the collaborator that stores cover images.
func WithImageFetcher(f metadata.ImageFetcher) Option {
	return func(c *Client) { c.images = f }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a VNDB client.
func NewClient(cfg Config, opts ...Option) *Client {
	cfg = cfg.withDefaults()
	c := &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		userAgent: cfg.UserAgent,
		pageSize:  cfg.PageSize,
		retry:     cfg.Retry,
		limitCfg:  cfg.RateLimit,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.httpClient == nil {
		c.httpClient = &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	if c.clock == nil {
		c.clock = ratelimit.SystemClock()
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.limiter == nil {
		c.limiter = ratelimit.New(c.limitCfg, c.clock, c.logger)
	}
	c.mapper = newMapper(c.images, c.logger)
	return c
}

// attemptResult is the outcome of one HTTP round trip: a response, an error,
// or a reason to wait and retry.
type attemptResult struct {
	resp   *queryResponse
	err    error
	wait   time.Duration
	reason string
}

// query sends q, waiting out throttling until it gets a usable response or a
// failure that is not worth retrying.
func (c *Client) query(ctx context.Context, op string, q Query) (*queryResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "vndb."+op,
		tracing.WithAttributes(attribute.String("vndb.filters", fmt.Sprint(q.Filters))))
	defer span.End()

	body, err := json.Marshal(q)
	if err != nil {
		err = fmt.Errorf("failed to marshal vndb query: %w", err)
		tracing.Fail(span, err)
		return nil, err
	}

	for attempt := 1; ; attempt++ {
		waitStart := c.clock.Now()
		if err := c.limiter.Admit(ctx); err != nil {
			tracing.Fail(span, err)
			return nil, err
		}
		metrics.RecordRateLimitWait(Slug, c.clock.Now().Sub(waitStart))

		res := c.send(ctx, op, body)
		if res.err != nil {
			tracing.Fail(span, res.err)
			return nil, res.err
		}
		if res.resp != nil {
			span.SetAttributes(
				attribute.Int("vndb.attempts", attempt),
				attribute.Int("vndb.results", len(res.resp.Results)))
			return res.resp, nil
		}

		if c.retry.exhausted(attempt) {
			err := &RateLimitedError{Op: op, Attempts: attempt}
			tracing.Fail(span, err)
			return nil, err
		}

		metrics.ProviderRetries.WithLabelValues(Slug, res.reason).Inc()
		span.AddEvent("retry", trace.WithAttributes(
			attribute.String("reason", res.reason),
			attribute.String("wait", res.wait.String())))
		c.logger.Info("vndb throttled request, retrying",
			"op", op,
			"reason", res.reason,
			"wait", res.wait,
			"attempt", attempt)

		if err := c.clock.Sleep(ctx, res.wait); err != nil {
			tracing.Fail(span, err)
			return nil, err
		}
	}
}

// send performs one request. Status checks run before the body is parsed so
// error pages are never mistaken for data.
func (c *Client) send(ctx context.Context, op string, body []byte) attemptResult {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/vn", bytes.NewReader(body))
	if err != nil {
		return attemptResult{err: fmt.Errorf("failed to create vndb request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return attemptResult{err: ctxErr}
		}
		metrics.RecordRequest(Slug, "network_error", start)
		return attemptResult{err: &NetworkError{Op: op, Err: err}}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusTooManyRequests {
		_, _ = io.Copy(io.Discard, resp.Body)
		metrics.RecordRequest(Slug, "rate_limited", start)
		return attemptResult{
			wait:   c.retry.retryAfter(resp.Header.Get("Retry-After"), c.clock.Now()),
			reason: reasonStatus429,
		}
	}

	text, readErr := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.RecordRequest(Slug, "upstream_error", start)
		return attemptResult{err: &UpstreamError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Body:       truncate(string(text), maxDiagnosticBody),
		}}
	}
	if readErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return attemptResult{err: ctxErr}
		}
		metrics.RecordRequest(Slug, "network_error", start)
		return attemptResult{err: &NetworkError{Op: op, Err: readErr}}
	}

	if looksLikeHTML(text) {
		metrics.RecordRequest(Slug, "html", start)
		return attemptResult{wait: c.retry.HTMLBackoff, reason: reasonHTMLBody}
	}

	var out queryResponse
	if err := json.Unmarshal(text, &out); err != nil {
		metrics.RecordRequest(Slug, "malformed", start)
		return attemptResult{err: &MalformedResponseError{
			Op:   op,
			Body: truncate(string(text), maxDiagnosticBody),
			Err:  err,
		}}
	}

	metrics.RecordRequest(Slug, "ok", start)
	return attemptResult{resp: &out}
}

// looksLikeHTML reports whether body is a markup page rather than JSON. VNDB
// occasionally serves its throttling page with a 200 status.
func looksLikeHTML(body []byte) bool {
	return bytes.HasPrefix(bytes.TrimLeft(body, " \t\r\n\ufeff"), []byte("<"))
}
