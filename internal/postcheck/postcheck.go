// Package postcheck verifies that published WordPress posts are still live
// by fetching each post URL and extracting the readable article.
package postcheck

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"
	"golang.org/x/sync/errgroup"

	"github.com/tkilaker/inkdesk/internal/api"
	"github.com/tkilaker/inkdesk/internal/logging"
)

const (
	defaultConcurrency = 4
	maxBodyBytes       = 5 << 20
	userAgent          = "inkdesk-postcheck/1.0"
)

// Status is the outcome for one platform record
type Status string

const (
	StatusLive    Status = "live"
	StatusMissing Status = "missing"
	StatusError   Status = "error"
)

// Result describes one checked post
type Result struct {
	Platform   string
	URL        string
	Status     Status
	HTTPStatus int
	Title      string
	Byline     string
	Excerpt    string
	Length     int
	CheckedAt  time.Time
	Error      string
}

// Checker fetches post URLs
type Checker struct {
	httpClient  *http.Client
	logger      logging.Logger
	concurrency int
}

// Option configures a Checker
type Option func(*Checker)

// WithHTTPClient sets the HTTP client
func WithHTTPClient(c *http.Client) Option {
	return func(ch *Checker) { ch.httpClient = c }
}

// WithLogger sets the logger
func WithLogger(l logging.Logger) Option {
	return func(ch *Checker) {
		if l != nil {
			ch.logger = l
		}
	}
}

// WithConcurrency limits parallel fetches
func WithConcurrency(n int) Option {
	return func(ch *Checker) {
		if n > 0 {
			ch.concurrency = n
		}
	}
}

// New creates a post checker
func New(opts ...Option) *Checker {
	c := &Checker{
		httpClient:  &http.Client{Timeout: 15 * time.Second},
		logger:      logging.NoOp(),
		concurrency: defaultConcurrency,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Check fetches every record's post URL and returns one result per record,
// in input order. Individual failures are reported in the results.
func (c *Checker) Check(ctx context.Context, records []api.PlatformRecord) []Result {
	results := make([]Result, len(records))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i, rec := range records {
		g.Go(func() error {
			results[i] = c.checkOne(ctx, rec)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (c *Checker) checkOne(ctx context.Context, rec api.PlatformRecord) Result {
	result := Result{Platform: rec.PlatformName, URL: rec.PostURL, CheckedAt: time.Now()}

	pageURL, err := url.Parse(strings.TrimSpace(rec.PostURL))
	if err != nil || pageURL.Scheme == "" || pageURL.Host == "" {
		result.Status = StatusError
		result.Error = "invalid post url"
		return result
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL.String(), nil)
	if err != nil {
		result.Status = StatusError
		result.Error = err.Error()
		return result
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("post check failed", "url", rec.PostURL, "error", err)
		result.Status = StatusError
		result.Error = fmt.Sprintf("failed to fetch post: %v", err)
		return result
	}
	defer resp.Body.Close()
	result.HTTPStatus = resp.StatusCode

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		result.Status = StatusMissing
		return result
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		result.Status = StatusError
		result.Error = fmt.Sprintf("unexpected status %d", resp.StatusCode)
		return result
	}

	article, err := readability.FromReader(io.LimitReader(resp.Body, maxBodyBytes), pageURL)
	if err != nil {
		result.Status = StatusError
		result.Error = fmt.Sprintf("failed to parse post: %v", err)
		return result
	}

	result.Status = StatusLive
	result.Title = strings.TrimSpace(article.Title)
	result.Byline = strings.TrimSpace(article.Byline)
	result.Excerpt = strings.TrimSpace(article.Excerpt)
	result.Length = article.Length
	return result
}
