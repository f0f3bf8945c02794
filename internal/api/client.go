package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/tkilaker/inkdesk/internal/logging"
)

const (
	csrfCookieName = "XSRF-TOKEN"
	csrfHeaderName = "X-XSRF-TOKEN"
	csrfPath       = "/sanctum/csrf-cookie"

	// StatusSessionExpired is returned by the backend when the session or
	// CSRF token has expired.
	StatusSessionExpired = 419
)

// Client talks to the content-generation REST API. Each Client owns its own
// cookie jar, so one Client represents one signed-in browser session.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	logger     logging.Logger

	refresh singleflight.Group
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client. The client's Jar is
// replaced by a fresh cookie jar when nil.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-request timeout
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithLogger sets the logger used for refresh and retry events
func WithLogger(l logging.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a new API client for the given base URL
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", baseURL)
	}

	c := &Client{
		baseURL: u,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logging.NoOp(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.httpClient.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("create cookie jar: %w", err)
		}
		c.httpClient.Jar = jar
	}

	return c, nil
}

// BaseURL returns the API base URL
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// request describes one API call. Body is either JSON-encodable or a
// pre-encoded multipart payload.
type request struct {
	method string
	path   string
	query  url.Values
	body   any
	form   *multipartBody
}

type multipartBody struct {
	contentType string
	data        []byte
}

// csrfToken returns the current XSRF token from the cookie jar, URL-decoded
func (c *Client) csrfToken() string {
	for _, cookie := range c.httpClient.Jar.Cookies(c.baseURL) {
		if cookie.Name != csrfCookieName {
			continue
		}
		token, err := url.QueryUnescape(cookie.Value)
		if err != nil {
			return cookie.Value
		}
		return token
	}
	return ""
}

// RefreshCSRF fetches a fresh CSRF cookie. Concurrent callers share a single
// outstanding request and all observe its result. A caller whose ctx ends
// first returns early; the shared fetch keeps running for the others and is
// bounded by the http.Client timeout.
func (c *Client) RefreshCSRF(ctx context.Context) error {
	fetchCtx := context.WithoutCancel(ctx)
	ch := c.refresh.DoChan("csrf", func() (any, error) {
		req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, c.resolve(csrfPath, nil), nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		c.setDefaultHeaders(req)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("fetch csrf cookie: %w", err)
		}
		defer resp.Body.Close()
		io.Copy(io.Discard, resp.Body)

		if resp.StatusCode >= 300 {
			return nil, fmt.Errorf("fetch csrf cookie: unexpected status %d", resp.StatusCode)
		}
		return nil, nil
	})

	select {
	case <-ctx.Done():
		return fmt.Errorf("fetch csrf cookie: %w", ctx.Err())
	case res := <-ch:
		if res.Shared {
			c.logger.Debug("csrf refresh coalesced")
		}
		return res.Err
	}
}

// do performs a request, attaching the CSRF token and retrying once after a
// 419. The decoded JSON response is written to out when out is non-nil.
func (c *Client) do(ctx context.Context, r request, out any) error {
	if isMutating(r.method) && c.csrfToken() == "" {
		if err := c.RefreshCSRF(ctx); err != nil {
			return err
		}
	}

	resp, body, err := c.send(ctx, r)
	if err != nil {
		return err
	}

	if resp.StatusCode == StatusSessionExpired {
		c.logger.Info("session expired, refreshing csrf token", "path", r.path)
		if err := c.RefreshCSRF(ctx); err != nil {
			return err
		}
		resp, body, err = c.send(ctx, r)
		if err != nil {
			return err
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newError(resp.StatusCode, body)
	}

	if out != nil && len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}

func (c *Client) send(ctx context.Context, r request) (*http.Response, []byte, error) {
	var payload io.Reader
	contentType := ""

	switch {
	case r.form != nil:
		payload = bytes.NewReader(r.form.data)
		contentType = r.form.contentType
	case r.body != nil:
		data, err := json.Marshal(r.body)
		if err != nil {
			return nil, nil, fmt.Errorf("marshal request: %w", err)
		}
		payload = bytes.NewReader(data)
		contentType = "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, r.method, c.resolve(r.path, r.query), payload)
	if err != nil {
		return nil, nil, fmt.Errorf("create request: %w", err)
	}
	c.setDefaultHeaders(req)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token := c.csrfToken(); token != "" {
		req.Header.Set(csrfHeaderName, token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("read response: %w", err)
	}
	return resp, body, nil
}

func (c *Client) setDefaultHeaders(req *http.Request) {
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	req.Header.Set("Accept", "application/json")
}

func (c *Client) resolve(path string, query url.Values) string {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

func isMutating(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return false
	default:
		return true
	}
}
