// Package fetch is the shared outbound HTTP client used by every lookup adapter.
// Each call gets its own deadline; failures are reported as ErrUpstream so that
// adapters can turn them into fallback payloads.
package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/pouriya/toolbelt/internal/metrics"
)

// ErrUpstream marks any failure talking to a third-party service.
var ErrUpstream = errors.New("upstream unavailable")

const (
	defaultTimeout   = 8 * time.Second
	defaultUserAgent = "toolbelt/0.1 (+https://github.com/pouriya/toolbelt)"
	maxBodyBytes     = 4 << 20
)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Method string
	URL    string
	Code   int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d", e.Method, e.URL, e.Code)
}

func (e *StatusError) Unwrap() error { return ErrUpstream }

// Client issues single-attempt requests with a bounded timeout.
type Client struct {
	http      *http.Client
	userAgent string
	timeout   time.Duration
	limiters  map[string]*rate.Limiter
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets the per-call deadline.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithUserAgent sets the User-Agent header sent on every request.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// WithHostLimit throttles requests to host to one per interval.
func WithHostLimit(host string, interval time.Duration, burst int) Option {
	return func(c *Client) {
		c.limiters[strings.ToLower(host)] = rate.NewLimiter(rate.Every(interval), burst)
	}
}

// New creates a Client.
func New(opts ...Option) *Client {
	c := &Client{
		http:      &http.Client{},
		userAgent: defaultUserAgent,
		timeout:   defaultTimeout,
		limiters:  make(map[string]*rate.Limiter),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Timeout returns the per-call deadline.
func (c *Client) Timeout() time.Duration { return c.timeout }

// GetJSON performs a GET and decodes the JSON body into out.
func (c *Client) GetJSON(ctx context.Context, rawURL string, query url.Values, header http.Header, out any) error {
	body, err := c.do(ctx, http.MethodGet, withQuery(rawURL, query), nil, header)
	if err != nil {
		return err
	}
	return decodeJSON(rawURL, body, out)
}

// GetText performs a GET and returns the body as a string.
func (c *Client) GetText(ctx context.Context, rawURL string, query url.Values, header http.Header) (string, error) {
	body, err := c.do(ctx, http.MethodGet, withQuery(rawURL, query), nil, header)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// PostForm posts an urlencoded form and decodes the JSON response into out.
func (c *Client) PostForm(ctx context.Context, rawURL string, form url.Values, header http.Header, out any) error {
	h := header.Clone()
	if h == nil {
		h = http.Header{}
	}
	h.Set("Content-Type", "application/x-www-form-urlencoded")
	body, err := c.do(ctx, http.MethodPost, rawURL, strings.NewReader(form.Encode()), h)
	if err != nil {
		return err
	}
	return decodeJSON(rawURL, body, out)
}

func (c *Client) do(ctx context.Context, method, rawURL string, body io.Reader, header http.Header) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrUpstream, err)
	}
	host := req.URL.Hostname()
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	if lim, ok := c.limiters[strings.ToLower(host)]; ok {
		if err := lim.Wait(ctx); err != nil {
			metrics.ObserveUpstream(host, metrics.OutcomeError)
			return nil, fmt.Errorf("%w: %s throttled: %v", ErrUpstream, host, err)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.ObserveUpstream(host, metrics.OutcomeError)
		return nil, fmt.Errorf("%w: %s %s: %v", ErrUpstream, method, host, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		metrics.ObserveUpstream(host, metrics.OutcomeError)
		return nil, &StatusError{Method: method, URL: req.URL.Redacted(), Code: resp.StatusCode}
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		metrics.ObserveUpstream(host, metrics.OutcomeError)
		return nil, fmt.Errorf("%w: read %s: %v", ErrUpstream, host, err)
	}
	metrics.ObserveUpstream(host, metrics.OutcomeOK)
	return data, nil
}

func decodeJSON(rawURL string, body []byte, out any) error {
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrUpstream, rawURL, err)
	}
	return nil
}

func withQuery(rawURL string, query url.Values) string {
	if len(query) == 0 {
		return rawURL
	}
	sep := "?"
	if strings.Contains(rawURL, "?") {
		sep = "&"
	}
	return rawURL + sep + query.Encode()
}
