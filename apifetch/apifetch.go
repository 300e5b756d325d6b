// Package apifetch is the REST source client: one authenticated or anonymous
// HTTP client per run, paced by a token bucket, with rate-limit detection
// and lazy pagination over JSON array endpoints.
package apifetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"

	"github.com/hazyhaar/profilex/credential"
	"github.com/hazyhaar/profilex/fault"
	"github.com/hazyhaar/profilex/resilience"
)

var tracer = otel.Tracer("github.com/hazyhaar/profilex/apifetch")

// Config configures a Client.
type Config struct {
	// BaseURL of the API. Default: https://api.github.com.
	BaseURL string
	// Token is an explicit bearer token; it takes priority over TokenEnv.
	Token credential.Secret
	// TokenEnv names the environment variable holding a token. Default: GITHUB_TOKEN.
	TokenEnv string
	// Anonymous disables token lookup entirely.
	Anonymous bool
	UserAgent string
	// Accept header. Default: application/vnd.github+json.
	Accept string
	// APIVersion sent as X-GitHub-Api-Version when non-empty. Default: 2022-11-28.
	APIVersion string
	// Timeout per HTTP request. Default: 30s.
	Timeout time.Duration
	// RequestsPerSecond paces outgoing requests. Default: 2, burst 2.
	RequestsPerSecond float64
	Burst             int
	// MaxPages bounds every paginated fetch. Default: 50.
	MaxPages int
	// ResultPath is a dot-notation path to the item array inside a page
	// body ("" = the body is the array).
	ResultPath string
	// MaxBytes caps a response body. Default: 10MB.
	MaxBytes int64

	Retry      resilience.Policy
	HTTPClient *http.Client
	Logger     *slog.Logger
	// Now is the clock used to resolve Retry-After. Default: time.Now.
	Now func() time.Time
}

func (c *Config) defaults() {
	if c.BaseURL == "" {
		c.BaseURL = "https://api.github.com"
	}
	if c.TokenEnv == "" {
		c.TokenEnv = "GITHUB_TOKEN"
	}
	if c.UserAgent == "" {
		c.UserAgent = "profilex/1.0"
	}
	if c.Accept == "" {
		c.Accept = "application/vnd.github+json"
	}
	if c.APIVersion == "" {
		c.APIVersion = "2022-11-28"
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.RequestsPerSecond <= 0 {
		c.RequestsPerSecond = 2
	}
	if c.Burst <= 0 {
		c.Burst = 2
	}
	if c.MaxPages <= 0 {
		c.MaxPages = 50
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = 10 * 1024 * 1024
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	c.Retry.Logger = c.Logger
}

// Client issues requests against one REST API.
type Client struct {
	cfg     Config
	http    *resty.Client
	limiter *rate.Limiter
	authed  bool
}

// New builds a Client. The token, when any, is attached as a bearer token.
func New(cfg Config) *Client {
	cfg.defaults()

	var rc *resty.Client
	if cfg.HTTPClient != nil {
		rc = resty.NewWithClient(cfg.HTTPClient)
	} else {
		rc = resty.New()
	}
	rc.SetBaseURL(strings.TrimRight(cfg.BaseURL, "/"))
	rc.SetTimeout(cfg.Timeout)
	rc.SetHeader("User-Agent", cfg.UserAgent)
	rc.SetHeader("Accept", cfg.Accept)
	if cfg.APIVersion != "" {
		rc.SetHeader("X-GitHub-Api-Version", cfg.APIVersion)
	}

	c := &Client{
		cfg:     cfg,
		http:    rc,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
	}
	if token := c.token(); token != "" {
		rc.SetAuthToken(token)
		c.authed = true
	}
	rc.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		return c.limiter.Wait(req.Context())
	})

	cfg.Logger.Debug("apifetch: client ready", "base_url", cfg.BaseURL, "authenticated", c.authed)
	return c
}

// token resolves the bearer token: explicit value first, then environment.
func (c *Client) token() string {
	if !c.cfg.Token.Empty() {
		return c.cfg.Token.Reveal()
	}
	if c.cfg.Anonymous {
		return ""
	}
	return strings.TrimSpace(os.Getenv(c.cfg.TokenEnv))
}

// Authenticated reports whether requests carry a token.
func (c *Client) Authenticated() bool { return c.authed }

// RateLimit is the quota state read from response headers.
type RateLimit struct {
	Known     bool
	Limit     int
	Remaining int
	Reset     time.Time
}

// Exhausted reports whether the next request would be limited.
func (r RateLimit) Exhausted() bool { return r.Known && r.Remaining <= 0 }

// Response is a successful API response.
type Response struct {
	Status    int
	Body      []byte
	Header    http.Header
	RateLimit RateLimit
}

// HasNext reports whether pagination may continue. A Link header without a
// rel="next" entry is an explicit "no next page"; no Link header is unknown
// and reported as true.
func (r *Response) HasNext() bool {
	link := r.Header.Get("Link")
	if link == "" {
		return true
	}
	for _, part := range strings.Split(link, ",") {
		if strings.Contains(part, `rel="next"`) {
			return true
		}
	}
	return false
}

// FetchResource issues one GET and classifies the outcome. Transient
// failures are retried under the configured policy; a rate limit is
// returned as *fault.RateLimitError with its reset time.
func (c *Client) FetchResource(ctx context.Context, path string, params url.Values) (*Response, error) {
	ctx, span := tracer.Start(ctx, "apifetch.FetchResource")
	defer span.End()
	span.SetAttributes(attribute.String("http.path", path))

	resp, err := resilience.Retry(ctx, c.cfg.Retry, "GET "+path, func(ctx context.Context) (*Response, error) {
		return c.do(ctx, path, params)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(fault.KindOf(err)))
		return nil, err
	}
	span.SetAttributes(attribute.Int("http.status_code", resp.Status))
	return resp, nil
}

func (c *Client) do(ctx context.Context, path string, params url.Values) (*Response, error) {
	req := c.http.R().SetContext(ctx)
	if len(params) > 0 {
		req.SetQueryParamsFromValues(params)
	}
	res, err := req.Get(path)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fault.Wrap(err, fault.ErrTimeout, "apifetch: GET "+path)
		}
		var nerr interface{ Timeout() bool }
		if errors.As(err, &nerr) && nerr.Timeout() {
			return nil, fault.Wrap(err, fault.ErrTimeout, "apifetch: GET "+path)
		}
		return nil, fault.Wrap(err, fault.ErrTransient, "apifetch: GET "+path)
	}

	rl := parseRateLimit(res.Header(), c.cfg.Now())
	status := res.StatusCode()
	c.cfg.Logger.Debug("apifetch: fetched", "path", path, "status", status, "remaining", rl.Remaining)

	if err := classify(status, res.Header(), rl, c.cfg.Now()); err != nil {
		return nil, fmt.Errorf("apifetch: GET %s: %w", path, err)
	}

	body := res.Body()
	if int64(len(body)) > c.cfg.MaxBytes {
		return nil, fault.Newf(fault.ErrInvalidResponse, "apifetch: GET %s: body exceeds %d bytes", path, c.cfg.MaxBytes)
	}
	if !json.Valid(body) {
		return nil, fault.Newf(fault.ErrInvalidResponse, "apifetch: GET %s: body is not JSON", path)
	}
	return &Response{Status: status, Body: body, Header: res.Header(), RateLimit: rl}, nil
}

// GetJSON fetches path and decodes a JSON object into v. A body that is
// not an object is InvalidResponse.
func (c *Client) GetJSON(ctx context.Context, path string, params url.Values, v any) (*Response, error) {
	resp, err := c.FetchResource(ctx, path, params)
	if err != nil {
		return nil, err
	}
	trimmed := strings.TrimSpace(string(resp.Body))
	if !strings.HasPrefix(trimmed, "{") {
		return resp, fault.Newf(fault.ErrInvalidResponse, "apifetch: GET %s: expected object", path)
	}
	if err := json.Unmarshal(resp.Body, v); err != nil {
		return resp, fault.Wrap(err, fault.ErrInvalidResponse, "apifetch: GET "+path+": decode")
	}
	return resp, nil
}

// classify maps a status code to the error taxonomy.
func classify(status int, h http.Header, rl RateLimit, now time.Time) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusTooManyRequests,
		status == http.StatusForbidden && (rl.Exhausted() || h.Get("Retry-After") != ""):
		reset := rl.Reset
		if ra := retryAfter(h, now); !ra.IsZero() {
			reset = ra
		}
		return fault.RateLimited(status, rl.Limit, rl.Remaining, reset)
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return fault.Newf(fault.ErrAuthentication, "http %d", status)
	case status == http.StatusNotFound, status == http.StatusGone:
		return fault.Newf(fault.ErrNotFound, "http %d", status)
	case status == http.StatusRequestTimeout, status >= 500:
		return fault.Newf(fault.ErrTransient, "http %d", status)
	}
	return fault.Newf(fault.ErrInvalidResponse, "http %d", status)
}

func parseRateLimit(h http.Header, now time.Time) RateLimit {
	var rl RateLimit
	if v := h.Get("X-RateLimit-Remaining"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			rl.Known = true
			rl.Remaining = n
		}
	}
	if v := h.Get("X-RateLimit-Limit"); v != "" {
		rl.Limit, _ = strconv.Atoi(v)
	}
	if v := h.Get("X-RateLimit-Reset"); v != "" {
		if sec, err := strconv.ParseInt(v, 10, 64); err == nil {
			rl.Reset = time.Unix(sec, 0).UTC()
		}
	}
	return rl
}

func retryAfter(h http.Header, now time.Time) time.Time {
	v := h.Get("Retry-After")
	if v == "" {
		return time.Time{}
	}
	if sec, err := strconv.Atoi(v); err == nil {
		return now.Add(time.Duration(sec) * time.Second).UTC().Truncate(time.Second)
	}
	if t, err := http.ParseTime(v); err == nil {
		return t.UTC()
	}
	return time.Time{}
}
