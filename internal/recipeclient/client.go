// Package recipeclient is the HTTP client for the recipe backend's REST API.
package recipeclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/starford/mise/internal/apperr"
)

const instrumentationScope = "github.com/starford/mise/internal/recipeclient"

// Doer sends HTTP requests. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client talks to the recipe collection rooted at a base endpoint such as
// http://127.0.0.1:8000/recipes.
type Client struct {
	base      string
	http      Doer
	token     string
	userAgent string
	logger    *slog.Logger

	tracer   trace.Tracer
	requests metric.Int64Counter
	latency  metric.Float64Histogram
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the transport used for requests.
func WithHTTPClient(d Doer) Option {
	return func(c *Client) { c.http = d }
}

// WithToken sends "Authorization: Bearer <token>" on every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// WithLogger sets the logger for request diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithTracerProvider overrides the global tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Client) { c.tracer = tp.Tracer(instrumentationScope) }
}

// WithMeterProvider overrides the global meter provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(c *Client) { c.initMetrics(mp.Meter(instrumentationScope)) }
}

// New creates a client for the recipe collection at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("recipeclient: parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("recipeclient: base url must be http or https: %q", baseURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("recipeclient: base url has no host: %q", baseURL)
	}

	c := &Client{
		base:      strings.TrimRight(baseURL, "/"),
		http:      &http.Client{Timeout: 10 * time.Second},
		userAgent: "mise",
		logger:    slog.Default(),
		tracer:    otel.Tracer(instrumentationScope),
	}
	c.initMetrics(otel.Meter(instrumentationScope))
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the recipe collection endpoint.
func (c *Client) BaseURL() string { return c.base }

func (c *Client) initMetrics(m metric.Meter) {
	// Instrument creation only fails on invalid names; the noop fallbacks keep calls safe.
	c.requests, _ = m.Int64Counter("mise.client.requests",
		metric.WithDescription("Requests sent to the recipe backend"))
	c.latency, _ = m.Float64Histogram("mise.client.duration",
		metric.WithDescription("Recipe backend round-trip time"),
		metric.WithUnit("s"))
}

// endpoint joins path segments onto the base URL, escaping each one.
func (c *Client) endpoint(segments ...string) string {
	var b strings.Builder
	b.WriteString(c.base)
	for _, s := range segments {
		b.WriteByte('/')
		b.WriteString(url.PathEscape(s))
	}
	return b.String()
}

// do performs one round trip. Any 2xx is success; out, when non-nil, receives
// the decoded body. Everything else becomes an *apperr.RequestError.
func (c *Client) do(ctx context.Context, op, method, target string, body, out any) (err error) {
	ctx, span := c.tracer.Start(ctx, "recipeclient."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("url.full", target),
		))
	start := time.Now()
	status := 0
	defer func() {
		outcome := "success"
		if err != nil {
			outcome = "failure"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.SetAttributes(attribute.Int("http.response.status_code", status))
		span.End()

		attrs := metric.WithAttributes(
			attribute.String("operation", op),
			attribute.String("method", method),
			attribute.String("outcome", outcome),
		)
		c.requests.Add(ctx, 1, attrs)
		c.latency.Record(ctx, time.Since(start).Seconds(), attrs)
	}()

	fail := func(code int, cause error) error {
		return &apperr.RequestError{Op: op, Method: method, URL: target, StatusCode: code, Err: cause}
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("recipeclient: encode %s body: %w", op, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fail(0, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fail(0, err)
	}
	defer resp.Body.Close()
	status = resp.StatusCode

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		c.logger.Debug("recipe backend rejected request",
			slog.String("op", op),
			slog.String("method", method),
			slog.String("url", target),
			slog.Int("status", resp.StatusCode),
			slog.String("body", strings.TrimSpace(string(detail))))
		return fail(resp.StatusCode, nil)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fail(resp.StatusCode, fmt.Errorf("decode response: %w", err))
	}
	return nil
}
