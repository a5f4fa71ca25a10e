package manifest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// ManifestPath is the manifest route relative to the service endpoint.
const ManifestPath = "/api/agent/manifest"

const (
	defaultTimeout   = 10 * time.Second
	defaultUserAgent = "mojo-guardian-go/1.0"
	// maxBodySize caps the manifest body at 4 MiB.
	maxBodySize = 4 << 20
	tracerName  = "github.com/MoAbeds/agent-testx/internal/manifest"
)

var _ Source = (*Client)(nil)

// HTTPClient matches the subset of http.Client used by Client.
type HTTPClient interface {
	Do(*http.Request) (*http.Response, error)
}

// Client fetches the manifest from the agent service with a bearer token.
type Client struct {
	url       string
	apiKey    string
	http      HTTPClient
	timeout   time.Duration
	userAgent string
	tracer    trace.Tracer
	meter     metric.Meter
	latency   metric.Float64Histogram
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client. A nil client leaves the default in place.
func WithHTTPClient(c HTTPClient) Option {
	return func(cl *Client) {
		if c != nil {
			cl.http = c
		}
	}
}

// WithTimeout bounds each fetch. Values <= 0 keep the 10s default.
func WithTimeout(d time.Duration) Option {
	return func(cl *Client) {
		if d > 0 {
			cl.timeout = d
		}
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(cl *Client) {
		if ua = strings.TrimSpace(ua); ua != "" {
			cl.userAgent = ua
		}
	}
}

// WithTracerProvider sets the provider for the manifest.Fetch span.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(cl *Client) {
		if tp != nil {
			cl.tracer = tp.Tracer(tracerName)
		}
	}
}

// WithMeter injects a custom OpenTelemetry meter for fetch latency.
func WithMeter(m metric.Meter) Option {
	return func(cl *Client) {
		if m != nil {
			cl.meter = m
		}
	}
}

// NewClient builds a Client for endpoint, the base URL of the manifest service.
// An endpoint that already ends in ManifestPath is used as is.
func NewClient(endpoint, apiKey string, opts ...Option) (*Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	target, err := manifestURL(endpoint)
	if err != nil {
		return nil, err
	}
	c := &Client{
		url:       target,
		apiKey:    apiKey,
		http:      &http.Client{},
		timeout:   defaultTimeout,
		userAgent: defaultUserAgent,
		tracer:    otel.Tracer(tracerName),
		meter:     otel.GetMeterProvider().Meter(tracerName),
	}
	for _, opt := range opts {
		opt(c)
	}
	latency, err := c.meter.Float64Histogram(
		"manifest.fetch.latency",
		metric.WithUnit("ms"),
		metric.WithDescription("Latency in milliseconds for manifest fetch attempts"),
	)
	if err == nil {
		c.latency = latency
	}
	return c, nil
}

// URL returns the resolved manifest URL.
func (c *Client) URL() string { return c.url }

// Load implements Source.
func (c *Client) Load(ctx context.Context) (*Manifest, error) {
	return c.Fetch(ctx)
}

// Fetch performs one authenticated GET against the manifest route. Only HTTP 200
// is accepted.
func (c *Client) Fetch(ctx context.Context) (*Manifest, error) {
	ctx, span := c.tracer.Start(ctx, "manifest.Fetch", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	start := time.Now()
	m, status, err := c.fetch(ctx)
	c.recordLatency(ctx, start, status, err)
	if status != 0 {
		span.SetAttributes(attribute.Int("http.response.status_code", status))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("manifest.rules", m.Rules.Len()))
	span.SetStatus(codes.Ok, "")
	return m, nil
}

func (c *Client) recordLatency(ctx context.Context, start time.Time, status int, err error) {
	if c.latency == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	c.latency.Record(ctx, float64(time.Since(start))/float64(time.Millisecond), metric.WithAttributes(
		attribute.String("outcome", outcome),
		attribute.Int("http.response.status_code", status),
	))
}

func (c *Client) fetch(ctx context.Context) (*Manifest, int, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode, fmt.Errorf("%w: %s: %s", ErrHTTPStatus, resp.Status, drainError(resp.Body))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize+1))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("%w: read body: %w", ErrFetchFailed, err)
	}
	if len(data) > maxBodySize {
		return nil, resp.StatusCode, fmt.Errorf("%w: body exceeds %d bytes", ErrDecode, maxBodySize)
	}
	m, err := Decode(bytes.NewReader(data))
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return m, resp.StatusCode, nil
}

func manifestURL(endpoint string) (string, error) {
	endpoint = strings.TrimSpace(endpoint)
	parsed, err := url.Parse(endpoint)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return "", fmt.Errorf("%w: %q", ErrInvalidEndpoint, endpoint)
	}
	if strings.HasSuffix(strings.TrimRight(parsed.Path, "/"), ManifestPath) {
		return endpoint, nil
	}
	return url.JoinPath(strings.TrimRight(endpoint, "/"), ManifestPath)
}

func drainError(r io.Reader) string {
	if r == nil {
		return ""
	}
	b, _ := io.ReadAll(io.LimitReader(r, 256))
	return strings.TrimSpace(string(b))
}
