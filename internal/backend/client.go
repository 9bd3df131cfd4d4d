// Package backend is the outbound side of the gateway: one OAI-PMH call per
// invocation against a tenant's repository module. The engine treats the
// response as opaque apart from status and the list-verb fields it inspects.
package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "oai-edge/internal/backend"

// Response carries what the engine needs from one backend exchange.
type Response struct {
	Status          int
	Body            []byte
	ContentType     string
	ContentEncoding string
}

// TimeoutError reports a backend call that ran out of time. Not retried here;
// transport-level retries belong to the HTTP client's own configuration.
type TimeoutError struct {
	Tenant string
	Verb   string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("backend call timed out: verb %s, tenant %s", e.Verb, e.Tenant)
}

// Client calls tenant repositories over HTTP. The tenant travels in a header;
// the base URL and path are shared across tenants.
type Client struct {
	http         *http.Client
	baseURL      string
	path         string
	tenantHeader string
	logger       *slog.Logger
	tracer       trace.Tracer
}

type Option func(c *Client)

// WithHTTPClient swaps the underlying HTTP client (timeouts, pooling, TLS are
// its business, not ours).
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

func WithPath(path string) Option {
	return func(c *Client) { c.path = path }
}

func WithTenantHeader(name string) Option {
	return func(c *Client) { c.tenantHeader = name }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// New constructs a backend client for the given base URL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		http:         &http.Client{Timeout: 30 * time.Second},
		baseURL:      strings.TrimRight(baseURL, "/"),
		path:         "/oai/records",
		tenantHeader: "X-Okapi-Tenant",
		logger:       slog.Default(),
		tracer:       otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Call issues one verb request against the tenant's repository. The verb is
// added to params here so callers never forget it. Any HTTP status comes back
// as a Response; only transport-level failures return an error.
func (c *Client) Call(ctx context.Context, tenant, verb string, params url.Values) (*Response, error) {
	ctx, span := c.tracer.Start(ctx, "backend.call", trace.WithAttributes(
		attribute.String("oai.tenant", tenant),
		attribute.String("oai.verb", verb),
	))
	defer span.End()

	q := url.Values{}
	for key, values := range params {
		q[key] = values
	}
	q.Set("verb", verb)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+c.path+"?"+q.Encode(), nil)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("build backend request: %w", err)
	}
	req.Header.Set(c.tenantHeader, tenant)
	req.Header.Set("Accept", "text/xml")
	// Identity encoding: the engine rewrites resumption tokens in the body,
	// which needs plaintext. Go's transport transparently un-gzips anyway.
	req.Header.Set("Accept-Encoding", "identity")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		if isTimeout(err) {
			return nil, &TimeoutError{Tenant: tenant, Verb: verb}
		}
		return nil, fmt.Errorf("backend call (verb %s, tenant %s): %w", verb, tenant, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		if isTimeout(err) {
			return nil, &TimeoutError{Tenant: tenant, Verb: verb}
		}
		return nil, fmt.Errorf("read backend response (verb %s, tenant %s): %w", verb, tenant, err)
	}

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	c.logger.DebugContext(ctx, "backend call completed",
		"tenant", tenant,
		"verb", verb,
		"status", resp.StatusCode,
		"bytes", len(body),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return &Response{
		Status:          resp.StatusCode,
		Body:            body,
		ContentType:     resp.Header.Get("Content-Type"),
		ContentEncoding: resp.Header.Get("Content-Encoding"),
	}, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
