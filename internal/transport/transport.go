package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Request describes a single provider API call. Exactly one of JSON or Form
// may be set; both nil means an empty body.
type Request struct {
	Method string
	URL    string
	JSON   any
	Form   url.Values
	Header http.Header
}

// Response carries the provider's status code and raw body text.
type Response struct {
	Status int
	Body   string
}

// Success reports whether the response status is in the 2xx range.
func (r Response) Success() bool {
	return r.Status/100 == 2
}

// Client performs HTTP calls against provider APIs with tracing and logging.
type Client struct {
	http   *http.Client
	logger zerolog.Logger
}

// New builds a Client with an otel-instrumented transport and per-request timeout.
func New(timeout time.Duration, logger zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: logger,
	}
}

// Do executes the request and returns the status and body. A non-2xx status
// is not an error; callers decide based on Response.Success.
func (c *Client) Do(ctx context.Context, req Request) (Response, error) {
	var (
		body        io.Reader
		contentType string
	)
	switch {
	case req.JSON != nil:
		encoded, err := json.Marshal(req.JSON)
		if err != nil {
			return Response{}, fmt.Errorf("encode request body: %w", err)
		}
		body = bytes.NewReader(encoded)
		contentType = "application/json"
	case req.Form != nil:
		body = strings.NewReader(req.Form.Encode())
		contentType = "application/x-www-form-urlencoded"
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return Response{}, fmt.Errorf("build request: %w", err)
	}
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	for key, values := range req.Header {
		for _, value := range values {
			httpReq.Header.Add(key, value)
		}
	}

	start := time.Now()
	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return Response{}, fmt.Errorf("%s %s: %w", req.Method, req.URL, err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return Response{}, fmt.Errorf("read response body: %w", err)
	}

	resp := Response{Status: httpResp.StatusCode, Body: string(raw)}
	evt := c.logger.Debug()
	if !resp.Success() {
		evt = c.logger.Warn()
	}
	evt.Str("method", req.Method).
		Str("url", req.URL).
		Int("status", resp.Status).
		Int64("duration_ms", time.Since(start).Milliseconds()).
		Msg("provider_request")
	return resp, nil
}
