// Package upstream holds the clients for the navigator (chat and search) and
// ingestion APIs the server proxies to.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/mental-health-navigator/high-tea/internals/common"
)

const (
	instrumentationName = "github.com/mental-health-navigator/high-tea/internals/upstream"
	maxBodyBytes        = 4 << 20
)

// Error is a non-2xx upstream answer. Body is kept verbatim for forwarding.
type Error struct {
	API    string
	Status int
	Body   []byte
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s API error (%d): %s", e.API, e.Status, strings.TrimSpace(string(e.Body)))
}

func (e *Error) Unwrap() error { return common.ErrUpstream }

// Detail extracts a human readable message from the body, preferring the
// FastAPI style "detail" field.
func (e *Error) Detail() string {
	var body struct {
		Detail any `json:"detail"`
	}
	if json.Unmarshal(e.Body, &body) == nil {
		if s, ok := body.Detail.(string); ok && s != "" {
			return s
		}
	}
	return fmt.Sprintf("API error: %d", e.Status)
}

// base is the shared plumbing of the API clients.
type base struct {
	api     string
	baseURL string
	http    *http.Client

	tracer   trace.Tracer
	duration metric.Float64Histogram
}

func newBase(api, baseURL string, httpClient *http.Client) base {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	meter := otel.Meter(instrumentationName)
	duration, _ := meter.Float64Histogram("upstream.request.duration",
		metric.WithUnit("s"),
		metric.WithDescription("Duration of upstream API calls"),
	)
	return base{
		api:      api,
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     httpClient,
		tracer:   otel.Tracer(instrumentationName),
		duration: duration,
	}
}

// response is a raw upstream answer.
type response struct {
	Status int
	Body   []byte
}

// do sends a request and returns the raw answer, whatever its status.
func (b *base) do(ctx context.Context, method, path string, query map[string]string, header http.Header, payload any) (*response, error) {
	if b.baseURL == "" {
		return nil, fmt.Errorf("%s API: %w", b.api, common.ErrNotConfigured)
	}

	ctx, span := b.tracer.Start(ctx, b.api+" "+method+" "+path, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	start := time.Now()

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("%s API: encode request: %w", b.api, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("%s API: build request: %w", b.api, err)
	}
	if len(query) > 0 {
		q := req.URL.Query()
		for k, v := range query {
			q.Set(k, v)
		}
		req.URL.RawQuery = q.Encode()
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := b.http.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport")
		b.record(ctx, start, path, 0)
		return nil, fmt.Errorf("%s API: %w: %v", b.api, common.ErrUpstream, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	b.record(ctx, start, path, resp.StatusCode)
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%s API: read response: %w", b.api, err)
	}
	if resp.StatusCode >= 500 {
		span.SetStatus(codes.Error, http.StatusText(resp.StatusCode))
	}
	return &response{Status: resp.StatusCode, Body: raw}, nil
}

// doJSON sends payload and decodes a 2xx answer into out. Other statuses
// become *Error.
func (b *base) doJSON(ctx context.Context, method, path string, query map[string]string, payload, out any) error {
	resp, err := b.do(ctx, method, path, query, nil, payload)
	if err != nil {
		return err
	}
	if resp.Status < 200 || resp.Status >= 300 {
		return &Error{API: b.api, Status: resp.Status, Body: resp.Body}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return fmt.Errorf("%s API: decode response: %w", b.api, err)
	}
	return nil
}

func (b *base) record(ctx context.Context, start time.Time, path string, status int) {
	if b.duration == nil {
		return
	}
	b.duration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(
		attribute.String("upstream.api", b.api),
		attribute.String("upstream.path", path),
		attribute.Int("http.response.status_code", status),
	))
}
