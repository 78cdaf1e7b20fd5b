// Package accounts is the HTTP client of the accounts API.
package accounts

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/smallbiznis/webauth/pkg/circuitbreaker"
	"github.com/smallbiznis/webauth/pkg/metrics"
	"github.com/smallbiznis/webauth/pkg/telemetry"
)

const maxResponseBytes = 1 << 20

type Client struct {
	baseURL    string
	httpClient *http.Client
	breaker    *circuitbreaker.CircuitBreaker
	maxRetries uint64
	backoff    time.Duration
	userAgent  string
	metrics    *metrics.Metrics
	tracer     trace.Tracer
}

type Option func(*Client)

// WithHTTPClient replaces the client built from Config.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

func New(cfg Config, opts ...Option) (*Client, error) {
	base := strings.TrimRight(cfg.BaseURL, "/")
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid accounts base url %q", cfg.BaseURL)
	}

	c := &Client{
		baseURL:    base,
		maxRetries: cfg.MaxRetries,
		backoff:    cfg.RetryBackoff,
		userAgent:  cfg.UserAgent,
		tracer:     otel.Tracer(telemetry.InstrumentationName + "/accounts"),
	}
	if c.backoff <= 0 {
		c.backoff = 100 * time.Millisecond
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.httpClient == nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		if cfg.InsecureSkipVerify {
			transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
		}
		c.httpClient = &http.Client{Timeout: cfg.Timeout, Transport: transport}
	}

	c.breaker = circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
		Name:             "accounts",
		MaxRequests:      cfg.Breaker.MaxRequests,
		Interval:         cfg.Breaker.Interval,
		Timeout:          cfg.Breaker.Timeout,
		FailureThreshold: cfg.Breaker.FailureThreshold,
		OnStateChange: func(name string, _, to circuitbreaker.State) {
			if c.metrics != nil {
				c.metrics.BreakerState.WithLabelValues(name).Set(float64(to))
			}
		},
	})

	return c, nil
}

// BreakerState reports the state of the breaker guarding the accounts API.
func (c *Client) BreakerState() circuitbreaker.State {
	return c.breaker.State()
}

type response struct {
	status int
	header http.Header
	body   []byte
}

func (r *response) decode(dst interface{}) error {
	if err := json.Unmarshal(r.body, dst); err != nil {
		return fmt.Errorf("failed to decode accounts response: %w", err)
	}
	return nil
}

// do sends a request. Any status in [200, 500) is a response; everything
// else is an error counted by the breaker. GET requests are retried.
func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, payload interface{}) (resp *response, err error) {
	ctx, span := c.tracer.Start(ctx, "accounts."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("url.path", path),
		),
	)
	start := time.Now()
	defer func() {
		outcome := "success"
		switch {
		case errors.Is(err, circuitbreaker.ErrOpen):
			outcome = "rejected"
		case err != nil:
			outcome = "error"
		case resp.status >= http.StatusBadRequest:
			outcome = "client_error"
		}

		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetAttributes(attribute.Int("http.response.status_code", resp.status))
		}
		span.End()

		if c.metrics != nil {
			c.metrics.AccountsRequests.WithLabelValues(op, outcome).Inc()
			c.metrics.AccountsLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
		}
	}()

	var body []byte
	if payload != nil {
		if body, err = json.Marshal(payload); err != nil {
			return nil, fmt.Errorf("failed to encode accounts request: %w", err)
		}
	}

	attempt := func(ctx context.Context) error {
		return c.breaker.Execute(func() error {
			r, err := c.send(ctx, method, path, query, body)
			if err != nil {
				return err
			}
			resp = r
			return nil
		})
	}

	if method != http.MethodGet || c.maxRetries == 0 {
		err = attempt(ctx)
	} else {
		backoff := retry.WithMaxRetries(c.maxRetries, retry.NewExponential(c.backoff))
		err = retry.Do(ctx, backoff, func(ctx context.Context) error {
			err := attempt(ctx)
			if err == nil || errors.Is(err, circuitbreaker.ErrOpen) || ctx.Err() != nil {
				return err
			}
			return retry.RetryableError(err)
		})
	}

	if err != nil {
		if !errors.Is(err, ErrUnavailable) {
			err = fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
		return nil, err
	}
	return resp, nil
}

func (c *Client) send(ctx context.Context, method, path string, query url.Values, body []byte) (*response, error) {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer res.Body.Close()

	data, err := io.ReadAll(io.LimitReader(res.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %w", ErrUnavailable, err)
	}

	if res.StatusCode < http.StatusOK || res.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, &APIError{Status: res.StatusCode, Message: errorMessage(data)})
	}

	return &response{status: res.StatusCode, header: res.Header, body: data}, nil
}
