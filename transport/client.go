package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/egorkaBurkenya/rateshop/carriererr"
)

// Stats holds atomic request counters.
type Stats struct {
	TotalRequests uint64
	TotalAttempts uint64
	TotalErrors   uint64
	RateLimited   uint64
	Retries       uint64
}

// StatsProvider exposes metrics for external collectors.
type StatsProvider interface {
	Stats() Stats
}

// Client executes HTTP exchanges with retry, backoff, optional rate
// limiting, and classification of every terminal failure into a
// *carriererr.Error. It never caches responses.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	cfg        *config

	mu            sync.Mutex
	originalRate  rate.Limit
	adaptiveTimer *time.Timer
	closed        bool

	totalReqs     atomic.Uint64
	totalAttempts atomic.Uint64
	totalErrors   atomic.Uint64
	rateLimited   atomic.Uint64
	retries       atomic.Uint64
}

var _ StatsProvider = (*Client)(nil)

// New creates a new Client with the given options.
func New(opts ...Option) *Client {
	cfg := defaultConfig()
	for _, o := range opts {
		o(cfg)
	}
	cfg.finish()

	hc := cfg.httpClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.timeout}
	}

	var lim *rate.Limiter
	if cfg.rps > 0 {
		lim = rate.NewLimiter(rate.Limit(cfg.rps), cfg.burst)
	}

	return &Client{
		httpClient:   hc,
		limiter:      lim,
		cfg:          cfg,
		originalRate: rate.Limit(cfg.rps),
	}
}

// Close releases resources held by the client (adaptive timer, idle connections).
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	if c.adaptiveTimer != nil {
		c.adaptiveTimer.Stop()
		c.adaptiveTimer = nil
	}
	c.httpClient.CloseIdleConnections()
}

// Stats returns a snapshot of request statistics.
func (c *Client) Stats() Stats {
	return Stats{
		TotalRequests: c.totalReqs.Load(),
		TotalAttempts: c.totalAttempts.Load(),
		TotalErrors:   c.totalErrors.Load(),
		RateLimited:   c.rateLimited.Load(),
		Retries:       c.retries.Load(),
	}
}

// SetRateLimit dynamically adjusts the rate limit.
func (c *Client) SetRateLimit(rps float64, burst int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	newRate := rate.Limit(rps)
	if c.limiter == nil {
		c.limiter = rate.NewLimiter(newRate, burst)
	} else {
		c.limiter.SetLimit(newRate)
		c.limiter.SetBurst(burst)
	}
	c.originalRate = newRate
}

// Do executes req with retry and backoff and returns the response body of
// the first successful attempt. Any failure is a *carriererr.Error.
//
// The request body is read once and replayed on a clone for each attempt;
// req itself is never sent.
func (c *Client) Do(ctx context.Context, req *http.Request) ([]byte, error) {
	ctx, span := c.cfg.tracer.Start(ctx, "transport.Do",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", req.Method),
			attribute.String("url.full", redactURL(req)),
		))
	defer span.End()

	body, status, attempts, err := c.do(ctx, req)
	span.SetAttributes(attribute.Int("rateshop.attempts", attempts))
	if status != 0 {
		span.SetAttributes(attribute.Int("http.response.status_code", status))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return body, err
}

func (c *Client) do(ctx context.Context, req *http.Request) (_ []byte, status int, attempts int, _ error) {
	if err := c.waitRateLimit(ctx); err != nil {
		return nil, 0, 0, carriererr.NewNetwork("rate limit wait aborted", 0, err)
	}

	c.totalReqs.Add(1)

	var (
		bodyBytes []byte
		lastErr   error
	)

	if req.Body != nil && req.Body != http.NoBody {
		var err error
		bodyBytes, err = io.ReadAll(req.Body)
		req.Body.Close()
		if err != nil {
			return nil, 0, 0, carriererr.NewNetwork("read request body", 0, err)
		}
	}

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			backoff := c.backoffDuration(attempt)
			c.retries.Add(1)
			c.cfg.logger.Debug("retrying request",
				"method", req.Method,
				"url", redactURL(req),
				"attempt", attempt,
				"delay", backoff,
				"error", lastErr,
			)
			if c.cfg.onRetry != nil {
				c.cfg.onRetry(attempt, backoff, lastErr)
			}
			select {
			case <-ctx.Done():
				return nil, status, attempt, carriererr.NewNetwork("request cancelled during backoff", 0, ctx.Err())
			case <-time.After(backoff):
			}
			if err := c.waitRateLimit(ctx); err != nil {
				return nil, status, attempt, carriererr.NewNetwork("rate limit wait aborted", 0, err)
			}
		}

		clone := req.Clone(ctx)
		if bodyBytes != nil {
			clone.Body = io.NopCloser(bytes.NewReader(bodyBytes))
			clone.ContentLength = int64(len(bodyBytes))
		}

		if c.cfg.requestHook != nil {
			c.cfg.requestHook(clone)
		}

		c.totalAttempts.Add(1)
		start := time.Now()
		resp, err := c.httpClient.Do(clone)
		if err != nil {
			c.totalErrors.Add(1)
			c.observe(clone, 0, time.Since(start))
			status = 0
			if ctx.Err() != nil {
				return nil, 0, attempt + 1, carriererr.NewNetwork("request cancelled", 0, ctx.Err())
			}
			lastErr = classifyNoResponse(req, err)
			if c.shouldRetry(attempt, nil, err) {
				continue
			}
			c.logFailure(req, attempt+1, lastErr)
			return nil, 0, attempt + 1, lastErr
		}

		if c.cfg.responseHook != nil {
			c.cfg.responseHook(resp)
		}

		respBody, err := io.ReadAll(io.LimitReader(resp.Body, c.cfg.maxResponseSize))
		resp.Body.Close()
		status = resp.StatusCode
		c.observe(clone, status, time.Since(start))
		if err != nil {
			// A body cut short is treated like a missing response.
			c.totalErrors.Add(1)
			status = 0
			if ctx.Err() != nil {
				return nil, 0, attempt + 1, carriererr.NewNetwork("request cancelled", 0, ctx.Err())
			}
			lastErr = classifyNoResponse(req, err)
			if c.shouldRetry(attempt, nil, err) {
				continue
			}
			c.logFailure(req, attempt+1, lastErr)
			return nil, 0, attempt + 1, lastErr
		}

		if status < 400 {
			if c.cfg.onSuccess != nil {
				c.cfg.onSuccess(req, resp)
			}
			return respBody, status, attempt + 1, nil
		}

		c.totalErrors.Add(1)
		if status == http.StatusTooManyRequests {
			c.rateLimited.Add(1)
			if c.cfg.onRateLimited != nil {
				c.cfg.onRateLimited(req)
			}
			c.reduceRateLimit()
		}
		if c.cfg.onError != nil {
			c.cfg.onError(status, req)
		}

		lastErr = c.classifyResponse(req, status, resp.Header, respBody)
		if c.shouldRetry(attempt, resp, nil) {
			continue
		}
		c.logFailure(req, attempt+1, lastErr)
		return nil, status, attempt + 1, lastErr
	}
}

// Execute sends body (may be nil) to url with the given headers. A relative
// url is joined to the base URL. The caller's slices and maps are not
// modified.
func (c *Client) Execute(ctx context.Context, method, url string, body []byte, headers map[string]string) ([]byte, error) {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.resolve(url), r)
	if err != nil {
		return nil, carriererr.NewConfig("build request", err)
	}
	applyHeaders(req, []map[string]string{headers})
	return c.Do(ctx, req)
}

// ExecuteJSON is Execute followed by decoding the response body into T.
// A body that does not decode is a KindResponse error.
func ExecuteJSON[T any](ctx context.Context, c *Client, method, url string, body []byte, headers map[string]string) (T, error) {
	var out T
	data, err := c.Execute(ctx, method, url, body, headers)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, c.decodeError(data, err)
	}
	return out, nil
}

// DoJSON marshals reqBody as JSON, sends a request, and unmarshals the response into respBody.
func (c *Client) DoJSON(ctx context.Context, method, url string, reqBody, respBody any, headers ...map[string]string) error {
	var body []byte
	if reqBody != nil {
		data, err := json.Marshal(reqBody)
		if err != nil {
			return carriererr.Wrap(carriererr.KindValidation, "encode request body", err)
		}
		body = data
	}

	h := map[string]string{"Accept": "application/json"}
	if reqBody != nil {
		h["Content-Type"] = "application/json"
	}
	for _, m := range headers {
		for k, v := range m {
			h[k] = v
		}
	}

	respData, err := c.Execute(ctx, method, url, body, h)
	if err != nil {
		return err
	}

	if respBody != nil && len(respData) > 0 {
		if err := json.Unmarshal(respData, respBody); err != nil {
			return c.decodeError(respData, err)
		}
	}
	return nil
}

// BackoffDuration returns the delay before the given retry attempt (1-based).
func (c *Client) BackoffDuration(attempt int) time.Duration {
	return c.backoffDuration(attempt)
}

// --- internal helpers ---

func (c *Client) decodeError(body []byte, err error) error {
	e := carriererr.NewResponse("decode response body", string(body), err)
	if c.cfg.carrier != "" {
		e = e.WithCarrier(c.cfg.carrier)
	}
	return e
}

func (c *Client) resolve(url string) string {
	if strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://") {
		return url
	}
	return strings.TrimRight(c.cfg.baseURL, "/") + "/" + strings.TrimLeft(url, "/")
}

func (c *Client) observe(req *http.Request, status int, elapsed time.Duration) {
	if c.cfg.onAttempt != nil {
		c.cfg.onAttempt(req, status, elapsed)
	}
}

func (c *Client) logFailure(req *http.Request, attempts int, err error) {
	c.cfg.logger.Warn("request failed",
		"method", req.Method,
		"url", redactURL(req),
		"attempts", attempts,
		"kind", carriererr.KindOf(err),
		"error", err,
	)
}

func (c *Client) waitRateLimit(ctx context.Context) error {
	c.mu.Lock()
	lim := c.limiter
	c.mu.Unlock()
	if lim == nil {
		return nil
	}
	return lim.Wait(ctx)
}

func (c *Client) shouldRetry(attempt int, resp *http.Response, err error) bool {
	if attempt >= c.cfg.maxRetries {
		return false
	}
	if c.cfg.retryPolicy != nil {
		return c.cfg.retryPolicy(attempt, resp, err)
	}
	status := 0
	if resp != nil {
		status = resp.StatusCode
	}
	return IsRetryable(status, err)
}

func (c *Client) backoffDuration(attempt int) time.Duration {
	if attempt < 1 {
		return 0
	}
	shift := min(attempt-1, maxBackoffShift)
	base := MaxBackoff
	if c.cfg.initialBackoff <= MaxBackoff>>shift {
		base = c.cfg.initialBackoff << shift
	}
	if c.cfg.jitter <= 0 {
		return base
	}

	jitter := float64(base) * c.cfg.jitter * (rand.Float64()*2 - 1) //nolint:gosec
	d := time.Duration(float64(base) + jitter)
	if d < 0 {
		d = c.cfg.initialBackoff
	}
	return d
}

func (c *Client) reduceRateLimit() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.limiter == nil || c.closed {
		return
	}

	reduced := c.originalRate / 2
	if reduced < 0.01 {
		reduced = 0.01
	}
	c.limiter.SetLimit(reduced)

	if c.adaptiveTimer != nil {
		c.adaptiveTimer.Stop()
	}
	c.adaptiveTimer = time.AfterFunc(c.cfg.adaptiveCooldown, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if !c.closed && c.limiter != nil {
			c.limiter.SetLimit(c.originalRate)
		}
	})
}

func applyHeaders(req *http.Request, headers []map[string]string) {
	for _, h := range headers {
		for k, v := range h {
			req.Header.Set(k, v)
		}
	}
}

// String implements fmt.Stringer for debugging.
func (s Stats) String() string {
	return fmt.Sprintf("requests=%d attempts=%d errors=%d rate_limited=%d retries=%d",
		s.TotalRequests, s.TotalAttempts, s.TotalErrors, s.RateLimited, s.Retries)
}
