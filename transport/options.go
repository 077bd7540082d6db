package transport

import (
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// Option configures a Client.
type Option func(*config)

type config struct {
	baseURL          string
	carrier          string
	rps              float64
	burst            int
	maxRetries       int
	initialBackoff   time.Duration
	jitter           float64
	adaptiveCooldown time.Duration
	maxResponseSize  int64
	timeout          time.Duration
	httpClient       *http.Client
	logger           *slog.Logger
	tracer           trace.Tracer

	onError       func(statusCode int, req *http.Request)
	onSuccess     func(req *http.Request, resp *http.Response)
	onRateLimited func(req *http.Request)
	onRetry       func(attempt int, delay time.Duration, err error)
	onAttempt     func(req *http.Request, statusCode int, elapsed time.Duration)

	requestHook  func(req *http.Request)
	responseHook func(resp *http.Response)

	retryPolicy    RetryPolicy
	businessParser BusinessErrorParser
}

// RetryPolicy decides whether a request should be retried.
// It receives the attempt number (0-based), the response (nil when no
// response was received), and the transport error. The attempt budget is
// checked before the policy is consulted.
type RetryPolicy func(attempt int, resp *http.Response, err error) bool

// BusinessErrorParser extracts a carrier error entry from a 4xx body.
// ok is false when the body is not a recognised business-error envelope.
type BusinessErrorParser func(body []byte) (code, message string, ok bool)

const (
	// DefaultMaxRetries is the number of retries after the first attempt.
	DefaultMaxRetries = 3

	// DefaultRetryDelay is the delay before the first retry; it doubles on
	// each following retry.
	DefaultRetryDelay = time.Second

	// MaxBackoff caps the delay before any single retry.
	MaxBackoff = 5 * time.Minute

	maxBackoffShift = 30

	// DefaultTimeout bounds a single attempt.
	DefaultTimeout = 30 * time.Second
)

func defaultConfig() *config {
	return &config{
		rps:              0, // no rate limiting by default
		burst:            1,
		maxRetries:       DefaultMaxRetries,
		initialBackoff:   DefaultRetryDelay,
		adaptiveCooldown: 5 * time.Minute,
		maxResponseSize:  10 * 1024 * 1024, // 10 MB
		timeout:          DefaultTimeout,
		businessParser:   ParseEnvelopeErrors,
	}
}

// WithBaseURL sets the prefix joined to relative URLs passed to Execute,
// ExecuteJSON and DoJSON.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithCarrier sets the carrier id attached to classified errors.
func WithCarrier(id string) Option {
	return func(c *config) { c.carrier = id }
}

// WithRateLimit sets the token bucket rate limit in requests per second and burst size.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *config) {
		c.rps = rps
		if burst > 0 {
			c.burst = burst
		}
	}
}

// WithRetry sets the maximum number of retries and the delay before the
// first retry. The delay doubles on each following retry.
func WithRetry(maxRetries int, initialBackoff time.Duration) Option {
	return func(c *config) {
		if maxRetries >= 0 {
			c.maxRetries = maxRetries
		}
		c.initialBackoff = initialBackoff
	}
}

// WithJitter spreads each backoff delay by ±fraction (0.25 means ±25%).
// Zero, the default, keeps delays exact.
func WithJitter(fraction float64) Option {
	return func(c *config) { c.jitter = fraction }
}

// WithAdaptive sets the cooldown duration for adaptive rate reduction.
// When a rate-limit response is received, the rate is halved and restored
// after this duration.
func WithAdaptive(cooldown time.Duration) Option {
	return func(c *config) { c.adaptiveCooldown = cooldown }
}

// WithTimeout bounds each individual attempt.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// WithMaxResponseSize sets the maximum response body size in bytes.
func WithMaxResponseSize(n int64) Option {
	return func(c *config) { c.maxResponseSize = n }
}

// WithHTTPClient sets a custom underlying *http.Client.
// The timeout option is ignored when a custom client is provided.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *config) { c.httpClient = hc }
}

// WithLogger sets the logger used for retry and failure reporting.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithTracer sets the tracer used to span each logical call.
func WithTracer(t trace.Tracer) Option {
	return func(c *config) { c.tracer = t }
}

// WithBusinessErrorParser replaces the default business-error envelope parser.
func WithBusinessErrorParser(p BusinessErrorParser) Option {
	return func(c *config) { c.businessParser = p }
}

// WithOnError sets a callback invoked on every error response (status >= 400).
func WithOnError(fn func(statusCode int, req *http.Request)) Option {
	return func(c *config) { c.onError = fn }
}

// WithOnSuccess sets a callback invoked on successful responses.
func WithOnSuccess(fn func(req *http.Request, resp *http.Response)) Option {
	return func(c *config) { c.onSuccess = fn }
}

// WithOnRateLimited sets a callback invoked when a rate-limit response is received.
func WithOnRateLimited(fn func(req *http.Request)) Option {
	return func(c *config) { c.onRateLimited = fn }
}

// WithOnRetry sets a callback invoked before each retry with the attempt
// about to run, the backoff delay and the failure that caused it.
func WithOnRetry(fn func(attempt int, delay time.Duration, err error)) Option {
	return func(c *config) { c.onRetry = fn }
}

// WithOnAttempt sets a callback invoked after every attempt. statusCode is 0
// when no response was received.
func WithOnAttempt(fn func(req *http.Request, statusCode int, elapsed time.Duration)) Option {
	return func(c *config) { c.onAttempt = fn }
}

// WithRequestHook sets a hook called before each request is sent.
func WithRequestHook(fn func(req *http.Request)) Option {
	return func(c *config) { c.requestHook = fn }
}

// WithResponseHook sets a hook called after each response is received.
func WithResponseHook(fn func(resp *http.Response)) Option {
	return func(c *config) { c.responseHook = fn }
}

// WithRetryPolicy sets a custom retry policy. When set, it takes precedence
// over the default eligibility rules.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(c *config) { c.retryPolicy = p }
}

func (c *config) finish() {
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.tracer == nil {
		c.tracer = otel.Tracer("github.com/egorkaBurkenya/rateshop/transport")
	}
	if c.businessParser == nil {
		c.businessParser = ParseEnvelopeErrors
	}
}
