package rateshop

import (
	"context"
	"log/slog"
	"slices"

	"go.opentelemetry.io/otel/trace"

	"github.com/egorkaBurkenya/rateshop/auth"
	"github.com/egorkaBurkenya/rateshop/carrier/ups"
	"github.com/egorkaBurkenya/rateshop/config"
	"github.com/egorkaBurkenya/rateshop/metrics"
	"github.com/egorkaBurkenya/rateshop/rating"
	"github.com/egorkaBurkenya/rateshop/transport"
)

// Option configures a Service.
type Option func(*options)

type options struct {
	logger  *slog.Logger
	tracer  trace.Tracer
	metrics bool
}

// WithLogger sets the logger passed to every component.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithTracer sets the tracer used by both transports.
func WithTracer(t trace.Tracer) Option {
	return func(o *options) { o.tracer = t }
}

// WithMetrics enables or disables the Prometheus hooks. Enabled by default.
func WithMetrics(enabled bool) Option {
	return func(o *options) { o.metrics = enabled }
}

// Service is a UPS rate shopping client assembled from a Config.
type Service struct {
	tokens       *auth.Manager
	carrier      *ups.Client
	authHTTP     *transport.Client
	businessHTTP *transport.Client
}

// New validates cfg and wires the token and rating transports, the token
// manager and the UPS client.
func New(cfg config.Config, opts ...Option) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := options{logger: slog.Default(), metrics: true}
	for _, opt := range opts {
		opt(&o)
	}

	common := []transport.Option{
		transport.WithCarrier(ups.CarrierID),
		transport.WithRetry(cfg.HTTP.MaxRetries, cfg.HTTP.RetryDelay),
		transport.WithLogger(o.logger),
	}
	if o.tracer != nil {
		common = append(common, transport.WithTracer(o.tracer))
	}
	if o.metrics {
		common = append(common, metrics.TransportOptions(ups.CarrierID)...)
	}

	authHTTP := transport.New(slices.Concat(common, []transport.Option{
		transport.WithTimeout(cfg.HTTP.AuthTimeout),
	})...)

	businessOpts := slices.Concat(common, []transport.Option{
		transport.WithBaseURL(cfg.UPS.BaseURL),
		transport.WithTimeout(cfg.HTTP.Timeout),
	})
	if cfg.HTTP.RateLimit > 0 {
		businessOpts = append(businessOpts, transport.WithRateLimit(cfg.HTTP.RateLimit, cfg.HTTP.RateBurst))
	}
	businessHTTP := transport.New(businessOpts...)

	authOpts := []auth.Option{auth.WithCarrier(ups.CarrierID), auth.WithLogger(o.logger)}
	if o.metrics {
		authOpts = append(authOpts, auth.WithRecorder(metrics.TokenRecorder{}))
	}
	tokens, err := auth.NewManager(auth.Config{
		ClientID:     cfg.UPS.ClientID,
		ClientSecret: cfg.UPS.ClientSecret,
		TokenURL:     cfg.UPS.ResolvedTokenURL(),
	}, authHTTP, authOpts...)
	if err != nil {
		authHTTP.Close()
		businessHTTP.Close()
		return nil, err
	}

	carrier, err := ups.NewClient(ups.Config{
		BaseURL:           cfg.UPS.BaseURL,
		APIVersion:        cfg.UPS.APIVersion,
		AccountNumber:     cfg.UPS.AccountNumber,
		ShipperName:       cfg.UPS.ShipperName,
		TransactionSource: cfg.UPS.TransactionSource,
	}, tokens, businessHTTP, ups.WithLogger(o.logger))
	if err != nil {
		authHTTP.Close()
		businessHTTP.Close()
		return nil, err
	}

	return &Service{
		tokens:       tokens,
		carrier:      carrier,
		authHTTP:     authHTTP,
		businessHTTP: businessHTTP,
	}, nil
}

// GetRates returns UPS quotes for req, cheapest first.
func (s *Service) GetRates(ctx context.Context, req rating.RateRequest) ([]rating.Quote, error) {
	return s.carrier.GetRates(ctx, req)
}

// Tokens returns the credential manager.
func (s *Service) Tokens() *auth.Manager { return s.tokens }

// Stats returns the token and rating transport counters.
func (s *Service) Stats() (token, rates transport.Stats) {
	return s.authHTTP.Stats(), s.businessHTTP.Stats()
}

// Close releases both transports.
func (s *Service) Close() {
	s.authHTTP.Close()
	s.businessHTTP.Close()
}
