// Package ups implements rate shopping against the UPS Rating API.
package ups

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/egorkaBurkenya/rateshop/carriererr"
	"github.com/egorkaBurkenya/rateshop/rating"
	"github.com/egorkaBurkenya/rateshop/transport"
)

// DefaultAPIVersion is the Rating API version used when Config leaves it empty.
const DefaultAPIVersion = "v2409"

// DefaultTransactionSource is sent in the transactionSrc header.
const DefaultTransactionSource = "rateshop"

// Config describes the UPS account and endpoint.
type Config struct {
	BaseURL           string
	APIVersion        string
	AccountNumber     string
	ShipperName       string
	ShipperAddress    rating.Address
	TransactionSource string
}

// Validate reports every missing field as a single KindConfig error.
func (c Config) Validate() error {
	var missing []string
	if c.BaseURL == "" {
		missing = append(missing, "base url")
	}
	if c.AccountNumber == "" {
		missing = append(missing, "account number")
	}
	if len(missing) > 0 {
		return carriererr.NewConfig("ups: missing "+strings.Join(missing, ", "), nil).WithCarrier(CarrierID)
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return carriererr.NewConfig("ups: base url must be absolute: "+c.BaseURL, err).WithCarrier(CarrierID)
	}
	return nil
}

// TokenSource supplies bearer tokens. *auth.Manager satisfies it.
type TokenSource interface {
	GetToken(ctx context.Context) (string, error)
	RefreshToken(ctx context.Context) (string, error)
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithTransactionID replaces the transId generator.
func WithTransactionID(fn func() string) Option {
	return func(c *Client) {
		if fn != nil {
			c.newID = fn
		}
	}
}

// Client requests rates from UPS.
type Client struct {
	cfg       Config
	tokens    TokenSource
	transport *transport.Client
	logger    *slog.Logger
	newID     func() string
}

// NewClient returns a Client that authenticates through tokens and sends
// requests over t.
func NewClient(cfg Config, tokens TokenSource, t *transport.Client, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if tokens == nil || t == nil {
		return nil, carriererr.NewConfig("ups: token source and transport are required", nil).WithCarrier(CarrierID)
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = DefaultAPIVersion
	}
	if cfg.TransactionSource == "" {
		cfg.TransactionSource = DefaultTransactionSource
	}
	c := &Client{
		cfg:       cfg,
		tokens:    tokens,
		transport: t,
		logger:    slog.Default(),
		newID:     uuid.NewString,
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Carrier returns CarrierID.
func (c *Client) Carrier() string { return CarrierID }

// GetRates validates req, sends it to the Rating API and returns the quotes
// sorted by best price.
//
// A 401 from the Rating API triggers one token refresh and one resend. If
// either fails, the original 401 error is returned.
func (c *Client) GetRates(ctx context.Context, req rating.RateRequest) ([]rating.Quote, error) {
	if err := req.Validate(); err != nil {
		if ce, ok := carriererr.As(err); ok {
			return nil, ce.WithCarrier(CarrierID)
		}
		return nil, err
	}

	body, err := BuildRateRequest(req, Shipper{
		Name:          c.cfg.ShipperName,
		AccountNumber: c.cfg.AccountNumber,
		Address:       c.cfg.ShipperAddress,
	})
	if err != nil {
		return nil, err
	}
	endpoint := c.endpoint(RequestOption(req))

	token, err := c.tokens.GetToken(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := c.post(ctx, endpoint, body, token)
	if err != nil && isUnauthorized(err) {
		resp, err = c.retryUnauthorized(ctx, endpoint, body, err)
	}
	if err != nil {
		return nil, err
	}

	quotes, err := ParseRateResponse(resp)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("rates received", "carrier", CarrierID, "quotes", len(quotes))
	return quotes, nil
}

func (c *Client) retryUnauthorized(ctx context.Context, endpoint string, body []byte, orig error) ([]byte, error) {
	c.logger.Warn("rate request unauthorized, refreshing token", "carrier", CarrierID)

	token, err := c.tokens.RefreshToken(ctx)
	if err != nil {
		c.logger.Warn("token refresh failed", "carrier", CarrierID, "error", err)
		return nil, orig
	}
	resp, err := c.post(ctx, endpoint, body, token)
	if err != nil {
		c.logger.Warn("rate request failed after token refresh", "carrier", CarrierID, "error", err)
		return nil, orig
	}
	return resp, nil
}

func (c *Client) post(ctx context.Context, endpoint string, body []byte, token string) ([]byte, error) {
	headers := map[string]string{
		"Authorization":  "Bearer " + token,
		"Content-Type":   "application/json",
		"Accept":         "application/json",
		"transId":        c.newID(),
		"transactionSrc": c.cfg.TransactionSource,
	}
	return c.transport.Execute(ctx, http.MethodPost, endpoint, body, headers)
}

func (c *Client) endpoint(option string) string {
	return strings.TrimRight(c.cfg.BaseURL, "/") + "/api/rating/" + c.cfg.APIVersion + "/" + option
}

func isUnauthorized(err error) bool {
	return carriererr.IsKind(err, carriererr.KindAuth) && carriererr.StatusCode(err) == http.StatusUnauthorized
}
