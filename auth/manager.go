package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/egorkaBurkenya/rateshop/carriererr"
)

// RefreshBuffer is subtracted from a token's expiry when deciding whether it
// is still usable, so a token is never sent that could expire in flight.
const RefreshBuffer = 5 * time.Minute

const flightKey = "token"

// Config holds the client-credentials parameters.
type Config struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
}

// Validate reports every missing field as a single KindConfig error.
func (c Config) Validate() error {
	var missing []string
	if c.ClientID == "" {
		missing = append(missing, "client id")
	}
	if c.ClientSecret == "" {
		missing = append(missing, "client secret")
	}
	if c.TokenURL == "" {
		missing = append(missing, "token url")
	}
	if len(missing) > 0 {
		return carriererr.NewConfig("auth: missing "+strings.Join(missing, ", "), nil)
	}
	u, err := url.Parse(c.TokenURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return carriererr.NewConfig("auth: token url must be absolute: "+c.TokenURL, err)
	}
	return nil
}

// Exchanger sends the token request. *transport.Client satisfies it.
type Exchanger interface {
	Execute(ctx context.Context, method, url string, body []byte, headers map[string]string) ([]byte, error)
}

// Recorder observes token exchanges. err is nil on success.
type Recorder interface {
	TokenExchange(carrier string, elapsed time.Duration, err error)
}

// credential is a bearer token and its expiry. It is never modified after
// construction; the manager swaps the pointer instead.
type credential struct {
	accessToken string
	tokenType   string
	expiresIn   int64
	expiresAt   int64 // unix seconds
}

// Manager hands out a valid bearer token, acquiring it through a
// client-credentials exchange when the cached one is missing or inside the
// refresh buffer. Concurrent callers share a single in-flight exchange and
// observe the same token or the same error.
//
// All methods are safe for concurrent use.
type Manager struct {
	cfg       Config
	exchanger Exchanger
	now       func() time.Time
	logger    *slog.Logger
	carrier   string
	recorder  Recorder

	mu     sync.RWMutex
	cred   *credential
	flight singleflight.Group

	exchanges atomic.Uint64
}

// NewManager returns a Manager that exchanges cfg's credentials over ex.
func NewManager(cfg Config, ex Exchanger, opts ...Option) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if ex == nil {
		return nil, carriererr.NewConfig("auth: exchanger is required", nil)
	}
	m := &Manager{
		cfg:       cfg,
		exchanger: ex,
		now:       time.Now,
		logger:    slog.Default(),
	}
	for _, o := range opts {
		o(m)
	}
	return m, nil
}

// GetToken returns a valid access token. A cached token is returned without
// any network call; otherwise the caller joins the in-flight exchange or
// starts one.
//
// The exchange is not tied to ctx: cancelling ctx only stops this caller
// from waiting.
func (m *Manager) GetToken(ctx context.Context) (string, error) {
	if tok, ok := m.validToken(); ok {
		return tok, nil
	}

	ch := m.flight.DoChan(flightKey, func() (any, error) {
		return m.acquire(context.WithoutCancel(ctx))
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", m.authErr("wait for token", 0, ctx.Err())
	}
}

// RefreshToken discards the cached token and acquires a new one through the
// same single-flight path as GetToken.
func (m *Manager) RefreshToken(ctx context.Context) (string, error) {
	m.ClearToken()
	return m.GetToken(ctx)
}

// HasValidToken reports whether a token is cached and not within
// RefreshBuffer of its expiry.
func (m *Manager) HasValidToken() bool {
	_, ok := m.validToken()
	return ok
}

// TimeUntilExpiry returns the raw remaining lifetime of the cached token in
// whole seconds, ignoring RefreshBuffer. It is zero when no token is cached
// or the token has expired.
func (m *Manager) TimeUntilExpiry() time.Duration {
	m.mu.RLock()
	cred := m.cred
	m.mu.RUnlock()
	if cred == nil {
		return 0
	}
	remaining := cred.expiresAt - m.now().Unix()
	if remaining < 0 {
		return 0
	}
	return time.Duration(remaining) * time.Second
}

// ClearToken discards the cached token. An exchange already in flight is
// not affected.
func (m *Manager) ClearToken() {
	m.mu.Lock()
	m.cred = nil
	m.mu.Unlock()
}

// Exchanges returns the number of token exchanges attempted.
func (m *Manager) Exchanges() uint64 {
	return m.exchanges.Load()
}

func (m *Manager) validToken() (string, bool) {
	m.mu.RLock()
	cred := m.cred
	m.mu.RUnlock()
	if cred == nil {
		return "", false
	}
	if m.now().Unix() >= cred.expiresAt-int64(RefreshBuffer/time.Second) {
		return "", false
	}
	return cred.accessToken, true
}

// acquire runs inside the single flight.
func (m *Manager) acquire(ctx context.Context) (string, error) {
	// A caller that missed the previous wave by a hair reuses its result.
	if tok, ok := m.validToken(); ok {
		return tok, nil
	}
	m.ClearToken()

	m.exchanges.Add(1)
	start := time.Now()
	cred, err := m.exchange(ctx)
	if m.recorder != nil {
		m.recorder.TokenExchange(m.carrier, time.Since(start), err)
	}
	if err != nil {
		m.ClearToken()
		m.logger.Warn("token exchange failed", "carrier", m.carrier, "error", err)
		return "", err
	}

	m.mu.Lock()
	m.cred = cred
	m.mu.Unlock()

	m.logger.Info("token acquired",
		"carrier", m.carrier,
		"token_type", cred.tokenType,
		"expires_in", cred.expiresIn,
	)
	return cred.accessToken, nil
}

type tokenResponse struct {
	AccessToken string  `json:"access_token"`
	TokenType   string  `json:"token_type"`
	ExpiresIn   seconds `json:"expires_in"`
}

// seconds accepts a JSON number or a numeric string; some issuers quote
// expires_in.
type seconds int64

func (s *seconds) UnmarshalJSON(b []byte) error {
	str := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if str == "" || str == "null" {
		*s = 0
		return nil
	}
	f, err := strconv.ParseFloat(str, 64)
	if err != nil {
		return err
	}
	*s = seconds(f)
	return nil
}

func (m *Manager) exchange(ctx context.Context) (*credential, error) {
	acquiredAt := m.now().Unix()

	basic := base64.StdEncoding.EncodeToString([]byte(m.cfg.ClientID + ":" + m.cfg.ClientSecret))
	headers := map[string]string{
		"Authorization": "Basic " + basic,
		"Content-Type":  "application/x-www-form-urlencoded",
		"Accept":        "application/json",
	}
	form := url.Values{"grant_type": {"client_credentials"}}.Encode()

	body, err := m.exchanger.Execute(ctx, http.MethodPost, m.cfg.TokenURL, []byte(form), headers)
	if err != nil {
		return nil, m.classify(err)
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, m.authErr("decode token response", 0, err)
	}
	if tr.AccessToken == "" {
		return nil, m.authErr("missing access_token", 0, nil)
	}

	expiresIn := int64(tr.ExpiresIn)
	if expiresIn < 0 {
		expiresIn = 0
	}
	return &credential{
		accessToken: tr.AccessToken,
		tokenType:   tr.TokenType,
		expiresIn:   expiresIn,
		expiresAt:   acquiredAt + expiresIn,
	}, nil
}

// classify turns a transport failure into a KindAuth error. A 429 stays
// KindAuth here: a throttled token endpoint still blocks authentication.
// The transport's classified record is not chained, only its cause.
func (m *Manager) classify(err error) error {
	status := carriererr.StatusCode(err)
	var msg string
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		msg = "token request rejected: invalid client credentials"
	case status == http.StatusTooManyRequests:
		msg = "token endpoint rate limited"
	case status == 0:
		msg = "token endpoint unreachable"
		if ce, ok := carriererr.As(err); ok && ce.Message != "" {
			msg += ": " + ce.Message
		}
	default:
		msg = "token request failed"
	}
	// Keep only the low-level cause so the result matches KindAuth alone.
	cause := err
	var body string
	if ce, ok := carriererr.As(err); ok {
		cause = ce.Unwrap()
		body = ce.Body
	}
	e := m.authErr(msg, status, cause)
	if body != "" {
		e = e.WithBody(body)
	}
	return e
}

func (m *Manager) authErr(msg string, status int, cause error) *carriererr.Error {
	e := carriererr.NewAuth(msg, cause).WithStatus(status)
	if m.carrier != "" {
		e = e.WithCarrier(m.carrier)
	}
	return e
}
