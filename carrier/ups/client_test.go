package ups

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/egorkaBurkenya/rateshop/carriererr"
	"github.com/egorkaBurkenya/rateshop/rating"
	"github.com/egorkaBurkenya/rateshop/transport"
)

type fakeTokens struct {
	gets       atomic.Int32
	refreshes  atomic.Int32
	getErr     error
	refreshErr error
}

func (f *fakeTokens) GetToken(context.Context) (string, error) {
	f.gets.Add(1)
	if f.getErr != nil {
		return "", f.getErr
	}
	return fmt.Sprintf("tok-%d", f.refreshes.Load()), nil
}

func (f *fakeTokens) RefreshToken(context.Context) (string, error) {
	n := f.refreshes.Add(1)
	if f.refreshErr != nil {
		return "", f.refreshErr
	}
	return fmt.Sprintf("tok-%d", n), nil
}

func newTestClient(t *testing.T, baseURL string, tokens TokenSource, retries int) *Client {
	t.Helper()
	tr := transport.New(
		transport.WithCarrier(CarrierID),
		transport.WithRetry(retries, time.Millisecond),
	)
	t.Cleanup(tr.Close)

	c, err := NewClient(Config{BaseURL: baseURL, AccountNumber: "A1B2C3"}, tokens, tr,
		WithTransactionID(func() string { return "trans-1" }))
	require.NoError(t, err)
	return c
}

func TestGetRatesShop(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/rating/v2409/Shop", r.URL.Path)
		assert.Equal(t, "Bearer tok-0", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "trans-1", r.Header.Get("transId"))
		assert.Equal(t, DefaultTransactionSource, r.Header.Get("transactionSrc"))
		w.Write([]byte(shopResponse))
	}))
	defer server.Close()

	tokens := &fakeTokens{}
	c := newTestClient(t, server.URL, tokens, 0)

	quotes, err := c.GetRates(context.Background(), sampleRequest())
	require.NoError(t, err)
	require.Len(t, quotes, 2)
	assert.Equal(t, "03", quotes[0].ServiceCode)
	assert.Equal(t, int32(1), requests.Load())
	assert.Equal(t, int32(0), tokens.refreshes.Load())
}

func TestGetRatesRateEndpoint(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/rating/v2409/Rate", r.URL.Path)
		w.Write([]byte(`{"RateResponse":{"RatedShipment":{"Service":{"Code":"02"},"TotalCharges":{"CurrencyCode":"USD","MonetaryValue":"30.10"}}}}`))
	}))
	defer server.Close()

	req := sampleRequest()
	req.ServiceCode = "02"
	quotes, err := newTestClient(t, server.URL, &fakeTokens{}, 0).GetRates(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, quotes, 1)
	assert.Equal(t, "UPS 2nd Day Air", quotes[0].ServiceName)
}

func TestGetRatesValidationBeforeNetwork(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
	}))
	defer server.Close()

	tokens := &fakeTokens{}
	c := newTestClient(t, server.URL, tokens, 0)

	_, err := c.GetRates(context.Background(), rating.RateRequest{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, carriererr.ErrValidation))
	ce, _ := carriererr.As(err)
	assert.Equal(t, CarrierID, ce.Carrier)
	assert.Contains(t, ce.ValidationErrors, "packages")

	assert.Equal(t, int32(0), requests.Load())
	assert.Equal(t, int32(0), tokens.gets.Load())
}

func TestGetRatesRefreshesOnUnauthorized(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		if r.Header.Get("Authorization") != "Bearer tok-1" {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"response":{"errors":[{"code":"250002","message":"Invalid Authentication Information."}]}}`))
			return
		}
		w.Write([]byte(shopResponse))
	}))
	defer server.Close()

	tokens := &fakeTokens{}
	c := newTestClient(t, server.URL, tokens, 3)

	quotes, err := c.GetRates(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.Len(t, quotes, 2)
	assert.Equal(t, int32(2), requests.Load(), "401 is not retried by the transport")
	assert.Equal(t, int32(1), tokens.refreshes.Load())
}

func TestGetRatesReturnsOriginalErrorWhenResendFails(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	tokens := &fakeTokens{}
	c := newTestClient(t, server.URL, tokens, 0)

	_, err := c.GetRates(context.Background(), sampleRequest())
	require.Error(t, err)
	ce, ok := carriererr.As(err)
	require.True(t, ok)
	assert.Equal(t, carriererr.KindAuth, ce.Kind())
	assert.Equal(t, http.StatusUnauthorized, ce.StatusCode)
	assert.Equal(t, CarrierID, ce.Carrier)
	assert.Equal(t, int32(2), requests.Load())
	assert.Equal(t, int32(1), tokens.refreshes.Load())
}

func TestGetRatesReturnsOriginalErrorWhenRefreshFails(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	tokens := &fakeTokens{refreshErr: carriererr.NewAuth("token endpoint unreachable", nil)}
	c := newTestClient(t, server.URL, tokens, 0)

	_, err := c.GetRates(context.Background(), sampleRequest())
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, carriererr.StatusCode(err))
	assert.NotContains(t, err.Error(), "unreachable")
	assert.Equal(t, int32(1), requests.Load())
}

func TestGetRatesRefreshesOnlyOnce(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	tokens := &fakeTokens{}
	_, err := newTestClient(t, server.URL, tokens, 3).GetRates(context.Background(), sampleRequest())
	require.Error(t, err)
	assert.True(t, errors.Is(err, carriererr.ErrAuth))
	assert.Equal(t, int32(2), requests.Load())
	assert.Equal(t, int32(1), tokens.refreshes.Load())
}

func TestGetRatesTokenFailure(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
	}))
	defer server.Close()

	authErr := carriererr.NewAuth("token request rejected: invalid client credentials", nil).WithStatus(401)
	_, err := newTestClient(t, server.URL, &fakeTokens{getErr: authErr}, 0).GetRates(context.Background(), sampleRequest())
	require.Error(t, err)
	assert.Same(t, authErr, err)
	assert.Equal(t, int32(0), requests.Load())
}

func TestGetRatesBusinessError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"response":{"errors":[{"code":"111210","message":"The requested service is unavailable between the selected locations."}]}}`))
	}))
	defer server.Close()

	tokens := &fakeTokens{}
	_, err := newTestClient(t, server.URL, tokens, 3).GetRates(context.Background(), sampleRequest())
	require.Error(t, err)
	ce, ok := carriererr.As(err)
	require.True(t, ok)
	assert.Equal(t, carriererr.KindBusiness, ce.Kind())
	assert.Equal(t, "111210", ce.BusinessCode)
	assert.Equal(t, http.StatusBadRequest, ce.StatusCode)
	assert.True(t, strings.HasPrefix(ce.Message, "The requested service"))
	assert.Equal(t, int32(0), tokens.refreshes.Load())
}

func TestGetRatesMalformedResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"RateResponse":{}}`))
	}))
	defer server.Close()

	_, err := newTestClient(t, server.URL, &fakeTokens{}, 0).GetRates(context.Background(), sampleRequest())
	assert.True(t, errors.Is(err, carriererr.ErrResponse))
}

func TestNewClientConfig(t *testing.T) {
	tr := transport.New()
	defer tr.Close()

	_, err := NewClient(Config{}, &fakeTokens{}, tr)
	require.Error(t, err)
	assert.True(t, errors.Is(err, carriererr.ErrConfig))
	assert.Contains(t, err.Error(), "base url")
	assert.Contains(t, err.Error(), "account number")

	_, err = NewClient(Config{BaseURL: "wwwcie.ups.com", AccountNumber: "X"}, &fakeTokens{}, tr)
	assert.True(t, errors.Is(err, carriererr.ErrConfig))

	_, err = NewClient(Config{BaseURL: "https://wwwcie.ups.com", AccountNumber: "X"}, nil, tr)
	assert.True(t, errors.Is(err, carriererr.ErrConfig))

	c, err := NewClient(Config{BaseURL: "https://wwwcie.ups.com/", AccountNumber: "X"}, &fakeTokens{}, tr)
	require.NoError(t, err)
	assert.Equal(t, "https://wwwcie.ups.com/api/rating/v2409/Shop", c.endpoint(OptionShop))
}
