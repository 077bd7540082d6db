// Package metrics exposes Prometheus collectors for carrier traffic and
// token exchanges.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/egorkaBurkenya/rateshop/carriererr"
	"github.com/egorkaBurkenya/rateshop/transport"
)

var (
	// HTTPRequests counts HTTP attempts per carrier and status ("error" when
	// no response arrived)
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rateshop_http_requests_total",
			Help: "Total number of carrier HTTP attempts",
		},
		[]string{"carrier", "status"},
	)

	// HTTPRetries counts retries scheduled by the transport
	HTTPRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rateshop_http_retries_total",
			Help: "Total number of carrier HTTP retries",
		},
		[]string{"carrier"},
	)

	// HTTPDuration tracks per-attempt latency
	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rateshop_http_request_duration_seconds",
			Help:    "Carrier HTTP attempt latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"carrier"},
	)

	// TokenExchanges counts OAuth token exchanges by result
	TokenExchanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rateshop_token_exchanges_total",
			Help: "Total number of OAuth token exchanges",
		},
		[]string{"carrier", "result"},
	)
)

// TransportOptions returns the transport hooks that feed the HTTP
// collectors for carrier.
func TransportOptions(carrier string) []transport.Option {
	return []transport.Option{
		transport.WithOnAttempt(func(_ *http.Request, status int, elapsed time.Duration) {
			HTTPRequests.WithLabelValues(carrier, statusLabel(status)).Inc()
			HTTPDuration.WithLabelValues(carrier).Observe(elapsed.Seconds())
		}),
		transport.WithOnRetry(func(int, time.Duration, error) {
			HTTPRetries.WithLabelValues(carrier).Inc()
		}),
	}
}

// TokenRecorder reports token exchanges to TokenExchanges. It satisfies
// auth.Recorder.
type TokenRecorder struct{}

// TokenExchange records one exchange. Failures are labelled with their
// error kind.
func (TokenRecorder) TokenExchange(carrier string, _ time.Duration, err error) {
	TokenExchanges.WithLabelValues(carrier, resultLabel(err)).Inc()
}

func statusLabel(status int) string {
	if status == 0 {
		return "error"
	}
	return strconv.Itoa(status)
}

func resultLabel(err error) string {
	if err == nil {
		return "success"
	}
	if k := carriererr.KindOf(err); k != "" {
		return string(k)
	}
	return "error"
}
