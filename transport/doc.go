// Package transport provides the resilient HTTP layer under both the OAuth
// token exchange and the carrier business calls.
//
// It wraps the standard net/http client and adds:
//   - Bounded retry with exponential backoff (delay before retry n is
//     initialBackoff * 2^(n-1)), optional jitter
//   - Retry only for connection failures, timeouts, 429 and 5xx
//   - Classification of every terminal failure into a *carriererr.Error
//   - Retry-After header parsing (seconds and HTTP-date formats)
//   - Optional proactive rate limiting via a token bucket (golang.org/x/time/rate)
//     with adaptive halving on 429 responses
//   - Atomic stats, callbacks, request/response hooks and an OpenTelemetry span
//     per logical call
//
// Configuration uses the functional options pattern:
//
//	client := transport.New(
//	    transport.WithBaseURL("https://wwwcie.ups.com"),
//	    transport.WithCarrier("ups"),
//	    transport.WithRetry(3, time.Second),
//	    transport.WithTimeout(30*time.Second),
//	)
//	defer client.Close()
//
//	quote, err := transport.ExecuteJSON[rateResponse](ctx, client, http.MethodPost, "/api/rating/v2409/Shop", body, headers)
package transport
