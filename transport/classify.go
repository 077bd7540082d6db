package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/egorkaBurkenya/rateshop/carriererr"
)

// IsRetryable reports whether a failed attempt is eligible for retry,
// ignoring the attempt budget. err is the transport error when no response
// was received; status is the response status otherwise.
//
// Connection failures, timeouts, 429 and 5xx are transient. Every other
// 4xx means the request itself was rejected and replaying it won't help.
func IsRetryable(status int, err error) bool {
	if err != nil {
		return !errors.Is(err, context.Canceled)
	}
	return status == http.StatusTooManyRequests || status >= 500
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// classifyNoResponse maps a failure where no response arrived.
// Such errors are not attributed to a carrier.
func classifyNoResponse(req *http.Request, err error) *carriererr.Error {
	msg := fmt.Sprintf("no response from %s %s", req.Method, redactURL(req))
	if isTimeout(err) {
		msg = fmt.Sprintf("request to %s %s timed out", req.Method, redactURL(req))
	}
	return carriererr.NewNetwork(msg, 0, err)
}

// classifyResponse maps a terminal error response.
func (c *Client) classifyResponse(req *http.Request, status int, header http.Header, body []byte) *carriererr.Error {
	var e *carriererr.Error
	switch {
	case status == http.StatusTooManyRequests:
		e = carriererr.NewRateLimit("rate limit exceeded", retryAfterSeconds(header.Get("Retry-After")), nil).
			WithBody(string(body))
	case status >= 500:
		e = carriererr.NewNetwork(
			fmt.Sprintf("server error on %s %s", req.Method, redactURL(req)), status, nil).
			WithBody(string(body))
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		e = carriererr.NewAuth(strings.ToLower(http.StatusText(status)), nil).
			WithStatus(status).
			WithBody(string(body))
	default:
		if code, msg, ok := c.cfg.businessParser(body); ok {
			e = carriererr.NewBusiness(code, msg, status).WithBody(string(body))
		} else {
			e = carriererr.NewResponse(
				fmt.Sprintf("unexpected %d response from %s %s", status, req.Method, redactURL(req)),
				string(body), nil).
				WithStatus(status)
		}
	}
	if c.cfg.carrier != "" {
		e = e.WithCarrier(c.cfg.carrier)
	}
	return e
}

type envelope struct {
	Response struct {
		Errors []struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"errors"`
	} `json:"response"`
}

// ParseEnvelopeErrors recognises the carrier error envelope
// {"response":{"errors":[{"code":"...","message":"..."}]}} and returns its
// first entry.
func ParseEnvelopeErrors(body []byte) (code, message string, ok bool) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return "", "", false
	}
	if len(env.Response.Errors) == 0 {
		return "", "", false
	}
	first := env.Response.Errors[0]
	if first.Code == "" && first.Message == "" {
		return "", "", false
	}
	return first.Code, first.Message, true
}

// parseRetryAfter parses the Retry-After header value.
// It supports both seconds (integer) and HTTP-date formats.
// Returns the duration to wait, or 0 if unparseable.
func parseRetryAfter(val string) time.Duration {
	if val == "" {
		return 0
	}
	val = strings.TrimSpace(val)

	if secs, err := strconv.ParseFloat(val, 64); err == nil && secs >= 0 {
		return time.Duration(math.Ceil(secs)) * time.Second
	}

	for _, layout := range []string{
		time.RFC1123,
		time.RFC850,
		"Mon Jan _2 15:04:05 2006",
	} {
		if t, err := time.Parse(layout, val); err == nil {
			d := time.Until(t)
			if d < 0 {
				return 0
			}
			return d
		}
	}
	return 0
}

func retryAfterSeconds(val string) int {
	d := parseRetryAfter(val)
	return int(math.Ceil(d.Seconds()))
}

// redactURL drops the query string, which may carry credentials.
func redactURL(req *http.Request) string {
	if req.URL == nil {
		return ""
	}
	u := *req.URL
	u.RawQuery = ""
	u.User = nil
	return u.String()
}
