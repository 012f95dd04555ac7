package httpclient

import (
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// sensitiveParams are query parameter names whose values are redacted before
// a URL is logged. The Astra Data API and IAM token endpoints carry
// credentials in query strings in some deployments.
var sensitiveParams = map[string]bool{
	"apikey":       true,
	"api_key":      true,
	"token":        true,
	"access_token": true,
}

// loggingTransport wraps an http.RoundTripper to add request logging with
// sanitized URLs, User-Agent injection, and duration tracking.
type loggingTransport struct {
	base      http.RoundTripper
	userAgent string
}

func newLoggingTransport(base http.RoundTripper, userAgent string) *loggingTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &loggingTransport{
		base:      base,
		userAgent: userAgent,
	}
}

// RoundTrip implements http.RoundTripper.
func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()

	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", t.userAgent)
	}

	resp, err := t.base.RoundTrip(req)
	duration := time.Since(start).Milliseconds()

	logURL := sanitizeURL(req.URL)

	if err != nil {
		slog.Warn("http request failed",
			"method", req.Method,
			"url", logURL,
			"duration_ms", duration,
			"error", err.Error(),
		)
	} else {
		level := slog.LevelDebug
		if resp.StatusCode >= 400 {
			level = slog.LevelWarn
		}
		slog.Log(req.Context(), level, "http request",
			"method", req.Method,
			"url", logURL,
			"status", resp.StatusCode,
			"duration_ms", duration,
		)
	}

	return resp, err
}

// sanitizeURL returns the URL as a string with sensitive query parameter
// values replaced by "REDACTED".
func sanitizeURL(u *url.URL) string {
	if u == nil {
		return ""
	}

	q := u.Query()
	changed := false
	for name := range q {
		if sensitiveParams[name] {
			q.Set(name, "REDACTED")
			changed = true
		}
	}

	if !changed {
		return u.String()
	}

	clean := *u
	clean.RawQuery = q.Encode()
	return clean.String()
}
