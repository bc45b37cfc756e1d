package transport

import (
	"log/slog"
	"net/http"
	"time"
)

// LoggingRoundTripper logs outbound HTTP requests with structured logging.
// The Authorization header is never logged.
func LoggingRoundTripper(logger *slog.Logger, next http.RoundTripper) http.RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	return roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		start := time.Now()

		requestID := r.Header.Get("X-Request-Id")
		auth := "none"
		if r.Header.Get("Authorization") != "" {
			auth = "[REDACTED]"
		}

		logger.Debug("request started",
			slog.String("request_id", requestID),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("authorization", auth),
		)

		resp, err := next.RoundTrip(r)

		attrs := []slog.Attr{
			slog.String("request_id", requestID),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Duration("duration", time.Since(start)),
		}
		if err != nil {
			attrs = append(attrs, slog.String("error", err.Error()))
			logger.LogAttrs(r.Context(), slog.LevelWarn, "request failed", attrs...)
			return nil, err
		}

		if rid := resp.Header.Get("X-Request-Id"); rid != "" && rid != requestID {
			attrs = append(attrs, slog.String("server_request_id", rid))
		}
		attrs = append(attrs, slog.Int("status", resp.StatusCode))
		logger.LogAttrs(r.Context(), slog.LevelDebug, "request completed", attrs...)
		return resp, nil
	})
}

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}
