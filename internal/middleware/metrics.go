// Package middleware provides HTTP middleware for metrics collection.
package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/nadmax/nightlies/internal/metrics"
)

var recordHTTPRequest = metrics.RecordHTTPRequest

var knownEndpoints = map[string]struct{}{
	"/api/nightly-e2e/status":  {},
	"/api/nightly-e2e/summary": {},
	"/healthz":                 {},
	"/metrics":                 {},
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)
		endpoint := normalizeEndpoint(r.URL.Path)
		status := strconv.Itoa(wrapped.statusCode)

		recordHTTPRequest(r.Method, endpoint, status, duration)
	})
}

// normalizeEndpoint folds unrouted paths into one label value so scanners cannot grow the series count.
func normalizeEndpoint(path string) string {
	if _, ok := knownEndpoints[path]; ok {
		return path
	}
	return "other"
}
