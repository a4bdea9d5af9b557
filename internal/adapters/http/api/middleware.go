package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/okian/humancheck/pkg/metrics"
)

// MetricsMiddleware wraps HTTP handlers to record Prometheus metrics.
func MetricsMiddleware(next http.HandlerFunc, endpoint string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		ms := float64(time.Since(start).Microseconds()) / 1000
		status := strconv.Itoa(rec.status)
		metrics.RecordHTTPRequest(endpoint, r.Method, status)
		metrics.RecordHTTPRequestDuration(endpoint, r.Method, status, ms)

		if rec.status >= http.StatusBadRequest {
			kind, severity := classifyStatus(rec.status)
			metrics.RecordErrorByEndpoint(endpoint, r.Method, kind)
			metrics.RecordErrorByType(kind, severity)
		}
	}
}

// classifyStatus maps an error status to the error type and severity labels.
func classifyStatus(status int) (kind, severity string) {
	switch status {
	case http.StatusServiceUnavailable:
		return "unavailable", "high"
	case http.StatusTooManyRequests:
		return "rate_limit", "medium"
	case http.StatusNotFound:
		return "not_found", "low"
	case http.StatusUnprocessableEntity:
		return "unprocessable", "low"
	}
	if status >= http.StatusInternalServerError {
		return "server_error", "high"
	}
	return "client_error", "medium"
}

// statusRecorder remembers the status code written by the wrapped handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}
