package middleware

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
)

// MetricsRecorder defines the interface for recording HTTP metrics.
type MetricsRecorder interface {
	RecordHTTPRequest(method, path, status string, duration time.Duration)
	IncActiveConnections()
	DecActiveConnections()
}

// contextMetricsRecorder is implemented by recorders that attach trace
// exemplars from the request context.
type contextMetricsRecorder interface {
	RecordHTTPRequestContext(ctx context.Context, method, path, status string, duration time.Duration)
}

// Metrics returns a middleware that records HTTP metrics.
func Metrics(recorder MetricsRecorder) func(http.Handler) http.Handler {
	ctxRecorder, _ := recorder.(contextMetricsRecorder)
	record := func(r *http.Request, status int, duration time.Duration) {
		path := metricsPath(r)
		if ctxRecorder != nil {
			ctxRecorder.RecordHTTPRequestContext(r.Context(), r.Method, path, strconv.Itoa(status), duration)
			return
		}
		recorder.RecordHTTPRequest(r.Method, path, strconv.Itoa(status), duration)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Skip metrics endpoint to avoid recursion
			if strings.HasPrefix(r.URL.Path, "/metrics") {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			recorder.IncActiveConnections()
			defer recorder.DecActiveConnections()

			wrapped := recorderFor(w)

			// Handle panics to ensure metrics are recorded
			defer func() {
				if err := recover(); err != nil {
					record(r, http.StatusInternalServerError, time.Since(start))
					panic(err) // Re-panic after recording
				}
			}()

			next.ServeHTTP(wrapped, r)
			record(r, wrapped.status, time.Since(start))
		})
	}
}

// unmatchedPath labels requests no route matched, so probing for random
// collection names cannot grow the series count.
const unmatchedPath = "unmatched"

// metricsPath is the matched chi route pattern, keeping collection and
// persona names out of label values.
func metricsPath(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if pattern := rc.RoutePattern(); pattern != "" && pattern != "/*" {
			return pattern
		}
	}
	return unmatchedPath
}
