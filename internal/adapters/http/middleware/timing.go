package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"workshopreg/internal/adapters/http/perf"
)

// DefaultSlowRequest is the threshold used when none is configured.
const DefaultSlowRequest = 200 * time.Millisecond

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

// inboundID accepts ids set by a fronting proxy; anything else is replaced.
var inboundID = regexp.MustCompile(`^[A-Za-z0-9._-]{8,64}$`)

type requestIDKey struct{}

// RequestIDFromContext returns the id Timing assigned, or "".
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// statusRecorder remembers the status code written downstream.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	if sr.status == 0 {
		sr.status = code
	}
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.status == 0 {
		sr.status = http.StatusOK
	}
	return sr.ResponseWriter.Write(b)
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (sr *statusRecorder) Unwrap() http.ResponseWriter {
	return sr.ResponseWriter
}

// Timing assigns a request id, logs each request's duration and feeds the
// collector behind /admin/perf. Static assets and health checks pass through untimed.
// POST: Requests at or above slow log at WARN, the rest at DEBUG
func Timing(collector *perf.Collector, slow time.Duration) func(http.Handler) http.Handler {
	if slow <= 0 {
		slow = DefaultSlowRequest
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path := r.URL.Path
			if strings.HasPrefix(path, "/static/") || path == "/healthz" {
				next.ServeHTTP(w, r)
				return
			}

			id := r.Header.Get(RequestIDHeader)
			if !inboundID.MatchString(id) {
				id = uuid.NewString()
			}
			w.Header().Set(RequestIDHeader, id)

			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w}
			defer func() {
				elapsed := time.Since(start)
				status := rec.status
				if status == 0 {
					status = http.StatusOK
				}

				level := slog.LevelDebug
				event := "request"
				if elapsed >= slow {
					level, event = slog.LevelWarn, "slow_request"
				}
				slog.Log(r.Context(), level, event,
					"request_id", id,
					"method", r.Method,
					"path", path,
					"status", status,
					"duration_ms", perf.Millis(elapsed),
				)

				if collector != nil {
					collector.Record(perf.Entry{
						Kind:       perf.KindRequest,
						Path:       r.Method + " " + path,
						StatusCode: status,
						DurationMs: perf.Millis(elapsed),
						Timestamp:  start,
					})
				}
			}()

			next.ServeHTTP(rec, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
		})
	}
}
