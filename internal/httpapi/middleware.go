package httpapi

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"climate-server/internal/utils"
)

const requestIDHeader = "X-Request-Id"

type contextKey int

const (
	contextKeyRequestID contextKey = iota
	contextKeyRoute
)

// RequestID returns the id assigned to the request carrying ctx, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(contextKeyRequestID).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status  int
	written bool
}

func newStatusRecorder(w http.ResponseWriter) *statusRecorder {
	return &statusRecorder{ResponseWriter: w, status: http.StatusOK}
}

func (sr *statusRecorder) WriteHeader(code int) {
	if !sr.written {
		sr.status = code
		sr.written = true
	}
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	sr.written = true
	return sr.ResponseWriter.Write(b)
}

func (sr *statusRecorder) Unwrap() http.ResponseWriter {
	return sr.ResponseWriter
}

// withMiddleware builds the chain, outermost first: metrics, route
// recording, request id, panic recovery, rate limit, request logger.
func withMiddleware(mux *http.ServeMux, limiter *rate.Limiter) http.Handler {
	return metricsMiddleware(
		recordRoute(mux,
			requestIDMiddleware(
				panicRecoveryMiddleware(
					rateLimitMiddleware(limiter,
						requestLogger(mux),
					),
				),
			),
		),
	)
}

// recordRoute resolves the pattern mux would dispatch r to and stores it in
// the slot the metrics middleware placed in the context, before next runs.
// Rejected and panicking requests are therefore labelled too. Labelling by
// pattern keeps /api/v1.0/{start} to a single series.
func recordRoute(mux *http.ServeMux, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if slot, ok := r.Context().Value(contextKeyRoute).(*string); ok {
			_, *slot = mux.Handler(r)
		}
		next.ServeHTTP(w, r)
	})
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.New().String()
		}
		w.Header().Set(requestIDHeader, id)
		ctx := context.WithValue(r.Context(), contextKeyRequestID, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func panicRecoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sr := newStatusRecorder(w)
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			// Let the server abort the connection as it would without us.
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			panicRecoveries.Inc()
			attrs := []any{
				"error", fmt.Sprint(rec),
				"request_id", RequestID(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
			}
			if sr.written {
				// Status and part of the body are already on the wire.
				slog.Error("panic after response started", append(attrs, "status", sr.status)...)
				return
			}
			slog.Error("panic recovered", attrs...)
			utils.WriteError(sr, http.StatusInternalServerError, "internal server error")
		}()
		next.ServeHTTP(sr, r)
	})
}

// rateLimitMiddleware is a pass-through when limiter is nil.
func rateLimitMiddleware(limiter *rate.Limiter, next http.Handler) http.Handler {
	if limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			rateLimitRejects.Inc()
			w.Header().Set("Retry-After", "1")
			utils.WriteError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		w.Header().Set("X-RateLimit-Limit", strconv.FormatFloat(float64(limiter.Limit()), 'g', -1, 64))
		next.ServeHTTP(w, r)
	})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		sr := newStatusRecorder(w)
		next.ServeHTTP(sr, r)

		slog.Info("http request",
			"request_id", RequestID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"status", sr.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}
