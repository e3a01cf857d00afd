package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/teemow/gmailrelay/internal/instrumentation"
	"github.com/teemow/gmailrelay/internal/logging"
)

// cors sets the headers every API response carries and answers
// preflight requests. Any origin is allowed.
func cors(methods string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", "*")
			h.Set("Access-Control-Allow-Methods", methods)
			h.Set("Access-Control-Allow-Headers", "Content-Type")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// requestLogger wraps every request in a server span, logs it and records
// HTTP metrics by route pattern.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

		ctx, span := instrumentation.StartSpan(r.Context(), "HTTP "+r.Method, trace.SpanKindServer,
			semconv.HTTPRequestMethodKey.String(r.Method))
		r = r.WithContext(ctx)

		defer func() {
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			route := routePattern(r)
			duration := time.Since(start)

			span.SetName(r.Method + " " + route)
			span.SetAttributes(semconv.HTTPRoute(route), semconv.HTTPResponseStatusCode(status))
			if status >= http.StatusInternalServerError {
				instrumentation.SetSpanError(span, errors.New(http.StatusText(status)))
			}
			span.End()

			s.metrics.RecordHTTPRequest(r.Context(), r.Method, route, status, duration)
			s.logger.Info("http request",
				"method", r.Method,
				logging.Route(route),
				"status", status,
				"bytes", ww.BytesWritten(),
				"duration", duration,
				"request_id", chimw.GetReqID(r.Context()),
			)
		}()

		next.ServeHTTP(ww, r)
	})
}

// routePattern returns the matched chi pattern, or "unmatched" so that
// unknown paths do not create new metric series.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}
