// Package httpapi exposes the feeds, credential issuance and the legacy
// lookups over HTTP.
package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"vapi/internal/access"
	"vapi/internal/config"
	"vapi/internal/credential"
	"vapi/internal/metrics"
	"vapi/internal/respond"
)

// Route is one entry of the route table. A nil Guard leaves the route open.
type Route struct {
	Method  string
	Pattern string
	Guard   access.Guard
	Scope   string
	Perm    credential.Permission
	Handler http.HandlerFunc
}

// NewRouter mounts routes behind the shared middleware stack.
func NewRouter(routes []Route, cfg config.HTTPConfig, m *metrics.Metrics, logger zerolog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(accessLog(m, logger))
	r.Use(middleware.Recoverer)
	if len(cfg.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Authorization", "Content-Type"},
			MaxAge:         300,
		}))
	}
	if cfg.RequestTimeout > 0 {
		r.Use(middleware.Timeout(cfg.RequestTimeout))
	}

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		respond.Error(w, http.StatusNotFound, "resource not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		respond.Error(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	gates := make(map[access.Guard]*access.Gate)
	for _, rt := range routes {
		var h http.Handler = rt.Handler
		if rt.Guard != nil {
			gate, ok := gates[rt.Guard]
			if !ok {
				gate = access.NewGate(rt.Guard, m, logger)
				gates[rt.Guard] = gate
			}
			h = gate.Require(rt.Scope, rt.Perm)(h)
		}
		r.Method(rt.Method, rt.Pattern, h)
	}

	if cfg.Metrics && m != nil {
		r.Method(http.MethodGet, "/metrics", m.Handler())
	}
	return r
}

// accessLog logs every request and records its latency under the matched
// route pattern.
func accessLog(m *metrics.Metrics, logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			elapsed := time.Since(start)
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			m.ObserveHTTP(r.Method, route, strconv.Itoa(status), elapsed)

			evt := logger.Info()
			if status >= http.StatusInternalServerError {
				evt = logger.Error()
			}
			evt.Str("request_id", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("route", route).
				Int("status", status).
				Int("bytes", ww.BytesWritten()).
				Dur("elapsed", elapsed).
				Msg("http request")
		})
	}
}
