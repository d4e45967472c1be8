package server

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"Tunehub/cache"
	"Tunehub/logger"

	"github.com/gorilla/mux"
)

// OriginAllower is the browser origin allow-list.
type OriginAllower interface {
	Allowed(origin string) bool
}

// Limiter counts requests per client.
type Limiter interface {
	Allow(ctx context.Context, key string) (cache.RateResult, error)
}

// corsMiddleware echoes allowed origins back with credentials enabled.
// Disallowed origins get no CORS headers, so the browser blocks them.
func corsMiddleware(origins OriginAllower) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && origins.Allowed(origin) {
				h := w.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Allow-Credentials", "true")
				h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
				h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
				h.Set("Access-Control-Max-Age", "86400") // 24 hours
				h.Add("Vary", "Origin")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// rateLimitMiddleware rejects clients over their window with 429. A limiter
// failure lets the request through.
func rateLimitMiddleware(limiter Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res, err := limiter.Allow(r.Context(), clientIP(r))
			if err != nil {
				logger.Warn("rate limiter unavailable", logger.ErrorField(err))
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("RateLimit-Remaining", strconv.FormatInt(res.Remaining, 10))
			if !res.Allowed {
				w.Header().Set("Retry-After", strconv.Itoa(int(res.ResetIn.Round(time.Second).Seconds())))
				writeError(w, http.StatusTooManyRequests, "Too many requests, please try again later.")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP prefers the first X-Forwarded-For hop.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if ip := strings.TrimSpace(strings.Split(fwd, ",")[0]); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// RequestObserver receives one call per finished API request.
type RequestObserver interface {
	ObserveRequest(method, route string, status int, elapsed time.Duration)
}

// loggingMiddleware 记录请求日志，并在 obs 非空时上报指标
func loggingMiddleware(obs RequestObserver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			elapsed := time.Since(start)

			route := routeTemplate(r)
			if obs != nil {
				obs.ObserveRequest(r.Method, route, rec.status, elapsed)
			}
			logger.Debug("http request",
				logger.String("method", r.Method),
				logger.String("route", route),
				logger.String("path", r.URL.Path),
				logger.Int("status", rec.status),
				logger.Duration("duration", elapsed))
		})
	}
}

// routeTemplate keeps metric labels bounded: "/api/songs/{id}/like", never
// the concrete id.
func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}
