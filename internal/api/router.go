package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/wonny/cbquant/internal/api/handlers"
	"github.com/wonny/cbquant/pkg/logger"
)

// RequestIDHeader carries the per-request id echoed back to clients
const RequestIDHeader = "X-Request-ID"

// RouterOptions holds middleware settings
type RouterOptions struct {
	Limiter        *RateLimiter  // nil이면 제한 없음
	RequestTimeout time.Duration // 0이면 제한 없음
}

// NewRouter creates and configures the HTTP router
// ⭐ SSOT: 라우팅 설정은 이 함수에서만
func NewRouter(bt *handlers.BacktestHandler, opts RouterOptions, log *logger.Logger) http.Handler {
	r := mux.NewRouter()
	r.NotFoundHandler = jsonStatus(http.StatusNotFound, "not found")
	r.MethodNotAllowedHandler = jsonStatus(http.StatusMethodNotAllowed, "method not allowed")

	r.HandleFunc("/health", healthCheckHandler).Methods(http.MethodGet)

	// /api 라우트는 루트 라우터에 직접 등록 (서브라우터는 405 대신 404를 반환)
	// /health는 레이트 리밋/타임아웃 대상 아님
	limited := apiChain(opts, log)
	r.Handle("/api/backtest", limited(bt.RunBacktest)).Methods(http.MethodPost)
	r.Handle("/api/backtest/batch", limited(bt.RunBatch)).Methods(http.MethodPost)
	r.Handle("/api/runs", limited(bt.ListRuns)).Methods(http.MethodGet)
	r.Handle("/api/panel", limited(bt.GetPanel)).Methods(http.MethodGet)

	// requestID → logging → recovery 순서 (바깥부터)
	r.Use(requestIDMiddleware, loggingMiddleware(log), recoveryMiddleware(log))

	return r
}

// apiChain wraps an /api handler with the rate limit (outer) and request timeout
func apiChain(opts RouterOptions, log *logger.Logger) func(http.HandlerFunc) http.Handler {
	return func(h http.HandlerFunc) http.Handler {
		var next http.Handler = h
		if opts.RequestTimeout > 0 {
			next = timeoutMiddleware(opts.RequestTimeout)(next)
		}
		if opts.Limiter != nil {
			next = rateLimitMiddleware(opts.Limiter, log)(next)
		}
		return next
	}
}

func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"service": "cbquant-api",
	})
}

func jsonStatus(status int, message string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, status, map[string]interface{}{"success": false, "error": message})
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// requestIDMiddleware keeps a caller-supplied X-Request-ID or assigns a new one
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
			r.Header.Set(RequestIDHeader, id)
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the response status for logging
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// loggingMiddleware logs every request; 5xx at warn, the rest at debug
func loggingMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			entry := log.WithDuration(start).WithFields(map[string]interface{}{
				"method":     r.Method,
				"path":       r.URL.Path,
				"status":     rec.status,
				"request_id": r.Header.Get(RequestIDHeader),
			})
			if rec.status >= http.StatusInternalServerError {
				entry.Warn("HTTP request failed")
				return
			}
			entry.Debug("HTTP request")
		})
	}
}

// recoveryMiddleware turns a handler panic into a 500
func recoveryMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if p := recover(); p != nil {
					log.WithFields(map[string]interface{}{
						"panic":      fmt.Sprint(p),
						"path":       r.URL.Path,
						"request_id": r.Header.Get(RequestIDHeader),
					}).Error("Panic recovered")

					writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
						"success": false,
						"error":   "internal server error",
					})
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// timeoutMiddleware bounds the request context
func timeoutMiddleware(d time.Duration) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// rateLimitMiddleware rejects clients over their request budget with 429
func rateLimitMiddleware(limiter *RateLimiter, log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			allowed, wait := limiter.Allow(r.Context(), clientKey(r))
			if !allowed {
				log.WithFields(map[string]interface{}{
					"client": clientKey(r),
					"path":   r.URL.Path,
					"wait":   wait.String(),
				}).Warn("Rate limit exceeded")

				w.Header().Set("Retry-After", retryAfterSeconds(wait))
				writeJSON(w, http.StatusTooManyRequests, map[string]interface{}{
					"success": false,
					"error":   "too many requests",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
