package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wonny/augur/backend/internal/api/handlers"
	"github.com/wonny/augur/backend/pkg/logger"
	"github.com/wonny/augur/backend/pkg/metrics"
	"github.com/wonny/augur/backend/pkg/redis"
)

// RouterDeps carries everything the router wires into handlers and
// middleware. Recorder and rate limiter may be nil.
type RouterDeps struct {
	Stocks      *handlers.StockHandler
	Signals     *handlers.SignalsHandler
	Predictions *handlers.PredictionsHandler
	Explain     *handlers.ExplainHandler

	Logger      *logger.Logger
	Recorder    *metrics.Recorder
	RateLimiter *redis.RateLimiter
	RatePerMin  int

	MetricsEnabled bool
}

// NewRouter creates and configures the HTTP router
// ⭐ SSOT: 라우팅 설정은 이 함수에서만
func NewRouter(deps RouterDeps) http.Handler {
	r := mux.NewRouter()

	// Health check
	r.HandleFunc("/health", healthCheckHandler).Methods("GET")

	if deps.MetricsEnabled {
		r.Handle("/metrics", promhttp.Handler()).Methods("GET")
	}

	// API v1
	api := r.PathPrefix("/api/v1").Subrouter()

	// Stock endpoints
	api.HandleFunc("/stocks/{ticker}", deps.Stocks.GetSnapshot).Methods("GET")
	api.HandleFunc("/stocks/{ticker}/prices", deps.Stocks.GetPrices).Methods("GET")
	api.HandleFunc("/stocks/{ticker}/news", deps.Stocks.GetNews).Methods("GET")
	api.HandleFunc("/stocks/{ticker}/fundamentals", deps.Stocks.GetFundamentals).Methods("GET")

	// Signal and prediction endpoints
	api.HandleFunc("/signals/daily", deps.Signals.GetDaily).Methods("GET")
	api.HandleFunc("/predictions/{ticker}", deps.Predictions.GetByTicker).Methods("GET")
	api.HandleFunc("/explain/{ticker}/{date}", deps.Explain.Get).Methods("GET")

	// Apply middleware
	r.Use(loggingMiddleware(deps.Logger))
	r.Use(recoveryMiddleware(deps.Logger))
	if deps.Recorder != nil {
		r.Use(metricsMiddleware(deps.Recorder))
	}
	if deps.RateLimiter != nil && deps.RatePerMin > 0 {
		api.Use(rateLimitMiddleware(deps.RateLimiter, deps.RatePerMin, deps.Logger))
	}

	return r
}

// healthCheckHandler returns server health status
func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "ok",
		"service": "augur-api",
	})
}

// loggingMiddleware logs HTTP requests
func loggingMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Call next handler
			next.ServeHTTP(w, r)

			// Log request
			log.WithFields(map[string]interface{}{
				"method":   r.Method,
				"path":     r.URL.Path,
				"duration": time.Since(start),
			}).Debug("HTTP request")
		})
	}
}

// recoveryMiddleware recovers from panics
func recoveryMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.WithFields(map[string]interface{}{
						"error": err,
						"path":  r.URL.Path,
					}).Error("Panic recovered")

					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					json.NewEncoder(w).Encode(map[string]string{
						"error": "Internal server error",
					})
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// statusWriter captures the response status for metrics.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// metricsMiddleware records request counts and latency per route template.
func metricsMiddleware(rec *metrics.Recorder) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(sw, r)

			rec.RecordHTTPRequest(routeTemplate(r), strconv.Itoa(sw.status), time.Since(start).Seconds())
		})
	}
}

// routeTemplate prefers the mux route template over the raw path to keep
// metric label cardinality low.
func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tmpl, err := route.GetPathTemplate(); err == nil {
			return tmpl
		}
	}
	return r.URL.Path
}

// rateLimitMiddleware throttles API clients by address using the Redis
// sliding window. Redis failures degrade open.
func rateLimitMiddleware(limiter *redis.RateLimiter, perMinute int, log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			allowed, remaining, err := limiter.Allow(r.Context(), redis.APIRateLimit(clientKey(r), perMinute))
			if err != nil {
				log.WithError(err).Warn("Rate limit check failed, allowing request")
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			if !allowed {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				json.NewEncoder(w).Encode(map[string]string{
					"error": "Rate limit exceeded",
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// clientKey identifies a client by address, without the ephemeral port.
func clientKey(r *http.Request) string {
	addr := r.RemoteAddr
	if idx := strings.LastIndex(addr, ":"); idx > 0 {
		addr = addr[:idx]
	}
	return addr
}
