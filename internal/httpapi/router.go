package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/pguia/crm-authz/internal/guard"
	"github.com/pguia/crm-authz/internal/httpx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// BasePath is where the administrative API is mounted
const BasePath = "/api/v1/authz"

const defaultRateLimit = 120

// Pinger reports whether a backing store is reachable
type Pinger interface {
	Ping() error
}

// RouterConfig carries the collaborators of the HTTP surface
type RouterConfig struct {
	Handler       *Handler
	Authenticator *guard.Authenticator
	Guard         *guard.Guard
	Health        Pinger
	Gatherer      prometheus.Gatherer
	// RateLimitPerMinute caps administrative requests per caller
	RateLimitPerMinute int
	RequestTimeout     time.Duration
	Log                logrus.FieldLogger
}

// NewRouter builds the service's HTTP handler
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(cfg.Log))
	r.Use(middleware.Recoverer)
	if cfg.RequestTimeout > 0 {
		r.Use(middleware.Timeout(cfg.RequestTimeout))
	}

	r.Get("/healthz", healthHandler(cfg.Health))
	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	limit := cfg.RateLimitPerMinute
	if limit <= 0 {
		limit = defaultRateLimit
	}
	limiter := httprate.Limit(limit, time.Minute,
		httprate.WithKeyFuncs(rateLimitKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			httpx.Problem(w, http.StatusTooManyRequests, "Too Many Requests", "rate limit exceeded")
		}),
	)

	r.Route(BasePath, func(r chi.Router) {
		r.Use(cfg.Authenticator.Middleware)
		r.Use(limiter)

		r.With(cfg.Guard.Optional).Get("/me/permissions", cfg.Handler.myPermissions)

		r.Group(func(r chi.Router) {
			r.Use(cfg.Guard.RequireDirector())
			cfg.Handler.MountRoutes(r)
		})
	})

	return r
}

func rateLimitKey(r *http.Request) (string, error) {
	if p, ok := guard.PrincipalFromContext(r.Context()); ok {
		return "user:" + p.UserID.String(), nil
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}

func healthHandler(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			if err := db.Ping(); err != nil {
				httpx.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func requestLogger(log logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.WithFields(logrus.Fields{
				"method":     r.Method,
				"path":       r.URL.Path,
				"status":     ww.Status(),
				"duration":   time.Since(start).String(),
				"request_id": middleware.GetReqID(r.Context()),
			}).Debug("request handled")
		})
	}
}
