package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/lalithlochan/fellowship/internal/db"
	"github.com/lalithlochan/fellowship/internal/metrics"
	"github.com/lalithlochan/fellowship/internal/redis"
)

type RouterConfig struct {
	JWTSecret      []byte
	AllowedOrigins []string
	RateLimiter    *redis.RateLimiter // nil disables rate limiting
	RequestTimeout time.Duration
}

// NewRouter mounts every route on a chi router.
func NewRouter(h *Handler, cfg RouterConfig, logger *zap.Logger) http.Handler {
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 30 * time.Second
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	r.Use(metrics.Middleware)
	r.Use(requestLogger(logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", h.Health)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(RequireAuth(cfg.JWTSecret, h.deps.Repo, logger))
		r.Use(RateLimitMiddleware(cfg.RateLimiter, logger, UserKeyFunc))

		r.Route("/users", func(r chi.Router) {
			r.Post("/push-token", h.RegisterPushToken)

			r.Get("/notification-preferences", h.GetPreferences)
			r.Put("/notification-preferences", h.UpdatePreferences)
			r.Post("/notification-preferences/reset", h.ResetPreferences)

			r.Post("/{id}/follow", h.Follow)
			r.Delete("/{id}/follow", h.Unfollow)
			r.Get("/{id}/followers", h.ListFollowers)
			r.Get("/{id}/following", h.ListFollowing)
			r.Get("/{id}/follow-status", h.FollowStatus)
			r.Get("/{id}/follow-stats", h.FollowStats)
		})

		r.Route("/events", func(r chi.Router) {
			r.Post("/", h.CreateEvent)
			r.Get("/{id}", h.GetEvent)
			r.Post("/{id}/like", h.LikeResource(db.ResourceEvent))
			r.Delete("/{id}/like", h.UnlikeResource(db.ResourceEvent))
			r.Post("/{id}/comments", h.CommentOnResource(db.ResourceEvent))
		})

		r.Route("/prayer-requests", func(r chi.Router) {
			r.Post("/", h.CreatePrayerRequest)
			r.Get("/{id}", h.GetPrayerRequest)
			r.Post("/{id}/like", h.LikeResource(db.ResourcePrayerRequest))
			r.Delete("/{id}/like", h.UnlikeResource(db.ResourcePrayerRequest))
			r.Post("/{id}/comments", h.CommentOnResource(db.ResourcePrayerRequest))
		})
	})

	return r
}

func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration_ms", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}
