package web

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/serenityskeys/backend/internal/config"
	"github.com/serenityskeys/backend/internal/handlers"
	"github.com/serenityskeys/backend/internal/ratelimit"
	"github.com/serenityskeys/backend/internal/telemetry"
)

const requestIDHeader = "X-Request-ID"

var (
	checkoutLimit = ratelimit.Rule{Name: "checkout", Limit: 30, Window: time.Hour}
	webhookLimit  = ratelimit.Rule{Name: "stripe_webhook", Limit: 60, Window: time.Minute}
	contactLimit  = ratelimit.Rule{Name: "contact", Limit: 5, Window: time.Minute}
	loginLimit    = ratelimit.Rule{Name: "admin_login", Limit: 5, Window: time.Minute}
)

func Router(h *handlers.Handlers, cfg config.Config, limiter ratelimit.Limiter, log *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(middleware.RealIP)
	r.Use(accessLog(log))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(corsOptions(cfg)))
	r.Use(instrument)

	limit := func(rule ratelimit.Rule) func(http.Handler) http.Handler {
		return ratelimit.Middleware(limiter, rule, log, denyJSON)
	}

	r.Get("/health", h.Health)
	r.Handle("/metrics", promhttp.Handler())
	r.With(limit(webhookLimit)).Post("/webhooks/stripe", h.StripeWebhook)

	r.Route("/api", func(api chi.Router) {
		api.Post("/availability", h.Availability)
		api.Get("/sessions/{id}", h.Session)
		api.Get("/sessions/{id}/qr.png", h.SessionQR)
		api.Post("/profile/upsert", h.UpsertProfile)
		api.With(limit(checkoutLimit)).Post("/booking/checkout", h.Checkout)
		api.With(limit(contactLimit)).Post("/contact", h.Contact)
		api.Get("/students/{id}/metrics", h.StudentMetrics)
		api.Get("/students/{id}/reports", h.StudentReports)

		api.With(limit(loginLimit)).Post("/admin/login", h.AdminLogin)

		// Admin-only
		api.Group(func(ag chi.Router) {
			ag.Use(h.RequireAdmin)
			ag.Post("/typing/import", h.TypingImport)
			ag.Get("/admin/sessions", h.AdminSessions)
			ag.Post("/admin/session", h.AdminCreateSession)
			ag.Post("/admin/resend-confirmation", h.ResendConfirmation)
			ag.Post("/admin/reports", h.AdminCreateReport)
		})
	})

	return r
}

func corsOptions(cfg config.Config) cors.Options {
	opts := cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", requestIDHeader, handlers.LegacyTokenHeader, "Stripe-Signature"},
		ExposedHeaders:   []string{requestIDHeader, "Retry-After"},
		AllowCredentials: true,
		MaxAge:           3600,
	}
	if cfg.IsDev() {
		opts.AllowedHeaders = []string{"*"}
	}
	return opts
}

// requestID reuses the caller's X-Request-ID or mints one, and exposes it
// through middleware.GetReqID.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		ctx := context.WithValue(r.Context(), middleware.RequestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func accessLog(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.String("remote_ip", r.RemoteAddr),
			)
		})
	}
}

func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		telemetry.HTTPRequests.WithLabelValues(route, r.Method, strconv.Itoa(ww.Status())).Inc()
		telemetry.HTTPDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

func denyJSON(w http.ResponseWriter, _ *http.Request, retryAfter time.Duration) {
	secs := int(retryAfter.Round(time.Second) / time.Second)
	if secs < 1 {
		secs = 1
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	_, _ = w.Write([]byte(`{"error":true,"code":"RATE_LIMIT_EXCEEDED","message":"Too many requests. Please try again later.","details":{"retry_after":` + strconv.Itoa(secs) + `}}`))
}
