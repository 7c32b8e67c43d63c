package handlers

import (
	"context"
	"net/http"
	"time"
)

type dependencyStatus struct {
	Status   string `json:"status"`
	Provider string `json:"provider,omitempty"`
}

type healthResponse struct {
	Status       string                      `json:"status"`
	Timestamp    string                      `json:"timestamp"`
	Version      string                      `json:"version"`
	Environment  string                      `json:"environment"`
	Database     map[string]string           `json:"database"`
	Dependencies map[string]dependencyStatus `json:"dependencies"`
}

func configured(ok bool) string {
	if ok {
		return "ok"
	}
	return "not_configured"
}

// GET /health
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	dbStatus := "ok"
	if sqlDB, err := h.db.DB(); err != nil || sqlDB.PingContext(ctx) != nil {
		dbStatus = "error"
	}

	redisStatus := "not_configured"
	if h.redis != nil {
		redisStatus = "ok"
		if err := h.redis.Ping(ctx); err != nil {
			redisStatus = "error"
		}
	}

	deps := map[string]dependencyStatus{
		"stripe":          {Status: configured(h.cfg.StripeConfigured()), Provider: h.payments.Name()},
		"email":           {Status: configured(h.cfg.MailConfigured())},
		"google_calendar": {Status: configured(h.cfg.CalendarConfigured())},
		"redis":           {Status: redisStatus},
	}

	status := "ok"
	if dbStatus != "ok" {
		status = "degraded"
	}
	for _, d := range deps {
		if d.Status != "ok" {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, healthResponse{
		Status:      status,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
		Version:     h.cfg.Version,
		Environment: h.cfg.Env,
		Database: map[string]string{
			"status":  dbStatus,
			"dialect": h.db.Dialector.Name(),
		},
		Dependencies: deps,
	})
}
