package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler reports database reachability and, when configured, Redis.
type HealthHandler struct {
	db      Pinger
	redis   Pinger
	timeout time.Duration
}

func NewHealthHandler(db Pinger, redis Pinger, timeout time.Duration) *HealthHandler {
	return &HealthHandler{db: db, redis: redis, timeout: timeout}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	checks := map[string]string{"database": "ok"}
	status := http.StatusOK

	if err := h.db.Ping(ctx); err != nil {
		log.Error().Err(err).Msg("health check: database ping failed")
		checks["database"] = "unavailable"
		status = http.StatusServiceUnavailable
	}

	if h.redis != nil {
		checks["redis"] = "ok"
		if err := h.redis.Ping(ctx); err != nil {
			log.Error().Err(err).Msg("health check: redis ping failed")
			checks["redis"] = "unavailable"
			status = http.StatusServiceUnavailable
		}
	}

	overall := "ok"
	if status != http.StatusOK {
		overall = "degraded"
	}
	writeJSON(w, status, map[string]any{"status": overall, "checks": checks})
}
