package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"

	"github.com/nexusmail/nexus-mailer/pkg/redis"
)

// HealthHandler handles health checks.
type HealthHandler struct {
	db           *sqlx.DB
	cache        *redis.Client
	checkTimeout time.Duration
}

func NewHealthHandler(db *sqlx.DB, cache *redis.Client) *HealthHandler {
	return &HealthHandler{
		db:           db,
		cache:        cache,
		checkTimeout: 2 * time.Second,
	}
}

// Health returns overall status and basic component statuses.
// @Summary Health check
// @Description Returns overall status with database and cache connectivity results
// @Tags health
// @Accept json
// @Produce json
// @Success 200 {object} map[string]any
// @Router /health [get]
func (h *HealthHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), h.checkTimeout)
	defer cancel()

	overallStatus := "ok"

	dbStatus := "up"
	if h.db == nil {
		dbStatus = "down"
		overallStatus = "down"
	} else if err := h.db.PingContext(ctx); err != nil {
		dbStatus = "down"
		overallStatus = "down"
	}

	cacheStatus := "disabled"
	if h.cache != nil {
		if err := h.cache.Ping(ctx); err != nil {
			cacheStatus = "down"
			overallStatus = "degraded"
		} else {
			cacheStatus = "up"
		}
	}

	return c.JSON(http.StatusOK, map[string]any{
		"status":    overallStatus,
		"timestamp": time.Now().Format(time.RFC3339),
		"components": map[string]any{
			"database": map[string]any{
				"status": dbStatus,
			},
			"cache": map[string]any{
				"status": cacheStatus,
			},
		},
	})
}
