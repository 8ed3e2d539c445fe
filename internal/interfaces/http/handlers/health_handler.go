package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/aimstors/sentinel/pkg/logger"
)

// HealthHandler reports liveness of the engine and its stores.
type HealthHandler struct {
	db    *gorm.DB
	redis redis.UniversalClient
	log   logger.Logger
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(db *gorm.DB, redisClient redis.UniversalClient, log logger.Logger) *HealthHandler {
	return &HealthHandler{db: db, redis: redisClient, log: log}
}

// HealthCheck pings both stores and reports per-dependency status.
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	checks := map[string]string{
		"database": "ok",
		"redis":    "ok",
	}
	httpStatus := http.StatusOK

	if sqlDB, err := h.db.DB(); err != nil {
		checks["database"] = "error: " + err.Error()
	} else if err := sqlDB.PingContext(c.Request.Context()); err != nil {
		checks["database"] = "error: " + err.Error()
	}

	if err := h.redis.Ping(c.Request.Context()).Err(); err != nil {
		checks["redis"] = "error: " + err.Error()
	}

	status := "healthy"
	for _, check := range checks {
		if check != "ok" {
			status = "unhealthy"
			httpStatus = http.StatusServiceUnavailable
			break
		}
	}

	c.JSON(httpStatus, gin.H{
		"status":    status,
		"timestamp": time.Now().UTC(),
		"checks":    checks,
	})
}
