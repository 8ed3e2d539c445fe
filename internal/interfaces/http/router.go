// Package http wires the gin router for the engine's small HTTP surface.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aimstors/sentinel/internal/config"
	"github.com/aimstors/sentinel/internal/interfaces/http/handlers"
	"github.com/aimstors/sentinel/pkg/logger"
)

// Router hosts the health, metrics, and read-only risk endpoints.
type Router struct {
	engine        *gin.Engine
	cfg           *config.Config
	log           logger.Logger
	healthHandler *handlers.HealthHandler
	riskHandler   *handlers.RiskHandler
	server        *http.Server
}

// NewRouter creates the router.
func NewRouter(
	cfg *config.Config,
	log logger.Logger,
	healthHandler *handlers.HealthHandler,
	riskHandler *handlers.RiskHandler,
) *Router {
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	return &Router{
		engine:        gin.New(),
		cfg:           cfg,
		log:           log.WithComponent("Router"),
		healthHandler: healthHandler,
		riskHandler:   riskHandler,
	}
}

// SetupRoutes registers middleware and routes.
func (r *Router) SetupRoutes() {
	r.engine.Use(handlers.RecoveryMiddleware(r.log))
	r.engine.Use(handlers.RequestIDMiddleware())
	r.engine.Use(handlers.LoggingMiddleware(r.log))
	r.engine.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "X-Request-ID"},
		MaxAge:       12 * time.Hour,
	}))

	r.engine.GET("/healthz", r.healthHandler.HealthCheck)
	r.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if r.cfg.Server.Environment != "production" {
		pprof.Register(r.engine)
	}

	v1 := r.engine.Group("/api/v1/risk")
	{
		v1.GET("/platform/snapshots", r.riskHandler.PlatformSnapshots)
		v1.GET("/tenants", r.riskHandler.Tenants)
		v1.GET("/tenants/:id", r.riskHandler.Tenant)
		v1.GET("/clusters", r.riskHandler.Clusters)
		v1.GET("/keys/:id/events", r.riskHandler.KeyEvents)
		v1.POST("/experiences/:id/reward", r.riskHandler.RecordReward)
	}

	r.engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
	})
}

// Start blocks serving HTTP until the listener fails or Stop is called.
func (r *Router) Start() error {
	r.SetupRoutes()

	addr := fmt.Sprintf("%s:%d", r.cfg.Server.Host, r.cfg.Server.Port)
	r.server = &http.Server{
		Addr:         addr,
		Handler:      r.engine,
		ReadTimeout:  time.Duration(r.cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(r.cfg.Server.WriteTimeout) * time.Second,
	}

	r.log.Info(context.Background(), "http server starting", logger.String("addr", addr))
	if err := r.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop gracefully shuts the server down.
func (r *Router) Stop(ctx context.Context) error {
	if r.server == nil {
		return nil
	}
	return r.server.Shutdown(ctx)
}
