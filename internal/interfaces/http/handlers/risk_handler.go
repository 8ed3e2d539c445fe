package handlers

import (
	goerrors "errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aimstors/sentinel/internal/application/service"
	"github.com/aimstors/sentinel/internal/domain/repository"
	"github.com/aimstors/sentinel/pkg/errors"
	"github.com/aimstors/sentinel/pkg/logger"
)

// RiskHandler serves the read-only risk views and the reward hook.
type RiskHandler struct {
	tenantRiskRepo repository.TenantRiskRepository
	snapshotRepo   repository.SnapshotRepository
	clusterRepo    repository.ClusterRepository
	riskEventRepo  repository.RiskEventRepository
	adaptive       service.AdaptiveThresholdService
	log            logger.Logger
}

// NewRiskHandler creates a new RiskHandler.
func NewRiskHandler(
	tenantRiskRepo repository.TenantRiskRepository,
	snapshotRepo repository.SnapshotRepository,
	clusterRepo repository.ClusterRepository,
	riskEventRepo repository.RiskEventRepository,
	adaptive service.AdaptiveThresholdService,
	log logger.Logger,
) *RiskHandler {
	return &RiskHandler{
		tenantRiskRepo: tenantRiskRepo,
		snapshotRepo:   snapshotRepo,
		clusterRepo:    clusterRepo,
		riskEventRepo:  riskEventRepo,
		adaptive:       adaptive,
		log:            log,
	}
}

// PlatformSnapshots returns the newest platform risk snapshots.
func (h *RiskHandler) PlatformSnapshots(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 1000 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be an integer in [1,1000]"})
			return
		}
		limit = parsed
	}

	snapshots, err := h.snapshotRepo.Recent(c.Request.Context(), limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"snapshots": snapshots})
}

// Tenants lists all tenant risk aggregates.
func (h *RiskHandler) Tenants(c *gin.Context) {
	scores, err := h.tenantRiskRepo.List(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tenants": scores})
}

// Tenant returns one tenant's risk aggregate.
func (h *RiskHandler) Tenant(c *gin.Context) {
	tenantID := c.Param("id")
	score, err := h.tenantRiskRepo.Get(c.Request.Context(), tenantID)
	if err != nil {
		h.fail(c, err)
		return
	}
	if score == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "tenant has no risk record"})
		return
	}
	c.JSON(http.StatusOK, score)
}

// KeyEvents lists one credential's risk events from the trailing window.
// The window defaults to 24 hours and is capped at 7 days.
func (h *RiskHandler) KeyEvents(c *gin.Context) {
	hours := 24
	if raw := c.Query("hours"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 168 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "hours must be an integer in [1,168]"})
			return
		}
		hours = parsed
	}

	since := time.Now().Add(-time.Duration(hours) * time.Hour)
	events, err := h.riskEventRepo.RecentForKey(c.Request.Context(), c.Param("id"), since)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

// Clusters lists recently detected anomaly clusters.
func (h *RiskHandler) Clusters(c *gin.Context) {
	clusters, err := h.clusterRepo.Recent(c.Request.Context(), 100)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"clusters": clusters})
}

// Reward is a pointer so an explicit zero reward passes the required check.
type rewardRequest struct {
	Reward *float64 `json:"reward" binding:"required"`
}

// RecordReward labels a past threshold decision with its realized reward.
func (h *RiskHandler) RecordReward(c *gin.Context) {
	experienceID := c.Param("id")

	var req rewardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "reward is required"})
		return
	}

	if err := h.adaptive.RecordReward(c.Request.Context(), experienceID, *req.Reward); err != nil {
		if goerrors.Is(err, errors.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "experience not found"})
			return
		}
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "recorded"})
}

func (h *RiskHandler) fail(c *gin.Context, err error) {
	h.log.Error(c.Request.Context(), "request failed", err,
		logger.String("path", c.Request.URL.Path))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
}
