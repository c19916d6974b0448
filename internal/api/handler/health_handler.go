package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/insightq/analysis-jobs/internal/store"
)

// HealthHandler reports reachability of the store and queue backing services.
type HealthHandler struct {
	logger       *slog.Logger
	store        store.JobStore
	queueHealthy func() bool
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(deps *Dependencies) *HealthHandler {
	return &HealthHandler{
		logger:       deps.Logger,
		store:        deps.Store,
		queueHealthy: deps.QueueHealthy,
	}
}

// Check handles GET /health: 200 when both dependencies are reachable,
// 503 with per-dependency detail otherwise.
func (h *HealthHandler) Check(c *gin.Context) {
	storeStatus := "ok"
	if err := h.store.Ping(c.Request.Context()); err != nil {
		storeStatus = err.Error()
	}

	queueStatus := "ok"
	if h.queueHealthy != nil && !h.queueHealthy() {
		queueStatus = "not connected"
	}

	if storeStatus != "ok" || queueStatus != "ok" {
		h.logger.Warn("health check degraded",
			slog.String("store", storeStatus),
			slog.String("queue", queueStatus),
		)
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "degraded",
			"store":  storeStatus,
			"queue":  queueStatus,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"store":  storeStatus,
		"queue":  queueStatus,
	})
}
