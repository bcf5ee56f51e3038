package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/cibics/tracking-backend/internal/middleware"
	"github.com/cibics/tracking-backend/internal/services"
)

// DashboardHandler handles workload overview operations
type DashboardHandler struct {
	dashboardService *services.DashboardService
	logger           *logrus.Logger
}

// NewDashboardHandler creates a new dashboard handler
func NewDashboardHandler(dashboardService *services.DashboardService, logger *logrus.Logger) *DashboardHandler {
	return &DashboardHandler{dashboardService: dashboardService, logger: logger}
}

// Summary returns the headline counters for the caller's scope
// GET /api/v1/dashboard/summary
func (h *DashboardHandler) Summary(c *gin.Context) {
	actor := middleware.MustGetUser(c)
	summary, err := h.dashboardService.Summary(actor)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, summary)
}

// ByStatus groups the caller's records by derived status
// GET /api/v1/dashboard/by-status
func (h *DashboardHandler) ByStatus(c *gin.Context) {
	actor := middleware.MustGetUser(c)
	counts, err := h.dashboardService.ByStatus(actor)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status_counts": counts})
}

// ByAssignee breaks the workload down per assignee
// GET /api/v1/dashboard/by-assignee
func (h *DashboardHandler) ByAssignee(c *gin.Context) {
	summaries, err := h.dashboardService.ByAssignee()
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"assignees": summaries,
		"count":     len(summaries),
	})
}
