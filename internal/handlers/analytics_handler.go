package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/cibics/tracking-backend/internal/services"
)

// AnalyticsHandler handles stage progress reporting operations
type AnalyticsHandler struct {
	analyticsService *services.AnalyticsService
	logger           *logrus.Logger
}

// NewAnalyticsHandler creates a new analytics handler
func NewAnalyticsHandler(analyticsService *services.AnalyticsService, logger *logrus.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{analyticsService: analyticsService, logger: logger}
}

// StageProgress returns the day-by-day progress matrix over a window
// GET /api/v1/analytics/stage-progress?start_date=YYYY-MM-DD&days=N
func (h *AnalyticsHandler) StageProgress(c *gin.Context) {
	start, days, err := h.analyticsService.ResolveWindow(c.Query("start_date"), queryInt(c, "days", 0))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	overview, err := h.analyticsService.Overview(start, days)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, overview)
}

// StageProgressDetail breaks one progress cell down by assignee
// GET /api/v1/analytics/stage-progress/detail?date=YYYY-MM-DD&key=<metric>
func (h *AnalyticsHandler) StageProgressDetail(c *gin.Context) {
	date := c.Query("date")
	key := c.Query("key")
	if date == "" || key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date and key query parameters are required"})
		return
	}

	detail, err := h.analyticsService.Detail(date, key)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, detail)
}
