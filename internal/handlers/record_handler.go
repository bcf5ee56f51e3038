package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/cibics/tracking-backend/internal/database"
	"github.com/cibics/tracking-backend/internal/middleware"
	"github.com/cibics/tracking-backend/internal/services"
)

// RecordHandler handles record listing and mutation operations
type RecordHandler struct {
	recordService *services.RecordService
	logService    *services.UpdateLogService
	logger        *logrus.Logger
}

// NewRecordHandler creates a new record handler
func NewRecordHandler(recordService *services.RecordService, logService *services.UpdateLogService, logger *logrus.Logger) *RecordHandler {
	return &RecordHandler{recordService: recordService, logService: logService, logger: logger}
}

// List returns a filtered, paginated record listing
// GET /api/v1/records
func (h *RecordHandler) List(c *gin.Context) {
	filter := database.RecordListFilter{
		Page:     queryInt(c, "page", 1),
		PageSize: queryInt(c, "page_size", 10),
	}

	if raw := c.Query("assignee_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid assignee_id parameter"})
			return
		}
		filter.AssigneeID = &id
	}
	if status := strings.TrimSpace(c.Query("status")); status != "" {
		filter.Status = &status
	}
	if state := strings.TrimSpace(c.Query("state")); state != "" {
		filter.State = &state
	}
	if raw := c.Query("has_client_email"); raw != "" {
		value := raw == "true" || raw == "1"
		filter.HasClientEmail = &value
	}
	if raw := c.Query("alert_pending"); raw != "" {
		value := raw == "true" || raw == "1"
		filter.AlertPending = &value
	}
	filter.Search = strings.TrimSpace(c.Query("search"))

	actor := middleware.MustGetUser(c)
	page, err := h.recordService.List(filter, actor)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, page)
}

// Get returns one record with assignee and stage state
// GET /api/v1/records/:id
func (h *RecordHandler) Get(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	actor := middleware.MustGetUser(c)
	detail, err := h.recordService.Get(id, actor)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, detail)
}

// Patch applies a sparse mutation to a record
// PATCH /api/v1/records/:id
func (h *RecordHandler) Patch(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var patch services.RecordPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	actor := middleware.MustGetUser(c)
	detail, err := h.recordService.Patch(id, patch, actor)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, detail)
}

// AcknowledgeAlert clears a record's pending email alert flag
// POST /api/v1/records/:id/acknowledge-alert
func (h *RecordHandler) AcknowledgeAlert(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	actor := middleware.MustGetUser(c)
	detail, err := h.recordService.AcknowledgeAlert(id, actor)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, detail)
}

// Delete soft-deletes a record
// DELETE /api/v1/records/:id
func (h *RecordHandler) Delete(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	actor := middleware.MustGetUser(c)
	if err := h.recordService.SoftDelete(id, actor.ID); err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Record deleted"})
}

// History returns a record's change log, newest first
// GET /api/v1/records/:id/history
func (h *RecordHandler) History(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	actor := middleware.MustGetUser(c)
	entries, err := h.logService.History(id, actor)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"history": entries,
		"count":   len(entries),
	})
}
