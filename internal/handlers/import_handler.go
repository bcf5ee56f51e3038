package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/cibics/tracking-backend/internal/middleware"
	"github.com/cibics/tracking-backend/internal/services"
)

// ImportHandler handles bulk record import operations
type ImportHandler struct {
	importService *services.ImportService
	logger        *logrus.Logger
}

// NewImportHandler creates a new import handler
func NewImportHandler(importService *services.ImportService, logger *logrus.Logger) *ImportHandler {
	return &ImportHandler{importService: importService, logger: logger}
}

// ImportRequest is a parsed spreadsheet: the header row plus the data rows
type ImportRequest struct {
	Columns []string             `json:"columns" binding:"required"`
	Rows    []services.ImportRow `json:"rows" binding:"required"`
}

// Preview classifies rows without writing anything
// POST /api/v1/records/import/preview
func (h *ImportHandler) Preview(c *gin.Context) {
	var req ImportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	limit := queryInt(c, "limit", 200)
	if limit < 1 {
		limit = 1
	}
	if limit > 500 {
		limit = 500
	}

	preview, err := h.importService.Preview(req.Columns, req.Rows, limit)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, preview)
}

// Import runs one atomic import batch
// POST /api/v1/records/import
func (h *ImportHandler) Import(c *gin.Context) {
	var req ImportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	actor := middleware.MustGetUser(c)
	report, err := h.importService.Import(req.Columns, req.Rows, &actor.ID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, report)
}
