package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/cibics/tracking-backend/internal/middleware"
	"github.com/cibics/tracking-backend/internal/services"
)

// StageHandler handles stage catalog operations
type StageHandler struct {
	stageService *services.StageService
	logger       *logrus.Logger
}

// NewStageHandler creates a new stage handler
func NewStageHandler(stageService *services.StageService, logger *logrus.Logger) *StageHandler {
	return &StageHandler{stageService: stageService, logger: logger}
}

// CreateStageRequest is the payload for a new pipeline stage
type CreateStageRequest struct {
	Code         string `json:"code" binding:"required"`
	Name         string `json:"name" binding:"required"`
	DisplayOrder int    `json:"display_order" binding:"required"`
}

// List returns the active stages in pipeline order
// GET /api/v1/stages
func (h *StageHandler) List(c *gin.Context) {
	stages, err := h.stageService.ActiveStages()
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"stages": stages,
		"count":  len(stages),
	})
}

// Create adds a stage to the catalog and backfills state rows
// POST /api/v1/stages
func (h *StageHandler) Create(c *gin.Context) {
	var req CreateStageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	actor := middleware.MustGetUser(c)
	stage, err := h.stageService.CreateStage(req.Code, req.Name, req.DisplayOrder, actor.ID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"stage": stage})
}

// Update renames, reorders or toggles a stage. The code is immutable.
// PATCH /api/v1/stages/:id
func (h *StageHandler) Update(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var patch services.StageUpdate
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	actor := middleware.MustGetUser(c)
	stage, err := h.stageService.UpdateStage(id, patch, actor.ID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"stage": stage})
}

// SyncPOReceived completes the PO stage for records whose imported raw
// status already said so
// POST /api/v1/stages/sync-po-received
func (h *StageHandler) SyncPOReceived(c *gin.Context) {
	actor := middleware.MustGetUser(c)
	changed, err := h.stageService.SyncPOReceivedFromRaw(&actor.ID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"records_updated": changed})
}
