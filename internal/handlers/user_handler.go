package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/cibics/tracking-backend/internal/middleware"
	"github.com/cibics/tracking-backend/internal/services"
)

// UserHandler handles account management operations
type UserHandler struct {
	userService *services.UserService
	logger      *logrus.Logger
}

// NewUserHandler creates a new user handler
func NewUserHandler(userService *services.UserService, logger *logrus.Logger) *UserHandler {
	return &UserHandler{userService: userService, logger: logger}
}

// List returns all active users
// GET /api/v1/users
func (h *UserHandler) List(c *gin.Context) {
	users, err := h.userService.List()
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"users": users,
		"count": len(users),
	})
}

// Assignees returns the active users who can own records
// GET /api/v1/users/assignees
func (h *UserHandler) Assignees(c *gin.Context) {
	users, err := h.userService.Assignees()
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"assignees": users,
		"count":     len(users),
	})
}

// Get returns one active user
// GET /api/v1/users/:id
func (h *UserHandler) Get(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	user, err := h.userService.Get(id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": user})
}

// Create provisions a new account
// POST /api/v1/users
func (h *UserHandler) Create(c *gin.Context) {
	var req services.CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	user, err := h.userService.Create(req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"user": user})
}

// Update applies a sparse patch to an account
// PATCH /api/v1/users/:id
func (h *UserHandler) Update(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var patch services.UserPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	actor := middleware.MustGetUser(c)
	user, err := h.userService.Update(id, patch, actor.ID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": user})
}

// UpdateSelf lets the caller change their own name or password
// PATCH /api/v1/users/me
func (h *UserHandler) UpdateSelf(c *gin.Context) {
	var patch services.SelfPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	actor := middleware.MustGetUser(c)
	user, err := h.userService.UpdateSelf(actor, patch)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": user})
}

// Delete soft-deletes an account and unassigns its records
// DELETE /api/v1/users/:id
func (h *UserHandler) Delete(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	actor := middleware.MustGetUser(c)
	if err := h.userService.SoftDelete(id, actor.ID); err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "User deleted"})
}
