package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/cibics/tracking-backend/internal/middleware"
	"github.com/cibics/tracking-backend/internal/services"
)

// AuthHandler handles authentication operations
type AuthHandler struct {
	authService *services.AuthService
	logger      *logrus.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(authService *services.AuthService, logger *logrus.Logger) *AuthHandler {
	return &AuthHandler{authService: authService, logger: logger}
}

// LoginRequest is the credential payload
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login authenticates a user and issues an access token
// POST /api/v1/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email and password are required"})
		return
	}

	result, err := h.authService.Login(req.Email, req.Password)
	if err != nil {
		// Failed logins always read the same regardless of cause.
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid email or password"})
		return
	}

	c.JSON(http.StatusOK, result)
}

// Bootstrap creates the initial super admin account
// POST /api/v1/auth/bootstrap
func (h *AuthHandler) Bootstrap(c *gin.Context) {
	user, err := h.authService.Bootstrap()
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"user": user})
}

// Me returns the authenticated user's own account
// GET /api/v1/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	user := middleware.MustGetUser(c)
	c.JSON(http.StatusOK, gin.H{"user": user})
}
