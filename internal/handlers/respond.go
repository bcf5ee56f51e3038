package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/cibics/tracking-backend/internal/apperrors"
)

// respondError maps domain errors onto HTTP statuses. Anything outside the
// known taxonomy is a 500 with the detail kept server-side.
func respondError(c *gin.Context, logger *logrus.Logger, err error) {
	var validationErr *apperrors.ValidationError
	if errors.As(err, &validationErr) {
		body := gin.H{"error": validationErr.Message}
		if len(validationErr.Fields) > 0 {
			body["fields"] = validationErr.Fields
		}
		c.JSON(http.StatusBadRequest, body)
		return
	}

	var conflictErr *apperrors.ConflictError
	if errors.As(err, &conflictErr) {
		c.JSON(http.StatusConflict, gin.H{"error": conflictErr.Message})
		return
	}

	var forbiddenErr *apperrors.ForbiddenError
	if errors.As(err, &forbiddenErr) {
		c.JSON(http.StatusForbidden, gin.H{"error": forbiddenErr.Message})
		return
	}

	var notFoundErr *apperrors.NotFoundError
	if errors.As(err, &notFoundErr) {
		c.JSON(http.StatusNotFound, gin.H{"error": notFoundErr.Error()})
		return
	}

	logger.WithError(err).WithField("path", c.Request.URL.Path).Error("Unhandled error")
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
}

// pathID parses the :id path parameter.
func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid id parameter"})
		return 0, false
	}
	return id, true
}

// queryInt parses an optional integer query parameter, falling back to a
// default for missing or malformed values.
func queryInt(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
