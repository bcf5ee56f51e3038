package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"github.com/cibics/tracking-backend/internal/database"
	"github.com/cibics/tracking-backend/internal/models"
	"github.com/cibics/tracking-backend/pkg/jwt"
)

// UserContextKey is the key used to store the authenticated user in Gin context
const UserContextKey = "user"

// AuthMiddleware validates the bearer token and loads the user from the
// database on every request, so a disabled account or changed role takes
// effect immediately rather than at token expiry.
func AuthMiddleware(jwtService *jwt.Service, db *sqlx.DB, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Authorization header is required",
				"code":    "MISSING_AUTH_HEADER",
			})
			c.Abort()
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" || strings.TrimSpace(parts[1]) == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Invalid authorization header format. Expected: Bearer <token>",
				"code":    "INVALID_AUTH_FORMAT",
			})
			c.Abort()
			return
		}

		userID, err := jwtService.ValidateAccessToken(strings.TrimSpace(parts[1]))
		if err != nil {
			logger.WithFields(logrus.Fields{
				"path": c.Request.URL.Path,
				"ip":   c.ClientIP(),
			}).WithError(err).Warn("Rejected access token")
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "invalid_token",
				"message": "Invalid or expired access token",
				"code":    "INVALID_TOKEN",
			})
			c.Abort()
			return
		}

		// GetByID only returns active users, so soft-deleted accounts
		// fail here even with a valid token.
		user, err := database.NewUserRepository(db).GetByID(userID)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "User account no longer exists or is disabled",
				"code":    "USER_DISABLED",
			})
			c.Abort()
			return
		}

		c.Set(UserContextKey, user)
		c.Next()
	}
}

// RequireRoles checks that the authenticated user holds one of the given roles
func RequireRoles(roles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, exists := GetUser(c)
		if !exists {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "User context not found. Auth middleware may not be applied.",
				"code":    "MISSING_USER_CONTEXT",
			})
			c.Abort()
			return
		}

		for _, role := range roles {
			if user.Role == role {
				c.Next()
				return
			}
		}

		c.JSON(http.StatusForbidden, gin.H{
			"error":   "forbidden",
			"message": "You don't have permission to access this resource",
			"code":    "INSUFFICIENT_PERMISSIONS",
		})
		c.Abort()
	}
}

// GetUser retrieves the authenticated user from Gin context
func GetUser(c *gin.Context) (*models.User, bool) {
	value, exists := c.Get(UserContextKey)
	if !exists {
		return nil, false
	}

	user, ok := value.(*models.User)
	if !ok {
		return nil, false
	}

	return user, true
}

// MustGetUser retrieves the authenticated user or panics (use only after AuthMiddleware)
func MustGetUser(c *gin.Context) *models.User {
	user, exists := GetUser(c)
	if !exists {
		panic("user context not found - ensure AuthMiddleware is applied")
	}
	return user
}
