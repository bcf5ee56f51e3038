package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cibics/tracking-backend/internal/models"
	"github.com/cibics/tracking-backend/pkg/jwt"
)

func setupTestJWTService() *jwt.Service {
	return jwt.NewService("test-secret-key-1234567890-abcdefgh", time.Hour)
}

func setupTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	return gin.New()
}

func newTestDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "sqlmock"), mock
}

func activeUserRows(id int64, role models.Role) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"id", "full_name", "email", "password_hash", "role", "receive_alert",
		"lifecycle", "created_at", "updated_at", "updated_by", "deleted_by", "deleted_at",
	}).AddRow(
		id, "Test User", "test@cibics.local", "$2a$10$hash", role, false,
		models.LifecycleActive, now, now, nil, nil, nil,
	)
}

func TestAuthMiddleware_Success(t *testing.T) {
	jwtService := setupTestJWTService()
	db, mock := newTestDB(t)
	router := setupTestRouter()

	token, err := jwtService.GenerateAccessToken(7)
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT (.+) FROM users WHERE id = \$1`).
		WithArgs(int64(7), models.LifecycleActive).
		WillReturnRows(activeUserRows(7, models.RoleAssignee))

	router.GET("/protected", AuthMiddleware(jwtService, db, logrus.New()), func(c *gin.Context) {
		user, exists := GetUser(c)
		require.True(t, exists)
		c.JSON(http.StatusOK, gin.H{"user_id": user.ID})
	})

	req := httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuthMiddleware_MissingAuthHeader(t *testing.T) {
	jwtService := setupTestJWTService()
	db, _ := newTestDB(t)
	router := setupTestRouter()

	router.GET("/protected", AuthMiddleware(jwtService, db, logrus.New()), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "success"})
	})

	req := httptest.NewRequest("GET", "/protected", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "MISSING_AUTH_HEADER")
}

func TestAuthMiddleware_InvalidFormat(t *testing.T) {
	jwtService := setupTestJWTService()
	db, _ := newTestDB(t)
	router := setupTestRouter()

	router.GET("/protected", AuthMiddleware(jwtService, db, logrus.New()), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "success"})
	})

	for _, header := range []string{"Basic abc123", "Bearer", "Bearer "} {
		req := httptest.NewRequest("GET", "/protected", nil)
		req.Header.Set("Authorization", header)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code, "header %q", header)
		assert.Contains(t, w.Body.String(), "INVALID_AUTH_FORMAT")
	}
}

func TestAuthMiddleware_InvalidToken(t *testing.T) {
	jwtService := setupTestJWTService()
	db, _ := newTestDB(t)
	router := setupTestRouter()

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	router.GET("/protected", AuthMiddleware(jwtService, db, logger), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "success"})
	})

	req := httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Bearer not-a-real-token")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "INVALID_TOKEN")
}

func TestAuthMiddleware_DisabledUser(t *testing.T) {
	jwtService := setupTestJWTService()
	db, mock := newTestDB(t)
	router := setupTestRouter()

	token, err := jwtService.GenerateAccessToken(9)
	require.NoError(t, err)

	// GetByID filters on lifecycle, so a soft-deleted user comes back as
	// no rows.
	mock.ExpectQuery(`SELECT (.+) FROM users WHERE id = \$1`).
		WithArgs(int64(9), models.LifecycleActive).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	router.GET("/protected", AuthMiddleware(jwtService, db, logrus.New()), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "success"})
	})

	req := httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "USER_DISABLED")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRequireRoles(t *testing.T) {
	router := setupTestRouter()

	router.GET("/admin",
		func(c *gin.Context) {
			c.Set(UserContextKey, &models.User{ID: 1, Role: models.RoleEmailTeam})
			c.Next()
		},
		RequireRoles(models.RoleSuperAdmin),
		func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"message": "success"})
		})

	req := httptest.NewRequest("GET", "/admin", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "INSUFFICIENT_PERMISSIONS")
}

func TestRequireRoles_Allowed(t *testing.T) {
	router := setupTestRouter()

	router.GET("/admin",
		func(c *gin.Context) {
			c.Set(UserContextKey, &models.User{ID: 1, Role: models.RoleSuperAdmin})
			c.Next()
		},
		RequireRoles(models.RoleSuperAdmin, models.RoleEmailTeam),
		func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"message": "success"})
		})

	req := httptest.NewRequest("GET", "/admin", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}
