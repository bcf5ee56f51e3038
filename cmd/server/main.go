package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/cibics/tracking-backend/internal/config"
	"github.com/cibics/tracking-backend/internal/database"
	"github.com/cibics/tracking-backend/internal/handlers"
	"github.com/cibics/tracking-backend/internal/middleware"
	"github.com/cibics/tracking-backend/internal/models"
	"github.com/cibics/tracking-backend/internal/services"
	"github.com/cibics/tracking-backend/pkg/jwt"
)

var (
	version   = "1.0.0"
	buildTime = "unknown"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	logger.Info("Starting Cibics Tracking Backend")
	logger.Infof("Version: %s, Build Time: %s", version, buildTime)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	// Set log level
	logLevel, err := logrus.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		logger.Warn("Invalid log level, using INFO")
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	// Set Gin mode
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// Initialize database connection
	logger.Info("Connecting to database...")
	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	logger.Info("Database connection established")

	// Apply pending schema migrations
	if err := database.RunMigrations(db); err != nil {
		logger.Fatalf("Failed to run migrations: %v", err)
	}
	logger.Info("Database schema up to date")

	// Initialize services
	logger.Info("Initializing services...")
	jwtService := jwt.NewService(cfg.JWT.Secret, cfg.JWT.AccessTokenExpiry)
	authService := services.NewAuthService(db, jwtService, cfg.Bootstrap, logger)
	userService := services.NewUserService(db, logger)
	stageService := services.NewStageService(db, logger)
	alertService := services.NewAlertService(cfg.SMTP, logger)
	recordService := services.NewRecordService(db, alertService, logger)
	logService := services.NewUpdateLogService(db)
	importService := services.NewImportService(db, stageService, cfg.Bootstrap, logger)
	dashboardService := services.NewDashboardService(db, logger)
	analyticsService := services.NewAnalyticsService(db, logger)

	// Seed the super admin and default stage catalog on first run
	if err := authService.EnsureSuperAdmin(); err != nil {
		logger.Fatalf("Failed to ensure super admin: %v", err)
	}
	if err := stageService.EnsureDefaultStages(nil); err != nil {
		logger.Fatalf("Failed to ensure default stages: %v", err)
	}

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(authService, logger)
	userHandler := handlers.NewUserHandler(userService, logger)
	stageHandler := handlers.NewStageHandler(stageService, logger)
	recordHandler := handlers.NewRecordHandler(recordService, logService, logger)
	importHandler := handlers.NewImportHandler(importService, logger)
	dashboardHandler := handlers.NewDashboardHandler(dashboardService, logger)
	analyticsHandler := handlers.NewAnalyticsHandler(analyticsService, logger)

	// Initialize Gin router
	router := gin.New()

	// Middleware
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))

	// CORS configuration
	corsConfig := cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	router.Use(cors.New(corsConfig))

	// Health check endpoint
	router.GET("/health", healthCheckHandler(db))

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		// Authentication routes (public)
		auth := v1.Group("/auth")
		{
			auth.POST("/bootstrap", authHandler.Bootstrap)
			auth.POST("/login", authHandler.Login)
		}

		// Authenticated routes
		authed := v1.Group("")
		authed.Use(middleware.AuthMiddleware(jwtService, db, logger))
		{
			authed.GET("/auth/me", authHandler.Me)

			// Account management (super admin only except self-service)
			users := authed.Group("/users")
			{
				users.PATCH("/me", userHandler.UpdateSelf)
				users.GET("/assignees", userHandler.Assignees)

				admin := users.Group("")
				admin.Use(middleware.RequireRoles(models.RoleSuperAdmin))
				{
					admin.GET("", userHandler.List)
					admin.POST("", userHandler.Create)
					admin.GET("/:id", userHandler.Get)
					admin.PATCH("/:id", userHandler.Update)
					admin.DELETE("/:id", userHandler.Delete)
				}
			}

			// Stage catalog
			stages := authed.Group("/stages")
			{
				stages.GET("", stageHandler.List)

				admin := stages.Group("")
				admin.Use(middleware.RequireRoles(models.RoleSuperAdmin))
				{
					admin.POST("", stageHandler.Create)
					admin.PATCH("/:id", stageHandler.Update)
					admin.POST("/sync-po-received", stageHandler.SyncPOReceived)
				}
			}

			// Records
			records := authed.Group("/records")
			{
				records.GET("", recordHandler.List)
				records.GET("/:id", recordHandler.Get)
				records.PATCH("/:id", recordHandler.Patch)
				records.GET("/:id/history", recordHandler.History)
				records.POST("/:id/acknowledge-alert",
					middleware.RequireRoles(models.RoleSuperAdmin, models.RoleEmailTeam),
					recordHandler.AcknowledgeAlert)
				records.DELETE("/:id",
					middleware.RequireRoles(models.RoleSuperAdmin),
					recordHandler.Delete)

				importGroup := records.Group("/import")
				importGroup.Use(middleware.RequireRoles(models.RoleSuperAdmin))
				{
					importGroup.POST("", importHandler.Import)
					importGroup.POST("/preview", importHandler.Preview)
				}
			}

			// Dashboard
			dashboard := authed.Group("/dashboard")
			{
				dashboard.GET("/summary", dashboardHandler.Summary)
				dashboard.GET("/by-status", dashboardHandler.ByStatus)
				dashboard.GET("/by-assignee",
					middleware.RequireRoles(models.RoleSuperAdmin, models.RoleEmailTeam),
					dashboardHandler.ByAssignee)
			}

			// Analytics
			analytics := authed.Group("/analytics")
			analytics.Use(middleware.RequireRoles(models.RoleSuperAdmin, models.RoleEmailTeam))
			{
				analytics.GET("/stage-progress", analyticsHandler.StageProgress)
				analytics.GET("/stage-progress/detail", analyticsHandler.StageProgressDetail)
			}
		}
	}

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Infof("Server starting on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server exited successfully")
}

// requestLogger middleware for logging HTTP requests
func requestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		fields := logrus.Fields{
			"status":     c.Writer.Status(),
			"method":     c.Request.Method,
			"path":       path,
			"query":      query,
			"ip":         c.ClientIP(),
			"latency_ms": latency.Milliseconds(),
		}

		if user, exists := middleware.GetUser(c); exists {
			fields["user_id"] = user.ID
			fields["role"] = user.Role
		}

		entry := logger.WithFields(fields)
		switch {
		case c.Writer.Status() >= 500:
			entry.Error("Request failed")
		case c.Writer.Status() >= 400:
			entry.Warn("Request rejected")
		default:
			entry.Info("Request completed")
		}
	}
}

// healthCheckHandler verifies database connectivity
func healthCheckHandler(db interface{ Ping() error }) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  "database unreachable",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"version": version,
		})
	}
}
