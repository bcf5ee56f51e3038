package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application. It is built once at
// startup and passed explicitly to every component.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	JWT       JWTConfig
	SMTP      SMTPConfig
	CORS      CORSConfig
	Bootstrap BootstrapConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port        string
	Environment string // development, staging, production
	LogLevel    string // debug, info, warn, error
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	URL                string
	MaxConnections     int
	MaxIdleConnections int
	ConnMaxLifetime    time.Duration
}

// JWTConfig holds JWT-related configuration
type JWTConfig struct {
	Secret            string
	AccessTokenExpiry time.Duration
}

// SMTPConfig holds email alert delivery configuration. An empty Host
// disables delivery; alerts are then only logged.
type SMTPConfig struct {
	Host      string
	Port      int
	Username  string
	Password  string
	UseTLS    bool
	FromEmail string
}

// CORSConfig holds CORS configuration
type CORSConfig struct {
	AllowedOrigins []string
}

// BootstrapConfig holds the defaults used to seed the first super admin and
// to provision assignee accounts during import.
type BootstrapConfig struct {
	SuperAdminName      string
	SuperAdminEmail     string
	SuperAdminPassword  string
	AssigneePassword    string
	AssigneeEmailDomain string
}

// Load reads configuration from environment variables, with .env support
// for local development.
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error in production)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:        getEnv("PORT", "8200"),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
		},
		Database: DatabaseConfig{
			URL:                getEnv("DATABASE_URL", ""),
			MaxConnections:     getEnvAsInt("DB_MAX_CONNECTIONS", 25),
			MaxIdleConnections: getEnvAsInt("DB_MAX_IDLE_CONNECTIONS", 5),
			ConnMaxLifetime:    getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		JWT: JWTConfig{
			Secret:            getEnv("JWT_SECRET", ""),
			AccessTokenExpiry: getEnvAsDuration("JWT_ACCESS_TOKEN_EXPIRY", 12*time.Hour),
		},
		SMTP: SMTPConfig{
			Host:      getEnv("SMTP_HOST", ""),
			Port:      getEnvAsInt("SMTP_PORT", 587),
			Username:  getEnv("SMTP_USERNAME", getEnv("SMTP_USER", "")),
			Password:  getEnv("SMTP_PASSWORD", ""),
			UseTLS:    getEnvAsBool("SMTP_USE_TLS", true),
			FromEmail: getEnv("SMTP_FROM_EMAIL", "noreply@cibics.local"),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3100", "http://127.0.0.1:3100"}),
		},
		Bootstrap: BootstrapConfig{
			SuperAdminName:      getEnv("DEFAULT_SUPER_ADMIN_NAME", "Super Admin"),
			SuperAdminEmail:     getEnv("DEFAULT_SUPER_ADMIN_EMAIL", "admin@cibics.local"),
			SuperAdminPassword:  getEnv("DEFAULT_SUPER_ADMIN_PASSWORD", "Admin@123"),
			AssigneePassword:    getEnv("DEFAULT_ASSIGNEE_PASSWORD", "Assignee@123"),
			AssigneeEmailDomain: getEnv("ASSIGNEE_EMAIL_DOMAIN", "cibics.local"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate checks that required configuration is present
func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if len(c.JWT.Secret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters")
	}
	return nil
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Invalid value for %s, using default: %d", key, defaultValue)
		return defaultValue
	}
	return value
}

// getEnvAsBool gets an environment variable as a boolean with a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		log.Printf("Invalid value for %s, using default: %t", key, defaultValue)
		return defaultValue
	}
	return value
}

// getEnvAsDuration gets an environment variable as a duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		log.Printf("Invalid value for %s, using default: %s", key, defaultValue)
		return defaultValue
	}
	return value
}

// getEnvAsSlice gets an environment variable as a comma-separated slice
func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	parts := strings.Split(valueStr, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}
