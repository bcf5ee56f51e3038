package services

import (
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"github.com/cibics/tracking-backend/internal/apperrors"
	"github.com/cibics/tracking-backend/internal/config"
	"github.com/cibics/tracking-backend/internal/database"
	"github.com/cibics/tracking-backend/internal/models"
	"github.com/cibics/tracking-backend/pkg/jwt"
	"github.com/cibics/tracking-backend/pkg/password"
)

// AuthService handles credential checks, token issuance and first-run
// bootstrap of the super admin account.
type AuthService struct {
	db     *sqlx.DB
	jwt    *jwt.Service
	cfg    config.BootstrapConfig
	logger *logrus.Logger
}

// NewAuthService creates a new auth service
func NewAuthService(db *sqlx.DB, jwtService *jwt.Service, cfg config.BootstrapConfig, logger *logrus.Logger) *AuthService {
	return &AuthService{db: db, jwt: jwtService, cfg: cfg, logger: logger}
}

// LoginResult is a successful authentication: the bearer token plus the
// authenticated user.
type LoginResult struct {
	AccessToken string       `json:"access_token"`
	TokenType   string       `json:"token_type"`
	User        *models.User `json:"user"`
}

// Login checks credentials and issues an access token. Wrong email and
// wrong password are indistinguishable to the caller.
func (s *AuthService) Login(email, plainPassword string) (*LoginResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	user, err := database.NewUserRepository(s.db).GetByEmail(email)
	if err != nil {
		return nil, apperrors.Forbiddenf("invalid email or password")
	}
	if !password.Verify(plainPassword, user.PasswordHash) {
		return nil, apperrors.Forbiddenf("invalid email or password")
	}

	token, err := s.jwt.GenerateAccessToken(user.ID)
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"user_id": user.ID,
		"role":    user.Role,
	}).Info("User logged in")

	return &LoginResult{AccessToken: token, TokenType: "bearer", User: user}, nil
}

// Bootstrap creates the initial super admin when no super admin exists.
// Once one exists the endpoint is permanently closed.
func (s *AuthService) Bootstrap() (*models.User, error) {
	exists, err := database.NewUserRepository(s.db).HasSuperAdmin()
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, apperrors.Conflictf("super admin already exists")
	}

	hash, err := password.Hash(s.cfg.SuperAdminPassword)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		FullName:     s.cfg.SuperAdminName,
		Email:        strings.ToLower(s.cfg.SuperAdminEmail),
		PasswordHash: hash,
		Role:         models.RoleSuperAdmin,
		ReceiveAlert: true,
		Lifecycle:    models.LifecycleActive,
	}
	if err := database.NewUserRepository(s.db).Create(user); err != nil {
		return nil, err
	}

	s.logger.WithField("email", user.Email).Info("Bootstrapped super admin account")
	return user, nil
}

// EnsureSuperAdmin bootstraps the super admin on startup if none exists.
func (s *AuthService) EnsureSuperAdmin() error {
	exists, err := database.NewUserRepository(s.db).HasSuperAdmin()
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	_, err = s.Bootstrap()
	return err
}
