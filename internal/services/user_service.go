package services

import (
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"github.com/cibics/tracking-backend/internal/apperrors"
	"github.com/cibics/tracking-backend/internal/database"
	"github.com/cibics/tracking-backend/internal/models"
	"github.com/cibics/tracking-backend/pkg/password"
)

// UserService manages accounts. The one hard rule it enforces everywhere:
// the system never drops to zero active super admins.
type UserService struct {
	db     *sqlx.DB
	logger *logrus.Logger
}

// NewUserService creates a new user service
func NewUserService(db *sqlx.DB, logger *logrus.Logger) *UserService {
	return &UserService{db: db, logger: logger}
}

// CreateUserRequest carries the fields for a new account.
type CreateUserRequest struct {
	FullName     string      `json:"full_name" binding:"required"`
	Email        string      `json:"email" binding:"required,email"`
	Password     string      `json:"password" binding:"required,min=8"`
	Role         models.Role `json:"role" binding:"required"`
	ReceiveAlert bool        `json:"receive_alert"`
}

// UserPatch is a sparse account mutation applied by a super admin.
type UserPatch struct {
	FullName     *string      `json:"full_name"`
	Email        *string      `json:"email"`
	Password     *string      `json:"password"`
	Role         *models.Role `json:"role"`
	ReceiveAlert *bool        `json:"receive_alert"`
}

// SelfPatch is the subset of fields a user may change on their own account.
// Changing the password requires proving the current one.
type SelfPatch struct {
	FullName        *string `json:"full_name"`
	Password        *string `json:"password"`
	CurrentPassword *string `json:"current_password"`
}

// List returns all active users.
func (s *UserService) List() ([]models.User, error) {
	return database.NewUserRepository(s.db).List()
}

// Assignees returns all active users who can own records.
func (s *UserService) Assignees() ([]models.User, error) {
	return database.NewUserRepository(s.db).ListAssignees()
}

// Get returns one active user.
func (s *UserService) Get(id int64) (*models.User, error) {
	return database.NewUserRepository(s.db).GetByID(id)
}

// Create provisions a new account.
func (s *UserService) Create(req CreateUserRequest) (*models.User, error) {
	if !req.Role.Valid() {
		return nil, apperrors.Validationf("invalid role: %s", req.Role)
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	repo := database.NewUserRepository(s.db)

	exists, err := repo.EmailExists(email, 0)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, apperrors.Conflictf("email already in use: %s", email)
	}

	hash, err := password.Hash(req.Password)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		FullName:     strings.TrimSpace(req.FullName),
		Email:        email,
		PasswordHash: hash,
		Role:         req.Role,
		ReceiveAlert: req.ReceiveAlert,
		Lifecycle:    models.LifecycleActive,
	}
	if err := repo.Create(user); err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"user_id": user.ID,
		"role":    user.Role,
	}).Info("User created")

	return user, nil
}

// Update applies a sparse patch to an account. Demoting the last active
// super admin is refused.
func (s *UserService) Update(id int64, patch UserPatch, actorID int64) (*models.User, error) {
	repo := database.NewUserRepository(s.db)
	user, err := repo.GetByID(id)
	if err != nil {
		return nil, err
	}

	if patch.Role != nil && *patch.Role != user.Role {
		if !patch.Role.Valid() {
			return nil, apperrors.Validationf("invalid role: %s", *patch.Role)
		}
		if user.Role == models.RoleSuperAdmin {
			if err := s.refuseIfLastSuperAdmin(repo, "demote"); err != nil {
				return nil, err
			}
		}
		user.Role = *patch.Role
	}

	if patch.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*patch.Email))
		if email == "" {
			return nil, apperrors.Validationf("email cannot be empty")
		}
		if email != user.Email {
			exists, err := repo.EmailExists(email, user.ID)
			if err != nil {
				return nil, err
			}
			if exists {
				return nil, apperrors.Conflictf("email already in use: %s", email)
			}
			user.Email = email
		}
	}

	if patch.FullName != nil {
		name := strings.TrimSpace(*patch.FullName)
		if name == "" {
			return nil, apperrors.Validationf("full_name cannot be empty")
		}
		user.FullName = name
	}

	if patch.Password != nil {
		if len(*patch.Password) < 8 {
			return nil, apperrors.Validationf("password must be at least 8 characters")
		}
		hash, err := password.Hash(*patch.Password)
		if err != nil {
			return nil, err
		}
		user.PasswordHash = hash
	}

	if patch.ReceiveAlert != nil {
		user.ReceiveAlert = *patch.ReceiveAlert
	}

	if err := repo.Update(user); err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"user_id":  user.ID,
		"actor_id": actorID,
	}).Info("User updated")

	return user, nil
}

// UpdateSelf lets any user change their own name and password.
func (s *UserService) UpdateSelf(actor *models.User, patch SelfPatch) (*models.User, error) {
	if patch.Password != nil {
		if patch.CurrentPassword == nil || !password.Verify(*patch.CurrentPassword, actor.PasswordHash) {
			return nil, apperrors.Forbiddenf("current password is incorrect")
		}
	}
	userPatch := UserPatch{FullName: patch.FullName, Password: patch.Password}
	return s.Update(actor.ID, userPatch, actor.ID)
}

// SoftDelete disables an account and unassigns its records. Users cannot
// delete themselves, and the last active super admin cannot be deleted.
func (s *UserService) SoftDelete(id int64, actorID int64) error {
	if id == actorID {
		return apperrors.Validationf("you cannot delete your own account")
	}

	tx, err := s.db.Beginx()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	repo := database.NewUserRepository(tx)
	user, err := repo.GetByID(id)
	if err != nil {
		return err
	}

	if user.Role == models.RoleSuperAdmin {
		if err := s.refuseIfLastSuperAdmin(repo, "delete"); err != nil {
			return err
		}
	}

	if err := repo.SoftDelete(id, actorID); err != nil {
		return err
	}
	if err := database.NewRecordRepository(tx).UnassignFromUser(id, actorID); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit user deletion: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"user_id":  id,
		"actor_id": actorID,
	}).Info("User soft-deleted")

	return nil
}

func (s *UserService) refuseIfLastSuperAdmin(repo *database.UserRepository, action string) error {
	count, err := repo.CountActiveSuperAdmins()
	if err != nil {
		return err
	}
	if count <= 1 {
		return apperrors.Conflictf("cannot %s the last super admin", action)
	}
	return nil
}
