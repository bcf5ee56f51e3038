package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/cibics/tracking-backend/internal/apperrors"
	"github.com/cibics/tracking-backend/internal/models"
)

// UserRepository handles user database operations
type UserRepository struct {
	db sqlx.Ext
}

// NewUserRepository creates a new user repository. Pass a transaction to run
// its operations atomically with other work.
func NewUserRepository(db sqlx.Ext) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `
	id, full_name, email, password_hash, role, receive_alert,
	lifecycle, created_at, updated_at, updated_by, deleted_by, deleted_at
`

// Create inserts a new user and fills in its generated id.
func (r *UserRepository) Create(user *models.User) error {
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now
	if user.Lifecycle == "" {
		user.Lifecycle = models.LifecycleActive
	}

	query := `
		INSERT INTO users (
			full_name, email, password_hash, role, receive_alert,
			lifecycle, created_at, updated_at, updated_by
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`

	err := sqlx.Get(r.db, &user.ID, query,
		user.FullName,
		user.Email,
		user.PasswordHash,
		user.Role,
		user.ReceiveAlert,
		user.Lifecycle,
		user.CreatedAt,
		user.UpdatedAt,
		user.UpdatedBy,
	)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

// GetByID returns an active user by id.
func (r *UserRepository) GetByID(id int64) (*models.User, error) {
	var user models.User
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1 AND lifecycle = $2`

	err := sqlx.Get(r.db, &user, query, id, models.LifecycleActive)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("user")
		}
		return nil, fmt.Errorf("failed to get user by id: %w", err)
	}

	return &user, nil
}

// GetByEmail returns an active user by email, case-insensitively.
func (r *UserRepository) GetByEmail(email string) (*models.User, error) {
	var user models.User
	query := `SELECT ` + userColumns + ` FROM users WHERE LOWER(email) = LOWER($1) AND lifecycle = $2`

	err := sqlx.Get(r.db, &user, query, email, models.LifecycleActive)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("user")
		}
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}

	return &user, nil
}

// EmailExists reports whether any user (regardless of lifecycle) already
// holds the email. excludeID skips one user, for self-updates.
func (r *UserRepository) EmailExists(email string, excludeID int64) (bool, error) {
	var count int
	query := `SELECT COUNT(*) FROM users WHERE LOWER(email) = LOWER($1) AND id <> $2`

	if err := sqlx.Get(r.db, &count, query, email, excludeID); err != nil {
		return false, fmt.Errorf("failed to check email existence: %w", err)
	}

	return count > 0, nil
}

// List returns all active users ordered by role then name.
func (r *UserRepository) List() ([]models.User, error) {
	var users []models.User
	query := `SELECT ` + userColumns + ` FROM users WHERE lifecycle = $1 ORDER BY role ASC, full_name ASC`

	if err := sqlx.Select(r.db, &users, query, models.LifecycleActive); err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	return users, nil
}

// ListByIDs returns users by id in one query, keyed by id, regardless of
// lifecycle so historical assignees still resolve for display.
func (r *UserRepository) ListByIDs(ids []int64) (map[int64]models.User, error) {
	if len(ids) == 0 {
		return map[int64]models.User{}, nil
	}

	var users []models.User
	query := `SELECT ` + userColumns + ` FROM users WHERE id = ANY($1)`

	if err := sqlx.Select(r.db, &users, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("failed to list users by ids: %w", err)
	}

	result := make(map[int64]models.User, len(users))
	for _, user := range users {
		result[user.ID] = user
	}

	return result, nil
}

// ListAssignees returns active users that can own records.
func (r *UserRepository) ListAssignees() ([]models.User, error) {
	var users []models.User
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE role IN ($1, $2) AND lifecycle = $3
		ORDER BY full_name ASC
	`

	err := sqlx.Select(r.db, &users, query, models.RoleAssignee, models.RoleSuperAdmin, models.LifecycleActive)
	if err != nil {
		return nil, fmt.Errorf("failed to list assignees: %w", err)
	}

	return users, nil
}

// ListAssigneeNames returns the full names of every active record-owning
// user, for the import engine's provisioned-name check.
func (r *UserRepository) ListAssigneeNames() ([]string, error) {
	var names []string
	query := `
		SELECT full_name
		FROM users
		WHERE role IN ($1, $2) AND lifecycle = $3
	`

	err := sqlx.Select(r.db, &names, query, models.RoleAssignee, models.RoleSuperAdmin, models.LifecycleActive)
	if err != nil {
		return nil, fmt.Errorf("failed to list assignee names: %w", err)
	}

	return names, nil
}

// FindAssigneeByName returns the active record-owning user whose full name
// matches case-insensitively, or nil when none does.
func (r *UserRepository) FindAssigneeByName(name string) (*models.User, error) {
	var user models.User
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE role IN ($1, $2) AND lifecycle = $3 AND LOWER(full_name) = LOWER($4)
		LIMIT 1
	`

	err := sqlx.Get(r.db, &user, query, models.RoleAssignee, models.RoleSuperAdmin, models.LifecycleActive, name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find assignee by name: %w", err)
	}

	return &user, nil
}

// CountActiveSuperAdmins returns the number of active super admins, used to
// protect the last remaining one.
func (r *UserRepository) CountActiveSuperAdmins() (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM users WHERE role = $1 AND lifecycle = $2`

	if err := sqlx.Get(r.db, &count, query, models.RoleSuperAdmin, models.LifecycleActive); err != nil {
		return 0, fmt.Errorf("failed to count super admins: %w", err)
	}

	return count, nil
}

// HasSuperAdmin reports whether any active super admin exists.
func (r *UserRepository) HasSuperAdmin() (bool, error) {
	count, err := r.CountActiveSuperAdmins()
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListAlertRecipients returns the emails of active users that opted into
// email-captured alerts.
func (r *UserRepository) ListAlertRecipients() ([]string, error) {
	var emails []string
	query := `
		SELECT DISTINCT email
		FROM users
		WHERE lifecycle = $1 AND receive_alert = TRUE
		ORDER BY email ASC
	`

	if err := sqlx.Select(r.db, &emails, query, models.LifecycleActive); err != nil {
		return nil, fmt.Errorf("failed to list alert recipients: %w", err)
	}

	return emails, nil
}

// Update persists the mutable fields of a user.
func (r *UserRepository) Update(user *models.User) error {
	user.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE users SET
			full_name = $1, email = $2, password_hash = $3, role = $4,
			receive_alert = $5, updated_at = $6, updated_by = $7
		WHERE id = $8
	`

	result, err := r.db.Exec(query,
		user.FullName,
		user.Email,
		user.PasswordHash,
		user.Role,
		user.ReceiveAlert,
		user.UpdatedAt,
		user.UpdatedBy,
		user.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if rows == 0 {
		return apperrors.NotFound("user")
	}

	return nil
}

// SoftDelete marks a user soft-deleted and disables their alerts.
func (r *UserRepository) SoftDelete(id int64, actorID int64) error {
	now := time.Now().UTC()
	query := `
		UPDATE users SET
			lifecycle = $1, receive_alert = FALSE,
			updated_at = $2, updated_by = $3, deleted_by = $3, deleted_at = $2
		WHERE id = $4 AND lifecycle = $5
	`

	result, err := r.db.Exec(query, models.LifecycleSoftDeleted, now, actorID, id, models.LifecycleActive)
	if err != nil {
		return fmt.Errorf("failed to soft delete user: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if rows == 0 {
		return apperrors.NotFound("user")
	}

	return nil
}
