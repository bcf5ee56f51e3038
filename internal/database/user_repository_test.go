package database

import (
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cibics/tracking-backend/internal/apperrors"
	"github.com/cibics/tracking-backend/internal/models"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "sqlmock"), mock
}

func userRows(id int64, name, email string, role models.Role) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"id", "full_name", "email", "password_hash", "role", "receive_alert",
		"lifecycle", "created_at", "updated_at", "updated_by", "deleted_by", "deleted_at",
	}).AddRow(
		id, name, email, "$2a$10$hash", role, false,
		models.LifecycleActive, now, now, nil, nil, nil,
	)
}

func TestCreateUser(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db)

	t.Run("Success", func(t *testing.T) {
		mock.ExpectQuery(`INSERT INTO users`).
			WithArgs(
				"John Perera", "john.perera@cibics.local", sqlmock.AnyArg(),
				models.RoleAssignee, false, models.LifecycleActive,
				sqlmock.AnyArg(), sqlmock.AnyArg(), nil,
			).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(5)))

		user := &models.User{
			FullName:     "John Perera",
			Email:        "john.perera@cibics.local",
			PasswordHash: "$2a$10$hash",
			Role:         models.RoleAssignee,
		}
		err := repo.Create(user)
		require.NoError(t, err)
		assert.Equal(t, int64(5), user.ID)
		assert.Equal(t, models.LifecycleActive, user.Lifecycle)

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Database Error", func(t *testing.T) {
		mock.ExpectQuery(`INSERT INTO users`).
			WillReturnError(fmt.Errorf("database error"))

		err := repo.Create(&models.User{FullName: "X", Email: "x@y.z"})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to create user")

		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGetUserByID(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db)

	t.Run("Success", func(t *testing.T) {
		mock.ExpectQuery(`SELECT (.+) FROM users WHERE id = \$1`).
			WithArgs(int64(3), models.LifecycleActive).
			WillReturnRows(userRows(3, "Jane Silva", "jane@cibics.local", models.RoleSuperAdmin))

		user, err := repo.GetByID(3)
		require.NoError(t, err)
		assert.Equal(t, int64(3), user.ID)
		assert.Equal(t, "Jane Silva", user.FullName)
		assert.Equal(t, models.RoleSuperAdmin, user.Role)

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Not Found", func(t *testing.T) {
		mock.ExpectQuery(`SELECT (.+) FROM users WHERE id = \$1`).
			WithArgs(int64(99), models.LifecycleActive).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		user, err := repo.GetByID(99)
		assert.Nil(t, user)

		var notFound *apperrors.NotFoundError
		require.ErrorAs(t, err, &notFound)

		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestEmailExists(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM users`).
		WithArgs("taken@cibics.local", int64(0)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	exists, err := repo.EmailExists("taken@cibics.local", 0)
	require.NoError(t, err)
	assert.True(t, exists)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM users`).
		WithArgs("free@cibics.local", int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	exists, err = repo.EmailExists("free@cibics.local", 7)
	require.NoError(t, err)
	assert.False(t, exists)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCountActiveSuperAdmins(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM users`).
		WithArgs(models.RoleSuperAdmin, models.LifecycleActive).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	count, err := repo.CountActiveSuperAdmins()
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSoftDeleteUser(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db)

	t.Run("Success", func(t *testing.T) {
		mock.ExpectExec(`UPDATE users`).
			WithArgs(models.LifecycleSoftDeleted, sqlmock.AnyArg(), int64(2), int64(5), models.LifecycleActive).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.SoftDelete(5, 2)
		assert.NoError(t, err)

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Already Deleted", func(t *testing.T) {
		mock.ExpectExec(`UPDATE users`).
			WithArgs(models.LifecycleSoftDeleted, sqlmock.AnyArg(), int64(2), int64(5), models.LifecycleActive).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.SoftDelete(5, 2)

		var notFound *apperrors.NotFoundError
		require.ErrorAs(t, err, &notFound)

		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
