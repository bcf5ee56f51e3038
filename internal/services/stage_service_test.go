package services

import (
	"io"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cibics/tracking-backend/internal/models"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "sqlmock"), mock
}

func discardLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestApplyStageCompletion(t *testing.T) {
	actorID := int64(3)

	t.Run("Complete Sets Timestamp", func(t *testing.T) {
		st := &models.RecordStageStatus{RecordID: 1, StageID: 2}

		oldValue, newValue := ApplyStageCompletion(st, true, strPtr("done"), &actorID)
		assert.NotEqual(t, oldValue, newValue)
		assert.True(t, st.IsCompleted)
		require.NotNil(t, st.CompletedAt)
		require.NotNil(t, st.Notes)
		assert.Equal(t, "done", *st.Notes)
		assert.Equal(t, &actorID, st.UpdatedBy)
	})

	t.Run("Reconfirm Keeps Original Timestamp", func(t *testing.T) {
		completedAt := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
		st := &models.RecordStageStatus{
			RecordID:    1,
			StageID:     2,
			IsCompleted: true,
			CompletedAt: &completedAt,
		}

		oldValue, newValue := ApplyStageCompletion(st, true, nil, &actorID)
		assert.Equal(t, oldValue, newValue)
		require.NotNil(t, st.CompletedAt)
		assert.Equal(t, completedAt, *st.CompletedAt)
	})

	t.Run("Uncomplete Clears Timestamp", func(t *testing.T) {
		completedAt := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
		st := &models.RecordStageStatus{
			RecordID:    1,
			StageID:     2,
			IsCompleted: true,
			CompletedAt: &completedAt,
		}

		oldValue, newValue := ApplyStageCompletion(st, false, nil, &actorID)
		assert.NotEqual(t, oldValue, newValue)
		assert.False(t, st.IsCompleted)
		assert.Nil(t, st.CompletedAt)
	})

	t.Run("Notes Change Alone Is A Change", func(t *testing.T) {
		completedAt := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
		st := &models.RecordStageStatus{
			RecordID:    1,
			StageID:     2,
			IsCompleted: true,
			CompletedAt: &completedAt,
			Notes:       strPtr("old note"),
		}

		oldValue, newValue := ApplyStageCompletion(st, true, strPtr("new note"), &actorID)
		assert.NotEqual(t, oldValue, newValue)
	})
}

func TestEnsureDefaultStages(t *testing.T) {
	t.Run("Fresh Database Seeds Every Stage", func(t *testing.T) {
		db, mock := newMockDB(t)
		svc := NewStageService(db, discardLogger())

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT code FROM stage_definitions`).
			WillReturnRows(sqlmock.NewRows([]string{"code"}))
		for i, def := range DefaultStages {
			mock.ExpectQuery(`INSERT INTO stage_definitions`).
				WithArgs(def.Code, def.Name, def.DisplayOrder, true, true,
					sqlmock.AnyArg(), sqlmock.AnyArg(), nil).
				WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(i + 1)))
		}
		mock.ExpectCommit()

		require.NoError(t, svc.EnsureDefaultStages(nil))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Second Run Inserts Nothing", func(t *testing.T) {
		db, mock := newMockDB(t)
		svc := NewStageService(db, discardLogger())

		codes := sqlmock.NewRows([]string{"code"})
		for _, def := range DefaultStages {
			codes.AddRow(def.Code)
		}

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT code FROM stage_definitions`).
			WillReturnRows(codes)
		mock.ExpectCommit()

		require.NoError(t, svc.EnsureDefaultStages(nil))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestDefaultStages(t *testing.T) {
	require.Len(t, DefaultStages, 6)

	// Display order is strictly increasing, so the pipeline order is
	// unambiguous.
	for i := 1; i < len(DefaultStages); i++ {
		assert.Greater(t, DefaultStages[i].DisplayOrder, DefaultStages[i-1].DisplayOrder)
	}

	assert.Equal(t, "EMAIL_SENT_TO_CUSTOMER", DefaultStages[0].Code)
	assert.Equal(t, "PO_RECEIVED", DefaultStages[len(DefaultStages)-1].Code)
}
