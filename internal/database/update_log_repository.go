package database

import (
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/cibics/tracking-backend/internal/models"
)

// UpdateLogRepository appends to and reads the field-change log. The table
// is append-only: there are no update or delete operations.
type UpdateLogRepository struct {
	db sqlx.Ext
}

// NewUpdateLogRepository creates a new update log repository. Pass a
// transaction to run its operations atomically with other work.
func NewUpdateLogRepository(db sqlx.Ext) *UpdateLogRepository {
	return &UpdateLogRepository{db: db}
}

// Append writes one immutable before/after entry.
func (r *UpdateLogRepository) Append(entry *models.RecordUpdateLog) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO record_update_logs (record_id, updated_by_user_id, field_name, old_value, new_value, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`

	err := sqlx.Get(r.db, &entry.ID, query,
		entry.RecordID,
		entry.UpdatedByUserID,
		entry.FieldName,
		entry.OldValue,
		entry.NewValue,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append update log: %w", err)
	}

	return nil
}

// ListWindow returns log entries created in [from, to), joined with the
// affected record's current assignee. Entries for soft-deleted records are
// excluded.
func (r *UpdateLogRepository) ListWindow(from, to time.Time) ([]models.UpdateLogWithAssignee, error) {
	var entries []models.UpdateLogWithAssignee
	query := `
		SELECT l.id, l.record_id, l.updated_by_user_id, l.field_name,
		       l.old_value, l.new_value, l.created_at,
		       rec.assignee_id
		FROM record_update_logs l
		JOIN records rec ON rec.id = l.record_id
		WHERE l.created_at >= $1 AND l.created_at < $2 AND rec.lifecycle = $3
		ORDER BY l.created_at ASC, l.id ASC
	`

	if err := sqlx.Select(r.db, &entries, query, from, to, models.LifecycleActive); err != nil {
		return nil, fmt.Errorf("failed to list update logs: %w", err)
	}

	return entries, nil
}

// ListForRecord returns a record's full change history, newest first.
func (r *UpdateLogRepository) ListForRecord(recordID int64) ([]models.RecordUpdateLog, error) {
	var entries []models.RecordUpdateLog
	query := `
		SELECT id, record_id, updated_by_user_id, field_name, old_value, new_value, created_at
		FROM record_update_logs
		WHERE record_id = $1
		ORDER BY created_at DESC, id DESC
	`

	if err := sqlx.Select(r.db, &entries, query, recordID); err != nil {
		return nil, fmt.Errorf("failed to list update logs for record %d: %w", recordID, err)
	}

	return entries, nil
}
