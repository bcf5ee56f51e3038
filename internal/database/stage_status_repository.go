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

// StageStatusRepository handles per-record stage state rows
type StageStatusRepository struct {
	db sqlx.Ext
}

// NewStageStatusRepository creates a new stage status repository. Pass a
// transaction to run its operations atomically with other work.
func NewStageStatusRepository(db sqlx.Ext) *StageStatusRepository {
	return &StageStatusRepository{db: db}
}

// EnsureForRecord lazily creates an incomplete state row for every listed
// stage the record does not have one for yet. Idempotent.
func (r *StageStatusRepository) EnsureForRecord(recordID int64, stageIDs []int64, actorID *int64) error {
	if len(stageIDs) == 0 {
		return nil
	}

	now := time.Now().UTC()
	query := `
		INSERT INTO record_stage_statuses (record_id, stage_id, is_completed, created_at, updated_at, updated_by)
		VALUES ($1, $2, FALSE, $3, $3, $4)
		ON CONFLICT (record_id, stage_id) DO NOTHING
	`

	for _, stageID := range stageIDs {
		if _, err := r.db.Exec(query, recordID, stageID, now, actorID); err != nil {
			return fmt.Errorf("failed to ensure stage row for record %d stage %d: %w", recordID, stageID, err)
		}
	}

	return nil
}

// BackfillForActiveRecords creates an incomplete state row for the stage on
// every active record, for newly created stage definitions.
func (r *StageStatusRepository) BackfillForActiveRecords(stageID int64, actorID *int64) error {
	now := time.Now().UTC()
	query := `
		INSERT INTO record_stage_statuses (record_id, stage_id, is_completed, created_at, updated_at, updated_by)
		SELECT id, $1, FALSE, $2, $2, $3
		FROM records
		WHERE lifecycle = $4
		ON CONFLICT (record_id, stage_id) DO NOTHING
	`

	if _, err := r.db.Exec(query, stageID, now, actorID, models.LifecycleActive); err != nil {
		return fmt.Errorf("failed to backfill stage rows for stage %d: %w", stageID, err)
	}

	return nil
}

const stageViewQuery = `
	SELECT s.id, s.record_id, s.stage_id, s.is_completed, s.completed_at,
	       s.notes, s.created_at, s.updated_at, s.updated_by,
	       d.code AS stage_code, d.name AS stage_name,
	       d.display_order AS stage_display_order, d.is_active AS stage_is_active
	FROM record_stage_statuses s
	JOIN stage_definitions d ON d.id = s.stage_id
`

// ListForRecord returns the record's stage state rows joined with their
// definitions, including inactive stages; callers filter on StageIsActive.
func (r *StageStatusRepository) ListForRecord(recordID int64) ([]models.RecordStageView, error) {
	var views []models.RecordStageView
	query := stageViewQuery + `
		WHERE s.record_id = $1
		ORDER BY d.display_order ASC, d.id ASC
	`

	if err := sqlx.Select(r.db, &views, query, recordID); err != nil {
		return nil, fmt.Errorf("failed to list stage rows for record %d: %w", recordID, err)
	}

	return views, nil
}

// ListForRecords returns stage state views for many records in one query,
// keyed by record id.
func (r *StageStatusRepository) ListForRecords(recordIDs []int64) (map[int64][]models.RecordStageView, error) {
	if len(recordIDs) == 0 {
		return map[int64][]models.RecordStageView{}, nil
	}

	var views []models.RecordStageView
	query := stageViewQuery + `
		WHERE s.record_id = ANY($1)
		ORDER BY d.display_order ASC, d.id ASC
	`

	if err := sqlx.Select(r.db, &views, query, pq.Array(recordIDs)); err != nil {
		return nil, fmt.Errorf("failed to list stage rows for records: %w", err)
	}

	result := make(map[int64][]models.RecordStageView, len(recordIDs))
	for _, view := range views {
		result[view.RecordID] = append(result[view.RecordID], view)
	}

	return result, nil
}

// GetByRecordAndStage returns one state row joined with its definition.
func (r *StageStatusRepository) GetByRecordAndStage(recordID, stageID int64) (*models.RecordStageView, error) {
	var view models.RecordStageView
	query := stageViewQuery + ` WHERE s.record_id = $1 AND s.stage_id = $2`

	err := sqlx.Get(r.db, &view, query, recordID, stageID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("stage state")
		}
		return nil, fmt.Errorf("failed to get stage row for record %d stage %d: %w", recordID, stageID, err)
	}

	return &view, nil
}

// Update persists the completion state of one stage row.
func (r *StageStatusRepository) Update(st *models.RecordStageStatus) error {
	st.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE record_stage_statuses SET
			is_completed = $1, completed_at = $2, notes = $3,
			updated_at = $4, updated_by = $5
		WHERE id = $6
	`

	result, err := r.db.Exec(query,
		st.IsCompleted,
		st.CompletedAt,
		st.Notes,
		st.UpdatedAt,
		st.UpdatedBy,
		st.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update stage row: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if rows == 0 {
		return apperrors.NotFound("stage state")
	}

	return nil
}

// ListCompletedCodesByRecord maps active record ids to the codes of their
// completed active stages, for the per-assignee dashboard rollup.
func (r *StageStatusRepository) ListCompletedCodesByRecord() (map[int64][]string, error) {
	type row struct {
		RecordID int64  `db:"record_id"`
		Code     string `db:"code"`
	}

	var rows []row
	query := `
		SELECT s.record_id, d.code
		FROM record_stage_statuses s
		JOIN stage_definitions d ON d.id = s.stage_id
		JOIN records rec ON rec.id = s.record_id
		WHERE s.is_completed = TRUE AND d.is_active = TRUE AND rec.lifecycle = $1
	`

	if err := sqlx.Select(r.db, &rows, query, models.LifecycleActive); err != nil {
		return nil, fmt.Errorf("failed to list completed stage codes: %w", err)
	}

	result := make(map[int64][]string, len(rows))
	for _, item := range rows {
		result[item.RecordID] = append(result[item.RecordID], item.Code)
	}

	return result, nil
}
