package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/cibics/tracking-backend/internal/apperrors"
	"github.com/cibics/tracking-backend/internal/models"
)

// StageRepository handles stage definition database operations
type StageRepository struct {
	db sqlx.Ext
}

// NewStageRepository creates a new stage repository. Pass a transaction to
// run its operations atomically with other work.
func NewStageRepository(db sqlx.Ext) *StageRepository {
	return &StageRepository{db: db}
}

const stageColumns = `
	id, code, name, display_order, is_default, is_active,
	created_at, updated_at, updated_by
`

// Create inserts a new stage definition and fills in its generated id.
func (r *StageRepository) Create(stage *models.StageDefinition) error {
	now := time.Now().UTC()
	stage.CreatedAt = now
	stage.UpdatedAt = now

	query := `
		INSERT INTO stage_definitions (
			code, name, display_order, is_default, is_active,
			created_at, updated_at, updated_by
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`

	err := sqlx.Get(r.db, &stage.ID, query,
		stage.Code,
		stage.Name,
		stage.DisplayOrder,
		stage.IsDefault,
		stage.IsActive,
		stage.CreatedAt,
		stage.UpdatedAt,
		stage.UpdatedBy,
	)
	if err != nil {
		return fmt.Errorf("failed to create stage: %w", err)
	}

	return nil
}

// GetByID returns a stage definition by id, active or not.
func (r *StageRepository) GetByID(id int64) (*models.StageDefinition, error) {
	var stage models.StageDefinition
	query := `SELECT ` + stageColumns + ` FROM stage_definitions WHERE id = $1`

	err := sqlx.Get(r.db, &stage, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("stage")
		}
		return nil, fmt.Errorf("failed to get stage by id: %w", err)
	}

	return &stage, nil
}

// GetByCode returns a stage definition by code, case-insensitively, or nil
// when none exists.
func (r *StageRepository) GetByCode(code string) (*models.StageDefinition, error) {
	var stage models.StageDefinition
	query := `SELECT ` + stageColumns + ` FROM stage_definitions WHERE LOWER(code) = LOWER($1)`

	err := sqlx.Get(r.db, &stage, query, code)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get stage by code: %w", err)
	}

	return &stage, nil
}

// ListCodes returns the codes of every stage definition, active or not.
func (r *StageRepository) ListCodes() ([]string, error) {
	var codes []string
	query := `SELECT code FROM stage_definitions`

	if err := sqlx.Select(r.db, &codes, query); err != nil {
		return nil, fmt.Errorf("failed to list stage codes: %w", err)
	}

	return codes, nil
}

// ListActive returns active stages in pipeline order: display_order
// ascending, creation order breaking ties.
func (r *StageRepository) ListActive() ([]models.StageDefinition, error) {
	var stages []models.StageDefinition
	query := `
		SELECT ` + stageColumns + `
		FROM stage_definitions
		WHERE is_active = TRUE
		ORDER BY display_order ASC, id ASC
	`

	if err := sqlx.Select(r.db, &stages, query); err != nil {
		return nil, fmt.Errorf("failed to list active stages: %w", err)
	}

	return stages, nil
}

// Update persists the mutable fields of a stage definition. Code is
// immutable and deliberately absent.
func (r *StageRepository) Update(stage *models.StageDefinition) error {
	stage.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE stage_definitions SET
			name = $1, display_order = $2, is_active = $3,
			updated_at = $4, updated_by = $5
		WHERE id = $6
	`

	result, err := r.db.Exec(query,
		stage.Name,
		stage.DisplayOrder,
		stage.IsActive,
		stage.UpdatedAt,
		stage.UpdatedBy,
		stage.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update stage: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if rows == 0 {
		return apperrors.NotFound("stage")
	}

	return nil
}
