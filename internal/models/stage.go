package models

import "time"

// StageDefinition is one named, ordered step of the pipeline. Code is
// immutable once created. Stages are deactivated, never deleted, so their
// historical state rows stay interpretable.
type StageDefinition struct {
	ID           int64     `db:"id" json:"id"`
	Code         string    `db:"code" json:"code"`
	Name         string    `db:"name" json:"name"`
	DisplayOrder int       `db:"display_order" json:"display_order"`
	IsDefault    bool      `db:"is_default" json:"is_default"`
	IsActive     bool      `db:"is_active" json:"is_active"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
	UpdatedBy    *int64    `db:"updated_by" json:"updated_by,omitempty"`
}

// RecordStageStatus is the completion state of one record for one stage.
// Exactly one row exists per (record, stage) pair, created lazily.
type RecordStageStatus struct {
	ID          int64      `db:"id" json:"id"`
	RecordID    int64      `db:"record_id" json:"record_id"`
	StageID     int64      `db:"stage_id" json:"stage_id"`
	IsCompleted bool       `db:"is_completed" json:"is_completed"`
	CompletedAt *time.Time `db:"completed_at" json:"completed_at"`
	Notes       *string    `db:"notes" json:"notes"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
	UpdatedBy   *int64     `db:"updated_by" json:"updated_by,omitempty"`
}

// RecordStageView is a stage status joined with its definition, the shape
// status derivation and API serialization work from.
type RecordStageView struct {
	RecordStageStatus
	StageCode         string `db:"stage_code" json:"stage_code"`
	StageName         string `db:"stage_name" json:"stage_name"`
	StageDisplayOrder int    `db:"stage_display_order" json:"display_order"`
	StageIsActive     bool   `db:"stage_is_active" json:"-"`
}
