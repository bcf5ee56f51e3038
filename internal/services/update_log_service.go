package services

import (
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/cibics/tracking-backend/internal/apperrors"
	"github.com/cibics/tracking-backend/internal/database"
	"github.com/cibics/tracking-backend/internal/models"
)

// HistoryEntry is one audit entry in API form. Stage snapshots are decoded
// so callers never parse the stored serialization themselves.
type HistoryEntry struct {
	ID               int64      `json:"id"`
	UpdatedByUserID  *int64     `json:"updated_by_user_id"`
	FieldName        string     `json:"field_name"`
	OldValue         string     `json:"old_value"`
	NewValue         string     `json:"new_value"`
	StageID          *int64     `json:"stage_id,omitempty"`
	StageCompleted   *bool      `json:"stage_completed,omitempty"`
	StageNotes       *string    `json:"stage_notes,omitempty"`
	StageCompletedAt *time.Time `json:"stage_completed_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

// UpdateLogService reads a record's change history for the API.
type UpdateLogService struct {
	db *sqlx.DB
}

// NewUpdateLogService creates a new update log service
func NewUpdateLogService(db *sqlx.DB) *UpdateLogService {
	return &UpdateLogService{db: db}
}

// History returns a record's changes, newest first. Assignees may only read
// the history of records they own.
func (s *UpdateLogService) History(recordID int64, actor *models.User) ([]HistoryEntry, error) {
	rec, err := database.NewRecordRepository(s.db).GetByID(recordID)
	if err != nil {
		return nil, err
	}
	if actor.Role == models.RoleAssignee && (rec.AssigneeID == nil || *rec.AssigneeID != actor.ID) {
		return nil, apperrors.Forbiddenf("not allowed for this record")
	}

	raw, err := database.NewUpdateLogRepository(s.db).ListForRecord(recordID)
	if err != nil {
		return nil, err
	}

	entries := make([]HistoryEntry, 0, len(raw))
	for _, entry := range raw {
		item := HistoryEntry{
			ID:              entry.ID,
			UpdatedByUserID: entry.UpdatedByUserID,
			FieldName:       entry.FieldName,
			OldValue:        entry.OldValue,
			NewValue:        entry.NewValue,
			CreatedAt:       entry.CreatedAt,
		}

		if decoded, err := models.DecodeLoggedValue(entry.FieldName, entry.NewValue); err == nil {
			if change, ok := decoded.(models.StageChange); ok {
				stageID := change.StageID
				completed := change.IsCompleted
				notes := change.Notes
				item.StageID = &stageID
				item.StageCompleted = &completed
				item.StageNotes = &notes
				item.StageCompletedAt = change.CompletedAt
			}
		}

		entries = append(entries, item)
	}

	return entries, nil
}
