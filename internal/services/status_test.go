package services

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cibics/tracking-backend/internal/models"
)

func stageView(stageID int64, code string, displayOrder int, completed, active bool) models.RecordStageView {
	return models.RecordStageView{
		RecordStageStatus: models.RecordStageStatus{
			StageID:     stageID,
			IsCompleted: completed,
		},
		StageCode:         code,
		StageDisplayOrder: displayOrder,
		StageIsActive:     active,
	}
}

func TestDeriveStatus(t *testing.T) {
	t.Run("No Signals", func(t *testing.T) {
		rec := &models.Record{}
		assert.Equal(t, models.StatusNew, DeriveStatus(rec, nil))
	})

	t.Run("Client Email Only", func(t *testing.T) {
		email := "client@example.com"
		rec := &models.Record{ClientEmail: &email}
		assert.Equal(t, models.StatusEmailCaptured, DeriveStatus(rec, nil))
	})

	t.Run("Legacy PO Hint Beats Email", func(t *testing.T) {
		email := "client@example.com"
		raw := "PO Recieved"
		rec := &models.Record{ClientEmail: &email, POStatusRaw: &raw}
		assert.Equal(t, models.StatusPOReceived, DeriveStatus(rec, nil))
	})

	t.Run("Furthest Completed Stage Wins", func(t *testing.T) {
		email := "client@example.com"
		raw := "PO Received"
		rec := &models.Record{ClientEmail: &email, POStatusRaw: &raw}
		stages := []models.RecordStageView{
			stageView(1, "EMAIL_SENT_TO_CUSTOMER", 10, true, true),
			stageView(3, "PROPOSAL_SENT", 50, true, true),
			stageView(4, "PO_RECEIVED", 60, false, true),
		}
		assert.Equal(t, "PROPOSAL_SENT", DeriveStatus(rec, stages))
	})

	t.Run("Incomplete Stages Ignored", func(t *testing.T) {
		rec := &models.Record{}
		stages := []models.RecordStageView{
			stageView(1, "EMAIL_SENT_TO_CUSTOMER", 10, false, true),
		}
		assert.Equal(t, models.StatusNew, DeriveStatus(rec, stages))
	})

	t.Run("Inactive Stages Ignored", func(t *testing.T) {
		rec := &models.Record{}
		stages := []models.RecordStageView{
			stageView(1, "OLD_STAGE", 99, true, false),
			stageView(2, "EMAIL_SENT_TO_CUSTOMER", 10, true, true),
		}
		assert.Equal(t, "EMAIL_SENT_TO_CUSTOMER", DeriveStatus(rec, stages))
	})

	t.Run("Creation Order Breaks Display Order Ties", func(t *testing.T) {
		rec := &models.Record{}
		stages := []models.RecordStageView{
			stageView(5, "STAGE_A", 30, true, true),
			stageView(9, "STAGE_B", 30, true, true),
		}
		assert.Equal(t, "STAGE_B", DeriveStatus(rec, stages))
	})
}
