package services

import (
	"github.com/cibics/tracking-backend/internal/models"
)

// DeriveStatus maps a record's stage completion set plus its fallback
// signals to the single summary status. Deterministic and side-effect free;
// callers overwrite the record's cached status with the result after every
// mutation that touches stage state, client email or the raw legacy status.
//
// Precedence: furthest completed active stage (greatest display order,
// creation order breaking ties), then the PO-received legacy hint, then a
// captured client email, then NEW.
func DeriveStatus(rec *models.Record, stages []models.RecordStageView) string {
	var furthest *models.RecordStageView
	for i := range stages {
		st := &stages[i]
		if !st.IsCompleted || !st.StageIsActive {
			continue
		}
		if furthest == nil ||
			st.StageDisplayOrder > furthest.StageDisplayOrder ||
			(st.StageDisplayOrder == furthest.StageDisplayOrder && st.StageID > furthest.StageID) {
			furthest = st
		}
	}
	if furthest != nil {
		return furthest.StageCode
	}

	if IsPOReceivedRaw(rec.POStatusRaw) {
		return models.StatusPOReceived
	}

	if rec.ClientEmail != nil && *rec.ClientEmail != "" {
		return models.StatusEmailCaptured
	}

	return models.StatusNew
}
