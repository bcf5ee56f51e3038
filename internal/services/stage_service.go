package services

import (
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"github.com/cibics/tracking-backend/internal/apperrors"
	"github.com/cibics/tracking-backend/internal/database"
	"github.com/cibics/tracking-backend/internal/models"
)

// DefaultStages is the pipeline seeded into every deployment. Codes are
// stable identifiers; admins may add more stages after these.
var DefaultStages = []models.StageDefinition{
	{Code: "EMAIL_SENT_TO_CUSTOMER", Name: "Email Sent To Customer", DisplayOrder: 10},
	{Code: "DATA_RECEIVED_FROM_CUSTOMER", Name: "Data Received From Customer", DisplayOrder: 20},
	{Code: "EMAIL_SENT_TO_BSNL_FOR_FEASIBILITY", Name: "Email Sent To BSNL For Feasibility", DisplayOrder: 30},
	{Code: "EMAIL_RECEIVED_FROM_BSNL_AFTER_FEASIBILITY", Name: "Email Received From BSNL After Feasibility", DisplayOrder: 40},
	{Code: "PROPOSAL_SENT", Name: "Proposal Sent", DisplayOrder: 50},
	{Code: "PO_RECEIVED", Name: "PO Received", DisplayOrder: 60},
}

// StageService manages the stage catalog and per-record stage state.
type StageService struct {
	db     *sqlx.DB
	logger *logrus.Logger
}

// NewStageService creates a new stage service
func NewStageService(db *sqlx.DB, logger *logrus.Logger) *StageService {
	return &StageService{db: db, logger: logger}
}

// StageUpdate is a sparse stage definition patch. Code is immutable and
// cannot appear here.
type StageUpdate struct {
	Name         *string `json:"name"`
	DisplayOrder *int    `json:"display_order"`
	IsActive     *bool   `json:"is_active"`
}

// EnsureDefaultStages seeds the default pipeline. Existing stages with the
// same code are never touched; running this repeatedly is a no-op.
func (s *StageService) EnsureDefaultStages(actorID *int64) error {
	tx, err := s.db.Beginx()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stageRepo := database.NewStageRepository(tx)
	codes, err := stageRepo.ListCodes()
	if err != nil {
		return err
	}

	existing := make(map[string]struct{}, len(codes))
	for _, code := range codes {
		existing[code] = struct{}{}
	}

	for _, def := range DefaultStages {
		if _, ok := existing[def.Code]; ok {
			continue
		}

		stage := def
		stage.IsDefault = true
		stage.IsActive = true
		stage.UpdatedBy = actorID
		if err := stageRepo.Create(&stage); err != nil {
			return err
		}
		s.logger.WithField("code", stage.Code).Info("Seeded default stage")
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit default stages: %w", err)
	}

	return nil
}

// ActiveStages returns the active pipeline in order.
func (s *StageService) ActiveStages() ([]models.StageDefinition, error) {
	return database.NewStageRepository(s.db).ListActive()
}

// CreateStage adds an admin-defined stage and, atomically with it, creates
// an incomplete state row for every active record.
func (s *StageService) CreateStage(code, name string, displayOrder int, actorID int64) (*models.StageDefinition, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	name = strings.TrimSpace(name)

	tx, err := s.db.Beginx()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stageRepo := database.NewStageRepository(tx)
	existing, err := stageRepo.GetByCode(code)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, apperrors.Conflictf("stage code already exists")
	}

	stage := &models.StageDefinition{
		Code:         code,
		Name:         name,
		DisplayOrder: displayOrder,
		IsDefault:    false,
		IsActive:     true,
		UpdatedBy:    &actorID,
	}
	if err := stageRepo.Create(stage); err != nil {
		return nil, err
	}

	if err := database.NewStageStatusRepository(tx).BackfillForActiveRecords(stage.ID, &actorID); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit stage creation: %w", err)
	}

	s.logger.WithFields(logrus.Fields{"code": stage.Code, "id": stage.ID}).Info("Stage created")
	return stage, nil
}

// UpdateStage applies a sparse patch to a stage definition.
func (s *StageService) UpdateStage(id int64, patch StageUpdate, actorID int64) (*models.StageDefinition, error) {
	stageRepo := database.NewStageRepository(s.db)
	stage, err := stageRepo.GetByID(id)
	if err != nil {
		return nil, err
	}

	if patch.Name != nil {
		stage.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.DisplayOrder != nil {
		stage.DisplayOrder = *patch.DisplayOrder
	}
	if patch.IsActive != nil {
		stage.IsActive = *patch.IsActive
	}
	stage.UpdatedBy = &actorID

	if err := stageRepo.Update(stage); err != nil {
		return nil, err
	}

	return stage, nil
}

// ApplyStageCompletion sets the completion state and notes of one stage row
// and returns before/after snapshots for audit logging; callers log only
// when the two differ. Re-confirming a completed stage keeps its original
// timestamp; marking it incomplete always clears the timestamp.
func ApplyStageCompletion(st *models.RecordStageStatus, isCompleted bool, notes *string, actorID *int64) (string, string) {
	oldValue := models.StageSnapshotOf(st).LogValue()

	st.IsCompleted = isCompleted
	st.Notes = notes
	st.UpdatedBy = actorID
	if isCompleted {
		if st.CompletedAt == nil {
			now := time.Now().UTC()
			st.CompletedAt = &now
		}
	} else {
		st.CompletedAt = nil
	}

	return oldValue, models.StageSnapshotOf(st).LogValue()
}

// SyncPOReceivedFromRaw marks the PO_RECEIVED stage complete on every active
// record whose raw legacy status matches a PO synonym, rederiving statuses.
// Returns the number of records changed.
func (s *StageService) SyncPOReceivedFromRaw(actorID *int64) (int, error) {
	tx, err := s.db.Beginx()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stageRepo := database.NewStageRepository(tx)
	poStage, err := stageRepo.GetByCode(models.StatusPOReceived)
	if err != nil {
		return 0, err
	}
	if poStage == nil || !poStage.IsActive {
		return 0, nil
	}

	recordRepo := database.NewRecordRepository(tx)
	statusRepo := database.NewStageStatusRepository(tx)

	records, err := recordRepo.ListActive(nil)
	if err != nil {
		return 0, err
	}

	changed := 0
	for i := range records {
		rec := &records[i]
		if !IsPOReceivedRaw(rec.POStatusRaw) {
			continue
		}

		if err := statusRepo.EnsureForRecord(rec.ID, []int64{poStage.ID}, actorID); err != nil {
			return 0, err
		}

		row, err := statusRepo.GetByRecordAndStage(rec.ID, poStage.ID)
		if err != nil {
			return 0, err
		}

		stageChanged := false
		if !row.IsCompleted {
			row.IsCompleted = true
			if row.CompletedAt == nil {
				now := time.Now().UTC()
				row.CompletedAt = &now
			}
			row.UpdatedBy = actorID
			if err := statusRepo.Update(&row.RecordStageStatus); err != nil {
				return 0, err
			}
			stageChanged = true
		}

		views, err := statusRepo.ListForRecord(rec.ID)
		if err != nil {
			return 0, err
		}

		newStatus := DeriveStatus(rec, views)
		statusChanged := newStatus != rec.Status
		if statusChanged {
			if err := recordRepo.UpdateStatus(rec.ID, newStatus, actorID); err != nil {
				return 0, err
			}
		}

		if stageChanged || statusChanged {
			changed++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit PO sync: %w", err)
	}

	return changed, nil
}
