package services

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"github.com/cibics/tracking-backend/internal/apperrors"
	"github.com/cibics/tracking-backend/internal/database"
	"github.com/cibics/tracking-backend/internal/models"
)

// Fields each role may touch on the edit path. Super admins are unrestricted.
var (
	assigneeAllowedFields  = map[string]struct{}{"customer_name": {}, "mobile_no": {}, "client_email": {}, "notes": {}}
	emailTeamAllowedFields = map[string]struct{}{"stage_updates": {}, "email_alert_pending": {}, "notes": {}}
)

// StageUpdateRequest is one stage toggle inside a record patch.
type StageUpdateRequest struct {
	StageID     int64   `json:"stage_id" binding:"required"`
	IsCompleted bool    `json:"is_completed"`
	Notes       *string `json:"notes"`
}

// RecordPatch is a sparse record mutation: nil fields are untouched. An
// empty string clears a text field; assignee_id 0 unassigns the record.
type RecordPatch struct {
	CustomerName      *string              `json:"customer_name"`
	MobileNo          *string              `json:"mobile_no"`
	ClientEmail       *string              `json:"client_email"`
	AssigneeID        *int64               `json:"assignee_id"`
	EmailAlertPending *bool                `json:"email_alert_pending"`
	Notes             *string              `json:"notes"`
	StageUpdates      []StageUpdateRequest `json:"stage_updates"`
}

// providedFields lists the patch's populated field names for role checks.
func (p *RecordPatch) providedFields() []string {
	var fields []string
	if p.CustomerName != nil {
		fields = append(fields, "customer_name")
	}
	if p.MobileNo != nil {
		fields = append(fields, "mobile_no")
	}
	if p.ClientEmail != nil {
		fields = append(fields, "client_email")
	}
	if p.AssigneeID != nil {
		fields = append(fields, "assignee_id")
	}
	if p.EmailAlertPending != nil {
		fields = append(fields, "email_alert_pending")
	}
	if p.Notes != nil {
		fields = append(fields, "notes")
	}
	if p.StageUpdates != nil {
		fields = append(fields, "stage_updates")
	}
	return fields
}

// RecordDetail is a record joined with its assignee and its active stage
// rows in pipeline order.
type RecordDetail struct {
	models.Record
	Assignee     *models.User             `json:"assignee"`
	StageUpdates []models.RecordStageView `json:"stage_updates"`
}

// RecordPage is one page of a filtered listing.
type RecordPage struct {
	Total    int            `json:"total"`
	Page     int            `json:"page"`
	PageSize int            `json:"page_size"`
	Items    []RecordDetail `json:"items"`
}

// EmailCapturedEvent is the signal handed to the notifier when a mutation
// captures a client email. Delivery happens outside the transaction and its
// outcome never affects the mutation.
type EmailCapturedEvent struct {
	RecordID     int64
	SourceRow    int
	AssigneeName string
	CustomerName string
	MobileNo     string
	ClientEmail  string
	Organization string
	State        string
	ShortName    string
}

// Alerter delivers email-captured notifications. Implemented by the SMTP
// alert service; nil-safe no-op implementations are fine in tests.
type Alerter interface {
	SendEmailCaptured(event EmailCapturedEvent, recipients []string)
}

// RecordService owns the transactional record mutation path: apply diffs,
// toggle stages, rederive status and append audit entries as one unit.
type RecordService struct {
	db      *sqlx.DB
	alerter Alerter
	logger  *logrus.Logger
}

// NewRecordService creates a new record service
func NewRecordService(db *sqlx.DB, alerter Alerter, logger *logrus.Logger) *RecordService {
	return &RecordService{db: db, alerter: alerter, logger: logger}
}

// Get returns one record with its assignee and active stage rows. Assignees
// may only fetch records they own.
func (s *RecordService) Get(recordID int64, actor *models.User) (*RecordDetail, error) {
	rec, err := database.NewRecordRepository(s.db).GetByID(recordID)
	if err != nil {
		return nil, err
	}

	if actor.Role == models.RoleAssignee && (rec.AssigneeID == nil || *rec.AssigneeID != actor.ID) {
		return nil, apperrors.Forbiddenf("not allowed for this record")
	}

	return s.buildDetail(rec)
}

// List returns a filtered, paginated record listing. Assignees are pinned
// to their own records.
func (s *RecordService) List(filter database.RecordListFilter, actor *models.User) (*RecordPage, error) {
	if actor.Role == models.RoleAssignee {
		if filter.AssigneeID != nil && *filter.AssigneeID != actor.ID {
			return nil, apperrors.Forbiddenf("you are not authorized to filter records for another assignee")
		}
		filter.AssigneeID = &actor.ID
	}

	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 {
		filter.PageSize = 10
	}
	if filter.PageSize > 200 {
		filter.PageSize = 200
	}

	recordRepo := database.NewRecordRepository(s.db)
	records, total, err := recordRepo.List(filter)
	if err != nil {
		return nil, err
	}

	page := &RecordPage{
		Total:    total,
		Page:     filter.Page,
		PageSize: filter.PageSize,
		Items:    make([]RecordDetail, 0, len(records)),
	}

	ids := make([]int64, len(records))
	var assigneeIDs []int64
	for i := range records {
		ids[i] = records[i].ID
		if records[i].AssigneeID != nil {
			assigneeIDs = append(assigneeIDs, *records[i].AssigneeID)
		}
	}

	stageViews, err := database.NewStageStatusRepository(s.db).ListForRecords(ids)
	if err != nil {
		return nil, err
	}
	assignees, err := database.NewUserRepository(s.db).ListByIDs(assigneeIDs)
	if err != nil {
		return nil, err
	}

	for i := range records {
		rec := records[i]
		detail := RecordDetail{
			Record:       rec,
			StageUpdates: activeStageViews(stageViews[rec.ID]),
		}
		if rec.AssigneeID != nil {
			if user, ok := assignees[*rec.AssigneeID]; ok {
				detail.Assignee = &user
			}
		}
		page.Items = append(page.Items, detail)
	}

	return page, nil
}

// Patch applies a sparse mutation to a record. Field diffs, stage toggles,
// audit entries and the rederived status commit as one transaction; an
// email-captured alert is dispatched after commit.
func (s *RecordService) Patch(recordID int64, patch RecordPatch, actor *models.User) (*RecordDetail, error) {
	if err := checkFieldPermissions(patch.providedFields(), actor.Role); err != nil {
		return nil, err
	}

	tx, err := s.db.Beginx()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	recordRepo := database.NewRecordRepository(tx)
	statusRepo := database.NewStageStatusRepository(tx)
	logRepo := database.NewUpdateLogRepository(tx)

	rec, err := recordRepo.GetByID(recordID)
	if err != nil {
		return nil, err
	}
	if actor.Role == models.RoleAssignee && (rec.AssigneeID == nil || *rec.AssigneeID != actor.ID) {
		return nil, apperrors.Forbiddenf("not allowed for this record")
	}

	oldEmail := strOrEmpty(rec.ClientEmail)

	appendLog := func(change models.LoggedValue, oldValue string) error {
		return logRepo.Append(&models.RecordUpdateLog{
			RecordID:        rec.ID,
			UpdatedByUserID: &actor.ID,
			FieldName:       change.LogField(),
			OldValue:        oldValue,
			NewValue:        change.LogValue(),
		})
	}

	setString := func(name string, target **string, value *string) error {
		if value == nil {
			return nil
		}
		oldValue := strOrEmpty(*target)
		newValue := strings.TrimSpace(*value)
		if oldValue == newValue {
			return nil
		}
		if newValue == "" {
			*target = nil
		} else {
			*target = &newValue
		}
		return appendLog(models.FieldChange{Name: name, Value: newValue}, oldValue)
	}

	if err := setString("customer_name", &rec.CustomerName, patch.CustomerName); err != nil {
		return nil, err
	}
	if err := setString("mobile_no", &rec.MobileNo, patch.MobileNo); err != nil {
		return nil, err
	}
	if err := setString("client_email", &rec.ClientEmail, patch.ClientEmail); err != nil {
		return nil, err
	}
	if err := setString("notes", &rec.Notes, patch.Notes); err != nil {
		return nil, err
	}

	if patch.AssigneeID != nil {
		oldValue := int64PtrString(rec.AssigneeID)
		var newAssignee *int64
		if *patch.AssigneeID != 0 {
			// The target must be an active record-owning user.
			if _, err := database.NewUserRepository(tx).GetByID(*patch.AssigneeID); err != nil {
				return nil, err
			}
			newAssignee = patch.AssigneeID
		}
		newValue := int64PtrString(newAssignee)
		if oldValue != newValue {
			rec.AssigneeID = newAssignee
			if err := appendLog(models.FieldChange{Name: "assignee_id", Value: newValue}, oldValue); err != nil {
				return nil, err
			}
		}
	}

	if patch.EmailAlertPending != nil {
		oldValue := strconv.FormatBool(rec.EmailAlertPending)
		newValue := strconv.FormatBool(*patch.EmailAlertPending)
		if oldValue != newValue {
			rec.EmailAlertPending = *patch.EmailAlertPending
			if err := appendLog(models.FieldChange{Name: "email_alert_pending", Value: newValue}, oldValue); err != nil {
				return nil, err
			}
		}
	}

	if patch.StageUpdates != nil {
		stages, err := database.NewStageRepository(tx).ListActive()
		if err != nil {
			return nil, err
		}
		stageIDs := make([]int64, len(stages))
		activeIDs := make(map[int64]struct{}, len(stages))
		for i, stage := range stages {
			stageIDs[i] = stage.ID
			activeIDs[stage.ID] = struct{}{}
		}

		if err := statusRepo.EnsureForRecord(rec.ID, stageIDs, &actor.ID); err != nil {
			return nil, err
		}

		for _, update := range patch.StageUpdates {
			if _, ok := activeIDs[update.StageID]; !ok {
				return nil, apperrors.Validationf("invalid stage_id: %d", update.StageID)
			}

			row, err := statusRepo.GetByRecordAndStage(rec.ID, update.StageID)
			if err != nil {
				return nil, err
			}

			oldValue, newValue := ApplyStageCompletion(&row.RecordStageStatus, update.IsCompleted, update.Notes, &actor.ID)
			if oldValue == newValue {
				continue
			}
			if err := statusRepo.Update(&row.RecordStageStatus); err != nil {
				return nil, err
			}
			if err := appendLog(models.StageSnapshotOf(&row.RecordStageStatus), oldValue); err != nil {
				return nil, err
			}
		}
	}

	views, err := statusRepo.ListForRecord(rec.ID)
	if err != nil {
		return nil, err
	}
	rec.Status = DeriveStatus(rec, views)

	newEmail := strOrEmpty(rec.ClientEmail)
	emailChanged := !strings.EqualFold(strings.TrimSpace(newEmail), strings.TrimSpace(oldEmail))
	emailCaptured := strings.TrimSpace(newEmail) != "" && emailChanged
	if emailCaptured {
		now := time.Now().UTC()
		rec.EmailAlertPending = true
		rec.LastEmailAlertAt = &now
	}

	rec.UpdatedBy = &actor.ID
	if err := recordRepo.Update(rec); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit record patch: %w", err)
	}

	if emailCaptured {
		s.dispatchEmailCaptured(rec)
	}

	return s.buildDetail(rec)
}

// AcknowledgeAlert clears the pending email alert flag, logging the change.
func (s *RecordService) AcknowledgeAlert(recordID int64, actor *models.User) (*RecordDetail, error) {
	tx, err := s.db.Beginx()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	recordRepo := database.NewRecordRepository(tx)
	rec, err := recordRepo.GetByID(recordID)
	if err != nil {
		return nil, err
	}

	if rec.EmailAlertPending {
		rec.EmailAlertPending = false
		rec.UpdatedBy = &actor.ID
		if err := recordRepo.Update(rec); err != nil {
			return nil, err
		}
		err = database.NewUpdateLogRepository(tx).Append(&models.RecordUpdateLog{
			RecordID:        rec.ID,
			UpdatedByUserID: &actor.ID,
			FieldName:       "email_alert_pending",
			OldValue:        "true",
			NewValue:        "false",
		})
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit alert acknowledgement: %w", err)
	}

	return s.buildDetail(rec)
}

// SoftDelete marks a record deleted. Stage state and audit rows stay.
func (s *RecordService) SoftDelete(recordID int64, actorID int64) error {
	return database.NewRecordRepository(s.db).SoftDelete(recordID, actorID)
}

func (s *RecordService) buildDetail(rec *models.Record) (*RecordDetail, error) {
	views, err := database.NewStageStatusRepository(s.db).ListForRecord(rec.ID)
	if err != nil {
		return nil, err
	}

	detail := &RecordDetail{
		Record:       *rec,
		StageUpdates: activeStageViews(views),
	}

	if rec.AssigneeID != nil {
		users, err := database.NewUserRepository(s.db).ListByIDs([]int64{*rec.AssigneeID})
		if err != nil {
			return nil, err
		}
		if user, ok := users[*rec.AssigneeID]; ok {
			detail.Assignee = &user
		}
	}

	return detail, nil
}

// dispatchEmailCaptured hands the captured-email signal to the notifier on
// its own goroutine. Delivery failures are the notifier's to log.
func (s *RecordService) dispatchEmailCaptured(rec *models.Record) {
	recipients, err := database.NewUserRepository(s.db).ListAlertRecipients()
	if err != nil {
		s.logger.WithError(err).Warn("Failed to gather alert recipients")
		return
	}

	event := EmailCapturedEvent{
		RecordID:     rec.ID,
		SourceRow:    rec.SourceRow,
		AssigneeName: strOrEmpty(rec.AssigneeNameHint),
		CustomerName: strOrEmpty(rec.CustomerName),
		MobileNo:     strOrEmpty(rec.MobileNo),
		ClientEmail:  strOrEmpty(rec.ClientEmail),
		Organization: strOrEmpty(rec.CustodianOrganization),
		State:        strOrEmpty(rec.State),
		ShortName:    strOrEmpty(rec.ShortName),
	}
	if rec.AssigneeID != nil {
		if users, err := database.NewUserRepository(s.db).ListByIDs([]int64{*rec.AssigneeID}); err == nil {
			if user, ok := users[*rec.AssigneeID]; ok {
				event.AssigneeName = user.FullName
			}
		}
	}

	go s.alerter.SendEmailCaptured(event, recipients)
}

// activeStageViews filters to active stages sorted by pipeline order.
func activeStageViews(views []models.RecordStageView) []models.RecordStageView {
	result := make([]models.RecordStageView, 0, len(views))
	for _, view := range views {
		if view.StageIsActive {
			result = append(result, view)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].StageDisplayOrder != result[j].StageDisplayOrder {
			return result[i].StageDisplayOrder < result[j].StageDisplayOrder
		}
		return result[i].StageID < result[j].StageID
	})
	return result
}

// checkFieldPermissions enforces the per-role edit allow-lists.
func checkFieldPermissions(fields []string, role models.Role) error {
	var allowed map[string]struct{}
	switch role {
	case models.RoleSuperAdmin:
		return nil
	case models.RoleAssignee:
		allowed = assigneeAllowedFields
	case models.RoleEmailTeam:
		allowed = emailTeamAllowedFields
	default:
		return apperrors.Forbiddenf("unknown role")
	}

	var disallowed []string
	for _, field := range fields {
		if _, ok := allowed[field]; !ok {
			disallowed = append(disallowed, field)
		}
	}
	if len(disallowed) > 0 {
		sort.Strings(disallowed)
		return apperrors.Forbiddenf("role %s cannot update fields: %s", role, strings.Join(disallowed, ", "))
	}

	return nil
}

func strOrEmpty(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

func int64PtrString(value *int64) string {
	if value == nil {
		return ""
	}
	return strconv.FormatInt(*value, 10)
}
