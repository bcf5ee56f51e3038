package services

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cibics/tracking-backend/internal/apperrors"
	"github.com/cibics/tracking-backend/internal/models"
)

func TestCheckFieldPermissions(t *testing.T) {
	t.Run("Super Admin Unrestricted", func(t *testing.T) {
		fields := []string{"customer_name", "assignee_id", "stage_updates", "email_alert_pending"}
		assert.NoError(t, checkFieldPermissions(fields, models.RoleSuperAdmin))
	})

	t.Run("Assignee Contact Fields Only", func(t *testing.T) {
		assert.NoError(t, checkFieldPermissions(
			[]string{"customer_name", "mobile_no", "client_email", "notes"},
			models.RoleAssignee))

		err := checkFieldPermissions([]string{"assignee_id"}, models.RoleAssignee)
		var forbidden *apperrors.ForbiddenError
		require.ErrorAs(t, err, &forbidden)

		err = checkFieldPermissions([]string{"stage_updates"}, models.RoleAssignee)
		assert.Error(t, err)
	})

	t.Run("Email Team Stage Fields Only", func(t *testing.T) {
		assert.NoError(t, checkFieldPermissions(
			[]string{"stage_updates", "email_alert_pending", "notes"},
			models.RoleEmailTeam))

		err := checkFieldPermissions([]string{"client_email"}, models.RoleEmailTeam)
		assert.Error(t, err)
	})

	t.Run("Disallowed Fields Listed Sorted", func(t *testing.T) {
		err := checkFieldPermissions(
			[]string{"stage_updates", "assignee_id"},
			models.RoleAssignee)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "assignee_id, stage_updates")
	})

	t.Run("Empty Patch Always Allowed", func(t *testing.T) {
		assert.NoError(t, checkFieldPermissions(nil, models.RoleAssignee))
		assert.NoError(t, checkFieldPermissions(nil, models.RoleEmailTeam))
	})

	t.Run("Unknown Role Refused", func(t *testing.T) {
		err := checkFieldPermissions([]string{"notes"}, models.Role("INTRUDER"))
		assert.Error(t, err)
	})
}

func TestRecordPatchProvidedFields(t *testing.T) {
	empty := ""
	flag := true
	patch := RecordPatch{
		ClientEmail:       &empty,
		EmailAlertPending: &flag,
		StageUpdates:      []StageUpdateRequest{},
	}

	fields := patch.providedFields()
	assert.ElementsMatch(t, []string{"client_email", "email_alert_pending", "stage_updates"}, fields)

	// A nil patch provides nothing.
	assert.Empty(t, (&RecordPatch{}).providedFields())
}

var recordColumnNames = []string{
	"id", "source_row", "sl_no", "list_type", "type", "po_status_raw",
	"custodian_code", "unlo_code", "short_name", "custodian_organization",
	"state", "site_address", "city", "pincode", "category_of_site",
	"custodian_contact_person_name", "custodian_contact_person_number",
	"custodian_email", "customer_name", "mobile_no", "client_email", "status",
	"assignee_name_hint", "assignee_id", "email_alert_pending",
	"last_email_alert_at", "notes", "lifecycle", "created_at", "updated_at",
	"updated_by", "deleted_by", "deleted_at",
}

var stageViewColumnNames = []string{
	"id", "record_id", "stage_id", "is_completed", "completed_at", "notes",
	"created_at", "updated_at", "updated_by", "stage_code", "stage_name",
	"stage_display_order", "stage_is_active",
}

func TestPatchUnchangedValuesWriteNoAudit(t *testing.T) {
	db, mock := newMockDB(t)
	svc := NewRecordService(db, nil, discardLogger())

	actor := &models.User{ID: 9, Role: models.RoleSuperAdmin}
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT (.+) FROM records WHERE id = \$1`).
		WithArgs(int64(4), models.LifecycleActive).
		WillReturnRows(sqlmock.NewRows(recordColumnNames).AddRow(
			int64(4), 10, nil, nil, nil, nil,
			nil, nil, nil, nil,
			nil, nil, nil, nil, nil,
			nil, nil,
			nil, nil, "0771234567", "client@acme.lk", models.StatusEmailCaptured,
			nil, nil, false,
			nil, "keep", models.LifecycleActive, now, now,
			nil, nil, nil,
		))
	mock.ExpectQuery(`FROM record_stage_statuses`).
		WithArgs(int64(4)).
		WillReturnRows(sqlmock.NewRows(stageViewColumnNames))
	mock.ExpectExec(`UPDATE records`).
		WithArgs(
			nil, "0771234567", "client@acme.lk", nil, nil, false, nil, "keep",
			models.StatusEmailCaptured, sqlmock.AnyArg(), int64(9),
			int64(4), models.LifecycleActive,
		).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectQuery(`FROM record_stage_statuses`).
		WithArgs(int64(4)).
		WillReturnRows(sqlmock.NewRows(stageViewColumnNames))

	alertPending := false
	detail, err := svc.Patch(4, RecordPatch{
		MobileNo:          strPtr(" 0771234567 "),
		ClientEmail:       strPtr("client@acme.lk"),
		Notes:             strPtr("keep"),
		EmailAlertPending: &alertPending,
	}, actor)
	require.NoError(t, err)
	assert.Equal(t, models.StatusEmailCaptured, detail.Status)
	assert.False(t, detail.EmailAlertPending)

	// The ordered expectation script carries no audit insert; any write to
	// record_update_logs fails the mock.
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestActiveStageViews(t *testing.T) {
	views := []models.RecordStageView{
		stageView(3, "C", 30, false, true),
		stageView(1, "A", 10, true, true),
		stageView(4, "D", 99, true, false),
		stageView(2, "B", 10, false, true),
	}

	filtered := activeStageViews(views)
	require.Len(t, filtered, 3)
	assert.Equal(t, "A", filtered[0].StageCode)
	assert.Equal(t, "B", filtered[1].StageCode)
	assert.Equal(t, "C", filtered[2].StageCode)
}
