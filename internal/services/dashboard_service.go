package services

import (
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"github.com/cibics/tracking-backend/internal/database"
	"github.com/cibics/tracking-backend/internal/models"
)

// DashboardSummary is the headline block plus the recent-activity counters
// derived from the last 24 hours of the audit log.
type DashboardSummary struct {
	database.SummaryCounts
	StatusCounts           []database.StatusCount `json:"status_counts"`
	RecentEmailCaptured24h int                    `json:"recent_email_captured_24h"`
	RecentEmailUpdated24h  int                    `json:"recent_email_updated_24h"`
}

// AssigneeSummary is one assignee's workload snapshot.
type AssigneeSummary struct {
	AssigneeID         int64          `json:"assignee_id"`
	AssigneeName       string         `json:"assignee_name"`
	TotalRecords       int            `json:"total_records"`
	WithClientEmail    int            `json:"with_client_email"`
	WithoutClientEmail int            `json:"without_client_email"`
	POReceived         int            `json:"po_received"`
	AlertsPending      int            `json:"alerts_pending"`
	StageCounts        map[string]int `json:"stage_counts"`
	EmailCaptured24h   int            `json:"email_captured_24h"`
	EmailUpdated24h    int            `json:"email_updated_24h"`
}

// DashboardService aggregates record state for the overview screens.
// Assignee-scoped callers see their own slice of the data.
type DashboardService struct {
	db     *sqlx.DB
	logger *logrus.Logger
}

// NewDashboardService creates a new dashboard service
func NewDashboardService(db *sqlx.DB, logger *logrus.Logger) *DashboardService {
	return &DashboardService{db: db, logger: logger}
}

// Summary computes the headline counters. Assignees get their own scope.
func (s *DashboardService) Summary(actor *models.User) (*DashboardSummary, error) {
	var scope *int64
	if actor.Role == models.RoleAssignee {
		scope = &actor.ID
	}

	recordRepo := database.NewRecordRepository(s.db)
	counts, err := recordRepo.Summary(scope)
	if err != nil {
		return nil, err
	}
	statusCounts, err := recordRepo.CountByStatus(scope)
	if err != nil {
		return nil, err
	}

	captured, updated, err := s.recentEmailActivity(scope)
	if err != nil {
		return nil, err
	}

	return &DashboardSummary{
		SummaryCounts:          *counts,
		StatusCounts:           statusCounts,
		RecentEmailCaptured24h: captured,
		RecentEmailUpdated24h:  updated,
	}, nil
}

// ByStatus groups active records by derived status.
func (s *DashboardService) ByStatus(actor *models.User) ([]database.StatusCount, error) {
	var scope *int64
	if actor.Role == models.RoleAssignee {
		scope = &actor.ID
	}
	return database.NewRecordRepository(s.db).CountByStatus(scope)
}

// ByAssignee breaks the active workload down per assignee, including stage
// completion counts and the last day's email activity.
func (s *DashboardService) ByAssignee() ([]AssigneeSummary, error) {
	assignees, err := database.NewUserRepository(s.db).ListAssignees()
	if err != nil {
		return nil, err
	}
	records, err := database.NewRecordRepository(s.db).ListActive(nil)
	if err != nil {
		return nil, err
	}
	completedCodes, err := database.NewStageStatusRepository(s.db).ListCompletedCodesByRecord()
	if err != nil {
		return nil, err
	}

	summaries := make(map[int64]*AssigneeSummary, len(assignees))
	for _, assignee := range assignees {
		summaries[assignee.ID] = &AssigneeSummary{
			AssigneeID:   assignee.ID,
			AssigneeName: assignee.FullName,
			StageCounts:  make(map[string]int),
		}
	}

	for _, rec := range records {
		if rec.AssigneeID == nil {
			continue
		}
		summary, ok := summaries[*rec.AssigneeID]
		if !ok {
			continue
		}

		summary.TotalRecords++
		hasEmail := rec.ClientEmail != nil && strings.TrimSpace(*rec.ClientEmail) != ""
		if hasEmail {
			summary.WithClientEmail++
		}
		if rec.EmailAlertPending {
			summary.AlertsPending++
		}

		poReceived := rec.Status == models.StatusPOReceived || IsPOReceivedRaw(rec.POStatusRaw)
		if poReceived {
			summary.POReceived++
		} else if !hasEmail {
			summary.WithoutClientEmail++
		}

		for _, code := range completedCodes[rec.ID] {
			summary.StageCounts[code]++
		}
	}

	if err := s.addRecentEmailActivity(summaries); err != nil {
		return nil, err
	}

	// Listing order follows the assignee query: full name ascending. Super
	// admins can own records but an idle one is noise on a workload screen.
	result := make([]AssigneeSummary, 0, len(assignees))
	for _, assignee := range assignees {
		summary := summaries[assignee.ID]
		if assignee.Role == models.RoleSuperAdmin && summary.TotalRecords == 0 {
			continue
		}
		result = append(result, *summary)
	}

	return result, nil
}

// recentEmailActivity counts distinct records with captured or updated
// client emails over the trailing 24 hours, optionally scoped to one
// assignee.
func (s *DashboardService) recentEmailActivity(assigneeID *int64) (int, int, error) {
	entries, err := s.listRecentLogs()
	if err != nil {
		return 0, 0, err
	}

	captured := make(map[int64]struct{})
	updated := make(map[int64]struct{})
	for _, entry := range entries {
		if assigneeID != nil && (entry.AssigneeID == nil || *entry.AssigneeID != *assigneeID) {
			continue
		}
		switch key, ok := deriveEventKey(entry.FieldName, entry.OldValue, entry.NewValue); {
		case !ok:
		case key == progressKeyEmailCaptured:
			captured[entry.RecordID] = struct{}{}
		case key == progressKeyEmailUpdated:
			updated[entry.RecordID] = struct{}{}
		}
	}

	return len(captured), len(updated), nil
}

func (s *DashboardService) addRecentEmailActivity(summaries map[int64]*AssigneeSummary) error {
	entries, err := s.listRecentLogs()
	if err != nil {
		return err
	}

	type cell struct {
		assigneeID int64
		recordID   int64
	}
	captured := make(map[cell]struct{})
	updated := make(map[cell]struct{})
	for _, entry := range entries {
		if entry.AssigneeID == nil {
			continue
		}
		summary, ok := summaries[*entry.AssigneeID]
		if !ok {
			continue
		}
		c := cell{assigneeID: *entry.AssigneeID, recordID: entry.RecordID}
		switch key, keyOK := deriveEventKey(entry.FieldName, entry.OldValue, entry.NewValue); {
		case !keyOK:
		case key == progressKeyEmailCaptured:
			if _, seen := captured[c]; !seen {
				captured[c] = struct{}{}
				summary.EmailCaptured24h++
			}
		case key == progressKeyEmailUpdated:
			if _, seen := updated[c]; !seen {
				updated[c] = struct{}{}
				summary.EmailUpdated24h++
			}
		}
	}

	return nil
}

func (s *DashboardService) listRecentLogs() ([]models.UpdateLogWithAssignee, error) {
	now := time.Now().UTC()
	return database.NewUpdateLogRepository(s.db).ListWindow(now.Add(-24*time.Hour), now)
}
