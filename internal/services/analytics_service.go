package services

import (
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"github.com/cibics/tracking-backend/internal/apperrors"
	"github.com/cibics/tracking-backend/internal/database"
	"github.com/cibics/tracking-backend/internal/models"
)

const (
	progressKeyEmailCaptured = "email_captured"
	progressKeyEmailUpdated  = "email_updated"

	maxProgressDays = 92
)

// StageProgressRow is one metric row of the overview: a per-day series of
// distinct-record counts for one event key.
type StageProgressRow struct {
	Key    string `json:"key"`
	Label  string `json:"label"`
	Counts []int  `json:"counts"`
}

// StageProgressOverview is the day-by-day progress matrix over a window.
type StageProgressOverview struct {
	StartDate string             `json:"start_date"`
	Days      int                `json:"days"`
	Dates     []string           `json:"dates"`
	Rows      []StageProgressRow `json:"rows"`
}

// StageProgressDetailItem is one assignee's contribution to a single cell
// of the overview matrix.
type StageProgressDetailItem struct {
	AssigneeID   int64  `json:"assignee_id"`
	AssigneeName string `json:"assignee_name"`
	RecordCount  int    `json:"record_count"`
}

// StageProgressDetail breaks one (date, key) cell down by current assignee.
type StageProgressDetail struct {
	Date     string                    `json:"date"`
	StageKey string                    `json:"stage_key"`
	Label    string                    `json:"stage_label"`
	Items    []StageProgressDetailItem `json:"items"`
}

// progressEvent is one derived analytics event: a record hit a milestone on
// a given UTC day.
type progressEvent struct {
	day        string
	key        string
	recordID   int64
	assigneeID *int64
}

// AnalyticsService derives daily progress metrics from the audit log. The
// log is the single source of truth here: nothing is pre-aggregated, so
// historical numbers stay correct when stage definitions change.
type AnalyticsService struct {
	db     *sqlx.DB
	logger *logrus.Logger
}

// NewAnalyticsService creates a new analytics service
func NewAnalyticsService(db *sqlx.DB, logger *logrus.Logger) *AnalyticsService {
	return &AnalyticsService{db: db, logger: logger}
}

// ResolveWindow validates and defaults a reporting window. With no start
// date the window is the current week starting at the most recent UTC
// Monday.
func (s *AnalyticsService) ResolveWindow(startDate string, days int) (time.Time, int, error) {
	if days == 0 {
		days = 7
	}
	if days < 1 || days > maxProgressDays {
		return time.Time{}, 0, apperrors.Validationf("days must be between 1 and %d", maxProgressDays)
	}

	if startDate == "" {
		return mostRecentMonday(time.Now().UTC()), days, nil
	}

	start, err := time.ParseInLocation("2006-01-02", startDate, time.UTC)
	if err != nil {
		return time.Time{}, 0, apperrors.Validationf("invalid start_date, expected YYYY-MM-DD")
	}
	return start, days, nil
}

// Overview computes the distinct-record counts per day for every event key
// over the window.
func (s *AnalyticsService) Overview(start time.Time, days int) (*StageProgressOverview, error) {
	events, stages, err := s.collectEvents(start, days)
	if err != nil {
		return nil, err
	}

	dates := make([]string, days)
	dayIndex := make(map[string]int, days)
	for i := 0; i < days; i++ {
		day := start.AddDate(0, 0, i).Format("2006-01-02")
		dates[i] = day
		dayIndex[day] = i
	}

	// Distinct records per (day, key) cell.
	type cell struct{ day, key string }
	seen := make(map[cell]map[int64]struct{})
	for _, ev := range events {
		c := cell{day: ev.day, key: ev.key}
		if seen[c] == nil {
			seen[c] = make(map[int64]struct{})
		}
		seen[c][ev.recordID] = struct{}{}
	}

	overview := &StageProgressOverview{
		StartDate: start.Format("2006-01-02"),
		Days:      days,
		Dates:     dates,
	}

	for _, meta := range progressRowOrder(stages) {
		row := StageProgressRow{Key: meta.key, Label: meta.label, Counts: make([]int, days)}
		for day, idx := range dayIndex {
			row.Counts[idx] = len(seen[cell{day: day, key: meta.key}])
		}
		overview.Rows = append(overview.Rows, row)
	}

	return overview, nil
}

// Detail breaks a single overview cell down by the records' current
// assignees. Unassigned records and zero counts are omitted.
func (s *AnalyticsService) Detail(date string, key string) (*StageProgressDetail, error) {
	day, err := time.ParseInLocation("2006-01-02", date, time.UTC)
	if err != nil {
		return nil, apperrors.Validationf("invalid date, expected YYYY-MM-DD")
	}

	events, stages, err := s.collectEvents(day, 1)
	if err != nil {
		return nil, err
	}

	label, ok := progressKeyLabel(key, stages)
	if !ok {
		return nil, apperrors.Validationf("unknown stage key: %s", key)
	}

	// Distinct records per assignee for this cell.
	byAssignee := make(map[int64]map[int64]struct{})
	for _, ev := range events {
		if ev.key != key || ev.assigneeID == nil {
			continue
		}
		if byAssignee[*ev.assigneeID] == nil {
			byAssignee[*ev.assigneeID] = make(map[int64]struct{})
		}
		byAssignee[*ev.assigneeID][ev.recordID] = struct{}{}
	}

	detail := &StageProgressDetail{
		Date:     day.Format("2006-01-02"),
		StageKey: key,
		Label:    label,
		Items:    make([]StageProgressDetailItem, 0, len(byAssignee)),
	}

	if len(byAssignee) == 0 {
		return detail, nil
	}

	ids := make([]int64, 0, len(byAssignee))
	for id := range byAssignee {
		ids = append(ids, id)
	}
	users, err := database.NewUserRepository(s.db).ListByIDs(ids)
	if err != nil {
		return nil, err
	}

	for id, records := range byAssignee {
		item := StageProgressDetailItem{AssigneeID: id, RecordCount: len(records)}
		if user, ok := users[id]; ok {
			item.AssigneeName = user.FullName
		}
		detail.Items = append(detail.Items, item)
	}

	sort.Slice(detail.Items, func(i, j int) bool {
		if detail.Items[i].RecordCount != detail.Items[j].RecordCount {
			return detail.Items[i].RecordCount > detail.Items[j].RecordCount
		}
		return detail.Items[i].AssigneeID < detail.Items[j].AssigneeID
	})

	return detail, nil
}

// collectEvents replays the audit log over [start, start+days) and derives
// the progress events, together with the active stage catalog for labels.
func (s *AnalyticsService) collectEvents(start time.Time, days int) ([]progressEvent, []models.StageDefinition, error) {
	from := start
	to := start.AddDate(0, 0, days)

	entries, err := database.NewUpdateLogRepository(s.db).ListWindow(from, to)
	if err != nil {
		return nil, nil, err
	}
	stages, err := database.NewStageRepository(s.db).ListActive()
	if err != nil {
		return nil, nil, err
	}

	activeStageKeys := make(map[string]struct{}, len(stages))
	for _, stage := range stages {
		activeStageKeys[models.StageChange{StageID: stage.ID}.LogField()] = struct{}{}
	}

	var events []progressEvent
	for _, entry := range entries {
		key, ok := deriveEventKey(entry.FieldName, entry.OldValue, entry.NewValue)
		if !ok {
			continue
		}
		if _, isStage := models.ParseStageFieldName(key); isStage {
			// Deactivated stages drop out of the report rather than
			// surfacing rows the catalog no longer explains.
			if _, active := activeStageKeys[key]; !active {
				continue
			}
		}
		events = append(events, progressEvent{
			day:        entry.CreatedAt.UTC().Format("2006-01-02"),
			key:        key,
			recordID:   entry.RecordID,
			assigneeID: entry.AssigneeID,
		})
	}

	return events, stages, nil
}

// deriveEventKey classifies one audit entry. Client email transitions split
// into captured (empty to set) and updated (set to different); stage
// entries count when the new snapshot is completed.
func deriveEventKey(fieldName, oldValue, newValue string) (string, bool) {
	if _, ok := models.ParseStageFieldName(fieldName); ok {
		decoded, err := models.DecodeLoggedValue(fieldName, newValue)
		if err != nil {
			return "", false
		}
		change, ok := decoded.(models.StageChange)
		if !ok || !change.IsCompleted {
			return "", false
		}
		return fieldName, true
	}

	if fieldName != "client_email" {
		return "", false
	}

	oldEmail := strings.TrimSpace(oldValue)
	newEmail := strings.TrimSpace(newValue)
	switch {
	case newEmail == "":
		return "", false
	case oldEmail == "":
		return progressKeyEmailCaptured, true
	case !strings.EqualFold(oldEmail, newEmail):
		return progressKeyEmailUpdated, true
	default:
		return "", false
	}
}

type progressRowMeta struct {
	key   string
	label string
}

// progressRowOrder fixes the report's row order: the two email metrics,
// then the stages in pipeline order.
func progressRowOrder(stages []models.StageDefinition) []progressRowMeta {
	rows := []progressRowMeta{
		{key: progressKeyEmailCaptured, label: "Email Captured"},
		{key: progressKeyEmailUpdated, label: "Email Updated"},
	}
	for _, stage := range stages {
		rows = append(rows, progressRowMeta{
			key:   models.StageChange{StageID: stage.ID}.LogField(),
			label: stage.Name,
		})
	}
	return rows
}

func progressKeyLabel(key string, stages []models.StageDefinition) (string, bool) {
	for _, meta := range progressRowOrder(stages) {
		if meta.key == key {
			return meta.label, true
		}
	}
	return "", false
}

// mostRecentMonday returns the UTC Monday on or before t, at midnight.
func mostRecentMonday(t time.Time) time.Time {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}
