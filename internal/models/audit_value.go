package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Logged values come in two shapes: a plain record field change, and a
// stage-completion snapshot logged under the synthetic field name
// "stage:<stageId>". Code builds and reads entries through this tagged
// union instead of assembling the strings at every call site; the persisted
// form stays the single (field_name, old_value, new_value) log row.

const stageFieldPrefix = "stage:"

// LoggedValue is one side (old or new) of an audit entry.
type LoggedValue interface {
	// LogField is the value stored in record_update_logs.field_name.
	LogField() string
	// LogValue is the serialized value stored in old_value/new_value.
	LogValue() string
}

// FieldChange is a plain record field value.
type FieldChange struct {
	Name  string
	Value string
}

func (c FieldChange) LogField() string { return c.Name }
func (c FieldChange) LogValue() string { return c.Value }

// StageChange is a full stage-state snapshot, so one log line captures the
// whole transition.
type StageChange struct {
	StageID     int64
	IsCompleted bool
	CompletedAt *time.Time
	Notes       string
}

func (c StageChange) LogField() string {
	return fmt.Sprintf("%s%d", stageFieldPrefix, c.StageID)
}

func (c StageChange) LogValue() string {
	completedAt := ""
	if c.CompletedAt != nil {
		completedAt = c.CompletedAt.UTC().Format(time.RFC3339)
	}
	return fmt.Sprintf("%t|%s|%s", c.IsCompleted, completedAt, c.Notes)
}

// StageSnapshotOf builds the snapshot of a stage status row.
func StageSnapshotOf(st *RecordStageStatus) StageChange {
	notes := ""
	if st.Notes != nil {
		notes = *st.Notes
	}
	return StageChange{
		StageID:     st.StageID,
		IsCompleted: st.IsCompleted,
		CompletedAt: st.CompletedAt,
		Notes:       notes,
	}
}

// ParseStageFieldName extracts the stage id from a synthetic stage field
// name. Returns false for plain field names.
func ParseStageFieldName(fieldName string) (int64, bool) {
	if !strings.HasPrefix(fieldName, stageFieldPrefix) {
		return 0, false
	}
	id, err := strconv.ParseInt(fieldName[len(stageFieldPrefix):], 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// DecodeLoggedValue turns a stored log cell back into its tagged form.
func DecodeLoggedValue(fieldName, value string) (LoggedValue, error) {
	stageID, ok := ParseStageFieldName(fieldName)
	if !ok {
		return FieldChange{Name: fieldName, Value: value}, nil
	}

	parts := strings.SplitN(value, "|", 3)
	if len(parts) != 3 {
		return nil, fmt.Errorf("malformed stage snapshot %q for %s", value, fieldName)
	}

	completed, err := strconv.ParseBool(parts[0])
	if err != nil {
		return nil, fmt.Errorf("malformed completion flag in %q for %s", value, fieldName)
	}

	var completedAt *time.Time
	if parts[1] != "" {
		ts, err := time.Parse(time.RFC3339, parts[1])
		if err != nil {
			return nil, fmt.Errorf("malformed completion time in %q for %s", value, fieldName)
		}
		completedAt = &ts
	}

	return StageChange{
		StageID:     stageID,
		IsCompleted: completed,
		CompletedAt: completedAt,
		Notes:       parts[2],
	}, nil
}
