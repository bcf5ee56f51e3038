package models

import "time"

// RecordUpdateLog is one immutable before/after entry of the field-change
// log. Rows are append-only: nothing in the system mutates or deletes them.
type RecordUpdateLog struct {
	ID              int64     `db:"id" json:"id"`
	RecordID        int64     `db:"record_id" json:"record_id"`
	UpdatedByUserID *int64    `db:"updated_by_user_id" json:"updated_by_user_id"`
	FieldName       string    `db:"field_name" json:"field_name"`
	OldValue        string    `db:"old_value" json:"old_value"`
	NewValue        string    `db:"new_value" json:"new_value"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

// UpdateLogWithAssignee is a log row joined with the affected record's
// current assignee, the shape the analytics scan works from.
type UpdateLogWithAssignee struct {
	RecordUpdateLog
	AssigneeID *int64 `db:"assignee_id"`
}
