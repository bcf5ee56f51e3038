package models

import "time"

// Role determines what a user can see and edit.
type Role string

const (
	RoleSuperAdmin Role = "SUPER_ADMIN"
	RoleAssignee   Role = "ASSIGNEE"
	RoleEmailTeam  Role = "EMAIL_TEAM"
)

// Valid reports whether the role is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSuperAdmin, RoleAssignee, RoleEmailTeam:
		return true
	}
	return false
}

// LifecycleState is the explicit active/soft-deleted lifecycle carried by
// records and users. Soft-deleted rows stay in the database but every query
// path filters them out.
type LifecycleState string

const (
	LifecycleActive      LifecycleState = "ACTIVE"
	LifecycleSoftDeleted LifecycleState = "SOFT_DELETED"
)

// User is an account that works records. Assignees are provisioned
// automatically during import from owner-name hints.
type User struct {
	ID           int64          `db:"id" json:"id"`
	FullName     string         `db:"full_name" json:"full_name"`
	Email        string         `db:"email" json:"email"`
	PasswordHash string         `db:"password_hash" json:"-"`
	Role         Role           `db:"role" json:"role"`
	ReceiveAlert bool           `db:"receive_alert" json:"receive_alert"`
	Lifecycle    LifecycleState `db:"lifecycle" json:"lifecycle"`
	CreatedAt    time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at" json:"updated_at"`
	UpdatedBy    *int64         `db:"updated_by" json:"updated_by,omitempty"`
	DeletedBy    *int64         `db:"deleted_by" json:"-"`
	DeletedAt    *time.Time     `db:"deleted_at" json:"-"`
}
