package models

import "time"

// Statuses a record can derive that do not come from a stage code.
const (
	StatusNew           = "NEW"
	StatusEmailCaptured = "EMAIL_CAPTURED"
	StatusPOReceived    = "PO_RECEIVED"
)

// Record is one unit of work moving through the stage pipeline. SourceRow
// ties it back to the row it was imported from and is the import engine's
// idempotency key.
type Record struct {
	ID        int64 `db:"id" json:"id"`
	SourceRow int   `db:"source_row" json:"source_row"`

	SlNo                  *string `db:"sl_no" json:"sl_no"`
	ListType              *string `db:"list_type" json:"list_type"`
	Type                  *string `db:"type" json:"type"`
	POStatusRaw           *string `db:"po_status_raw" json:"po_status_raw"`
	CustodianCode         *string `db:"custodian_code" json:"custodian_code"`
	UNLOCode              *string `db:"unlo_code" json:"unlo_code"`
	ShortName             *string `db:"short_name" json:"short_name"`
	CustodianOrganization *string `db:"custodian_organization" json:"custodian_organization"`
	State                 *string `db:"state" json:"state"`
	SiteAddress           *string `db:"site_address" json:"site_address"`
	City                  *string `db:"city" json:"city"`
	Pincode               *string `db:"pincode" json:"pincode"`
	CategoryOfSite        *string `db:"category_of_site" json:"category_of_site"`

	CustodianContactPersonName   *string `db:"custodian_contact_person_name" json:"custodian_contact_person_name"`
	CustodianContactPersonNumber *string `db:"custodian_contact_person_number" json:"custodian_contact_person_number"`
	CustodianEmail               *string `db:"custodian_email" json:"custodian_email"`

	CustomerName *string `db:"customer_name" json:"customer_name"`
	MobileNo     *string `db:"mobile_no" json:"mobile_no"`
	ClientEmail  *string `db:"client_email" json:"client_email"`

	// Status is derived from stage completion and fallback signals.
	// It is never hand-set; see services.DeriveStatus.
	Status string `db:"status" json:"status"`

	AssigneeNameHint *string `db:"assignee_name_hint" json:"assignee_name_hint"`
	AssigneeID       *int64  `db:"assignee_id" json:"assignee_id"`

	EmailAlertPending bool       `db:"email_alert_pending" json:"email_alert_pending"`
	LastEmailAlertAt  *time.Time `db:"last_email_alert_at" json:"last_email_alert_at,omitempty"`
	Notes             *string    `db:"notes" json:"notes"`

	Lifecycle LifecycleState `db:"lifecycle" json:"lifecycle"`
	CreatedAt time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt time.Time      `db:"updated_at" json:"updated_at"`
	UpdatedBy *int64         `db:"updated_by" json:"updated_by,omitempty"`
	DeletedBy *int64         `db:"deleted_by" json:"-"`
	DeletedAt *time.Time     `db:"deleted_at" json:"-"`
}
