package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/huandu/go-sqlbuilder"
	"github.com/jmoiron/sqlx"

	"github.com/cibics/tracking-backend/internal/apperrors"
	"github.com/cibics/tracking-backend/internal/models"
)

// RecordRepository handles record database operations
type RecordRepository struct {
	db sqlx.Ext
}

// NewRecordRepository creates a new record repository. Pass a transaction to
// run its operations atomically with other work.
func NewRecordRepository(db sqlx.Ext) *RecordRepository {
	return &RecordRepository{db: db}
}

const recordColumns = `
	id, source_row, sl_no, list_type, type, po_status_raw, custodian_code,
	unlo_code, short_name, custodian_organization, state, site_address, city,
	pincode, category_of_site, custodian_contact_person_name,
	custodian_contact_person_number, custodian_email, customer_name, mobile_no,
	client_email, status, assignee_name_hint, assignee_id, email_alert_pending,
	last_email_alert_at, notes, lifecycle, created_at, updated_at, updated_by,
	deleted_by, deleted_at
`

// DedupSource is the slice of a stored record the import engine needs to
// build its existing-key set.
type DedupSource struct {
	ID                    int64   `db:"id"`
	SourceRow             int     `db:"source_row"`
	SlNo                  *string `db:"sl_no"`
	CustodianCode         *string `db:"custodian_code"`
	UNLOCode              *string `db:"unlo_code"`
	ShortName             *string `db:"short_name"`
	CustodianOrganization *string `db:"custodian_organization"`
	State                 *string `db:"state"`
	SiteAddress           *string `db:"site_address"`
	Pincode               *string `db:"pincode"`
}

// RecordListFilter narrows and paginates record listings.
type RecordListFilter struct {
	Page           int
	PageSize       int
	AssigneeID     *int64
	Status         *string
	State          *string
	HasClientEmail *bool
	AlertPending   *bool
	Search         string
}

// StatusCount is one row of the by-status dashboard breakdown.
type StatusCount struct {
	Status string `db:"status" json:"status"`
	Count  int    `db:"count" json:"count"`
}

// SummaryCounts is the dashboard headline block.
type SummaryCounts struct {
	TotalRecords              int `db:"total_records" json:"total_records"`
	WithClientEmail           int `db:"with_client_email" json:"with_client_email"`
	WithoutClientEmail        int `db:"without_client_email" json:"without_client_email"`
	AlertsPending             int `db:"alerts_pending" json:"alerts_pending"`
	Unassigned                int `db:"unassigned" json:"unassigned"`
	UnassignedWithClientEmail int `db:"unassigned_with_client_email" json:"unassigned_with_client_email"`
}

// Create inserts a new record and fills in its generated id.
func (r *RecordRepository) Create(rec *models.Record) error {
	now := time.Now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	if rec.Status == "" {
		rec.Status = models.StatusNew
	}
	if rec.Lifecycle == "" {
		rec.Lifecycle = models.LifecycleActive
	}

	query := `
		INSERT INTO records (
			source_row, sl_no, list_type, type, po_status_raw, custodian_code,
			unlo_code, short_name, custodian_organization, state, site_address,
			city, pincode, category_of_site, custodian_contact_person_name,
			custodian_contact_person_number, custodian_email, customer_name,
			mobile_no, client_email, status, assignee_name_hint, assignee_id,
			email_alert_pending, last_email_alert_at, notes, lifecycle,
			created_at, updated_at, updated_by
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
			$16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28,
			$29, $30
		)
		RETURNING id
	`

	err := sqlx.Get(r.db, &rec.ID, query,
		rec.SourceRow, rec.SlNo, rec.ListType, rec.Type, rec.POStatusRaw,
		rec.CustodianCode, rec.UNLOCode, rec.ShortName, rec.CustodianOrganization,
		rec.State, rec.SiteAddress, rec.City, rec.Pincode, rec.CategoryOfSite,
		rec.CustodianContactPersonName, rec.CustodianContactPersonNumber,
		rec.CustodianEmail, rec.CustomerName, rec.MobileNo, rec.ClientEmail,
		rec.Status, rec.AssigneeNameHint, rec.AssigneeID, rec.EmailAlertPending,
		rec.LastEmailAlertAt, rec.Notes, rec.Lifecycle, rec.CreatedAt,
		rec.UpdatedAt, rec.UpdatedBy,
	)
	if err != nil {
		return fmt.Errorf("failed to create record: %w", err)
	}

	return nil
}

// GetByID returns an active record by id.
func (r *RecordRepository) GetByID(id int64) (*models.Record, error) {
	var rec models.Record
	query := `SELECT ` + recordColumns + ` FROM records WHERE id = $1 AND lifecycle = $2`

	err := sqlx.Get(r.db, &rec, query, id, models.LifecycleActive)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("record")
		}
		return nil, fmt.Errorf("failed to get record by id: %w", err)
	}

	return &rec, nil
}

// ListDedupSources returns every stored record's source row and business-key
// fields, regardless of lifecycle, so re-imports of soft-deleted rows are
// still detected.
func (r *RecordRepository) ListDedupSources() ([]DedupSource, error) {
	var rows []DedupSource
	query := `
		SELECT id, source_row, sl_no, custodian_code, unlo_code, short_name,
		       custodian_organization, state, site_address, pincode
		FROM records
	`

	if err := sqlx.Select(r.db, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to list dedup sources: %w", err)
	}

	return rows, nil
}

// List returns a filtered page of active records plus the unpaged total.
func (r *RecordRepository) List(filter RecordListFilter) ([]models.Record, int, error) {
	build := func(selectClause string) (string, []interface{}) {
		sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
		sb.Select(selectClause).From("records")
		sb.Where(sb.Equal("lifecycle", string(models.LifecycleActive)))

		if filter.AssigneeID != nil {
			sb.Where(sb.Equal("assignee_id", *filter.AssigneeID))
		}
		if filter.Status != nil {
			sb.Where(sb.Equal("status", *filter.Status))
		}
		if filter.State != nil {
			sb.Where(fmt.Sprintf("LOWER(state) = LOWER(%s)", sb.Var(*filter.State)))
		}
		if filter.HasClientEmail != nil {
			if *filter.HasClientEmail {
				sb.Where("client_email IS NOT NULL AND client_email <> ''")
			} else {
				sb.Where("(client_email IS NULL OR client_email = '')")
			}
		}
		if filter.AlertPending != nil {
			sb.Where(sb.Equal("email_alert_pending", *filter.AlertPending))
		}
		if filter.Search != "" {
			pattern := "%" + filter.Search + "%"
			sb.Where(sb.Or(
				sb.ILike("short_name", pattern),
				sb.ILike("custodian_organization", pattern),
				sb.ILike("custodian_code", pattern),
				sb.ILike("unlo_code", pattern),
				sb.ILike("custodian_email", pattern),
				sb.ILike("client_email", pattern),
				sb.ILike("assignee_name_hint", pattern),
			))
		}

		return sb.Build()
	}

	countQuery, countArgs := build("COUNT(*)")
	var total int
	if err := sqlx.Get(r.db, &total, countQuery, countArgs...); err != nil {
		return nil, 0, fmt.Errorf("failed to count records: %w", err)
	}

	listQuery, listArgs := build(recordColumns)
	listQuery += fmt.Sprintf(
		" ORDER BY email_alert_pending DESC, updated_at DESC LIMIT %d OFFSET %d",
		filter.PageSize, (filter.Page-1)*filter.PageSize,
	)

	var records []models.Record
	if err := sqlx.Select(r.db, &records, listQuery, listArgs...); err != nil {
		return nil, 0, fmt.Errorf("failed to list records: %w", err)
	}

	return records, total, nil
}

// ListActive returns every active record, optionally narrowed to one
// assignee. Used by the dashboard aggregations.
func (r *RecordRepository) ListActive(assigneeID *int64) ([]models.Record, error) {
	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(recordColumns).From("records")
	sb.Where(sb.Equal("lifecycle", string(models.LifecycleActive)))
	if assigneeID != nil {
		sb.Where(sb.Equal("assignee_id", *assigneeID))
	}

	query, args := sb.Build()
	var records []models.Record
	if err := sqlx.Select(r.db, &records, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list active records: %w", err)
	}

	return records, nil
}

// Update persists the mutable fields of a record.
func (r *RecordRepository) Update(rec *models.Record) error {
	rec.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE records SET
			customer_name = $1, mobile_no = $2, client_email = $3,
			assignee_id = $4, assignee_name_hint = $5, email_alert_pending = $6,
			last_email_alert_at = $7, notes = $8, status = $9,
			updated_at = $10, updated_by = $11
		WHERE id = $12 AND lifecycle = $13
	`

	result, err := r.db.Exec(query,
		rec.CustomerName, rec.MobileNo, rec.ClientEmail, rec.AssigneeID,
		rec.AssigneeNameHint, rec.EmailAlertPending, rec.LastEmailAlertAt,
		rec.Notes, rec.Status, rec.UpdatedAt, rec.UpdatedBy,
		rec.ID, models.LifecycleActive,
	)
	if err != nil {
		return fmt.Errorf("failed to update record: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if rows == 0 {
		return apperrors.NotFound("record")
	}

	return nil
}

// UpdateStatus overwrites the cached derived status.
func (r *RecordRepository) UpdateStatus(id int64, status string, actorID *int64) error {
	query := `UPDATE records SET status = $1, updated_at = $2, updated_by = $3 WHERE id = $4`

	if _, err := r.db.Exec(query, status, time.Now().UTC(), actorID, id); err != nil {
		return fmt.Errorf("failed to update record status: %w", err)
	}

	return nil
}

// SetAssignee links or clears a record's owner.
func (r *RecordRepository) SetAssignee(id int64, assigneeID *int64, actorID *int64) error {
	query := `UPDATE records SET assignee_id = $1, updated_at = $2, updated_by = $3 WHERE id = $4`

	if _, err := r.db.Exec(query, assigneeID, time.Now().UTC(), actorID, id); err != nil {
		return fmt.Errorf("failed to set record assignee: %w", err)
	}

	return nil
}

// SoftDelete marks a record soft-deleted. Its stage state and update log
// rows are retained.
func (r *RecordRepository) SoftDelete(id int64, actorID int64) error {
	now := time.Now().UTC()
	query := `
		UPDATE records SET
			lifecycle = $1, updated_at = $2, updated_by = $3, deleted_by = $3, deleted_at = $2
		WHERE id = $4 AND lifecycle = $5
	`

	result, err := r.db.Exec(query, models.LifecycleSoftDeleted, now, actorID, id, models.LifecycleActive)
	if err != nil {
		return fmt.Errorf("failed to soft delete record: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if rows == 0 {
		return apperrors.NotFound("record")
	}

	return nil
}

// UnassignFromUser clears the assignee link on every record owned by the
// user, for user soft-deletion.
func (r *RecordRepository) UnassignFromUser(userID int64, actorID int64) error {
	query := `
		UPDATE records SET assignee_id = NULL, updated_at = $1, updated_by = $2
		WHERE assignee_id = $3
	`

	if _, err := r.db.Exec(query, time.Now().UTC(), actorID, userID); err != nil {
		return fmt.Errorf("failed to unassign records: %w", err)
	}

	return nil
}

// Summary computes the dashboard headline counts, optionally narrowed to one
// assignee. Records already at PO_RECEIVED are not counted as missing a
// client email.
func (r *RecordRepository) Summary(assigneeID *int64) (*SummaryCounts, error) {
	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(
		"COUNT(*) AS total_records",
		"COUNT(*) FILTER (WHERE client_email IS NOT NULL AND client_email <> '') AS with_client_email",
		fmt.Sprintf(
			"COUNT(*) FILTER (WHERE (client_email IS NULL OR client_email = '') AND status <> '%s') AS without_client_email",
			models.StatusPOReceived,
		),
		"COUNT(*) FILTER (WHERE email_alert_pending) AS alerts_pending",
		"COUNT(*) FILTER (WHERE assignee_id IS NULL) AS unassigned",
		"COUNT(*) FILTER (WHERE assignee_id IS NULL AND client_email IS NOT NULL AND client_email <> '') AS unassigned_with_client_email",
	).From("records")
	sb.Where(sb.Equal("lifecycle", string(models.LifecycleActive)))
	if assigneeID != nil {
		sb.Where(sb.Equal("assignee_id", *assigneeID))
	}

	query, args := sb.Build()
	var counts SummaryCounts
	if err := sqlx.Get(r.db, &counts, query, args...); err != nil {
		return nil, fmt.Errorf("failed to compute record summary: %w", err)
	}

	return &counts, nil
}

// CountByStatus groups active records by derived status.
func (r *RecordRepository) CountByStatus(assigneeID *int64) ([]StatusCount, error) {
	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("status", "COUNT(*) AS count").From("records")
	sb.Where(sb.Equal("lifecycle", string(models.LifecycleActive)))
	if assigneeID != nil {
		sb.Where(sb.Equal("assignee_id", *assigneeID))
	}
	sb.GroupBy("status").OrderBy("status ASC")

	query, args := sb.Build()
	var counts []StatusCount
	if err := sqlx.Select(r.db, &counts, query, args...); err != nil {
		return nil, fmt.Errorf("failed to count records by status: %w", err)
	}

	return counts, nil
}
