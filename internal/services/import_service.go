package services

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"github.com/cibics/tracking-backend/internal/apperrors"
	"github.com/cibics/tracking-backend/internal/config"
	"github.com/cibics/tracking-backend/internal/database"
	"github.com/cibics/tracking-backend/internal/models"
	"github.com/cibics/tracking-backend/pkg/password"
)

// Duplicate reasons attached to classified rows.
const (
	ReasonExistingSourceRow = "EXISTING_SOURCE_ROW"
	ReasonExistingData      = "EXISTING_DATA"
	ReasonDuplicateInFile   = "DUPLICATE_IN_FILE"
)

// keySeparator joins dedup key fields into one comparable string. Unit
// separator cannot occur in trimmed cell text.
const keySeparator = "\x1f"

// ImportRow is one normalized row from the external parser. Row extraction
// from the source document is not this engine's job; this is its input
// contract.
type ImportRow struct {
	SourceRow int `json:"source_row"`

	SlNo                  *string `json:"sl_no"`
	ListType              *string `json:"list_type"`
	Type                  *string `json:"type"`
	POStatusRaw           *string `json:"po_status_raw"`
	CustodianCode         *string `json:"custodian_code"`
	UNLOCode              *string `json:"unlo_code"`
	ShortName             *string `json:"short_name"`
	CustodianOrganization *string `json:"custodian_organization"`
	State                 *string `json:"state"`
	SiteAddress           *string `json:"site_address"`
	City                  *string `json:"city"`
	Pincode               *string `json:"pincode"`
	CategoryOfSite        *string `json:"category_of_site"`

	CustodianContactPersonName   *string `json:"custodian_contact_person_name"`
	CustodianContactPersonNumber *string `json:"custodian_contact_person_number"`
	CustodianEmail               *string `json:"custodian_email"`

	CustomerName *string `json:"customer_name"`
	MobileNo     *string `json:"mobile_no"`
	ClientEmail  *string `json:"client_email"`

	// StageFlags maps stage codes to completion booleans.
	StageFlags map[string]bool `json:"stage_flags"`

	// AssigneeNameHint is optional; when absent the hint is derived from
	// the raw legacy status.
	AssigneeNameHint *string `json:"assignee_name_hint"`
}

// requiredColumns is the column set the parser must deliver. City is
// optional in source sheets and deliberately absent.
var requiredColumns = []string{
	"source_row",
	"sl_no",
	"list_type",
	"type",
	"po_status_raw",
	"custodian_code",
	"unlo_code",
	"short_name",
	"custodian_organization",
	"state",
	"site_address",
	"pincode",
	"category_of_site",
	"custodian_contact_person_name",
	"custodian_contact_person_number",
	"custodian_email",
	"customer_name",
	"mobile_no",
	"client_email",
}

// RowClassification is one input row annotated with its duplicate verdict.
type RowClassification struct {
	Row              ImportRow `json:"row"`
	Duplicate        bool      `json:"duplicate"`
	DuplicateReasons []string  `json:"duplicate_reasons"`
}

// Analysis is the outcome of classifying a batch without writing anything.
type Analysis struct {
	Rows           []RowClassification
	TotalRows      int
	DuplicateRows  int
	InsertableRows int
}

// ImportPreviewRow is the bounded per-row slice returned for UI
// confirmation before committing.
type ImportPreviewRow struct {
	SourceRow             int      `json:"source_row"`
	SlNo                  *string  `json:"sl_no"`
	ShortName             *string  `json:"short_name"`
	CustodianOrganization *string  `json:"custodian_organization"`
	State                 *string  `json:"state"`
	CustodianCode         *string  `json:"custodian_code"`
	UNLOCode              *string  `json:"unlo_code"`
	Duplicate             bool     `json:"duplicate"`
	DuplicateReasons      []string `json:"duplicate_reasons"`
}

// ImportPreview is the dry-run response: classification only, no writes.
type ImportPreview struct {
	TotalRows      int                `json:"total_rows"`
	DuplicateRows  int                `json:"duplicate_rows"`
	InsertableRows int                `json:"insertable_rows"`
	PreviewRows    []ImportPreviewRow `json:"preview_rows"`
}

// ImportReport summarizes one committed batch.
type ImportReport struct {
	BatchID          uuid.UUID `json:"batch_id"`
	TotalRows        int       `json:"total_rows"`
	DuplicateRows    int       `json:"duplicate_rows"`
	InsertableRows   int       `json:"insertable_rows"`
	Created          int       `json:"created"`
	AssigneesCreated int       `json:"assignees_created"`
}

// ImportService deduplicates and inserts bulk record batches and provisions
// assignee accounts from owner-name hints. Batches are serialized by mu so
// concurrent uploads cannot race the existing-key set.
type ImportService struct {
	db     *sqlx.DB
	stages *StageService
	cfg    config.BootstrapConfig
	logger *logrus.Logger

	mu sync.Mutex
}

// NewImportService creates a new import service
func NewImportService(db *sqlx.DB, stages *StageService, cfg config.BootstrapConfig, logger *logrus.Logger) *ImportService {
	return &ImportService{
		db:     db,
		stages: stages,
		cfg:    cfg,
		logger: logger,
	}
}

// validateColumns fails the whole batch before any row is processed when the
// parser did not deliver every required column.
func validateColumns(columns []string) error {
	present := make(map[string]struct{}, len(columns))
	for _, col := range columns {
		present[strings.TrimSpace(col)] = struct{}{}
	}

	var missing []string
	for _, col := range requiredColumns {
		if _, ok := present[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return &apperrors.ValidationError{Message: "import rows missing required columns", Fields: missing}
	}

	return nil
}

// dedupKey builds the composite business key of a row: the ordered tuple of
// lower-cased, trimmed key fields. Returns false when every field is empty;
// an all-empty key never collides.
func dedupKey(fields ...*string) (string, bool) {
	parts := make([]string, len(fields))
	nonEmpty := false
	for i, field := range fields {
		if field != nil {
			parts[i] = strings.ToLower(strings.TrimSpace(*field))
		}
		if parts[i] != "" {
			nonEmpty = true
		}
	}
	return strings.Join(parts, keySeparator), nonEmpty
}

func rowDedupKey(row *ImportRow) (string, bool) {
	return dedupKey(
		row.SlNo, row.CustodianCode, row.UNLOCode, row.ShortName,
		row.CustodianOrganization, row.State, row.SiteAddress, row.Pincode,
	)
}

// isBlankRow reports whether every field of the row is empty. Blank rows are
// parser noise from trailing sheet lines, not data.
func isBlankRow(row *ImportRow) bool {
	fields := []*string{
		row.SlNo, row.ListType, row.Type, row.POStatusRaw,
		row.CustodianCode, row.UNLOCode, row.ShortName,
		row.CustodianOrganization, row.State, row.SiteAddress,
		row.City, row.Pincode, row.CategoryOfSite,
		row.CustodianContactPersonName, row.CustodianContactPersonNumber,
		row.CustodianEmail, row.CustomerName, row.MobileNo, row.ClientEmail,
		row.AssigneeNameHint,
	}
	for _, field := range fields {
		if field != nil && strings.TrimSpace(*field) != "" {
			return false
		}
	}
	for _, completed := range row.StageFlags {
		if completed {
			return false
		}
	}
	return true
}

// classifyRows flags each row against stored data and against earlier rows
// of the same batch. Never errors; duplicates are annotated, not rejected.
// Blank rows are skipped outright: neither new nor duplicate, absent from
// every total.
func classifyRows(rows []ImportRow, existingSourceRows map[int]struct{}, existingKeys map[string]struct{}) Analysis {
	seenInFile := make(map[string]struct{})
	analysis := Analysis{
		Rows: make([]RowClassification, 0, len(rows)),
	}

	for _, row := range rows {
		if isBlankRow(&row) {
			continue
		}
		analysis.TotalRows++

		var reasons []string

		if _, ok := existingSourceRows[row.SourceRow]; ok {
			reasons = append(reasons, ReasonExistingSourceRow)
		}

		key, hasKey := rowDedupKey(&row)
		if hasKey {
			if _, ok := existingKeys[key]; ok {
				reasons = append(reasons, ReasonExistingData)
			}
			if _, ok := seenInFile[key]; ok {
				reasons = append(reasons, ReasonDuplicateInFile)
			}
			// Later rows must be flagged against this one even if it is
			// itself a duplicate.
			seenInFile[key] = struct{}{}
		}

		duplicate := len(reasons) > 0
		if duplicate {
			analysis.DuplicateRows++
		}
		analysis.Rows = append(analysis.Rows, RowClassification{
			Row:              row,
			Duplicate:        duplicate,
			DuplicateReasons: reasons,
		})
	}

	analysis.InsertableRows = analysis.TotalRows - analysis.DuplicateRows
	return analysis
}

// assigneeHint resolves the owner-name hint of a row: an explicit hint wins,
// otherwise a raw legacy status that is not a pending sentinel is taken as
// the owner's name.
func assigneeHint(row *ImportRow) string {
	if row.AssigneeNameHint != nil {
		if hint := NormalizeName(*row.AssigneeNameHint); hint != "" {
			return hint
		}
	}
	if row.POStatusRaw != nil && !IsDefaultStatus(row.POStatusRaw) {
		return NormalizeName(*row.POStatusRaw)
	}
	return ""
}

// buildExistingSets loads every stored record's idempotency key and
// business key.
func buildExistingSets(recordRepo *database.RecordRepository) (map[int]struct{}, map[string]struct{}, error) {
	sources, err := recordRepo.ListDedupSources()
	if err != nil {
		return nil, nil, err
	}

	sourceRows := make(map[int]struct{}, len(sources))
	keys := make(map[string]struct{}, len(sources))
	for i := range sources {
		src := &sources[i]
		sourceRows[src.SourceRow] = struct{}{}
		key, ok := dedupKey(
			src.SlNo, src.CustodianCode, src.UNLOCode, src.ShortName,
			src.CustodianOrganization, src.State, src.SiteAddress, src.Pincode,
		)
		if ok {
			keys[key] = struct{}{}
		}
	}

	return sourceRows, keys, nil
}

// Preview classifies a batch without writing and returns a bounded preview
// slice for UI confirmation.
func (s *ImportService) Preview(columns []string, rows []ImportRow, previewLimit int) (*ImportPreview, error) {
	if err := validateColumns(columns); err != nil {
		return nil, err
	}
	if err := s.stages.EnsureDefaultStages(nil); err != nil {
		return nil, err
	}

	sourceRows, keys, err := buildExistingSets(database.NewRecordRepository(s.db))
	if err != nil {
		return nil, err
	}

	analysis := classifyRows(rows, sourceRows, keys)

	if previewLimit < 1 {
		previewLimit = 1
	}
	preview := &ImportPreview{
		TotalRows:      analysis.TotalRows,
		DuplicateRows:  analysis.DuplicateRows,
		InsertableRows: analysis.InsertableRows,
		PreviewRows:    make([]ImportPreviewRow, 0, previewLimit),
	}
	for i := range analysis.Rows {
		if i >= previewLimit {
			break
		}
		item := &analysis.Rows[i]
		preview.PreviewRows = append(preview.PreviewRows, ImportPreviewRow{
			SourceRow:             item.Row.SourceRow,
			SlNo:                  item.Row.SlNo,
			ShortName:             item.Row.ShortName,
			CustodianOrganization: item.Row.CustodianOrganization,
			State:                 item.Row.State,
			CustodianCode:         item.Row.CustodianCode,
			UNLOCode:              item.Row.UNLOCode,
			Duplicate:             item.Duplicate,
			DuplicateReasons:      item.DuplicateReasons,
		})
	}

	return preview, nil
}

// Import classifies a batch, inserts every non-duplicate row, provisions
// assignee accounts from the collected hints and resolves assignee links.
// All writes commit as one transaction.
func (s *ImportService) Import(columns []string, rows []ImportRow, actorID *int64) (*ImportReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := validateColumns(columns); err != nil {
		return nil, err
	}
	if err := s.stages.EnsureDefaultStages(actorID); err != nil {
		return nil, err
	}

	tx, err := s.db.Beginx()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	recordRepo := database.NewRecordRepository(tx)
	statusRepo := database.NewStageStatusRepository(tx)
	userRepo := database.NewUserRepository(tx)

	sourceRows, keys, err := buildExistingSets(recordRepo)
	if err != nil {
		return nil, err
	}
	analysis := classifyRows(rows, sourceRows, keys)

	activeStages, err := database.NewStageRepository(tx).ListActive()
	if err != nil {
		return nil, err
	}
	stageIDs := make([]int64, len(activeStages))
	stageByCode := make(map[string]models.StageDefinition, len(activeStages))
	for i, stage := range activeStages {
		stageIDs[i] = stage.ID
		stageByCode[stage.Code] = stage
	}

	hints := make(map[string]struct{})
	type createdRecord struct {
		id   int64
		hint string
	}
	var created []createdRecord

	for i := range analysis.Rows {
		item := &analysis.Rows[i]
		if item.Duplicate {
			continue
		}
		row := &item.Row

		hint := assigneeHint(row)
		if hint != "" {
			hints[hint] = struct{}{}
		}

		rec := &models.Record{
			SourceRow:                    row.SourceRow,
			SlNo:                         row.SlNo,
			ListType:                     row.ListType,
			Type:                         row.Type,
			POStatusRaw:                  row.POStatusRaw,
			CustodianCode:                row.CustodianCode,
			UNLOCode:                     row.UNLOCode,
			ShortName:                    row.ShortName,
			CustodianOrganization:        row.CustodianOrganization,
			State:                        row.State,
			SiteAddress:                  row.SiteAddress,
			City:                         row.City,
			Pincode:                      row.Pincode,
			CategoryOfSite:               row.CategoryOfSite,
			CustodianContactPersonName:   row.CustodianContactPersonName,
			CustodianContactPersonNumber: row.CustodianContactPersonNumber,
			CustodianEmail:               row.CustodianEmail,
			CustomerName:                 row.CustomerName,
			MobileNo:                     row.MobileNo,
			ClientEmail:                  row.ClientEmail,
			UpdatedBy:                    actorID,
		}
		if hint != "" {
			rec.AssigneeNameHint = &hint
		}
		if err := recordRepo.Create(rec); err != nil {
			return nil, err
		}
		created = append(created, createdRecord{id: rec.ID, hint: hint})

		if err := statusRepo.EnsureForRecord(rec.ID, stageIDs, actorID); err != nil {
			return nil, err
		}

		flags := make(map[string]bool, len(row.StageFlags))
		for code, completed := range row.StageFlags {
			flags[code] = completed
		}
		// The raw legacy status is authoritative for PO receipt, whatever
		// the source sheet's own PO column says.
		if IsPOReceivedRaw(row.POStatusRaw) {
			flags[models.StatusPOReceived] = true
		}

		for code, completed := range flags {
			if !completed {
				continue
			}
			stage, ok := stageByCode[code]
			if !ok {
				continue
			}
			stageRow, err := statusRepo.GetByRecordAndStage(rec.ID, stage.ID)
			if err != nil {
				return nil, err
			}
			ApplyStageCompletion(&stageRow.RecordStageStatus, true, nil, actorID)
			if err := statusRepo.Update(&stageRow.RecordStageStatus); err != nil {
				return nil, err
			}
		}

		views, err := statusRepo.ListForRecord(rec.ID)
		if err != nil {
			return nil, err
		}
		if status := DeriveStatus(rec, views); status != rec.Status {
			if err := recordRepo.UpdateStatus(rec.ID, status, actorID); err != nil {
				return nil, err
			}
		}
	}

	assigneesCreated, err := s.ensureAssigneeUsers(userRepo, hints, actorID)
	if err != nil {
		return nil, err
	}

	for _, item := range created {
		if item.hint == "" {
			continue
		}
		assignee, err := userRepo.FindAssigneeByName(item.hint)
		if err != nil {
			return nil, err
		}
		if assignee != nil {
			if err := recordRepo.SetAssignee(item.id, &assignee.ID, actorID); err != nil {
				return nil, err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit import: %w", err)
	}

	report := &ImportReport{
		BatchID:          uuid.New(),
		TotalRows:        analysis.TotalRows,
		DuplicateRows:    analysis.DuplicateRows,
		InsertableRows:   analysis.InsertableRows,
		Created:          len(created),
		AssigneesCreated: assigneesCreated,
	}

	s.logger.WithFields(logrus.Fields{
		"batch_id":          report.BatchID,
		"total_rows":        report.TotalRows,
		"duplicate_rows":    report.DuplicateRows,
		"created":           report.Created,
		"assignees_created": report.AssigneesCreated,
	}).Info("Import batch committed")

	return report, nil
}

// ensureAssigneeUsers provisions an account for every hint that does not
// match an existing record-owning user's name. Email collisions are resolved
// internally by numeric suffixing and never surface as errors.
func (s *ImportService) ensureAssigneeUsers(userRepo *database.UserRepository, hints map[string]struct{}, actorID *int64) (int, error) {
	if len(hints) == 0 {
		return 0, nil
	}

	names, err := userRepo.ListAssigneeNames()
	if err != nil {
		return 0, err
	}
	existing := make(map[string]struct{}, len(names))
	for _, name := range names {
		existing[strings.ToLower(NormalizeName(name))] = struct{}{}
	}

	defaultHash, err := password.Hash(s.cfg.AssigneePassword)
	if err != nil {
		return 0, err
	}

	// Deterministic provisioning order regardless of map iteration.
	ordered := make([]string, 0, len(hints))
	for hint := range hints {
		ordered = append(ordered, hint)
	}
	sort.Strings(ordered)

	created := 0
	for _, raw := range ordered {
		name := NormalizeName(raw)
		if name == "" {
			continue
		}
		if _, ok := existing[strings.ToLower(name)]; ok {
			continue
		}

		base := SlugifyName(name)
		email := fmt.Sprintf("%s@%s", base, s.cfg.AssigneeEmailDomain)
		suffix := 1
		for {
			exists, err := userRepo.EmailExists(email, 0)
			if err != nil {
				return 0, err
			}
			if !exists {
				break
			}
			suffix++
			email = fmt.Sprintf("%s%d@%s", base, suffix, s.cfg.AssigneeEmailDomain)
		}

		user := &models.User{
			FullName:     name,
			Email:        email,
			PasswordHash: defaultHash,
			Role:         models.RoleAssignee,
			ReceiveAlert: true,
			UpdatedBy:    actorID,
		}
		if err := userRepo.Create(user); err != nil {
			return 0, err
		}

		existing[strings.ToLower(name)] = struct{}{}
		created++
		s.logger.WithFields(logrus.Fields{"name": name, "email": email}).Info("Provisioned assignee")
	}

	return created, nil
}
