package repository

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/gip-inclusion/geiq-assessments/internal/models"
)

var (
	ErrAssessmentNotFound = errors.New("assessment not found")
	ErrAssessmentExists   = errors.New("an assessment already exists for this GEIQ and campaign")
)

// AssessmentRepository handles assessment database operations
type AssessmentRepository struct {
	db DBTX
}

// NewAssessmentRepository creates a new assessment repository
func NewAssessmentRepository(db *sql.DB) *AssessmentRepository {
	return &AssessmentRepository{db: db}
}

// WithTx returns a copy of the repository bound to the transaction
func (r *AssessmentRepository) WithTx(tx *sql.Tx) *AssessmentRepository {
	return &AssessmentRepository{db: tx}
}

const assessmentColumns = `
	id, campaign_id, label_geiq_id, label_geiq_name, label_antenna_names, label_rates,
	with_main_geiq, created_at, created_by,
	contracts_synced_at, contracts_selection_validated_at,
	submitted_at, submitted_by,
	grants_selection_validated_at, decision_validated_at,
	reviewed_at, reviewed_by, reviewed_by_institution,
	final_reviewed_at, final_reviewed_by, final_reviewed_by_institution,
	refused_at, refusal_reason,
	convention_amount, granted_amount, advance_amount,
	geiq_comment, review_comment,
	summary_document_file, structure_financial_assessment_file, action_financial_assessment_file
`

func scanAssessment(scan func(...any) error) (*models.Assessment, error) {
	a := &models.Assessment{}
	var antennaNames []byte
	var rates []byte

	err := scan(
		&a.ID, &a.CampaignID, &a.LabelGeiqID, &a.LabelGeiqName, &antennaNames, &rates,
		&a.WithMainGeiq, &a.CreatedAt, &a.CreatedBy,
		&a.ContractsSyncedAt, &a.ContractsSelectionValidatedAt,
		&a.SubmittedAt, &a.SubmittedBy,
		&a.GrantsSelectionValidatedAt, &a.DecisionValidatedAt,
		&a.ReviewedAt, &a.ReviewedBy, &a.ReviewedByInstitution,
		&a.FinalReviewedAt, &a.FinalReviewedBy, &a.FinalReviewedByInstitution,
		&a.RefusedAt, &a.RefusalReason,
		&a.ConventionAmount, &a.GrantedAmount, &a.AdvanceAmount,
		&a.GeiqComment, &a.ReviewComment,
		&a.SummaryDocumentFile, &a.StructureFinancialAssessmentFile, &a.ActionFinancialAssessmentFile,
	)
	if err != nil {
		return nil, err
	}

	if len(antennaNames) > 0 {
		if err := json.Unmarshal(antennaNames, &a.LabelAntennaNames); err != nil {
			return nil, fmt.Errorf("failed to decode antenna names: %w", err)
		}
	}
	if len(rates) > 0 {
		a.LabelRates = json.RawMessage(rates)
	}

	return a, nil
}

// Create inserts an assessment. Institution links and company links are
// created separately inside the same transaction.
func (r *AssessmentRepository) Create(assessment *models.Assessment) error {
	antennaNames, err := json.Marshal(assessment.LabelAntennaNames)
	if err != nil {
		return fmt.Errorf("failed to encode antenna names: %w", err)
	}
	if assessment.LabelAntennaNames == nil {
		antennaNames = []byte(`[]`)
	}

	var rates any
	if len(assessment.LabelRates) > 0 {
		rates = []byte(assessment.LabelRates)
	}

	query := `
		INSERT INTO assessments (campaign_id, label_geiq_id, label_geiq_name, label_antenna_names,
		                         label_rates, with_main_geiq, created_by, geiq_comment, refusal_reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, '', '')
		RETURNING id, created_at
	`

	err = r.db.QueryRow(
		query,
		assessment.CampaignID,
		assessment.LabelGeiqID,
		assessment.LabelGeiqName,
		antennaNames,
		rates,
		assessment.WithMainGeiq,
		assessment.CreatedBy,
	).Scan(&assessment.ID, &assessment.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAssessmentExists
		}
		return fmt.Errorf("failed to create assessment: %w", err)
	}

	return nil
}

// GetByID retrieves an assessment by ID
func (r *AssessmentRepository) GetByID(id uuid.UUID) (*models.Assessment, error) {
	query := `SELECT ` + assessmentColumns + ` FROM assessments WHERE id = $1`

	assessment, err := scanAssessment(r.db.QueryRow(query, id).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAssessmentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get assessment: %w", err)
	}

	return assessment, nil
}

// ExistsFor reports whether a main-GEIQ assessment already exists for the
// campaign and Label GEIQ
func (r *AssessmentRepository) ExistsFor(campaignID uint, labelGeiqID int) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM assessments
			WHERE campaign_id = $1 AND label_geiq_id = $2 AND with_main_geiq
		)
	`

	var exists bool
	if err := r.db.QueryRow(query, campaignID, labelGeiqID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check assessment existence: %w", err)
	}
	return exists, nil
}

// Update persists all mutable assessment fields
func (r *AssessmentRepository) Update(assessment *models.Assessment) error {
	query := `
		UPDATE assessments
		SET contracts_synced_at = $1,
		    contracts_selection_validated_at = $2,
		    submitted_at = $3,
		    submitted_by = $4,
		    grants_selection_validated_at = $5,
		    decision_validated_at = $6,
		    reviewed_at = $7,
		    reviewed_by = $8,
		    reviewed_by_institution = $9,
		    final_reviewed_at = $10,
		    final_reviewed_by = $11,
		    final_reviewed_by_institution = $12,
		    refused_at = $13,
		    refusal_reason = $14,
		    convention_amount = $15,
		    granted_amount = $16,
		    advance_amount = $17,
		    geiq_comment = $18,
		    review_comment = $19,
		    summary_document_file = $20,
		    structure_financial_assessment_file = $21,
		    action_financial_assessment_file = $22
		WHERE id = $23
	`

	result, err := r.db.Exec(
		query,
		assessment.ContractsSyncedAt,
		assessment.ContractsSelectionValidatedAt,
		assessment.SubmittedAt,
		assessment.SubmittedBy,
		assessment.GrantsSelectionValidatedAt,
		assessment.DecisionValidatedAt,
		assessment.ReviewedAt,
		assessment.ReviewedBy,
		assessment.ReviewedByInstitution,
		assessment.FinalReviewedAt,
		assessment.FinalReviewedBy,
		assessment.FinalReviewedByInstitution,
		assessment.RefusedAt,
		assessment.RefusalReason,
		assessment.ConventionAmount,
		assessment.GrantedAmount,
		assessment.AdvanceAmount,
		assessment.GeiqComment,
		assessment.ReviewComment,
		assessment.SummaryDocumentFile,
		assessment.StructureFinancialAssessmentFile,
		assessment.ActionFinancialAssessmentFile,
		assessment.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update assessment: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return ErrAssessmentNotFound
	}

	return nil
}

// UpdateLabelRates stores the rates snapshot fetched during sync
func (r *AssessmentRepository) UpdateLabelRates(id uuid.UUID, rates json.RawMessage) error {
	if _, err := r.db.Exec(`UPDATE assessments SET label_rates = $1 WHERE id = $2`, []byte(rates), id); err != nil {
		return fmt.Errorf("failed to update label rates: %w", err)
	}
	return nil
}

// AssessmentFilters narrows List results
type AssessmentFilters struct {
	CampaignID    *uint
	LabelGeiqID   *int
	InstitutionID *uint // linked institution
	CompanyID     *uint // linked company
	Submitted     *bool
	FinalReviewed *bool
	Refused       *bool
}

// List retrieves assessments matching the filters, newest first
func (r *AssessmentRepository) List(filters AssessmentFilters) ([]models.Assessment, error) {
	query := `SELECT ` + assessmentColumns + ` FROM assessments WHERE 1=1`
	var args []any
	argCount := 0

	if filters.CampaignID != nil {
		argCount++
		query += fmt.Sprintf(" AND campaign_id = $%d", argCount)
		args = append(args, *filters.CampaignID)
	}
	if filters.LabelGeiqID != nil {
		argCount++
		query += fmt.Sprintf(" AND label_geiq_id = $%d", argCount)
		args = append(args, *filters.LabelGeiqID)
	}
	if filters.InstitutionID != nil {
		argCount++
		query += fmt.Sprintf(` AND id IN (
			SELECT assessment_id FROM assessment_institution_links WHERE institution_id = $%d
		)`, argCount)
		args = append(args, *filters.InstitutionID)
	}
	if filters.CompanyID != nil {
		argCount++
		query += fmt.Sprintf(` AND id IN (
			SELECT assessment_id FROM assessment_companies WHERE company_id = $%d
		)`, argCount)
		args = append(args, *filters.CompanyID)
	}
	if filters.Submitted != nil {
		if *filters.Submitted {
			query += " AND submitted_at IS NOT NULL"
		} else {
			query += " AND submitted_at IS NULL"
		}
	}
	if filters.FinalReviewed != nil {
		if *filters.FinalReviewed {
			query += " AND final_reviewed_at IS NOT NULL"
		} else {
			query += " AND final_reviewed_at IS NULL"
		}
	}
	if filters.Refused != nil {
		if *filters.Refused {
			query += " AND refused_at IS NOT NULL"
		} else {
			query += " AND refused_at IS NULL"
		}
	}

	query += " ORDER BY created_at DESC"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list assessments: %w", err)
	}
	defer rows.Close()

	var assessments []models.Assessment
	for rows.Next() {
		assessment, err := scanAssessment(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan assessment: %w", err)
		}
		assessments = append(assessments, *assessment)
	}

	return assessments, rows.Err()
}

// CreateInstitutionLink attaches an oversight institution to an assessment
func (r *AssessmentRepository) CreateInstitutionLink(link *models.InstitutionLink) error {
	query := `
		INSERT INTO assessment_institution_links (assessment_id, institution_id, with_convention)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`

	err := r.db.QueryRow(
		query,
		link.AssessmentID,
		link.InstitutionID,
		link.WithConvention,
	).Scan(&link.ID, &link.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create institution link: %w", err)
	}

	return nil
}

// InstitutionLinks returns the institutions attached to an assessment
func (r *AssessmentRepository) InstitutionLinks(assessmentID uuid.UUID) ([]models.InstitutionLink, error) {
	query := `
		SELECT id, assessment_id, institution_id, with_convention, created_at
		FROM assessment_institution_links
		WHERE assessment_id = $1
		ORDER BY id
	`

	rows, err := r.db.Query(query, assessmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to get institution links: %w", err)
	}
	defer rows.Close()

	var links []models.InstitutionLink
	for rows.Next() {
		var link models.InstitutionLink
		err := rows.Scan(
			&link.ID,
			&link.AssessmentID,
			&link.InstitutionID,
			&link.WithConvention,
			&link.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan institution link: %w", err)
		}
		links = append(links, link)
	}

	return links, rows.Err()
}

// LinkCompany attaches a GEIQ company to an assessment
func (r *AssessmentRepository) LinkCompany(assessmentID uuid.UUID, companyID uint) error {
	query := `
		INSERT INTO assessment_companies (assessment_id, company_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`

	if _, err := r.db.Exec(query, assessmentID, companyID); err != nil {
		return fmt.Errorf("failed to link company: %w", err)
	}
	return nil
}

// CompanyIDs returns the companies attached to an assessment
func (r *AssessmentRepository) CompanyIDs(assessmentID uuid.UUID) ([]uint, error) {
	query := `SELECT company_id FROM assessment_companies WHERE assessment_id = $1 ORDER BY company_id`

	rows, err := r.db.Query(query, assessmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to get assessment companies: %w", err)
	}
	defer rows.Close()

	var companyIDs []uint
	for rows.Next() {
		var companyID uint
		if err := rows.Scan(&companyID); err != nil {
			return nil, fmt.Errorf("failed to scan company id: %w", err)
		}
		companyIDs = append(companyIDs, companyID)
	}

	return companyIDs, rows.Err()
}
