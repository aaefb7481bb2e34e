package service

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/gip-inclusion/geiq-assessments/internal/docstore"
	"github.com/gip-inclusion/geiq-assessments/internal/metrics"
	"github.com/gip-inclusion/geiq-assessments/internal/models"
	"github.com/gip-inclusion/geiq-assessments/internal/repository"
)

// AssessmentService implements the GEIQ-side lifecycle commands: creation,
// contract selection, document upload and submission. Every transition runs
// in a single transaction together with its audit log and outbox rows.
type AssessmentService struct {
	db              *sql.DB
	assessmentRepo  *repository.AssessmentRepository
	employeeRepo    *repository.EmployeeRepository
	campaignRepo    *repository.CampaignRepository
	companyRepo     *repository.CompanyRepository
	institutionRepo *repository.InstitutionRepository
	auditRepo       *repository.AuditRepository
	outboxRepo      *repository.OutboxRepository
	docstore        *docstore.Store
	metrics         *metrics.Metrics
}

// NewAssessmentService creates a new assessment service
func NewAssessmentService(
	db *sql.DB,
	assessmentRepo *repository.AssessmentRepository,
	employeeRepo *repository.EmployeeRepository,
	campaignRepo *repository.CampaignRepository,
	companyRepo *repository.CompanyRepository,
	institutionRepo *repository.InstitutionRepository,
	auditRepo *repository.AuditRepository,
	outboxRepo *repository.OutboxRepository,
	store *docstore.Store,
	m *metrics.Metrics,
) *AssessmentService {
	return &AssessmentService{
		db:              db,
		assessmentRepo:  assessmentRepo,
		employeeRepo:    employeeRepo,
		campaignRepo:    campaignRepo,
		companyRepo:     companyRepo,
		institutionRepo: institutionRepo,
		auditRepo:       auditRepo,
		outboxRepo:      outboxRepo,
		docstore:        store,
		metrics:         m,
	}
}

// CreateAssessmentInput carries everything needed to open an assessment
type CreateAssessmentInput struct {
	CampaignID        uint
	LabelGeiqID       int
	LabelGeiqName     string
	LabelAntennaNames []string
	WithMainGeiq      bool
	InstitutionIDs    []uint
	ConventionHolder  uint // institution holding the funding convention
	CompanyIDs        []uint
}

// CreateAssessment opens an assessment for a GEIQ in a campaign. At most one
// main-GEIQ assessment may exist per (campaign, GEIQ); institution links and
// company links are created in the same transaction.
func (s *AssessmentService) CreateAssessment(userID uint, input CreateAssessmentInput) (*models.Assessment, error) {
	if _, err := s.campaignRepo.GetByID(input.CampaignID); err != nil {
		return nil, err
	}

	if err := s.requireGeiqMember(userID, input.LabelGeiqID); err != nil {
		return nil, err
	}

	if input.WithMainGeiq {
		exists, err := s.assessmentRepo.ExistsFor(input.CampaignID, input.LabelGeiqID)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, repository.ErrAssessmentExists
		}
	}

	assessment := &models.Assessment{
		CampaignID:        input.CampaignID,
		LabelGeiqID:       input.LabelGeiqID,
		LabelGeiqName:     input.LabelGeiqName,
		LabelAntennaNames: input.LabelAntennaNames,
		WithMainGeiq:      input.WithMainGeiq,
		CreatedBy:         userID,
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.assessmentRepo.WithTx(tx).Create(assessment); err != nil {
		return nil, err
	}

	for _, institutionID := range input.InstitutionIDs {
		link := &models.InstitutionLink{
			AssessmentID:   assessment.ID,
			InstitutionID:  institutionID,
			WithConvention: institutionID == input.ConventionHolder,
		}
		if err := s.assessmentRepo.WithTx(tx).CreateInstitutionLink(link); err != nil {
			return nil, err
		}
	}

	for _, companyID := range input.CompanyIDs {
		if err := s.assessmentRepo.WithTx(tx).LinkCompany(assessment.ID, companyID); err != nil {
			return nil, err
		}
	}

	if err := s.audit(tx, userID, "assessment.create", assessment.ID, ""); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.metrics.AssessmentsCreated.Inc()
	slog.Info("Assessment created",
		"assessment_id", assessment.ID,
		"campaign_id", assessment.CampaignID,
		"label_geiq_id", assessment.LabelGeiqID)

	return assessment, nil
}

// GetAssessment returns an assessment visible to the user
func (s *AssessmentService) GetAssessment(userID uint, roles []string, id uuid.UUID) (*models.Assessment, error) {
	assessment, err := s.assessmentRepo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if err := s.requireReadAccess(userID, roles, assessment); err != nil {
		return nil, err
	}
	return assessment, nil
}

// ListAssessments returns assessments matching the filters
func (s *AssessmentService) ListAssessments(filters repository.AssessmentFilters) ([]models.Assessment, error) {
	return s.assessmentRepo.List(filters)
}

// ListEmployees returns the employees of an assessment with their contracts
// and prequalifications
func (s *AssessmentService) ListEmployees(userID uint, roles []string, assessmentID uuid.UUID) ([]models.EmployeeWithChildren, error) {
	assessment, err := s.assessmentRepo.GetByID(assessmentID)
	if err != nil {
		return nil, err
	}
	if err := s.requireReadAccess(userID, roles, assessment); err != nil {
		return nil, err
	}

	employees, err := s.employeeRepo.ListByAssessment(assessmentID)
	if err != nil {
		return nil, err
	}

	result := make([]models.EmployeeWithChildren, 0, len(employees))
	for _, employee := range employees {
		contracts, err := s.employeeRepo.ListContractsByEmployee(employee.ID)
		if err != nil {
			return nil, err
		}
		prequalifications, err := s.employeeRepo.ListPrequalificationsByEmployee(employee.ID)
		if err != nil {
			return nil, err
		}
		result = append(result, models.EmployeeWithChildren{
			Employee:          employee,
			Contracts:         contracts,
			Prequalifications: prequalifications,
		})
	}

	return result, nil
}

// ValidateContractsSelection freezes the contract selection. Requires a
// completed sync; idempotent if already validated.
func (s *AssessmentService) ValidateContractsSelection(userID uint, assessmentID uuid.UUID) error {
	assessment, err := s.assessmentRepo.GetByID(assessmentID)
	if err != nil {
		return err
	}
	if err := s.requireGeiqMember(userID, assessment.LabelGeiqID); err != nil {
		return err
	}

	if assessment.ContractsSelectionValidatedAt != nil {
		return nil
	}
	if assessment.ContractsSyncedAt == nil {
		return fmt.Errorf("%w: contracts have not been synced", ErrPreconditionFailed)
	}
	if assessment.SubmittedAt != nil {
		return fmt.Errorf("%w: assessment is already submitted", ErrPreconditionFailed)
	}

	now := time.Now()
	assessment.ContractsSelectionValidatedAt = &now
	return s.updateWithAudit(userID, assessment, "assessment.validate_contracts_selection", "")
}

// InvalidateContractsSelection reopens the contract selection. Blocked once
// the assessment is submitted.
func (s *AssessmentService) InvalidateContractsSelection(userID uint, assessmentID uuid.UUID) error {
	assessment, err := s.assessmentRepo.GetByID(assessmentID)
	if err != nil {
		return err
	}
	if err := s.requireGeiqMember(userID, assessment.LabelGeiqID); err != nil {
		return err
	}

	if assessment.SubmittedAt != nil {
		return fmt.Errorf("%w: assessment is already submitted", ErrPreconditionFailed)
	}
	if assessment.ContractsSelectionValidatedAt == nil {
		return nil
	}

	assessment.ContractsSelectionValidatedAt = nil
	return s.updateWithAudit(userID, assessment, "assessment.invalidate_contracts_selection", "")
}

// SetAllowanceRequested toggles the GEIQ-side allowance flag on a contract.
// Once the contract selection is validated the flag is frozen and the call is
// a silent no-op.
func (s *AssessmentService) SetAllowanceRequested(userID uint, assessmentID, contractID uuid.UUID, requested bool) error {
	assessment, err := s.assessmentRepo.GetByID(assessmentID)
	if err != nil {
		return err
	}
	if err := s.requireGeiqMember(userID, assessment.LabelGeiqID); err != nil {
		return err
	}

	if assessment.ContractsSelectionValidatedAt != nil {
		return nil
	}

	if _, err := s.employeeRepo.GetContract(assessmentID, contractID); err != nil {
		return err
	}

	return s.employeeRepo.SetAllowanceRequested(contractID, requested)
}

// UploadDocument stores a supporting document and attaches it to the
// assessment. Uploads are only accepted before submission; re-uploading a
// kind replaces the previous document.
func (s *AssessmentService) UploadDocument(userID uint, assessmentID uuid.UUID, kind, filename, contentType string, content []byte) (*models.AssessmentFile, error) {
	assessment, err := s.assessmentRepo.GetByID(assessmentID)
	if err != nil {
		return nil, err
	}
	if err := s.requireGeiqMember(userID, assessment.LabelGeiqID); err != nil {
		return nil, err
	}

	if assessment.SubmittedAt != nil {
		return nil, fmt.Errorf("%w: assessment is already submitted", ErrPreconditionFailed)
	}

	file := &models.AssessmentFile{
		AssessmentID: assessmentID,
		Kind:         kind,
		Filename:     filename,
		ContentType:  contentType,
		Content:      content,
		UploadedBy:   userID,
	}

	if err := s.docstore.Save(file); err != nil {
		return nil, err
	}

	switch kind {
	case models.FileKindSummary:
		assessment.SummaryDocumentFile = &file.ID
	case models.FileKindStructureFinancial:
		assessment.StructureFinancialAssessmentFile = &file.ID
	case models.FileKindActionFinancial:
		assessment.ActionFinancialAssessmentFile = &file.ID
	default:
		return nil, fmt.Errorf("unknown document kind %q", kind)
	}

	if err := s.updateWithAudit(userID, assessment, "assessment.upload_document", kind); err != nil {
		return nil, err
	}

	return file, nil
}

// SetGeiqComment records the GEIQ's narrative comment before submission
func (s *AssessmentService) SetGeiqComment(userID uint, assessmentID uuid.UUID, comment string) error {
	assessment, err := s.assessmentRepo.GetByID(assessmentID)
	if err != nil {
		return err
	}
	if err := s.requireGeiqMember(userID, assessment.LabelGeiqID); err != nil {
		return err
	}

	if assessment.SubmittedAt != nil {
		return fmt.Errorf("%w: assessment is already submitted", ErrPreconditionFailed)
	}

	assessment.GeiqComment = comment
	return s.assessmentRepo.Update(assessment)
}

// Submit hands the assessment over to the institutions. Requires a synced and
// validated contract selection, the three supporting documents and a comment.
// Grants default to the requested flags, and each linked institution gets one
// notification. Submitting an already submitted assessment is a no-op.
func (s *AssessmentService) Submit(userID uint, assessmentID uuid.UUID) error {
	assessment, err := s.assessmentRepo.GetByID(assessmentID)
	if err != nil {
		return err
	}
	if err := s.requireGeiqMember(userID, assessment.LabelGeiqID); err != nil {
		return err
	}

	if assessment.SubmittedAt != nil {
		return nil
	}

	if assessment.ContractsSyncedAt == nil {
		return fmt.Errorf("%w: contracts have not been synced", ErrPreconditionFailed)
	}
	if assessment.ContractsSelectionValidatedAt == nil {
		return fmt.Errorf("%w: contract selection has not been validated", ErrPreconditionFailed)
	}
	if !assessment.HasAllDocuments() {
		return fmt.Errorf("%w: all three supporting documents are required", ErrPreconditionFailed)
	}
	if assessment.GeiqComment == "" {
		return fmt.Errorf("%w: a comment is required", ErrPreconditionFailed)
	}

	campaign, err := s.campaignRepo.GetByID(assessment.CampaignID)
	if err != nil {
		return err
	}

	links, err := s.assessmentRepo.InstitutionLinks(assessmentID)
	if err != nil {
		return err
	}

	now := time.Now()
	assessment.SubmittedAt = &now
	assessment.SubmittedBy = &userID

	if errs := assessment.Validate(); len(errs) > 0 {
		return errs
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.assessmentRepo.WithTx(tx).Update(assessment); err != nil {
		return err
	}
	if err := s.employeeRepo.WithTx(tx).DefaultGrantsToRequests(assessmentID); err != nil {
		return err
	}

	payload, err := json.Marshal(models.NotificationPayload{
		GeiqName: assessment.LabelGeiqName,
		Year:     campaign.Year,
	})
	if err != nil {
		return fmt.Errorf("failed to encode notification payload: %w", err)
	}

	for _, link := range links {
		recipients, err := s.institutionRepo.MemberEmails(link.InstitutionID)
		if err != nil {
			return err
		}
		if len(recipients) == 0 {
			continue
		}
		notification := &models.OutboxNotification{
			AssessmentID: &assessment.ID,
			Kind:         models.NotificationAssessmentSubmitted,
			Recipients:   recipients,
			Payload:      payload,
		}
		if err := s.outboxRepo.WithTx(tx).Create(notification); err != nil {
			return err
		}
	}

	if err := s.audit(tx, userID, "assessment.submit", assessmentID, ""); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.metrics.AssessmentsSubmitted.Inc()
	slog.Info("Assessment submitted", "assessment_id", assessmentID, "user_id", userID)

	return nil
}

// requireGeiqMember checks that the user belongs to a company of this GEIQ
func (s *AssessmentService) requireGeiqMember(userID uint, labelGeiqID int) error {
	companies, err := s.companyRepo.CompaniesForUser(userID)
	if err != nil {
		return err
	}
	for _, company := range companies {
		if company.LabelGeiqID == labelGeiqID {
			return nil
		}
	}
	return ErrPermissionDenied
}

// requireReadAccess allows GEIQ members, linked institution members and admins
func (s *AssessmentService) requireReadAccess(userID uint, roles []string, assessment *models.Assessment) error {
	for _, role := range roles {
		if role == "admin" {
			return nil
		}
	}

	if err := s.requireGeiqMember(userID, assessment.LabelGeiqID); err == nil {
		return nil
	}

	links, err := s.assessmentRepo.InstitutionLinks(assessment.ID)
	if err != nil {
		return err
	}
	for _, link := range links {
		member, err := s.institutionRepo.IsMember(userID, link.InstitutionID)
		if err != nil {
			return err
		}
		if member {
			return nil
		}
	}

	return ErrPermissionDenied
}

func (s *AssessmentService) updateWithAudit(userID uint, assessment *models.Assessment, action, details string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.assessmentRepo.WithTx(tx).Update(assessment); err != nil {
		return err
	}
	if err := s.audit(tx, userID, action, assessment.ID, details); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *AssessmentService) audit(tx *sql.Tx, userID uint, action string, assessmentID uuid.UUID, details string) error {
	return s.auditRepo.WithTx(tx).Create(&models.AuditLog{
		UserID:   &userID,
		Action:   action,
		Resource: assessmentID.String(),
		Details:  details,
	})
}
