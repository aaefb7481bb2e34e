package service

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/gip-inclusion/geiq-assessments/internal/label"
	"github.com/gip-inclusion/geiq-assessments/internal/metrics"
	"github.com/gip-inclusion/geiq-assessments/internal/models"
	"github.com/gip-inclusion/geiq-assessments/internal/repository"
)

// SyncService mirrors the Label registry into the assessment. Upserts are
// keyed on the registry's label_id, so re-running a sync refreshes rows
// instead of duplicating them and never touches the allowance toggles.
type SyncService struct {
	db             *sql.DB
	labelClient    label.Client
	assessmentRepo *repository.AssessmentRepository
	employeeRepo   *repository.EmployeeRepository
	campaignRepo   *repository.CampaignRepository
	companyRepo    *repository.CompanyRepository
	auditRepo      *repository.AuditRepository
	metrics        *metrics.Metrics
}

// NewSyncService creates a new sync service
func NewSyncService(
	db *sql.DB,
	labelClient label.Client,
	assessmentRepo *repository.AssessmentRepository,
	employeeRepo *repository.EmployeeRepository,
	campaignRepo *repository.CampaignRepository,
	companyRepo *repository.CompanyRepository,
	auditRepo *repository.AuditRepository,
	m *metrics.Metrics,
) *SyncService {
	return &SyncService{
		db:             db,
		labelClient:    labelClient,
		assessmentRepo: assessmentRepo,
		employeeRepo:   employeeRepo,
		campaignRepo:   campaignRepo,
		companyRepo:    companyRepo,
		auditRepo:      auditRepo,
		metrics:        m,
	}
}

// SyncContracts fetches contracts, prequalifications and rates from the Label
// registry and mirrors them into the assessment. Allowed until the contract
// selection is validated; newly inserted contracts default their allowance
// request from the campaign-year presence.
func (s *SyncService) SyncContracts(ctx context.Context, userID uint, assessmentID uuid.UUID) error {
	assessment, err := s.assessmentRepo.GetByID(assessmentID)
	if err != nil {
		return err
	}
	if err := s.requireGeiqMember(userID, assessment.LabelGeiqID); err != nil {
		return err
	}

	if assessment.ContractsSelectionValidatedAt != nil {
		return fmt.Errorf("%w: contract selection is already validated", ErrPreconditionFailed)
	}

	campaign, err := s.campaignRepo.GetByID(assessment.CampaignID)
	if err != nil {
		return err
	}

	contracts, err := s.labelClient.GetAllContracts(ctx, assessment.LabelGeiqID)
	if err != nil {
		s.metrics.LabelSyncFailures.Inc()
		return fmt.Errorf("failed to fetch contracts from label: %w", err)
	}
	prequalifications, err := s.labelClient.GetAllPrequalifications(ctx, assessment.LabelGeiqID)
	if err != nil {
		s.metrics.LabelSyncFailures.Inc()
		return fmt.Errorf("failed to fetch prequalifications from label: %w", err)
	}
	rates, err := s.labelClient.GetRates(ctx, assessment.LabelGeiqID)
	if err != nil {
		s.metrics.LabelSyncFailures.Inc()
		return fmt.Errorf("failed to fetch rates from label: %w", err)
	}

	// Employees with a prior qualification on record get the higher
	// allowance amount.
	hasPrequalification := make(map[int]bool)
	for _, record := range prequalifications {
		hasPrequalification[record.Employee.ID] = true
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	employeeRepo := s.employeeRepo.WithTx(tx)
	employeeIDs := make(map[int]uuid.UUID)

	upsertEmployee := func(record label.EmployeeRecord) (uuid.UUID, error) {
		if id, ok := employeeIDs[record.ID]; ok {
			return id, nil
		}
		amount := models.AllowanceAmountDefault
		if hasPrequalification[record.ID] {
			amount = models.AllowanceAmountWithPrequalification
		}
		employee := &models.Employee{
			AssessmentID:    assessmentID,
			LabelID:         record.ID,
			FirstName:       record.FirstName,
			LastName:        record.LastName,
			Birthdate:       record.Birthdate.Time,
			Title:           record.Title,
			AllowanceAmount: amount,
		}
		if err := employeeRepo.Upsert(employee); err != nil {
			return uuid.Nil, err
		}
		employeeIDs[record.ID] = employee.ID
		return employee.ID, nil
	}

	for _, record := range contracts {
		employeeID, err := upsertEmployee(record.Employee)
		if err != nil {
			return err
		}

		contract := models.EmployeeContract{
			EmployeeID:   employeeID,
			LabelID:      record.ID,
			StartAt:      record.StartAt.Time,
			PlannedEndAt: record.PlannedEndAt.Time,
			OtherData:    record.Raw,
		}
		if record.EndAt != nil && !record.EndAt.IsZero() {
			end := record.EndAt.Time
			contract.EndAt = &end
		}
		contract.NbDaysInCampaignYear = models.ContractDaysInYear(contract, campaign.Year)
		contract.AllowanceRequested = models.AllowanceRequestedByDefault(contract.NbDaysInCampaignYear)

		if err := employeeRepo.UpsertContract(&contract); err != nil {
			return err
		}
	}

	for _, record := range prequalifications {
		employeeID, err := upsertEmployee(record.Employee)
		if err != nil {
			return err
		}

		prequalification := models.EmployeePrequalification{
			EmployeeID: employeeID,
			LabelID:    record.ID,
			StartAt:    record.StartAt.Time,
			EndAt:      record.EndAt.Time,
			OtherData:  record.Raw,
		}
		if err := employeeRepo.UpsertPrequalification(&prequalification); err != nil {
			return err
		}
	}

	assessmentRepo := s.assessmentRepo.WithTx(tx)
	if err := assessmentRepo.UpdateLabelRates(assessmentID, rates); err != nil {
		return err
	}

	now := time.Now()
	assessment.ContractsSyncedAt = &now
	assessment.LabelRates = rates
	if err := assessmentRepo.Update(assessment); err != nil {
		return err
	}

	if err := s.auditRepo.WithTx(tx).Create(&models.AuditLog{
		UserID:   &userID,
		Action:   "assessment.sync_contracts",
		Resource: assessmentID.String(),
		Details:  fmt.Sprintf("%d contracts, %d prequalifications", len(contracts), len(prequalifications)),
	}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.metrics.LabelSyncRuns.Inc()
	slog.Info("Contracts synced",
		"assessment_id", assessmentID,
		"contracts", len(contracts),
		"prequalifications", len(prequalifications))

	return nil
}

func (s *SyncService) requireGeiqMember(userID uint, labelGeiqID int) error {
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
