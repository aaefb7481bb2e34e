package service

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/gip-inclusion/geiq-assessments/internal/metrics"
	"github.com/gip-inclusion/geiq-assessments/internal/models"
	"github.com/gip-inclusion/geiq-assessments/internal/repository"
)

// ReviewService implements the institution-side lifecycle commands: grant
// toggles, decision validation and the two review tiers. The institution
// holding the funding convention acts as the first tier; any other linked
// institution acts as the final tier. A single linked DREETS is its own final
// tier and its review collapses both tiers at once.
type ReviewService struct {
	db              *sql.DB
	assessmentRepo  *repository.AssessmentRepository
	employeeRepo    *repository.EmployeeRepository
	campaignRepo    *repository.CampaignRepository
	companyRepo     *repository.CompanyRepository
	institutionRepo *repository.InstitutionRepository
	auditRepo       *repository.AuditRepository
	outboxRepo      *repository.OutboxRepository
	metrics         *metrics.Metrics
}

// NewReviewService creates a new review service
func NewReviewService(
	db *sql.DB,
	assessmentRepo *repository.AssessmentRepository,
	employeeRepo *repository.EmployeeRepository,
	campaignRepo *repository.CampaignRepository,
	companyRepo *repository.CompanyRepository,
	institutionRepo *repository.InstitutionRepository,
	auditRepo *repository.AuditRepository,
	outboxRepo *repository.OutboxRepository,
	m *metrics.Metrics,
) *ReviewService {
	return &ReviewService{
		db:              db,
		assessmentRepo:  assessmentRepo,
		employeeRepo:    employeeRepo,
		campaignRepo:    campaignRepo,
		companyRepo:     companyRepo,
		institutionRepo: institutionRepo,
		auditRepo:       auditRepo,
		outboxRepo:      outboxRepo,
		metrics:         m,
	}
}

// reviewerTier is the resolved position of the acting user's institution
type reviewerTier struct {
	institutionID uint
	firstTier     bool
	finalTier     bool
}

// resolveTier finds the link of an institution the user belongs to and
// decides which review tier it holds
func (s *ReviewService) resolveTier(userID uint, assessmentID uuid.UUID) (*reviewerTier, error) {
	links, err := s.assessmentRepo.InstitutionLinks(assessmentID)
	if err != nil {
		return nil, err
	}

	for _, link := range links {
		member, err := s.institutionRepo.IsMember(userID, link.InstitutionID)
		if err != nil {
			return nil, err
		}
		if !member {
			continue
		}

		tier := &reviewerTier{
			institutionID: link.InstitutionID,
			firstTier:     link.WithConvention,
			finalTier:     !link.WithConvention,
		}
		if len(links) == 1 && link.WithConvention {
			institution, err := s.institutionRepo.GetByID(link.InstitutionID)
			if err != nil {
				return nil, err
			}
			if institution.Kind == models.InstitutionKindDREETS {
				tier.finalTier = true
			}
		}
		return tier, nil
	}

	return nil, ErrPermissionDenied
}

// SetAllowanceGranted toggles the institution-side allowance flag on a
// contract. Granting requires the GEIQ to have requested the allowance. Once
// the grant selection is validated the flag is frozen and the call is a
// silent no-op.
func (s *ReviewService) SetAllowanceGranted(userID uint, assessmentID, contractID uuid.UUID, granted bool) error {
	assessment, err := s.assessmentRepo.GetByID(assessmentID)
	if err != nil {
		return err
	}
	if _, err := s.resolveTier(userID, assessmentID); err != nil {
		return err
	}

	if assessment.SubmittedAt == nil {
		return fmt.Errorf("%w: assessment is not submitted", ErrPreconditionFailed)
	}
	if assessment.GrantsSelectionValidatedAt != nil {
		return nil
	}

	contract, err := s.employeeRepo.GetContract(assessmentID, contractID)
	if err != nil {
		return err
	}
	if granted && !contract.AllowanceRequested {
		return fmt.Errorf("%w: allowance was not requested for this contract", ErrPreconditionFailed)
	}

	return s.employeeRepo.SetAllowanceGranted(contractID, granted)
}

// ValidateGrantsSelection freezes the grant selection. Idempotent if already
// validated.
func (s *ReviewService) ValidateGrantsSelection(userID uint, assessmentID uuid.UUID) error {
	assessment, err := s.assessmentRepo.GetByID(assessmentID)
	if err != nil {
		return err
	}
	if _, err := s.resolveTier(userID, assessmentID); err != nil {
		return err
	}

	if assessment.GrantsSelectionValidatedAt != nil {
		return nil
	}
	if assessment.SubmittedAt == nil {
		return fmt.Errorf("%w: assessment is not submitted", ErrPreconditionFailed)
	}

	now := time.Now()
	assessment.GrantsSelectionValidatedAt = &now
	return s.updateWithAudit(userID, assessment, "assessment.validate_grants_selection", "")
}

// InvalidateGrantsSelection reopens the grant selection. Blocked once the
// decision is validated.
func (s *ReviewService) InvalidateGrantsSelection(userID uint, assessmentID uuid.UUID) error {
	assessment, err := s.assessmentRepo.GetByID(assessmentID)
	if err != nil {
		return err
	}
	if _, err := s.resolveTier(userID, assessmentID); err != nil {
		return err
	}

	if assessment.DecisionValidatedAt != nil {
		return fmt.Errorf("%w: decision is already validated", ErrPreconditionFailed)
	}
	if assessment.GrantsSelectionValidatedAt == nil {
		return nil
	}

	assessment.GrantsSelectionValidatedAt = nil
	return s.updateWithAudit(userID, assessment, "assessment.invalidate_grants_selection", "")
}

// ValidateDecision records the financial decision. Every violated rule is
// reported at once so the form can surface them together. Only the convention
// holder decides.
func (s *ReviewService) ValidateDecision(userID uint, assessmentID uuid.UUID, convention, granted, advance int, reviewComment string) error {
	assessment, err := s.assessmentRepo.GetByID(assessmentID)
	if err != nil {
		return err
	}
	tier, err := s.resolveTier(userID, assessmentID)
	if err != nil {
		return err
	}
	if !tier.firstTier {
		return fmt.Errorf("%w: only the convention holder validates the decision", ErrPermissionDenied)
	}

	if assessment.GrantsSelectionValidatedAt == nil {
		return fmt.Errorf("%w: grant selection has not been validated", ErrPreconditionFailed)
	}
	if assessment.ReviewedAt != nil {
		return fmt.Errorf("%w: assessment is already reviewed", ErrPreconditionFailed)
	}

	if errs := models.ValidateDecisionAmounts(convention, granted, advance, reviewComment); len(errs) > 0 {
		return errs
	}

	now := time.Now()
	assessment.ConventionAmount = convention
	assessment.GrantedAmount = granted
	assessment.AdvanceAmount = advance
	assessment.ReviewComment = reviewComment
	if assessment.DecisionValidatedAt == nil {
		assessment.DecisionValidatedAt = &now
	}

	return s.updateWithAudit(userID, assessment, "assessment.validate_decision",
		fmt.Sprintf("convention=%d granted=%d advance=%d", convention, granted, advance))
}

// Review records the first-tier review. When the acting institution is the
// final tier and no first-tier review exists, both tiers are recorded with the
// same timestamp and the GEIQ is notified of the result.
func (s *ReviewService) Review(userID uint, assessmentID uuid.UUID) error {
	assessment, err := s.assessmentRepo.GetByID(assessmentID)
	if err != nil {
		return err
	}
	tier, err := s.resolveTier(userID, assessmentID)
	if err != nil {
		return err
	}

	if assessment.DecisionValidatedAt == nil {
		return fmt.Errorf("%w: decision has not been validated", ErrPreconditionFailed)
	}
	if assessment.ReviewedAt != nil {
		return nil
	}

	now := time.Now()
	assessment.ReviewedAt = &now
	assessment.ReviewedBy = &userID
	assessment.ReviewedByInstitution = &tier.institutionID

	collapse := tier.finalTier
	if collapse {
		assessment.FinalReviewedAt = &now
		assessment.FinalReviewedBy = &userID
		assessment.FinalReviewedByInstitution = &tier.institutionID
	}

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

	action := "assessment.review"
	if collapse {
		action = "assessment.review_and_final_review"
		if err := s.queueFinalReviewNotification(tx, assessment); err != nil {
			return err
		}
	} else {
		if err := s.queueReviewedNotification(tx, assessment); err != nil {
			return err
		}
	}

	if err := s.audit(tx, userID, action, assessmentID, ""); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.metrics.ReviewsCompleted.Inc()
	if collapse {
		s.metrics.FinalReviews.Inc()
	}
	slog.Info("Assessment reviewed",
		"assessment_id", assessmentID,
		"institution_id", tier.institutionID,
		"collapsed", collapse)

	return nil
}

// FixReview reopens the first-tier review. Only the final tier may send an
// assessment back, and only before its own review.
func (s *ReviewService) FixReview(userID uint, assessmentID uuid.UUID) error {
	assessment, err := s.assessmentRepo.GetByID(assessmentID)
	if err != nil {
		return err
	}
	tier, err := s.resolveTier(userID, assessmentID)
	if err != nil {
		return err
	}
	if !tier.finalTier {
		return fmt.Errorf("%w: only the final tier sends a review back", ErrPermissionDenied)
	}

	if assessment.ReviewedAt == nil {
		return fmt.Errorf("%w: assessment is not reviewed", ErrPreconditionFailed)
	}
	if assessment.FinalReviewedAt != nil {
		return fmt.Errorf("%w: assessment is already final reviewed", ErrPreconditionFailed)
	}

	assessment.ReviewedAt = nil
	assessment.ReviewedBy = nil
	assessment.ReviewedByInstitution = nil

	return s.updateWithAudit(userID, assessment, "assessment.fix_review", "")
}

// FinalReview records the final-tier review and notifies the GEIQ of the
// financial result.
func (s *ReviewService) FinalReview(userID uint, assessmentID uuid.UUID) error {
	assessment, err := s.assessmentRepo.GetByID(assessmentID)
	if err != nil {
		return err
	}
	tier, err := s.resolveTier(userID, assessmentID)
	if err != nil {
		return err
	}
	if !tier.finalTier {
		return fmt.Errorf("%w: only the final tier records the final review", ErrPermissionDenied)
	}

	if assessment.ReviewedAt == nil {
		return fmt.Errorf("%w: assessment is not reviewed", ErrPreconditionFailed)
	}
	if assessment.FinalReviewedAt != nil {
		return nil
	}

	now := time.Now()
	assessment.FinalReviewedAt = &now
	assessment.FinalReviewedBy = &userID
	assessment.FinalReviewedByInstitution = &tier.institutionID

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
	if err := s.queueFinalReviewNotification(tx, assessment); err != nil {
		return err
	}
	if err := s.audit(tx, userID, "assessment.final_review", assessmentID, ""); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.metrics.FinalReviews.Inc()
	slog.Info("Assessment final reviewed",
		"assessment_id", assessmentID,
		"institution_id", tier.institutionID,
		"balance", assessment.Balance())

	return nil
}

// Result returns the financial settlement, only once final reviewed
func (s *ReviewService) Result(userID uint, roles []string, assessmentID uuid.UUID) (*models.AssessmentResult, error) {
	assessment, err := s.assessmentRepo.GetByID(assessmentID)
	if err != nil {
		return nil, err
	}
	if err := s.requireReadAccess(userID, roles, assessment); err != nil {
		return nil, err
	}
	if assessment.FinalReviewedAt == nil {
		return nil, fmt.Errorf("%w: assessment is not final reviewed", ErrPreconditionFailed)
	}

	result := assessment.Result()
	return &result, nil
}

// requireReadAccess allows GEIQ members, linked institution members and admins
func (s *ReviewService) requireReadAccess(userID uint, roles []string, assessment *models.Assessment) error {
	for _, role := range roles {
		if role == "admin" {
			return nil
		}
	}

	companies, err := s.companyRepo.CompaniesForUser(userID)
	if err != nil {
		return err
	}
	for _, company := range companies {
		if company.LabelGeiqID == assessment.LabelGeiqID {
			return nil
		}
	}

	if _, err := s.resolveTier(userID, assessment.ID); err == nil {
		return nil
	} else if !errors.Is(err, ErrPermissionDenied) {
		return err
	}

	return ErrPermissionDenied
}

// queueReviewedNotification tells the GEIQ its assessment passed the first
// review tier
func (s *ReviewService) queueReviewedNotification(tx *sql.Tx, assessment *models.Assessment) error {
	campaign, err := s.campaignRepo.GetByID(assessment.CampaignID)
	if err != nil {
		return err
	}

	recipients, err := s.geiqRecipients(assessment.ID)
	if err != nil {
		return err
	}
	if len(recipients) == 0 {
		return nil
	}

	payload, err := json.Marshal(models.NotificationPayload{
		GeiqName: assessment.LabelGeiqName,
		Year:     campaign.Year,
	})
	if err != nil {
		return fmt.Errorf("failed to encode notification payload: %w", err)
	}

	return s.outboxRepo.WithTx(tx).Create(&models.OutboxNotification{
		AssessmentID: &assessment.ID,
		Kind:         models.NotificationAssessmentReviewed,
		Recipients:   recipients,
		Payload:      payload,
	})
}

// queueFinalReviewNotification writes the result notification for the GEIQ
// members inside the transition's transaction
func (s *ReviewService) queueFinalReviewNotification(tx *sql.Tx, assessment *models.Assessment) error {
	campaign, err := s.campaignRepo.GetByID(assessment.CampaignID)
	if err != nil {
		return err
	}

	recipients, err := s.geiqRecipients(assessment.ID)
	if err != nil {
		return err
	}
	if len(recipients) == 0 {
		return nil
	}

	payload, err := json.Marshal(models.NotificationPayload{
		GeiqName:   assessment.LabelGeiqName,
		Year:       campaign.Year,
		Balance:    assessment.Balance(),
		RefundOwed: assessment.BalanceKind() == models.BalanceRefundOwed,
	})
	if err != nil {
		return fmt.Errorf("failed to encode notification payload: %w", err)
	}

	return s.outboxRepo.WithTx(tx).Create(&models.OutboxNotification{
		AssessmentID: &assessment.ID,
		Kind:         models.NotificationAssessmentFinalReviewed,
		Recipients:   recipients,
		Payload:      payload,
	})
}

// geiqRecipients collects the distinct member emails of the companies linked
// to the assessment
func (s *ReviewService) geiqRecipients(assessmentID uuid.UUID) ([]string, error) {
	companyIDs, err := s.assessmentRepo.CompanyIDs(assessmentID)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var recipients []string
	for _, companyID := range companyIDs {
		emails, err := s.companyRepo.MemberEmails(companyID)
		if err != nil {
			return nil, err
		}
		for _, email := range emails {
			if !seen[email] {
				seen[email] = true
				recipients = append(recipients, email)
			}
		}
	}

	return recipients, nil
}

func (s *ReviewService) updateWithAudit(userID uint, assessment *models.Assessment, action, details string) error {
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

func (s *ReviewService) audit(tx *sql.Tx, userID uint, action string, assessmentID uuid.UUID, details string) error {
	return s.auditRepo.WithTx(tx).Create(&models.AuditLog{
		UserID:   &userID,
		Action:   action,
		Resource: assessmentID.String(),
		Details:  details,
	})
}
