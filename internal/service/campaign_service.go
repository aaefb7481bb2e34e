package service

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/gip-inclusion/geiq-assessments/internal/models"
	"github.com/gip-inclusion/geiq-assessments/internal/repository"
)

// CampaignService manages assessment campaigns. Closing a campaign refuses
// every assessment that was never submitted.
type CampaignService struct {
	db             *sql.DB
	campaignRepo   *repository.CampaignRepository
	assessmentRepo *repository.AssessmentRepository
	companyRepo    *repository.CompanyRepository
	auditRepo      *repository.AuditRepository
	outboxRepo     *repository.OutboxRepository
}

// NewCampaignService creates a new campaign service
func NewCampaignService(
	db *sql.DB,
	campaignRepo *repository.CampaignRepository,
	assessmentRepo *repository.AssessmentRepository,
	companyRepo *repository.CompanyRepository,
	auditRepo *repository.AuditRepository,
	outboxRepo *repository.OutboxRepository,
) *CampaignService {
	return &CampaignService{
		db:             db,
		campaignRepo:   campaignRepo,
		assessmentRepo: assessmentRepo,
		companyRepo:    companyRepo,
		auditRepo:      auditRepo,
		outboxRepo:     outboxRepo,
	}
}

// CreateCampaign opens the campaign for a year
func (s *CampaignService) CreateCampaign(year int, submissionDeadline, reviewDeadline time.Time) (*models.Campaign, error) {
	if reviewDeadline.Before(submissionDeadline) {
		return nil, fmt.Errorf("%w: review deadline precedes submission deadline", ErrPreconditionFailed)
	}

	campaign := &models.Campaign{
		Year:               year,
		SubmissionDeadline: submissionDeadline,
		ReviewDeadline:     reviewDeadline,
	}
	if err := s.campaignRepo.Create(campaign); err != nil {
		return nil, err
	}

	slog.Info("Campaign created", "campaign_id", campaign.ID, "year", year)
	return campaign, nil
}

// GetCampaign retrieves a campaign by ID
func (s *CampaignService) GetCampaign(id uint) (*models.Campaign, error) {
	return s.campaignRepo.GetByID(id)
}

// ListCampaigns returns all campaigns, newest year first
func (s *CampaignService) ListCampaigns() ([]models.Campaign, error) {
	return s.campaignRepo.List()
}

// CloseCampaign refuses every assessment never submitted before the deadline
// and queues one refusal notification each. Safe to re-run: already refused
// assessments are skipped and notifications are never duplicated.
func (s *CampaignService) CloseCampaign(userID uint, campaignID uint, reason string) (int, error) {
	campaign, err := s.campaignRepo.GetByID(campaignID)
	if err != nil {
		return 0, err
	}
	if time.Now().Before(campaign.SubmissionDeadline) {
		return 0, fmt.Errorf("%w: submission deadline has not passed", ErrPreconditionFailed)
	}

	submitted := false
	refused := false
	assessments, err := s.assessmentRepo.List(repository.AssessmentFilters{
		CampaignID: &campaignID,
		Submitted:  &submitted,
		Refused:    &refused,
	})
	if err != nil {
		return 0, err
	}

	closed := 0
	for i := range assessments {
		if err := s.refuseAssessment(userID, &assessments[i], campaign, reason); err != nil {
			return closed, err
		}
		closed++
	}

	slog.Info("Campaign closed", "campaign_id", campaignID, "refused", closed)
	return closed, nil
}

func (s *CampaignService) refuseAssessment(userID uint, assessment *models.Assessment, campaign *models.Campaign, reason string) error {
	recipients, err := s.geiqRecipients(assessment)
	if err != nil {
		return err
	}

	// Guards against a retry after a crash between commit and the next
	// assessment: the refusal notification is only written once.
	notified, err := s.outboxRepo.CountByKind(assessment.ID, models.NotificationAssessmentRefused)
	if err != nil {
		return err
	}

	now := time.Now()
	assessment.RefusedAt = &now
	assessment.RefusalReason = reason

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.assessmentRepo.WithTx(tx).Update(assessment); err != nil {
		return err
	}

	if notified == 0 && len(recipients) > 0 {
		payload, err := json.Marshal(models.NotificationPayload{
			GeiqName: assessment.LabelGeiqName,
			Year:     campaign.Year,
			Reason:   reason,
		})
		if err != nil {
			return fmt.Errorf("failed to encode notification payload: %w", err)
		}
		notification := &models.OutboxNotification{
			AssessmentID: &assessment.ID,
			Kind:         models.NotificationAssessmentRefused,
			Recipients:   recipients,
			Payload:      payload,
		}
		if err := s.outboxRepo.WithTx(tx).Create(notification); err != nil {
			return err
		}
	}

	if err := s.auditRepo.WithTx(tx).Create(&models.AuditLog{
		UserID:   &userID,
		Action:   "assessment.refuse",
		Resource: assessment.ID.String(),
		Details:  reason,
	}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func (s *CampaignService) geiqRecipients(assessment *models.Assessment) ([]string, error) {
	companyIDs, err := s.assessmentRepo.CompanyIDs(assessment.ID)
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
