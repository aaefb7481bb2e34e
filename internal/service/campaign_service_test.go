package service

import (
	"errors"
	"testing"
	"time"

	"github.com/gip-inclusion/geiq-assessments/internal/models"
)

func TestCreateCampaignDeadlineOrder(t *testing.T) {
	env := setupEnv(t)

	submission := time.Date(2026, time.July, 31, 0, 0, 0, 0, time.UTC)
	review := time.Date(2026, time.May, 31, 0, 0, 0, 0, time.UTC)

	_, err := env.campaigns.CreateCampaign(2025, submission, review)
	if !errors.Is(err, ErrPreconditionFailed) {
		t.Errorf("Expected ErrPreconditionFailed for inverted deadlines, got %v", err)
	}

	campaign, err := env.campaigns.CreateCampaign(2025, submission, submission.AddDate(0, 3, 0))
	if err != nil {
		t.Fatalf("Failed to create campaign: %v", err)
	}
	if campaign.ID == 0 {
		t.Error("Campaign should get an ID")
	}
}

func TestCloseCampaign(t *testing.T) {
	env := setupEnv(t)
	admin := env.fixtures.AdminUser.ID

	// One submitted assessment and one still in draft
	submitted := env.createAssessment(t)
	env.submit(t, submitted.ID)
	draft := env.createDreetsOnlyAssessment(t)

	closed, err := env.campaigns.CloseCampaign(admin, env.fixtures.Campaign.ID, "Bilan non transmis avant la date limite")
	if err != nil {
		t.Fatalf("Failed to close campaign: %v", err)
	}
	if closed != 1 {
		t.Errorf("Expected 1 refused assessment, got %d", closed)
	}

	refused := env.getAssessment(t, draft.ID)
	if refused.State() != models.StateRefused {
		t.Errorf("Draft state = %q, want %q", refused.State(), models.StateRefused)
	}
	if refused.RefusalReason == "" {
		t.Error("Refusal should record the reason")
	}
	if kept := env.getAssessment(t, submitted.ID); kept.RefusedAt != nil {
		t.Error("Submitted assessments must not be refused")
	}

	if n := env.countNotifications(t, draft.ID, models.NotificationAssessmentRefused); n != 1 {
		t.Errorf("Expected 1 refusal notification, got %d", n)
	}

	// Closing again finds nothing left to refuse and queues nothing new
	closed, err = env.campaigns.CloseCampaign(admin, env.fixtures.Campaign.ID, "Bilan non transmis avant la date limite")
	if err != nil {
		t.Fatalf("Failed to re-close campaign: %v", err)
	}
	if closed != 0 {
		t.Errorf("Expected 0 refused on re-close, got %d", closed)
	}
	if n := env.countNotifications(t, draft.ID, models.NotificationAssessmentRefused); n != 1 {
		t.Errorf("Re-close must not queue notifications, got %d", n)
	}
}

func TestCloseCampaignBeforeDeadline(t *testing.T) {
	env := setupEnv(t)
	admin := env.fixtures.AdminUser.ID

	future := time.Now().AddDate(1, 0, 0)
	campaign, err := env.campaigns.CreateCampaign(2030, future, future.AddDate(0, 3, 0))
	if err != nil {
		t.Fatalf("Failed to create campaign: %v", err)
	}

	_, err = env.campaigns.CloseCampaign(admin, campaign.ID, "Trop tôt")
	if !errors.Is(err, ErrPreconditionFailed) {
		t.Errorf("Expected ErrPreconditionFailed before the deadline, got %v", err)
	}
}

func TestListCampaigns(t *testing.T) {
	env := setupEnv(t)

	campaigns, err := env.campaigns.ListCampaigns()
	if err != nil {
		t.Fatalf("Failed to list campaigns: %v", err)
	}
	if len(campaigns) != 1 {
		t.Fatalf("Expected the fixture campaign, got %d campaigns", len(campaigns))
	}
	if campaigns[0].Year != env.fixtures.Campaign.Year {
		t.Errorf("Campaign year = %d, want %d", campaigns[0].Year, env.fixtures.Campaign.Year)
	}
}
