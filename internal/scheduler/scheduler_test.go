package scheduler

import (
	"testing"
	"time"

	"github.com/gip-inclusion/geiq-assessments/internal/config"
	"github.com/gip-inclusion/geiq-assessments/internal/models"
	"github.com/gip-inclusion/geiq-assessments/internal/repository"
	"github.com/gip-inclusion/geiq-assessments/internal/testutil"
)

type schedulerEnv struct {
	scheduler      *Scheduler
	fixtures       *testutil.Fixtures
	campaignRepo   *repository.CampaignRepository
	assessmentRepo *repository.AssessmentRepository
	outboxRepo     *repository.OutboxRepository
}

func setupScheduler(t *testing.T) *schedulerEnv {
	t.Helper()

	tc := testutil.SetupTestContainers(t)
	t.Cleanup(func() { tc.Cleanup(t) })

	fixtures := testutil.SetupFixtures(t, tc.DB)

	campaignRepo := repository.NewCampaignRepository(tc.DB)
	assessmentRepo := repository.NewAssessmentRepository(tc.DB)
	companyRepo := repository.NewCompanyRepository(tc.DB)
	institutionRepo := repository.NewInstitutionRepository(tc.DB)
	outboxRepo := repository.NewOutboxRepository(tc.DB)

	cfg := &config.SchedulerConfig{
		SubmissionReminderCron:   "0 9 * * 1",
		InstitutionSummaryCron:   "0 8 * * *",
		EnableSubmissionReminder: true,
		EnableInstitutionSummary: true,
	}

	return &schedulerEnv{
		scheduler:      NewScheduler(campaignRepo, assessmentRepo, companyRepo, institutionRepo, outboxRepo, cfg),
		fixtures:       fixtures,
		campaignRepo:   campaignRepo,
		assessmentRepo: assessmentRepo,
		outboxRepo:     outboxRepo,
	}
}

func (env *schedulerEnv) createAssessment(t *testing.T, campaignID uint, linkInstitution bool) *models.Assessment {
	t.Helper()

	assessment := &models.Assessment{
		CampaignID:    campaignID,
		LabelGeiqID:   testutil.LabelGeiqID,
		LabelGeiqName: "GEIQ BTP Loire",
		WithMainGeiq:  true,
		CreatedBy:     env.fixtures.GeiqUser.ID,
	}
	if err := env.assessmentRepo.Create(assessment); err != nil {
		t.Fatalf("Failed to create assessment: %v", err)
	}
	if err := env.assessmentRepo.LinkCompany(assessment.ID, env.fixtures.Company.ID); err != nil {
		t.Fatalf("Failed to link company: %v", err)
	}
	if linkInstitution {
		link := &models.InstitutionLink{
			AssessmentID:   assessment.ID,
			InstitutionID:  env.fixtures.Ddets.ID,
			WithConvention: true,
		}
		if err := env.assessmentRepo.CreateInstitutionLink(link); err != nil {
			t.Fatalf("Failed to link institution: %v", err)
		}
	}
	return assessment
}

func TestSendSubmissionReminders(t *testing.T) {
	env := setupScheduler(t)

	// The fixture campaign deadline has passed, so it queues nothing
	env.createAssessment(t, env.fixtures.Campaign.ID, false)

	open := &models.Campaign{
		Year:               2026,
		SubmissionDeadline: time.Now().AddDate(0, 1, 0),
		ReviewDeadline:     time.Now().AddDate(0, 4, 0),
	}
	if err := env.campaignRepo.Create(open); err != nil {
		t.Fatalf("Failed to create campaign: %v", err)
	}
	pending := env.createAssessment(t, open.ID, false)

	env.scheduler.sendSubmissionReminders()

	n, err := env.outboxRepo.CountByKind(pending.ID, models.NotificationSubmissionReminder)
	if err != nil {
		t.Fatalf("Failed to count notifications: %v", err)
	}
	if n != 1 {
		t.Errorf("Expected 1 reminder for the open campaign, got %d", n)
	}

	notifications, err := env.outboxRepo.ListPending(10)
	if err != nil {
		t.Fatalf("Failed to list pending: %v", err)
	}
	if len(notifications) != 1 {
		t.Fatalf("Expected 1 queued notification in total, got %d", len(notifications))
	}
	if len(notifications[0].Recipients) == 0 || notifications[0].Recipients[0] != "geiq@test.fr" {
		t.Errorf("Reminder should reach the GEIQ members, got %v", notifications[0].Recipients)
	}
}

func TestSendInstitutionSummaries(t *testing.T) {
	env := setupScheduler(t)

	// An assessment awaiting review at the DDETS
	assessment := env.createAssessment(t, env.fixtures.Campaign.ID, true)
	now := time.Now()
	assessment.SubmittedAt = &now
	assessment.SubmittedBy = &env.fixtures.GeiqUser.ID
	assessment.GeiqComment = "Bilan transmis"
	if err := env.assessmentRepo.Update(assessment); err != nil {
		t.Fatalf("Failed to mark submitted: %v", err)
	}

	env.scheduler.sendInstitutionSummaries()

	notifications, err := env.outboxRepo.ListPending(10)
	if err != nil {
		t.Fatalf("Failed to list pending: %v", err)
	}
	// Only the DDETS has pending work, the DREETS gets no summary
	if len(notifications) != 1 {
		t.Fatalf("Expected 1 summary, got %d", len(notifications))
	}
	summary := notifications[0]
	if summary.Kind != models.NotificationInstitutionSummary {
		t.Errorf("Kind = %q, want %q", summary.Kind, models.NotificationInstitutionSummary)
	}
	if len(summary.Recipients) == 0 || summary.Recipients[0] != "ddets@test.fr" {
		t.Errorf("Summary should reach the DDETS members, got %v", summary.Recipients)
	}
}

func TestNextRunHelpers(t *testing.T) {
	s := NewScheduler(nil, nil, nil, nil, nil, &config.SchedulerConfig{})

	from := time.Date(2026, time.August, 26, 10, 30, 0, 0, time.UTC) // a Wednesday

	next := s.nextDailyRun(from, 8, 0)
	want := time.Date(2026, time.August, 27, 8, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("nextDailyRun past today's slot = %v, want %v", next, want)
	}

	next = s.nextDailyRun(from, 11, 0)
	want = time.Date(2026, time.August, 26, 11, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("nextDailyRun later today = %v, want %v", next, want)
	}

	next = s.nextWeekday(from, time.Monday, 9, 0)
	want = time.Date(2026, time.August, 31, 9, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("nextWeekday = %v, want %v", next, want)
	}
}
