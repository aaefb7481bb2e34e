// Package scheduler runs the periodic campaign tasks: submission deadline
// reminders to GEIQs and pending-review summaries to institutions. Emails go
// through the notification outbox, never directly.
package scheduler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/gip-inclusion/geiq-assessments/internal/config"
	"github.com/gip-inclusion/geiq-assessments/internal/models"
	"github.com/gip-inclusion/geiq-assessments/internal/repository"
)

// Scheduler handles periodic tasks
type Scheduler struct {
	campaignRepo    *repository.CampaignRepository
	assessmentRepo  *repository.AssessmentRepository
	companyRepo     *repository.CompanyRepository
	institutionRepo *repository.InstitutionRepository
	outboxRepo      *repository.OutboxRepository
	config          *config.SchedulerConfig
	stopChan        chan bool
}

// NewScheduler creates a new scheduler
func NewScheduler(
	campaignRepo *repository.CampaignRepository,
	assessmentRepo *repository.AssessmentRepository,
	companyRepo *repository.CompanyRepository,
	institutionRepo *repository.InstitutionRepository,
	outboxRepo *repository.OutboxRepository,
	cfg *config.SchedulerConfig,
) *Scheduler {
	return &Scheduler{
		campaignRepo:    campaignRepo,
		assessmentRepo:  assessmentRepo,
		companyRepo:     companyRepo,
		institutionRepo: institutionRepo,
		outboxRepo:      outboxRepo,
		config:          cfg,
		stopChan:        make(chan bool),
	}
}

// Start starts all scheduled tasks
func (s *Scheduler) Start() {
	slog.Info("Starting scheduler",
		"submission_reminders_enabled", s.config.EnableSubmissionReminder,
		"institution_summary_enabled", s.config.EnableInstitutionSummary)

	if s.config.EnableSubmissionReminder {
		if err := s.startCronTask(s.config.SubmissionReminderCron, "submission_reminders", s.sendSubmissionReminders); err != nil {
			slog.Error("Failed to start submission reminders", "error", err)
		}
	}

	if s.config.EnableInstitutionSummary {
		if err := s.startCronTask(s.config.InstitutionSummaryCron, "institution_summaries", s.sendInstitutionSummaries); err != nil {
			slog.Error("Failed to start institution summaries", "error", err)
		}
	}

	slog.Info("Scheduler started")
}

// Stop stops the scheduler
func (s *Scheduler) Stop() {
	slog.Info("Stopping scheduler")
	close(s.stopChan)
}

// startCronTask parses a cron expression and starts the task.
// Supports simple cron format: "minute hour day month weekday"
// Examples: "0 9 * * 1" = Monday 9 AM, "0 8 * * *" = Daily 8 AM, "*/5 * * * *" = Every 5 minutes
func (s *Scheduler) startCronTask(cronExpr, taskName string, task func()) error {
	parts := strings.Fields(cronExpr)
	if len(parts) != 5 {
		return fmt.Errorf("invalid cron expression: %s (expected 5 fields)", cronExpr)
	}

	if strings.HasPrefix(parts[0], "*/") {
		interval, err := strconv.Atoi(parts[0][2:])
		if err != nil || interval < 1 || interval > 59 {
			return fmt.Errorf("invalid minute interval in cron: %s", parts[0])
		}
		go s.scheduleIntervalTask(time.Duration(interval)*time.Minute, taskName, task)
		return nil
	}

	minute, err := strconv.Atoi(parts[0])
	if err != nil || minute < 0 || minute > 59 {
		return fmt.Errorf("invalid minute in cron: %s", parts[0])
	}

	hour, err := strconv.Atoi(parts[1])
	if err != nil || hour < 0 || hour > 23 {
		return fmt.Errorf("invalid hour in cron: %s", parts[1])
	}

	if parts[4] == "*" {
		go s.scheduleDailyTask(hour, minute, taskName, task)
	} else {
		weekday, err := strconv.Atoi(parts[4])
		if err != nil || weekday < 0 || weekday > 6 {
			return fmt.Errorf("invalid weekday in cron: %s (0-6, 0=Sunday)", parts[4])
		}
		go s.scheduleWeeklyTask(time.Weekday(weekday), hour, minute, taskName, task)
	}

	return nil
}

// scheduleIntervalTask runs a task at regular intervals
func (s *Scheduler) scheduleIntervalTask(interval time.Duration, taskName string, task func()) {
	slog.Info("Starting interval task", "task", taskName, "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	task()

	for {
		select {
		case <-ticker.C:
			slog.Info("Running interval task", "task", taskName)
			task()
		case <-s.stopChan:
			return
		}
	}
}

// scheduleDailyTask runs a task daily at a specific time
func (s *Scheduler) scheduleDailyTask(hour, minute int, taskName string, task func()) {
	for {
		now := time.Now()
		next := s.nextDailyRun(now, hour, minute)

		slog.Info("Next daily task scheduled", "task", taskName, "next_run", next.Format("2006-01-02 15:04:05"))

		select {
		case <-time.After(next.Sub(now)):
			slog.Info("Running daily task", "task", taskName)
			task()
		case <-s.stopChan:
			return
		}
	}
}

// scheduleWeeklyTask runs a task weekly on a specific weekday and time
func (s *Scheduler) scheduleWeeklyTask(weekday time.Weekday, hour, minute int, taskName string, task func()) {
	for {
		now := time.Now()
		next := s.nextWeekday(now, weekday, hour, minute)

		slog.Info("Next weekly task scheduled", "task", taskName, "next_run", next.Format("2006-01-02 15:04:05"))

		select {
		case <-time.After(next.Sub(now)):
			slog.Info("Running weekly task", "task", taskName)
			task()
		case <-s.stopChan:
			return
		}
	}
}

// nextDailyRun calculates the next daily run time
func (s *Scheduler) nextDailyRun(from time.Time, hour, minute int) time.Time {
	next := time.Date(from.Year(), from.Month(), from.Day(), hour, minute, 0, 0, from.Location())
	if next.Before(from) || next.Equal(from) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// nextWeekday calculates the next occurrence of a specific weekday and time
func (s *Scheduler) nextWeekday(from time.Time, weekday time.Weekday, hour, minute int) time.Time {
	next := time.Date(from.Year(), from.Month(), from.Day(), hour, minute, 0, 0, from.Location())

	daysUntil := int(weekday - from.Weekday())
	if daysUntil < 0 {
		daysUntil += 7
	}
	next = next.AddDate(0, 0, daysUntil)

	if next.Before(from) || next.Equal(from) {
		next = next.AddDate(0, 0, 7)
	}

	return next
}

// sendSubmissionReminders queues a reminder for every unsubmitted assessment
// of a campaign whose submission deadline has not passed yet
func (s *Scheduler) sendSubmissionReminders() {
	slog.Info("Sending submission reminders")

	campaigns, err := s.campaignRepo.List()
	if err != nil {
		slog.Error("Failed to list campaigns", "error", err)
		return
	}

	now := time.Now()
	remindersSent := 0

	for _, campaign := range campaigns {
		if now.After(campaign.SubmissionDeadline) {
			continue
		}

		submitted := false
		refused := false
		assessments, err := s.assessmentRepo.List(repository.AssessmentFilters{
			CampaignID: &campaign.ID,
			Submitted:  &submitted,
			Refused:    &refused,
		})
		if err != nil {
			slog.Error("Failed to list assessments", "campaign_id", campaign.ID, "error", err)
			continue
		}

		for i := range assessments {
			assessment := &assessments[i]
			recipients, err := s.geiqRecipients(assessment)
			if err != nil {
				slog.Error("Failed to collect recipients", "assessment_id", assessment.ID, "error", err)
				continue
			}
			if len(recipients) == 0 {
				continue
			}

			payload := models.NotificationPayload{
				GeiqName: assessment.LabelGeiqName,
				Year:     campaign.Year,
				Deadline: campaign.SubmissionDeadline.Format("02/01/2006"),
			}
			if err := s.queueNotification(assessment, models.NotificationSubmissionReminder, recipients, payload); err != nil {
				slog.Error("Failed to queue reminder", "assessment_id", assessment.ID, "error", err)
				continue
			}
			remindersSent++
		}
	}

	slog.Info("Submission reminders completed", "reminders_sent", remindersSent)
}

// sendInstitutionSummaries queues a daily summary of assessments awaiting
// review to every institution with at least one pending assessment
func (s *Scheduler) sendInstitutionSummaries() {
	slog.Info("Sending institution summaries")

	institutions, err := s.institutionRepo.List()
	if err != nil {
		slog.Error("Failed to list institutions", "error", err)
		return
	}

	summariesSent := 0
	for _, institution := range institutions {
		submitted := true
		finalReviewed := false
		pending, err := s.assessmentRepo.List(repository.AssessmentFilters{
			InstitutionID: &institution.ID,
			Submitted:     &submitted,
			FinalReviewed: &finalReviewed,
		})
		if err != nil {
			slog.Error("Failed to list pending assessments", "institution_id", institution.ID, "error", err)
			continue
		}
		if len(pending) == 0 {
			continue
		}

		recipients, err := s.institutionRepo.MemberEmails(institution.ID)
		if err != nil {
			slog.Error("Failed to get institution members", "institution_id", institution.ID, "error", err)
			continue
		}
		if len(recipients) == 0 {
			continue
		}

		payload := models.NotificationPayload{
			InstitutionName: institution.Name,
			PendingCount:    len(pending),
		}
		if err := s.queueNotification(nil, models.NotificationInstitutionSummary, recipients, payload); err != nil {
			slog.Error("Failed to queue summary", "institution_id", institution.ID, "error", err)
			continue
		}
		summariesSent++
	}

	slog.Info("Institution summaries completed", "summaries_sent", summariesSent)
}

func (s *Scheduler) queueNotification(assessment *models.Assessment, kind string, recipients []string, payload models.NotificationPayload) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}

	notification := &models.OutboxNotification{
		Kind:       kind,
		Recipients: recipients,
		Payload:    encoded,
	}
	if assessment != nil {
		notification.AssessmentID = &assessment.ID
	}
	return s.outboxRepo.Create(notification)
}

func (s *Scheduler) geiqRecipients(assessment *models.Assessment) ([]string, error) {
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
