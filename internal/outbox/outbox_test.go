package outbox

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/gip-inclusion/geiq-assessments/internal/metrics"
	"github.com/gip-inclusion/geiq-assessments/internal/models"
	"github.com/gip-inclusion/geiq-assessments/internal/repository"
	"github.com/gip-inclusion/geiq-assessments/internal/testutil"
)

type recordingSender struct {
	sent    []models.OutboxNotification
	failFor map[string]error // kind -> error
}

func (s *recordingSender) Send(notification models.OutboxNotification) error {
	if err, ok := s.failFor[notification.Kind]; ok {
		return err
	}
	s.sent = append(s.sent, notification)
	return nil
}

func queue(t *testing.T, outboxRepo *repository.OutboxRepository, kind string) {
	t.Helper()
	err := outboxRepo.Create(&models.OutboxNotification{
		Kind:       kind,
		Recipients: []string{"geiq@test.fr"},
		Payload:    json.RawMessage(`{"geiq_name":"GEIQ BTP Loire","year":2024}`),
	})
	if err != nil {
		t.Fatalf("Failed to queue notification: %v", err)
	}
}

func TestDispatchPending(t *testing.T) {
	tc := testutil.SetupTestContainers(t)
	t.Cleanup(func() { tc.Cleanup(t) })

	outboxRepo := repository.NewOutboxRepository(tc.DB)
	sender := &recordingSender{}
	dispatcher := NewDispatcher(outboxRepo, sender, metrics.New(prometheus.NewRegistry()), time.Second, 10)

	queue(t, outboxRepo, models.NotificationAssessmentSubmitted)
	queue(t, outboxRepo, models.NotificationAssessmentFinalReviewed)

	if err := dispatcher.DispatchPending(); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if len(sender.sent) != 2 {
		t.Errorf("Expected 2 notifications sent, got %d", len(sender.sent))
	}

	pending, err := outboxRepo.ListPending(10)
	if err != nil {
		t.Fatalf("Failed to list pending: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("Expected no pending notifications, got %d", len(pending))
	}

	// A second pass has nothing to do
	if err := dispatcher.DispatchPending(); err != nil {
		t.Fatalf("Empty dispatch failed: %v", err)
	}
	if len(sender.sent) != 2 {
		t.Errorf("Delivered notifications must not be resent, got %d", len(sender.sent))
	}
}

func TestDispatchKeepsFailedPending(t *testing.T) {
	tc := testutil.SetupTestContainers(t)
	t.Cleanup(func() { tc.Cleanup(t) })

	outboxRepo := repository.NewOutboxRepository(tc.DB)
	sender := &recordingSender{
		failFor: map[string]error{
			models.NotificationAssessmentSubmitted: errors.New("smtp unavailable"),
		},
	}
	dispatcher := NewDispatcher(outboxRepo, sender, metrics.New(prometheus.NewRegistry()), time.Second, 10)

	queue(t, outboxRepo, models.NotificationAssessmentSubmitted)
	queue(t, outboxRepo, models.NotificationAssessmentFinalReviewed)

	if err := dispatcher.DispatchPending(); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if len(sender.sent) != 1 {
		t.Errorf("Expected 1 notification sent, got %d", len(sender.sent))
	}

	// The failed notification stays pending for the next poll
	pending, err := outboxRepo.ListPending(10)
	if err != nil {
		t.Fatalf("Failed to list pending: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("Expected 1 pending notification, got %d", len(pending))
	}
	if pending[0].Kind != models.NotificationAssessmentSubmitted {
		t.Errorf("Pending kind = %q, want %q", pending[0].Kind, models.NotificationAssessmentSubmitted)
	}

	// Once delivery recovers it goes out
	sender.failFor = nil
	if err := dispatcher.DispatchPending(); err != nil {
		t.Fatalf("Retry dispatch failed: %v", err)
	}
	if len(sender.sent) != 2 {
		t.Errorf("Expected 2 notifications sent after retry, got %d", len(sender.sent))
	}
}
