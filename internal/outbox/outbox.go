package outbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/gip-inclusion/geiq-assessments/internal/metrics"
	"github.com/gip-inclusion/geiq-assessments/internal/models"
	"github.com/gip-inclusion/geiq-assessments/internal/repository"
)

// Sender delivers a single notification to its recipients.
type Sender interface {
	Send(notification models.OutboxNotification) error
}

// Dispatcher drains the notification outbox. Rows are written inside the
// same transaction as the state change that triggered them, so delivery
// happens here, after commit, and a crashed dispatcher simply retries on
// the next poll.
type Dispatcher struct {
	outboxRepo   *repository.OutboxRepository
	sender       Sender
	metrics      *metrics.Metrics
	pollInterval time.Duration
	batchSize    int
}

func NewDispatcher(outboxRepo *repository.OutboxRepository, sender Sender, m *metrics.Metrics, pollInterval time.Duration, batchSize int) *Dispatcher {
	return &Dispatcher{
		outboxRepo:   outboxRepo,
		sender:       sender,
		metrics:      m,
		pollInterval: pollInterval,
		batchSize:    batchSize,
	}
}

// Run polls the outbox until the context is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	slog.Info("Outbox dispatcher started", "poll_interval", d.pollInterval, "batch_size", d.batchSize)

	for {
		select {
		case <-ctx.Done():
			slog.Info("Outbox dispatcher stopped")
			return
		case <-ticker.C:
			if err := d.DispatchPending(); err != nil {
				slog.Error("Outbox dispatch failed", "error", err)
			}
		}
	}
}

// DispatchPending sends one batch of unsent notifications. Notifications
// that fail to send stay pending and are retried on the next poll.
func (d *Dispatcher) DispatchPending() error {
	pending, err := d.outboxRepo.ListPending(d.batchSize)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return nil
	}

	sentIDs := make([]uint, 0, len(pending))
	for _, notification := range pending {
		if err := d.sender.Send(notification); err != nil {
			slog.Error("Failed to send notification",
				"notification_id", notification.ID,
				"kind", notification.Kind,
				"error", err)
			d.metrics.NotificationFailures.Inc()
			continue
		}
		d.metrics.NotificationsSent.Inc()
		sentIDs = append(sentIDs, notification.ID)
	}

	if len(sentIDs) == 0 {
		return nil
	}
	return d.outboxRepo.MarkSent(sentIDs, time.Now())
}
