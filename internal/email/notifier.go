package email

import (
	"encoding/json"
	"fmt"

	"github.com/gip-inclusion/geiq-assessments/internal/models"
)

// Notifier renders outbox notifications into emails. It satisfies the outbox
// dispatcher's Sender interface.
type Notifier struct {
	service *Service
}

// NewNotifier creates a notifier on top of the email service
func NewNotifier(service *Service) *Notifier {
	return &Notifier{service: service}
}

// Send delivers one outbox notification
func (n *Notifier) Send(notification models.OutboxNotification) error {
	var payload models.NotificationPayload
	if len(notification.Payload) > 0 {
		if err := json.Unmarshal(notification.Payload, &payload); err != nil {
			return fmt.Errorf("failed to decode notification payload: %w", err)
		}
	}

	switch notification.Kind {
	case models.NotificationAssessmentSubmitted:
		return n.service.SendAssessmentSubmitted(notification.Recipients, payload.GeiqName, payload.Year)
	case models.NotificationAssessmentReviewed:
		return n.service.SendAssessmentReviewed(notification.Recipients, payload.GeiqName, payload.Year)
	case models.NotificationAssessmentFinalReviewed:
		return n.service.SendAssessmentFinalReviewed(notification.Recipients, payload.GeiqName, payload.Year, payload.Balance, payload.RefundOwed)
	case models.NotificationAssessmentRefused:
		return n.service.SendAssessmentRefused(notification.Recipients, payload.GeiqName, payload.Year, payload.Reason)
	case models.NotificationSubmissionReminder:
		return n.service.SendSubmissionReminder(notification.Recipients, payload.GeiqName, payload.Year, payload.Deadline)
	case models.NotificationInstitutionSummary:
		return n.service.SendInstitutionSummary(notification.Recipients, payload.InstitutionName, payload.PendingCount)
	default:
		return fmt.Errorf("unknown notification kind %q", notification.Kind)
	}
}
