package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/gip-inclusion/geiq-assessments/internal/models"
)

// OutboxRepository handles notification outbox rows. A row is written in the
// same transaction as the state change it announces; the dispatcher marks it
// sent after delivery.
type OutboxRepository struct {
	db DBTX
}

// NewOutboxRepository creates a new outbox repository
func NewOutboxRepository(db *sql.DB) *OutboxRepository {
	return &OutboxRepository{db: db}
}

// WithTx returns a copy of the repository bound to the transaction
func (r *OutboxRepository) WithTx(tx *sql.Tx) *OutboxRepository {
	return &OutboxRepository{db: tx}
}

// Create inserts a pending notification
func (r *OutboxRepository) Create(notification *models.OutboxNotification) error {
	recipients, err := json.Marshal(notification.Recipients)
	if err != nil {
		return fmt.Errorf("failed to encode recipients: %w", err)
	}

	payload := []byte(notification.Payload)
	if len(payload) == 0 {
		payload = []byte(`{}`)
	}

	query := `
		INSERT INTO notification_outbox (assessment_id, kind, recipients, payload)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`

	err = r.db.QueryRow(
		query,
		notification.AssessmentID,
		notification.Kind,
		recipients,
		payload,
	).Scan(&notification.ID, &notification.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create outbox notification: %w", err)
	}

	return nil
}

// ListPending returns up to limit unsent notifications, oldest first
func (r *OutboxRepository) ListPending(limit int) ([]models.OutboxNotification, error) {
	query := `
		SELECT id, assessment_id, kind, recipients, payload, created_at, sent_at
		FROM notification_outbox
		WHERE sent_at IS NULL
		ORDER BY created_at
		LIMIT $1
	`

	rows, err := r.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending notifications: %w", err)
	}
	defer rows.Close()

	var notifications []models.OutboxNotification
	for rows.Next() {
		var notification models.OutboxNotification
		var recipients []byte
		err := rows.Scan(
			&notification.ID,
			&notification.AssessmentID,
			&notification.Kind,
			&recipients,
			&notification.Payload,
			&notification.CreatedAt,
			&notification.SentAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		if err := json.Unmarshal(recipients, &notification.Recipients); err != nil {
			return nil, fmt.Errorf("failed to decode recipients: %w", err)
		}
		notifications = append(notifications, notification)
	}

	return notifications, rows.Err()
}

// MarkSent marks notifications as delivered
func (r *OutboxRepository) MarkSent(ids []uint, sentAt time.Time) error {
	if len(ids) == 0 {
		return nil
	}

	int64IDs := make([]int64, len(ids))
	for i, id := range ids {
		int64IDs[i] = int64(id)
	}

	query := `UPDATE notification_outbox SET sent_at = $1 WHERE id = ANY($2)`
	if _, err := r.db.Exec(query, sentAt, pq.Array(int64IDs)); err != nil {
		return fmt.Errorf("failed to mark notifications sent: %w", err)
	}
	return nil
}

// CountByKind counts notifications of a kind for an assessment, sent or not.
// Used to keep campaign close idempotent.
func (r *OutboxRepository) CountByKind(assessmentID uuid.UUID, kind string) (int, error) {
	query := `SELECT COUNT(*) FROM notification_outbox WHERE assessment_id = $1 AND kind = $2`

	var count int
	if err := r.db.QueryRow(query, assessmentID, kind).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count notifications: %w", err)
	}
	return count, nil
}
