package repository

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/gip-inclusion/geiq-assessments/internal/models"
)

// CampaignRepository handles assessment campaign database operations
type CampaignRepository struct {
	db DBTX
}

// NewCampaignRepository creates a new campaign repository
func NewCampaignRepository(db *sql.DB) *CampaignRepository {
	return &CampaignRepository{db: db}
}

// WithTx returns a copy of the repository bound to the transaction
func (r *CampaignRepository) WithTx(tx *sql.Tx) *CampaignRepository {
	return &CampaignRepository{db: tx}
}

// Create creates a new campaign
func (r *CampaignRepository) Create(campaign *models.Campaign) error {
	query := `
		INSERT INTO campaigns (year, submission_deadline, review_deadline)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`

	err := r.db.QueryRow(
		query,
		campaign.Year,
		campaign.SubmissionDeadline,
		campaign.ReviewDeadline,
	).Scan(&campaign.ID, &campaign.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create campaign: %w", err)
	}

	return nil
}

// GetByID retrieves a campaign by ID
func (r *CampaignRepository) GetByID(id uint) (*models.Campaign, error) {
	return r.getOne(`WHERE id = $1`, id)
}

// GetByYear retrieves a campaign by year
func (r *CampaignRepository) GetByYear(year int) (*models.Campaign, error) {
	return r.getOne(`WHERE year = $1`, year)
}

func (r *CampaignRepository) getOne(where string, arg any) (*models.Campaign, error) {
	query := `
		SELECT id, year, submission_deadline, review_deadline, created_at
		FROM campaigns
	` + where

	campaign := &models.Campaign{}
	err := r.db.QueryRow(query, arg).Scan(
		&campaign.ID,
		&campaign.Year,
		&campaign.SubmissionDeadline,
		&campaign.ReviewDeadline,
		&campaign.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get campaign: %w", err)
	}

	return campaign, nil
}

// List retrieves all campaigns, most recent first
func (r *CampaignRepository) List() ([]models.Campaign, error) {
	query := `
		SELECT id, year, submission_deadline, review_deadline, created_at
		FROM campaigns
		ORDER BY year DESC
	`

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list campaigns: %w", err)
	}
	defer rows.Close()

	var campaigns []models.Campaign
	for rows.Next() {
		var campaign models.Campaign
		err := rows.Scan(
			&campaign.ID,
			&campaign.Year,
			&campaign.SubmissionDeadline,
			&campaign.ReviewDeadline,
			&campaign.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan campaign: %w", err)
		}
		campaigns = append(campaigns, campaign)
	}

	return campaigns, rows.Err()
}

// UpdateDeadlines updates a campaign's deadlines
func (r *CampaignRepository) UpdateDeadlines(campaign *models.Campaign) error {
	query := `
		UPDATE campaigns
		SET submission_deadline = $1, review_deadline = $2
		WHERE id = $3
	`

	if _, err := r.db.Exec(query, campaign.SubmissionDeadline, campaign.ReviewDeadline, campaign.ID); err != nil {
		return fmt.Errorf("failed to update campaign deadlines: %w", err)
	}
	return nil
}
