package repository

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/gip-inclusion/geiq-assessments/internal/models"
)

// CompanyRepository handles GEIQ company database operations
type CompanyRepository struct {
	db DBTX
}

// NewCompanyRepository creates a new company repository
func NewCompanyRepository(db *sql.DB) *CompanyRepository {
	return &CompanyRepository{db: db}
}

// WithTx returns a copy of the repository bound to the transaction
func (r *CompanyRepository) WithTx(tx *sql.Tx) *CompanyRepository {
	return &CompanyRepository{db: tx}
}

// Create creates a new company
func (r *CompanyRepository) Create(company *models.Company) error {
	query := `
		INSERT INTO companies (label_geiq_id, name, is_antenna)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`

	err := r.db.QueryRow(
		query,
		company.LabelGeiqID,
		company.Name,
		company.IsAntenna,
	).Scan(&company.ID, &company.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create company: %w", err)
	}

	return nil
}

// GetByID retrieves a company by ID
func (r *CompanyRepository) GetByID(id uint) (*models.Company, error) {
	query := `
		SELECT id, label_geiq_id, name, is_antenna, created_at
		FROM companies
		WHERE id = $1
	`

	company := &models.Company{}
	err := r.db.QueryRow(query, id).Scan(
		&company.ID,
		&company.LabelGeiqID,
		&company.Name,
		&company.IsAntenna,
		&company.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get company: %w", err)
	}

	return company, nil
}

// IsMember reports whether the user belongs to the company
func (r *CompanyRepository) IsMember(userID, companyID uint) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM company_memberships
			WHERE user_id = $1 AND company_id = $2
		)
	`

	var exists bool
	if err := r.db.QueryRow(query, userID, companyID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check company membership: %w", err)
	}
	return exists, nil
}

// AddMember links a user to a company
func (r *CompanyRepository) AddMember(userID, companyID uint) error {
	query := `
		INSERT INTO company_memberships (user_id, company_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`

	if _, err := r.db.Exec(query, userID, companyID); err != nil {
		return fmt.Errorf("failed to add company member: %w", err)
	}
	return nil
}

// MemberEmails returns the emails of all active members of a company
func (r *CompanyRepository) MemberEmails(companyID uint) ([]string, error) {
	query := `
		SELECT u.email
		FROM users u
		JOIN company_memberships cm ON cm.user_id = u.id
		WHERE cm.company_id = $1 AND u.is_active
		ORDER BY u.email
	`

	rows, err := r.db.Query(query, companyID)
	if err != nil {
		return nil, fmt.Errorf("failed to get company member emails: %w", err)
	}
	defer rows.Close()

	var emails []string
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, fmt.Errorf("failed to scan email: %w", err)
		}
		emails = append(emails, email)
	}

	return emails, rows.Err()
}

// CompaniesForUser returns the companies the user belongs to
func (r *CompanyRepository) CompaniesForUser(userID uint) ([]models.Company, error) {
	query := `
		SELECT c.id, c.label_geiq_id, c.name, c.is_antenna, c.created_at
		FROM companies c
		JOIN company_memberships cm ON cm.company_id = c.id
		WHERE cm.user_id = $1
		ORDER BY c.name
	`

	rows, err := r.db.Query(query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get companies for user: %w", err)
	}
	defer rows.Close()

	var companies []models.Company
	for rows.Next() {
		var company models.Company
		err := rows.Scan(
			&company.ID,
			&company.LabelGeiqID,
			&company.Name,
			&company.IsAntenna,
			&company.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan company: %w", err)
		}
		companies = append(companies, company)
	}

	return companies, rows.Err()
}
