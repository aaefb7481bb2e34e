package repository

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/gip-inclusion/geiq-assessments/internal/models"
)

// InstitutionRepository handles oversight institution database operations
type InstitutionRepository struct {
	db DBTX
}

// NewInstitutionRepository creates a new institution repository
func NewInstitutionRepository(db *sql.DB) *InstitutionRepository {
	return &InstitutionRepository{db: db}
}

// WithTx returns a copy of the repository bound to the transaction
func (r *InstitutionRepository) WithTx(tx *sql.Tx) *InstitutionRepository {
	return &InstitutionRepository{db: tx}
}

// Create creates a new institution
func (r *InstitutionRepository) Create(institution *models.Institution) error {
	query := `
		INSERT INTO institutions (kind, name, department)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`

	err := r.db.QueryRow(
		query,
		institution.Kind,
		institution.Name,
		institution.Department,
	).Scan(&institution.ID, &institution.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create institution: %w", err)
	}

	return nil
}

// GetByID retrieves an institution by ID
func (r *InstitutionRepository) GetByID(id uint) (*models.Institution, error) {
	query := `
		SELECT id, kind, name, department, created_at
		FROM institutions
		WHERE id = $1
	`

	institution := &models.Institution{}
	err := r.db.QueryRow(query, id).Scan(
		&institution.ID,
		&institution.Kind,
		&institution.Name,
		&institution.Department,
		&institution.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get institution: %w", err)
	}

	return institution, nil
}

// List returns all institutions
func (r *InstitutionRepository) List() ([]models.Institution, error) {
	query := `
		SELECT id, kind, name, department, created_at
		FROM institutions
		ORDER BY name
	`

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list institutions: %w", err)
	}
	defer rows.Close()

	var institutions []models.Institution
	for rows.Next() {
		var institution models.Institution
		err := rows.Scan(
			&institution.ID,
			&institution.Kind,
			&institution.Name,
			&institution.Department,
			&institution.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan institution: %w", err)
		}
		institutions = append(institutions, institution)
	}

	return institutions, rows.Err()
}

// IsMember reports whether the user belongs to the institution
func (r *InstitutionRepository) IsMember(userID, institutionID uint) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM institution_memberships
			WHERE user_id = $1 AND institution_id = $2
		)
	`

	var exists bool
	if err := r.db.QueryRow(query, userID, institutionID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check institution membership: %w", err)
	}
	return exists, nil
}

// AddMember links a user to an institution
func (r *InstitutionRepository) AddMember(userID, institutionID uint) error {
	query := `
		INSERT INTO institution_memberships (user_id, institution_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`

	if _, err := r.db.Exec(query, userID, institutionID); err != nil {
		return fmt.Errorf("failed to add institution member: %w", err)
	}
	return nil
}

// MemberEmails returns the emails of all active members of an institution
func (r *InstitutionRepository) MemberEmails(institutionID uint) ([]string, error) {
	query := `
		SELECT u.email
		FROM users u
		JOIN institution_memberships im ON im.user_id = u.id
		WHERE im.institution_id = $1 AND u.is_active
		ORDER BY u.email
	`

	rows, err := r.db.Query(query, institutionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get institution member emails: %w", err)
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

// InstitutionsForUser returns the institutions the user belongs to
func (r *InstitutionRepository) InstitutionsForUser(userID uint) ([]models.Institution, error) {
	query := `
		SELECT i.id, i.kind, i.name, i.department, i.created_at
		FROM institutions i
		JOIN institution_memberships im ON im.institution_id = i.id
		WHERE im.user_id = $1
		ORDER BY i.name
	`

	rows, err := r.db.Query(query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get institutions for user: %w", err)
	}
	defer rows.Close()

	var institutions []models.Institution
	for rows.Next() {
		var institution models.Institution
		err := rows.Scan(
			&institution.ID,
			&institution.Kind,
			&institution.Name,
			&institution.Department,
			&institution.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan institution: %w", err)
		}
		institutions = append(institutions, institution)
	}

	return institutions, rows.Err()
}
