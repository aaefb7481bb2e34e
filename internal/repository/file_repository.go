package repository

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/gip-inclusion/geiq-assessments/internal/models"
)

// FileRepository stores assessment documents as database blobs
type FileRepository struct {
	db DBTX
}

// NewFileRepository creates a new file repository
func NewFileRepository(db *sql.DB) *FileRepository {
	return &FileRepository{db: db}
}

// WithTx returns a copy of the repository bound to the transaction
func (r *FileRepository) WithTx(tx *sql.Tx) *FileRepository {
	return &FileRepository{db: tx}
}

// Upsert stores a document, replacing any previous upload of the same kind
func (r *FileRepository) Upsert(file *models.AssessmentFile) error {
	query := `
		INSERT INTO assessment_files (assessment_id, kind, filename, content_type, content, uploaded_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (assessment_id, kind) DO UPDATE
		SET filename = EXCLUDED.filename,
		    content_type = EXCLUDED.content_type,
		    content = EXCLUDED.content,
		    uploaded_by = EXCLUDED.uploaded_by,
		    uploaded_at = CURRENT_TIMESTAMP
		RETURNING id, uploaded_at
	`

	err := r.db.QueryRow(
		query,
		file.AssessmentID,
		file.Kind,
		file.Filename,
		file.ContentType,
		file.Content,
		file.UploadedBy,
	).Scan(&file.ID, &file.UploadedAt)
	if err != nil {
		return fmt.Errorf("failed to store file: %w", err)
	}

	return nil
}

// GetByID retrieves a stored document with its content
func (r *FileRepository) GetByID(id uuid.UUID) (*models.AssessmentFile, error) {
	query := `
		SELECT id, assessment_id, kind, filename, content_type, content, uploaded_by, uploaded_at
		FROM assessment_files
		WHERE id = $1
	`

	file := &models.AssessmentFile{}
	err := r.db.QueryRow(query, id).Scan(
		&file.ID,
		&file.AssessmentID,
		&file.Kind,
		&file.Filename,
		&file.ContentType,
		&file.Content,
		&file.UploadedBy,
		&file.UploadedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get file: %w", err)
	}

	return file, nil
}
