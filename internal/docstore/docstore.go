// Package docstore stores assessment documents as database blobs and issues
// expiring HMAC-signed download URLs so file access never requires a session.
package docstore

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gip-inclusion/geiq-assessments/internal/models"
	"github.com/gip-inclusion/geiq-assessments/internal/repository"
)

var (
	ErrInvalidSignature = errors.New("invalid document signature")
	ErrExpiredURL       = errors.New("document URL has expired")
)

// DownloadRoute is the mux pattern serving signed downloads. SignedURL mints
// paths under it, so route registration must use this constant.
const DownloadRoute = "/api/v1/files/{id}"

// Disposition selects inline display or attachment download
type Disposition string

const (
	DispositionInline     Disposition = "inline"
	DispositionAttachment Disposition = "attachment"
)

// Store persists documents and signs their download URLs
type Store struct {
	files      *repository.FileRepository
	signingKey []byte
	ttl        time.Duration
	now        func() time.Time
}

// New creates a document store. The signing key comes from Vault or the
// environment, decided by the caller.
func New(files *repository.FileRepository, signingKey string, ttl time.Duration) *Store {
	return &Store{
		files:      files,
		signingKey: []byte(signingKey),
		ttl:        ttl,
		now:        time.Now,
	}
}

// Save stores a document of the given kind, replacing any previous upload
func (s *Store) Save(file *models.AssessmentFile) error {
	if err := s.files.Upsert(file); err != nil {
		return fmt.Errorf("failed to save document: %w", err)
	}
	return nil
}

// Get retrieves a stored document with its content
func (s *Store) Get(id uuid.UUID) (*models.AssessmentFile, error) {
	return s.files.GetByID(id)
}

// SignedURL builds an expiring download path for a stored document
func (s *Store) SignedURL(id uuid.UUID, disposition Disposition, filename string) string {
	expires := s.now().Add(s.ttl).Unix()
	signature := s.sign(id, disposition, filename, expires)

	query := url.Values{
		"disposition": {string(disposition)},
		"filename":    {filename},
		"expires":     {strconv.FormatInt(expires, 10)},
		"signature":   {signature},
	}
	path := strings.Replace(DownloadRoute, "{id}", id.String(), 1)
	return fmt.Sprintf("%s?%s", path, query.Encode())
}

// Verify checks a download request's signature and expiry. The signature
// covers the document id, disposition, filename and expiry.
func (s *Store) Verify(id uuid.UUID, disposition Disposition, filename string, expires int64, signature string) error {
	expected := s.sign(id, disposition, filename, expires)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrInvalidSignature
	}
	if s.now().Unix() > expires {
		return ErrExpiredURL
	}
	return nil
}

func (s *Store) sign(id uuid.UUID, disposition Disposition, filename string, expires int64) string {
	mac := hmac.New(sha256.New, s.signingKey)
	fmt.Fprintf(mac, "%s:%s:%s:%d", id, disposition, filename, expires)
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
