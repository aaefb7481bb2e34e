package docstore

import (
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

func testStore(now time.Time) *Store {
	s := New(nil, "test-signing-key", 15*time.Minute)
	s.now = func() time.Time { return now }
	return s
}

func TestSignedURLMatchesDownloadRoute(t *testing.T) {
	store := testStore(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	id := uuid.New()

	signed := store.SignedURL(id, DispositionAttachment, "bilan.pdf")
	parsed, err := url.Parse(signed)
	if err != nil {
		t.Fatalf("Failed to parse signed URL: %v", err)
	}

	// Minted paths must match the registered download route, or every
	// signed URL 404s
	want := strings.Replace(DownloadRoute, "{id}", id.String(), 1)
	if parsed.Path != want {
		t.Errorf("Signed URL path = %q, want %q", parsed.Path, want)
	}
}

func TestSignedURLRoundTrip(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	store := testStore(now)
	id := uuid.New()

	signed := store.SignedURL(id, DispositionAttachment, "bilan.pdf")
	parsed, err := url.Parse(signed)
	if err != nil {
		t.Fatalf("Failed to parse signed URL: %v", err)
	}
	query := parsed.Query()

	expires, err := strconv.ParseInt(query.Get("expires"), 10, 64)
	if err != nil {
		t.Fatalf("Invalid expires value: %v", err)
	}

	err = store.Verify(id, DispositionAttachment, query.Get("filename"), expires, query.Get("signature"))
	if err != nil {
		t.Errorf("Expected valid signature, got %v", err)
	}
}

func TestVerifyRejectsTampering(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	store := testStore(now)
	id := uuid.New()

	signed := store.SignedURL(id, DispositionInline, "bilan.pdf")
	query, _ := url.Parse(signed)
	expires, _ := strconv.ParseInt(query.Query().Get("expires"), 10, 64)
	signature := query.Query().Get("signature")

	// Changing the disposition invalidates the signature
	if err := store.Verify(id, DispositionAttachment, "bilan.pdf", expires, signature); err != ErrInvalidSignature {
		t.Errorf("Expected ErrInvalidSignature, got %v", err)
	}

	// Changing the filename invalidates the signature
	if err := store.Verify(id, DispositionInline, "autre.pdf", expires, signature); err != ErrInvalidSignature {
		t.Errorf("Expected ErrInvalidSignature, got %v", err)
	}

	// Extending the expiry invalidates the signature too
	if err := store.Verify(id, DispositionInline, "bilan.pdf", expires+3600, signature); err != ErrInvalidSignature {
		t.Errorf("Expected ErrInvalidSignature, got %v", err)
	}

	// A different document id must not validate
	if err := store.Verify(uuid.New(), DispositionInline, "bilan.pdf", expires, signature); err != ErrInvalidSignature {
		t.Errorf("Expected ErrInvalidSignature, got %v", err)
	}
}

func TestVerifyRejectsExpired(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	store := testStore(now)
	id := uuid.New()

	signed := store.SignedURL(id, DispositionInline, "bilan.pdf")
	query, _ := url.Parse(signed)
	expires, _ := strconv.ParseInt(query.Query().Get("expires"), 10, 64)
	signature := query.Query().Get("signature")

	store.now = func() time.Time { return now.Add(16 * time.Minute) }

	if err := store.Verify(id, DispositionInline, "bilan.pdf", expires, signature); err != ErrExpiredURL {
		t.Errorf("Expected ErrExpiredURL, got %v", err)
	}
}
