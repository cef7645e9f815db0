package postgres

import (
	"errors"
	"testing"
	"time"

	"github.com/techstore/storefront/internal/domain"
)

func TestIdempotencyRepository_PostgresFlow(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := store.Idempotency()

	ttl := time.Now().UTC().Add(time.Hour).Truncate(time.Microsecond)
	created, err := repo.CreateProcessing("key-1", "hash-1", ttl)
	if err != nil {
		t.Fatalf("create processing: %v", err)
	}
	if created.Status != domain.IdempotencyStatusProcessing {
		t.Fatalf("unexpected status: %s", created.Status)
	}

	if _, err := repo.CreateProcessing("key-1", "hash-1", ttl); !errors.Is(err, domain.ErrIdempotencyKeyAlreadyExists) {
		t.Fatalf("expected already exists, got %v", err)
	}
	existing, err := repo.CreateProcessing("key-1", "hash-2", ttl)
	if !errors.Is(err, domain.ErrIdempotencyHashMismatch) {
		t.Fatalf("expected hash mismatch, got %v", err)
	}
	if existing.RequestHash != "hash-1" {
		t.Fatalf("expected stored record in conflict, got %+v", existing)
	}

	if err := repo.MarkDone("key-1", []byte(`{"success":true}`), 201); err != nil {
		t.Fatalf("mark done: %v", err)
	}
	done, err := repo.Get("key-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if done.Status != domain.IdempotencyStatusDone || done.HTTPStatus != 201 || string(done.ResponseBody) != `{"success":true}` {
		t.Fatalf("unexpected done record: %+v", done)
	}

	if err := repo.MarkFailed("missing", nil, 500); !errors.Is(err, domain.ErrIdempotencyKeyNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestIdempotencyRepository_PostgresExpiry(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := store.Idempotency()

	past := time.Now().UTC().Add(-time.Minute)
	if _, err := repo.CreateProcessing("expired", "hash-a", past); err != nil {
		t.Fatalf("create expired: %v", err)
	}
	if _, err := repo.Get("expired"); !errors.Is(err, domain.ErrIdempotencyKeyNotFound) {
		t.Fatalf("expired record must be invisible, got %v", err)
	}
	if _, err := repo.CreateProcessing("expired", "hash-b", time.Time{}); err != nil {
		t.Fatalf("expired key must be reusable: %v", err)
	}

	if _, err := repo.CreateProcessing("old-1", "h", past); err != nil {
		t.Fatalf("create old-1: %v", err)
	}
	if _, err := repo.CreateProcessing("old-2", "h", past); err != nil {
		t.Fatalf("create old-2: %v", err)
	}

	removed, err := repo.DeleteExpired(time.Now().UTC(), 1)
	if err != nil {
		t.Fatalf("delete expired with limit: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}
	removed, err = repo.DeleteExpired(time.Time{}, 0)
	if err != nil {
		t.Fatalf("delete expired: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 more removed, got %d", removed)
	}
	if _, err := repo.Get("expired"); err != nil {
		t.Fatalf("re-created key must survive cleanup: %v", err)
	}
}
