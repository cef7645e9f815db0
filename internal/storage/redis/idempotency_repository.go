// Package redis хранит ключи идемпотентности в Redis. Срок жизни записи
// совпадает с TTL ключа, поэтому очистка выполняется самим Redis.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/techstore/storefront/internal/domain"
)

const (
	keyPrefix = "storefront:idempotency:"
	opTimeout = 2 * time.Second
)

// IdempotencyRepository — реализация domain.IdempotencyRepository поверх go-redis.
type IdempotencyRepository struct {
	rdb redis.UniversalClient
	now domain.Clock
}

// NewIdempotencyRepository создаёт репозиторий поверх готового клиента.
func NewIdempotencyRepository(rdb redis.UniversalClient, clock domain.Clock) *IdempotencyRepository {
	return &IdempotencyRepository{rdb: rdb, now: clock}
}

// Ping проверяет доступность Redis; используется health-чекером.
func (r *IdempotencyRepository) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

// CreateProcessing занимает ключ через SET NX с TTL до ttlAt.
func (r *IdempotencyRepository) CreateProcessing(key, requestHash string, ttlAt time.Time) (domain.IdempotencyRecord, error) {
	key = strings.TrimSpace(key)
	requestHash = strings.TrimSpace(requestHash)
	if key == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyRequired
	}
	if requestHash == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyRequestHashRequired
	}

	now := r.now.Now()
	if ttlAt.IsZero() {
		ttlAt = now.Add(domain.DefaultIdempotencyTTL)
	}
	ttl := ttlAt.Sub(now)
	if ttl <= 0 {
		return domain.IdempotencyRecord{}, fmt.Errorf("idempotency ttl is already in the past: %s", ttlAt)
	}

	record := domain.IdempotencyRecord{
		Key:         key,
		RequestHash: requestHash,
		Status:      domain.IdempotencyStatusProcessing,
		TTLAt:       ttlAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	raw, err := json.Marshal(record)
	if err != nil {
		return domain.IdempotencyRecord{}, fmt.Errorf("encode idempotency record: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	created, err := r.rdb.SetNX(ctx, keyPrefix+key, raw, ttl).Result()
	if err != nil {
		return domain.IdempotencyRecord{}, fmt.Errorf("create idempotency record: %w", err)
	}
	if !created {
		existing, getErr := r.Get(key)
		if getErr != nil {
			return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyAlreadyExists
		}
		if existing.RequestHash != requestHash {
			return existing, domain.ErrIdempotencyHashMismatch
		}
		return existing, domain.ErrIdempotencyKeyAlreadyExists
	}

	return record, nil
}

func (r *IdempotencyRepository) Get(key string) (domain.IdempotencyRecord, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyRequired
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	raw, err := r.rdb.Get(ctx, keyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyNotFound
		}
		return domain.IdempotencyRecord{}, fmt.Errorf("get idempotency record: %w", err)
	}

	var record domain.IdempotencyRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return domain.IdempotencyRecord{}, fmt.Errorf("decode idempotency record: %w", err)
	}
	if !record.Status.Valid() {
		return domain.IdempotencyRecord{}, fmt.Errorf("invalid idempotency status %q for key %s", record.Status, key)
	}
	return record, nil
}

func (r *IdempotencyRepository) MarkDone(key string, responseBody []byte, httpStatus int) error {
	return r.finish(key, domain.IdempotencyStatusDone, responseBody, httpStatus)
}

func (r *IdempotencyRepository) MarkFailed(key string, responseBody []byte, httpStatus int) error {
	return r.finish(key, domain.IdempotencyStatusFailed, responseBody, httpStatus)
}

// DeleteExpired ничего не удаляет: просроченные ключи Redis убирает сам.
func (r *IdempotencyRepository) DeleteExpired(time.Time, int) (int, error) {
	return 0, nil
}

func (r *IdempotencyRepository) finish(key string, status domain.IdempotencyStatus, responseBody []byte, httpStatus int) error {
	record, err := r.Get(key)
	if err != nil {
		return err
	}

	record.Status = status
	record.ResponseBody = append([]byte(nil), responseBody...)
	record.HTTPStatus = httpStatus
	record.UpdatedAt = r.now.Now()

	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode idempotency record: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	// XX: запись могла истечь между чтением и обновлением.
	updated, err := r.rdb.SetArgs(ctx, keyPrefix+record.Key, raw, redis.SetArgs{Mode: "XX", KeepTTL: true}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.ErrIdempotencyKeyNotFound
		}
		return fmt.Errorf("mark idempotency key status: %w", err)
	}
	if updated != "OK" {
		return domain.ErrIdempotencyKeyNotFound
	}
	return nil
}

var _ domain.IdempotencyRepository = (*IdempotencyRepository)(nil)
