package redis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kirillkom/docflow-orchestrator/internal/core/domain"
)

const keyPrefix = "idem:"

type recordStatus string

const (
	statusInProgress recordStatus = "in_progress"
	statusCompleted  recordStatus = "completed"
)

type record struct {
	Status      recordStatus           `json:"status"`
	PayloadHash string                 `json:"payload_hash"`
	Result      *domain.WorkflowResult `json:"result,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
}

// Store is a Redis-backed idempotency cache. Expiry is delegated to Redis
// TTLs, so an expired record is simply absent. Every store failure is
// fail-open: the workflow proceeds and the miss is logged, because
// idempotency here is a best-effort optimization, not a correctness
// guarantee against store outages.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

func NewStore(client *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Store{client: client, ttl: ttl}
}

func (s *Store) CheckAndSet(ctx context.Context, correlationID string, payload map[string]any) *domain.WorkflowResult {
	hash, err := hashPayload(payload)
	if err != nil {
		slog.Warn("idempotency_hash_error", "correlation_id", correlationID, "error", err)
		return nil
	}

	key := keyPrefix + correlationID
	raw, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		s.createInProgress(ctx, key, correlationID, hash)
		return nil
	}
	if err != nil {
		slog.Warn("idempotency_store_error", "op", "get", "correlation_id", correlationID, "error", err)
		return nil
	}

	var rec record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		slog.Warn("idempotency_record_corrupt", "correlation_id", correlationID, "error", err)
		return nil
	}
	if rec.PayloadHash != hash {
		// Same correlation id, different payload: treated as a new, distinct
		// logical request.
		slog.Warn("idempotency_hash_mismatch", "correlation_id", correlationID)
		return nil
	}
	if rec.Status != statusCompleted || rec.Result == nil {
		slog.Info("idempotency_request_in_flight", "correlation_id", correlationID)
		return nil
	}

	cached := *rec.Result
	cached.FromCache = true
	return &cached
}

func (s *Store) SetResult(ctx context.Context, correlationID string, result domain.WorkflowResult) {
	now := time.Now().UTC()
	rec := record{
		Status:      statusCompleted,
		PayloadHash: s.storedHash(ctx, correlationID),
		Result:      &result,
		CreatedAt:   now,
		CompletedAt: &now,
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		slog.Warn("idempotency_marshal_error", "correlation_id", correlationID, "error", err)
		return
	}

	key := keyPrefix + correlationID
	// Completion renews the TTL so the cached result covers a full client
	// retry window from the moment the workflow finished.
	if err := s.client.Set(ctx, key, raw, s.ttl).Err(); err != nil {
		slog.Warn("idempotency_store_error", "op", "set_result", "correlation_id", correlationID, "error", err)
	}
}

func (s *Store) createInProgress(ctx context.Context, key, correlationID, hash string) {
	raw, err := json.Marshal(record{
		Status:      statusInProgress,
		PayloadHash: hash,
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		slog.Warn("idempotency_marshal_error", "correlation_id", correlationID, "error", err)
		return
	}
	if err := s.client.SetNX(ctx, key, raw, s.ttl).Err(); err != nil {
		slog.Warn("idempotency_store_error", "op", "setnx", "correlation_id", correlationID, "error", err)
	}
}

func (s *Store) storedHash(ctx context.Context, correlationID string) string {
	raw, err := s.client.Get(ctx, keyPrefix+correlationID).Result()
	if err != nil {
		return ""
	}
	var rec record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return ""
	}
	return rec.PayloadHash
}

// hashPayload hashes the canonical serialization of the payload.
// encoding/json writes map keys in sorted order, so semantically identical
// payloads hash identically regardless of insertion order.
func hashPayload(payload map[string]any) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}
