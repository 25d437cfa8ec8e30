package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"storefront-checkout/internal/domain"
	"storefront-checkout/internal/domain/ports/adapter"
)

var _ adapter.IdempotencyStore = (*IdempotencyStore)(nil)

// idemRecord is what lives under an idempotency key: a reservation while the
// first request runs, then its response.
type idemRecord struct {
	Fingerprint string `json:"fingerprint"`
	Done        bool   `json:"done"`
	Status      int    `json:"status,omitempty"`
	Body        []byte `json:"body,omitempty"`
}

type IdempotencyStore struct {
	client RedisClient
	prefix string
}

func NewIdempotencyStore(client RedisClient) *IdempotencyStore {
	return &IdempotencyStore{client: client, prefix: "idem:"}
}

func (s *IdempotencyStore) Begin(ctx context.Context, key, fingerprint string, ttl time.Duration) (*adapter.StoredResponse, bool, error) {
	pending, err := json.Marshal(idemRecord{Fingerprint: fingerprint})
	if err != nil {
		return nil, false, err
	}
	ok, err := s.client.SetNX(ctx, s.prefix+key, pending, ttl)
	if err != nil {
		return nil, false, fmt.Errorf("reserve idempotency key: %w", err)
	}
	if ok {
		return nil, true, nil
	}

	raw, err := s.client.Get(ctx, s.prefix+key)
	if errors.Is(err, Nil) {
		// expired between SETNX and GET
		return nil, false, domain.ErrRequestInProgress
	}
	if err != nil {
		return nil, false, fmt.Errorf("read idempotency key: %w", err)
	}
	var rec idemRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, false, fmt.Errorf("decode idempotency record: %w", err)
	}
	if rec.Fingerprint != fingerprint {
		return nil, false, domain.ErrIdempotencyConflict
	}
	if !rec.Done {
		return nil, false, domain.ErrRequestInProgress
	}
	return &adapter.StoredResponse{Fingerprint: rec.Fingerprint, Status: rec.Status, Body: rec.Body}, false, nil
}

func (s *IdempotencyStore) Finish(ctx context.Context, key string, resp adapter.StoredResponse, ttl time.Duration) error {
	b, err := json.Marshal(idemRecord{Fingerprint: resp.Fingerprint, Done: true, Status: resp.Status, Body: resp.Body})
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.prefix+key, b, ttl)
}

func (s *IdempotencyStore) Release(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.prefix+key)
}
