package adapter

import (
	"context"
	"time"
)

// StoredResponse is a response recorded under an idempotency key.
type StoredResponse struct {
	Fingerprint string `json:"fingerprint"`
	Status      int    `json:"status"`
	Body        []byte `json:"body"`
}

// IdempotencyStore remembers the first response produced for a key.
type IdempotencyStore interface {
	// Begin reserves key for a request with fingerprint. When the key already
	// holds a finished response it is returned with reserved=false. A key that
	// is reserved but unfinished yields domain.ErrRequestInProgress.
	Begin(ctx context.Context, key, fingerprint string, ttl time.Duration) (prev *StoredResponse, reserved bool, err error)
	Finish(ctx context.Context, key string, resp StoredResponse, ttl time.Duration) error
	// Release drops a reservation whose request failed so it can be retried.
	Release(ctx context.Context, key string) error
}
