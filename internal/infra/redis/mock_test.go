//go:build !integration

package redis

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// memClient is an in-memory RedisClient. Expiry is recorded but not enforced.
type memClient struct {
	mu   sync.Mutex
	data map[string]string
	ttl  map[string]time.Duration

	Err error
}

var _ RedisClient = (*memClient)(nil)

func newMemClient() *memClient {
	return &memClient{data: map[string]string{}, ttl: map[string]time.Duration{}}
}

func toString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return fmt.Sprint(t)
	}
}

func (m *memClient) Ping(ctx context.Context) error { return m.Err }

func (m *memClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = toString(value)
	m.ttl[key] = expiration
	return nil
}

func (m *memClient) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error) {
	if m.Err != nil {
		return false, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key] = toString(value)
	m.ttl[key] = expiration
	return true, nil
}

func (m *memClient) Get(ctx context.Context, key string) (string, error) {
	if m.Err != nil {
		return "", m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return "", Nil
	}
	return v, nil
}

func (m *memClient) Incr(ctx context.Context, key string) (int64, error) {
	if m.Err != nil {
		return 0, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	fmt.Sscan(m.data[key], &n)
	n++
	m.data[key] = fmt.Sprint(n)
	return n, nil
}

func (m *memClient) Expire(ctx context.Context, key string, expiration time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ttl[key] = expiration
	return nil
}

func (m *memClient) Del(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
		delete(m.ttl, k)
	}
	return nil
}

func (m *memClient) Close() error { return nil }
