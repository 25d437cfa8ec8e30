//go:build !integration

package postgres

import (
	"context"
	"time"

	"storefront-checkout/internal/domain/model"
	"storefront-checkout/internal/domain/ports/repository"
	red "storefront-checkout/internal/infra/redis"
)

// --- Mocks for Cache Decorator Tests ---

// mockInnerPackageRepo mocks the database repository that the package decorator wraps.
type mockInnerPackageRepo struct {
	SaveFunc       func(ctx context.Context, tx repository.Tx, p *model.Package) error
	FindByIDFunc   func(ctx context.Context, tx repository.Tx, id string) (*model.Package, error)
	ListByShopFunc func(ctx context.Context, tx repository.Tx, shopID string) ([]*model.Package, error)
}

func (m *mockInnerPackageRepo) Save(ctx context.Context, tx repository.Tx, p *model.Package) error {
	return m.SaveFunc(ctx, tx, p)
}
func (m *mockInnerPackageRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Package, error) {
	return m.FindByIDFunc(ctx, tx, id)
}
func (m *mockInnerPackageRepo) ListByShop(ctx context.Context, tx repository.Tx, shopID string) ([]*model.Package, error) {
	return m.ListByShopFunc(ctx, tx, shopID)
}

// mockRedisClient mocks our Redis client wrapper.
type mockRedisClient struct {
	GetFunc   func(ctx context.Context, key string) (string, error)
	SetFunc   func(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	SetNXFunc func(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error)
	DelFunc   func(ctx context.Context, keys ...string) error
}

var _ red.RedisClient = &mockRedisClient{}

func (m *mockRedisClient) Get(ctx context.Context, key string) (string, error) {
	if m.GetFunc == nil {
		return "", red.Nil
	}
	return m.GetFunc(ctx, key)
}
func (m *mockRedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if m.SetFunc == nil {
		return nil
	}
	return m.SetFunc(ctx, key, value, expiration)
}
func (m *mockRedisClient) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error) {
	if m.SetNXFunc == nil {
		return true, nil
	}
	return m.SetNXFunc(ctx, key, value, expiration)
}
func (m *mockRedisClient) Del(ctx context.Context, keys ...string) error {
	if m.DelFunc == nil {
		return nil
	}
	return m.DelFunc(ctx, keys...)
}
func (m *mockRedisClient) Ping(ctx context.Context) error { return nil }
func (m *mockRedisClient) Incr(ctx context.Context, key string) (int64, error) {
	return 1, nil
}
func (m *mockRedisClient) Expire(ctx context.Context, key string, expiration time.Duration) error {
	return nil
}
func (m *mockRedisClient) Close() error { return nil }
