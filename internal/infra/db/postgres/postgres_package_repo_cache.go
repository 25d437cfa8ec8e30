package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"storefront-checkout/internal/domain/model"
	"storefront-checkout/internal/domain/ports/repository"
	"storefront-checkout/internal/infra/metrics"
	red "storefront-checkout/internal/infra/redis"
)

var _ repository.PackageRepository = (*packageRepoCacheDecorator)(nil)

// packageRepoCacheDecorator caches non-transactional package reads. Reads that
// join a transaction always go to the inner repository.
type packageRepoCacheDecorator struct {
	inner repository.PackageRepository
	cache red.RedisClient
	ttl   time.Duration
	log   *zerolog.Logger
}

func NewPackageRepoCacheDecorator(inner repository.PackageRepository, cache red.RedisClient, ttl time.Duration, logger *zerolog.Logger) repository.PackageRepository {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	l := logger.With().Str("component", "PackageCache").Logger()
	return &packageRepoCacheDecorator{inner: inner, cache: cache, ttl: ttl, log: &l}
}

func packageKey(id string) string          { return fmt.Sprintf("package:%s", id) }
func shopPackagesKey(shopID string) string { return fmt.Sprintf("shop_packages:%s", shopID) }

func (d *packageRepoCacheDecorator) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Package, error) {
	if tx != nil {
		return d.inner.FindByID(ctx, tx, id)
	}
	key := packageKey(id)
	var cached model.Package
	if d.get(ctx, "package", key, &cached) {
		return &cached, nil
	}
	p, err := d.inner.FindByID(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	d.set(ctx, key, p)
	return p, nil
}

func (d *packageRepoCacheDecorator) ListByShop(ctx context.Context, tx repository.Tx, shopID string) ([]*model.Package, error) {
	if tx != nil {
		return d.inner.ListByShop(ctx, tx, shopID)
	}
	key := shopPackagesKey(shopID)
	var cached []*model.Package
	if d.get(ctx, "shop_packages", key, &cached) {
		return cached, nil
	}
	list, err := d.inner.ListByShop(ctx, tx, shopID)
	if err != nil {
		return nil, err
	}
	if len(list) > 0 {
		d.set(ctx, key, list)
	}
	return list, nil
}

// Save invalidates both the package entry and its shop listing.
func (d *packageRepoCacheDecorator) Save(ctx context.Context, tx repository.Tx, p *model.Package) error {
	if err := d.inner.Save(ctx, tx, p); err != nil {
		return err
	}
	if err := d.cache.Del(ctx, packageKey(p.ID), shopPackagesKey(p.ShopID)); err != nil {
		d.log.Warn().Err(err).Str("package_id", p.ID).Msg("failed to invalidate package cache")
	}
	return nil
}

func (d *packageRepoCacheDecorator) get(ctx context.Context, entry, key string, dst interface{}) bool {
	val, err := d.cache.Get(ctx, key)
	switch {
	case err == nil:
		if json.Unmarshal([]byte(val), dst) == nil {
			metrics.ObservePackageCacheLookup(entry, "hit")
			return true
		}
		metrics.ObservePackageCacheLookup(entry, "corrupt")
	case errors.Is(err, red.Nil):
		metrics.ObservePackageCacheLookup(entry, "miss")
	default:
		metrics.ObservePackageCacheLookup(entry, "unavailable")
		d.log.Warn().Err(err).Str("key", key).Msg("package cache read failed")
	}
	return false
}

func (d *packageRepoCacheDecorator) set(ctx context.Context, key string, v interface{}) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := d.cache.Set(ctx, key, b, d.ttl); err != nil {
		d.log.Warn().Err(err).Str("key", key).Msg("package cache write failed")
	}
}
