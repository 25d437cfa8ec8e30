package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"storefront-checkout/internal/domain"
	"storefront-checkout/internal/domain/model"
	"storefront-checkout/internal/domain/ports/repository"
)

// Ensure interface compliance
var _ repository.PackageRepository = (*PostgresPackageRepo)(nil)

type PostgresPackageRepo struct {
	pool *pgxpool.Pool
}

func NewPackageRepo(pool *pgxpool.Pool) *PostgresPackageRepo {
	return &PostgresPackageRepo{pool: pool}
}

const packageColumns = `id, shop_id, name, description, currency, base_price::text,
       weekly_price::text, monthly_price::text, yearly_price::text,
       is_active, created_at, updated_at`

func (r *PostgresPackageRepo) Save(ctx context.Context, tx repository.Tx, p *model.Package) error {
	const q = `
INSERT INTO packages (id, shop_id, name, description, currency, base_price,
                      weekly_price, monthly_price, yearly_price, is_active, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
ON CONFLICT (id) DO UPDATE
  SET shop_id       = EXCLUDED.shop_id,
      name          = EXCLUDED.name,
      description   = EXCLUDED.description,
      currency      = EXCLUDED.currency,
      base_price    = EXCLUDED.base_price,
      weekly_price  = EXCLUDED.weekly_price,
      monthly_price = EXCLUDED.monthly_price,
      yearly_price  = EXCLUDED.yearly_price,
      is_active     = EXCLUDED.is_active,
      updated_at    = EXCLUDED.updated_at;
`
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	_, err := execSQL(ctx, r.pool, tx, q,
		p.ID, p.ShopID, p.Name, p.Description, p.Currency, p.BasePrice.String(),
		nullNumArg(p.WeeklyPrice), nullNumArg(p.MonthlyPrice), nullNumArg(p.YearlyPrice),
		p.IsActive, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save package: %w", err)
	}
	return nil
}

func (r *PostgresPackageRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Package, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT `+packageColumns+` FROM packages WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	p, err := scanPackage(row)
	if err != nil {
		return nil, notFound(err, domain.ErrPackageNotFound, "find package")
	}
	return p, nil
}

func (r *PostgresPackageRepo) ListByShop(ctx context.Context, tx repository.Tx, shopID string) ([]*model.Package, error) {
	rows, err := queryRows(ctx, r.pool, tx, `SELECT `+packageColumns+` FROM packages WHERE shop_id = $1 ORDER BY created_at, id`, shopID)
	if err != nil {
		return nil, fmt.Errorf("list packages: %w", err)
	}
	defer rows.Close()
	var out []*model.Package
	for rows.Next() {
		p, err := scanPackage(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrReadDatabaseRow, err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanPackage(row pgx.Row) (*model.Package, error) {
	var (
		p                       model.Package
		base                    string
		weekly, monthly, yearly *string
	)
	if err := row.Scan(&p.ID, &p.ShopID, &p.Name, &p.Description, &p.Currency, &base,
		&weekly, &monthly, &yearly, &p.IsActive, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	var err error
	if p.BasePrice, err = parseNum(base); err != nil {
		return nil, err
	}
	if p.WeeklyPrice, err = parseNullNum(weekly); err != nil {
		return nil, err
	}
	if p.MonthlyPrice, err = parseNullNum(monthly); err != nil {
		return nil, err
	}
	if p.YearlyPrice, err = parseNullNum(yearly); err != nil {
		return nil, err
	}
	return &p, nil
}
