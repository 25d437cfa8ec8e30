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

var _ repository.CheckoutSessionRepository = (*PostgresCheckoutSessionRepo)(nil)

type PostgresCheckoutSessionRepo struct {
	pool *pgxpool.Pool
}

func NewCheckoutSessionRepo(pool *pgxpool.Pool) *PostgresCheckoutSessionRepo {
	return &PostgresCheckoutSessionRepo{pool: pool}
}

const sessionColumns = `id, package_id, shop_id, billing_cycle, price::text, platform_fee::text, currency,
       buyer_email, buyer_name, expires_at, provider_session_id, provider_checkout_url, status,
       created_at, updated_at, completed_at`

func (r *PostgresCheckoutSessionRepo) Save(ctx context.Context, tx repository.Tx, s *model.CheckoutSession) error {
	const q = `
INSERT INTO checkout_sessions (id, package_id, shop_id, billing_cycle, price, platform_fee, currency,
                               buyer_email, buyer_name, expires_at, provider_session_id, provider_checkout_url, status,
                               created_at, updated_at, completed_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
`
	_, err := execSQL(ctx, r.pool, tx, q,
		s.ID, s.PackageID, s.ShopID, string(s.BillingCycle), s.Price.String(), s.PlatformFee.String(), s.Currency,
		s.BuyerEmail, s.BuyerName, s.ExpiresAt, s.ProviderSessionID, s.ProviderURL, string(s.Status),
		s.CreatedAt, s.UpdatedAt, s.CompletedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("save checkout session: %w", err)
	}
	return nil
}

func (r *PostgresCheckoutSessionRepo) Update(ctx context.Context, tx repository.Tx, s *model.CheckoutSession, expected model.SessionStatus) error {
	const q = `
UPDATE checkout_sessions
   SET buyer_email = $2,
       buyer_name = $3,
       provider_session_id = $4,
       provider_checkout_url = $5,
       status = $6,
       updated_at = $7,
       completed_at = $8
 WHERE id = $1 AND status = $9
`
	ct, err := execSQL(ctx, r.pool, tx, q,
		s.ID, s.BuyerEmail, s.BuyerName, s.ProviderSessionID, s.ProviderURL, string(s.Status), s.UpdatedAt, s.CompletedAt, string(expected),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: provider session already attached elsewhere", domain.ErrAlreadyExists)
		}
		return fmt.Errorf("update checkout session: %w", err)
	}
	if ct.RowsAffected() == 0 {
		// either gone or no longer in the expected status
		if _, err := r.FindByID(ctx, tx, s.ID); err != nil {
			return err
		}
		return fmt.Errorf("%w: %s is no longer %s", domain.ErrSessionClosed, s.ID, expected)
	}
	return nil
}

func (r *PostgresCheckoutSessionRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.CheckoutSession, error) {
	return r.findOne(ctx, tx, `SELECT `+sessionColumns+` FROM checkout_sessions WHERE id = $1`, id)
}

func (r *PostgresCheckoutSessionRepo) FindByProviderSessionID(ctx context.Context, tx repository.Tx, providerSessionID string) (*model.CheckoutSession, error) {
	return r.findOne(ctx, tx, `SELECT `+sessionColumns+` FROM checkout_sessions WHERE provider_session_id = $1`, providerSessionID)
}

func (r *PostgresCheckoutSessionRepo) findOne(ctx context.Context, tx repository.Tx, q string, arg string) (*model.CheckoutSession, error) {
	if tx != nil {
		q += " FOR UPDATE"
	}
	row, err := pickRow(ctx, r.pool, tx, q, arg)
	if err != nil {
		return nil, err
	}
	s, err := scanSession(row)
	if err != nil {
		return nil, notFound(err, domain.ErrSessionNotFound, "find checkout session")
	}
	return s, nil
}

func (r *PostgresCheckoutSessionRepo) ListExpiredPending(ctx context.Context, tx repository.Tx, now time.Time, limit int) ([]*model.CheckoutSession, error) {
	const q = `SELECT ` + sessionColumns + `
  FROM checkout_sessions
 WHERE status = 'pending' AND expires_at < $1
 ORDER BY expires_at
 LIMIT $2`
	rows, err := queryRows(ctx, r.pool, tx, q, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list expired sessions: %w", err)
	}
	defer rows.Close()
	var out []*model.CheckoutSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrReadDatabaseRow, err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func scanSession(row pgx.Row) (*model.CheckoutSession, error) {
	var (
		s          model.CheckoutSession
		cycle, st  string
		price, fee string
	)
	if err := row.Scan(&s.ID, &s.PackageID, &s.ShopID, &cycle, &price, &fee, &s.Currency,
		&s.BuyerEmail, &s.BuyerName, &s.ExpiresAt, &s.ProviderSessionID, &s.ProviderURL, &st,
		&s.CreatedAt, &s.UpdatedAt, &s.CompletedAt); err != nil {
		return nil, err
	}
	s.BillingCycle = model.BillingCycle(cycle)
	s.Status = model.SessionStatus(st)
	var err error
	if s.Price, err = parseNum(price); err != nil {
		return nil, err
	}
	if s.PlatformFee, err = parseNum(fee); err != nil {
		return nil, err
	}
	return &s, nil
}
