package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"storefront-checkout/internal/domain"
	"storefront-checkout/internal/domain/model"
	"storefront-checkout/internal/domain/ports/repository"
)

var _ repository.PurchaseRepository = (*PostgresPurchaseRepo)(nil)

type PostgresPurchaseRepo struct {
	pool *pgxpool.Pool
}

func NewPurchaseRepo(pool *pgxpool.Pool) *PostgresPurchaseRepo {
	return &PostgresPurchaseRepo{pool: pool}
}

const purchaseColumns = `id::text, package_id, user_id, billing_cycle, price::text, currency, status,
       payment_method, payment_id, buyer_email, buyer_name, start_date, end_date,
       is_recurring, metadata, session_id, created_at, updated_at, completed_at, cancelled_at`

func (r *PostgresPurchaseRepo) Save(ctx context.Context, tx repository.Tx, p *model.Purchase) error {
	meta, err := jsonArg(p.Metadata)
	if err != nil {
		return fmt.Errorf("%w: metadata: %v", domain.ErrInvalidArgument, err)
	}
	const q = `
INSERT INTO purchases (id, package_id, user_id, billing_cycle, price, currency, status,
                       payment_method, payment_id, buyer_email, buyer_name, start_date, end_date,
                       is_recurring, metadata, session_id, created_at, updated_at, completed_at, cancelled_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
`
	_, err = execSQL(ctx, r.pool, tx, q,
		p.ID, p.PackageID, p.UserID, string(p.BillingCycle), p.Price.String(), p.Currency, string(p.Status),
		string(p.PaymentMethod), p.PaymentID, p.BuyerEmail, p.BuyerName, p.StartDate, p.EndDate,
		p.IsRecurring, meta, p.SessionID, p.CreatedAt, p.UpdatedAt, p.CompletedAt, p.CancelledAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("save purchase: %w", err)
	}
	return nil
}

func (r *PostgresPurchaseRepo) Update(ctx context.Context, tx repository.Tx, p *model.Purchase, expected model.PurchaseStatus) error {
	const q = `
UPDATE purchases
   SET status = $2,
       payment_id = $3,
       updated_at = $4,
       completed_at = $5,
       cancelled_at = $6
 WHERE id = $1 AND status = $7
`
	ct, err := execSQL(ctx, r.pool, tx, q,
		p.ID, string(p.Status), p.PaymentID, p.UpdatedAt, p.CompletedAt, p.CancelledAt, string(expected),
	)
	if err != nil {
		return fmt.Errorf("update purchase: %w", err)
	}
	if ct.RowsAffected() == 0 {
		cur, err := r.FindByID(ctx, tx, p.ID)
		if err != nil {
			return err
		}
		return fmt.Errorf("%w: purchase %s is %s, cannot become %s", domain.ErrInvalidTransition, p.ID, cur.Status, p.Status)
	}
	return nil
}

func (r *PostgresPurchaseRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Purchase, error) {
	q := `SELECT ` + purchaseColumns + ` FROM purchases WHERE id::text = $1`
	if tx != nil {
		q += " FOR UPDATE"
	}
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	p, err := scanPurchase(row)
	if err != nil {
		return nil, notFound(err, domain.ErrPurchaseNotFound, "find purchase")
	}
	return p, nil
}

func (r *PostgresPurchaseRepo) FindBySessionID(ctx context.Context, tx repository.Tx, sessionID string) ([]*model.Purchase, error) {
	q := `SELECT ` + purchaseColumns + ` FROM purchases WHERE session_id = $1 ORDER BY created_at`
	if tx != nil {
		q += " FOR UPDATE"
	}
	return r.list(ctx, tx, q, sessionID)
}

func (r *PostgresPurchaseRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string) ([]*model.Purchase, error) {
	return r.list(ctx, tx, `SELECT `+purchaseColumns+` FROM purchases WHERE user_id = $1 ORDER BY created_at DESC, id`, userID)
}

func (r *PostgresPurchaseRepo) list(ctx context.Context, tx repository.Tx, q string, args ...interface{}) ([]*model.Purchase, error) {
	rows, err := queryRows(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list purchases: %w", err)
	}
	defer rows.Close()
	var out []*model.Purchase
	for rows.Next() {
		p, err := scanPurchase(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrReadDatabaseRow, err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanPurchase(row pgx.Row) (*model.Purchase, error) {
	var (
		p                 model.Purchase
		cycle, st, method string
		price             string
		meta              []byte
	)
	if err := row.Scan(&p.ID, &p.PackageID, &p.UserID, &cycle, &price, &p.Currency, &st,
		&method, &p.PaymentID, &p.BuyerEmail, &p.BuyerName, &p.StartDate, &p.EndDate,
		&p.IsRecurring, &meta, &p.SessionID, &p.CreatedAt, &p.UpdatedAt, &p.CompletedAt, &p.CancelledAt); err != nil {
		return nil, err
	}
	p.BillingCycle = model.BillingCycle(cycle)
	p.Status = model.PurchaseStatus(st)
	p.PaymentMethod = model.PaymentMethod(method)
	var err error
	if p.Price, err = parseNum(price); err != nil {
		return nil, err
	}
	if p.Metadata, err = parseJSONMap(meta); err != nil {
		return nil, err
	}
	return &p, nil
}
