// File: internal/usecase/catalog_uc.go
package usecase

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"storefront-checkout/internal/domain"
	"storefront-checkout/internal/domain/model"
	"storefront-checkout/internal/domain/ports/repository"
)

// Compile-time check
var _ CatalogUseCase = (*catalogUC)(nil)

type CatalogUseCase interface {
	GetPackage(ctx context.Context, id string) (*model.Package, error)
	ListByShop(ctx context.Context, shopID string) ([]*model.Package, error)
	// Quote returns what a session or purchase on cycle would charge, plus the
	// display-only discount against the package base price.
	Quote(ctx context.Context, packageID string, cycle model.BillingCycle) (*model.Quote, error)
}

type catalogUC struct {
	packages   repository.PackageRepository
	feePercent decimal.Decimal
	log        *zerolog.Logger
}

func NewCatalogUseCase(packages repository.PackageRepository, feePercent decimal.Decimal, logger *zerolog.Logger) *catalogUC {
	l := logger.With().Str("component", "CatalogUseCase").Logger()
	return &catalogUC{packages: packages, feePercent: feePercent, log: &l}
}

func (u *catalogUC) GetPackage(ctx context.Context, id string) (*model.Package, error) {
	if strings.TrimSpace(id) == "" {
		return nil, domain.ErrInvalidArgument
	}
	return u.packages.FindByID(ctx, repository.NoTX, id)
}

func (u *catalogUC) ListByShop(ctx context.Context, shopID string) ([]*model.Package, error) {
	if strings.TrimSpace(shopID) == "" {
		return nil, domain.ErrInvalidArgument
	}
	return u.packages.ListByShop(ctx, repository.NoTX, shopID)
}

func (u *catalogUC) Quote(ctx context.Context, packageID string, cycle model.BillingCycle) (*model.Quote, error) {
	pkg, err := u.GetPackage(ctx, packageID)
	if err != nil {
		return nil, err
	}
	price, err := pkg.PriceFor(cycle)
	if err != nil {
		return nil, err
	}
	q := &model.Quote{
		PackageID:    pkg.ID,
		BillingCycle: cycle,
		Currency:     pkg.Currency,
		Price:        price,
		PlatformFee:  model.PlatformFee(price, u.feePercent),
	}
	if pct, ok := model.DiscountPercent(pkg.BasePrice, price); ok {
		q.DiscountPercent = &pct
	}
	return q, nil
}
