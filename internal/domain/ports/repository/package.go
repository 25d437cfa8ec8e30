package repository

import (
	"context"

	"storefront-checkout/internal/domain/model"
)

// PackageRepository is the port for the shop catalog.
type PackageRepository interface {
	// Save inserts or updates a package by id.
	Save(ctx context.Context, tx Tx, p *model.Package) error
	// FindByID returns domain.ErrPackageNotFound when no package has the id.
	FindByID(ctx context.Context, tx Tx, id string) (*model.Package, error)
	ListByShop(ctx context.Context, tx Tx, shopID string) ([]*model.Package, error)
}
