package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"storefront-checkout/internal/config"
	"storefront-checkout/internal/domain/model"
	"storefront-checkout/internal/domain/ports/repository"
	pg "storefront-checkout/internal/infra/db/postgres"
	"storefront-checkout/internal/infra/logging"
)

func price(s string) decimal.NullDecimal {
	if s == "" {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	migrate := flag.Bool("migrate", true, "apply schema migrations before seeding")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if *migrate {
		if err := pg.Migrate(ctx, cfg.Database.URL); err != nil {
			logger.Fatal().Err(err).Msg("migrate")
		}
	}
	pool, err := pg.NewPgxPool(ctx, cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()

	repo := pg.NewPackageRepo(pool)

	seed := []struct {
		ID, Shop, Name, Base, Weekly, Monthly, Yearly string
	}{
		{"P1", "shop-1", "Starter", "29.99", "9.99", "29.99", "299.00"},
		{"P2", "shop-1", "Pro", "79.00", "", "79.00", "790.00"},
		{"P3", "shop-2", "Annual Only", "499.00", "", "", "499.00"},
	}
	for _, s := range seed {
		p, err := model.NewPackage(s.ID, s.Shop, s.Name, "usd", decimal.RequireFromString(s.Base),
			price(s.Weekly), price(s.Monthly), price(s.Yearly))
		if err != nil {
			logger.Fatal().Err(err).Str("package_id", s.ID).Msg("build package")
		}
		if err := repo.Save(ctx, repository.NoTX, p); err != nil {
			logger.Fatal().Err(err).Str("package_id", s.ID).Msg("save package")
		}
		logger.Info().Str("package_id", p.ID).Str("shop_id", p.ShopID).Str("name", p.Name).Msg("seeded package")
	}
	fmt.Printf("seeded %d packages\n", len(seed))
}
