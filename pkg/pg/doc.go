// Package pg bootstraps the PostgreSQL side of the billing engine with the
// pgx/v5 driver: a retrying pool constructor, goose migrations read from an
// embedded filesystem, a health probe and helpers classifying pgconn errors.
//
// Config is populated from PG_* environment variables via caarlos0/env:
//
//	var cfg pg.Config
//	if err := config.Load(&cfg); err != nil {
//		return err
//	}
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer pool.Close()
//
//	if err := pg.Migrate(ctx, pool, pgstore.Migrations, pgstore.MigrationsDir, cfg, log); err != nil {
//		return err
//	}
//
// IsDuplicateKeyError also matches violations of partial unique indexes, which
// is how the single-current-subscription rule surfaces from the database.
package pg
