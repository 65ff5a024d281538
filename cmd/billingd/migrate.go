package main

import (
	"github.com/spf13/cobra"

	"github.com/dmitrymomot/billingkit/pkg/pg"
	"github.com/dmitrymomot/billingkit/pkg/subscription/pgstore"
)

func newMigrateCmd(envFiles *[]string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(*envFiles...)
			if err != nil {
				return err
			}
			log := newLogger(cfg)
			ctx := cmd.Context()

			pool, err := pg.Connect(ctx, cfg.PG)
			if err != nil {
				return err
			}
			defer pool.Close()

			return pg.Migrate(ctx, pool, pgstore.Migrations, pgstore.MigrationsDir, cfg.PG, log)
		},
	}
}
