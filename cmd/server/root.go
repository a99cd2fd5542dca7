package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/iliyamo/range-booking/internal/config"
	"github.com/iliyamo/range-booking/internal/database"
	"github.com/iliyamo/range-booking/internal/repository"
	"github.com/iliyamo/range-booking/internal/repository/memstore"
)

func newRootCmd() *cobra.Command {
	var envFiles []string
	root := &cobra.Command{
		Use:           "rangebook",
		Short:         "Shooting range booking service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			config.LoadDotEnv(envFiles...)
		},
	}
	root.PersistentFlags().StringSliceVar(&envFiles, "env-file", nil, "dotenv files to load (default .env)")

	root.AddCommand(newServeCmd())
	root.AddCommand(newMigrateCmd())
	root.AddCommand(newConsumeCmd())
	root.AddCommand(newUserCmd())
	return root
}

// openStore opens the configured store.  The returned close function is
// never nil.
func openStore(ctx context.Context, cfg config.Config, log *zap.Logger, migrate bool) (repository.Store, func(), error) {
	if cfg.StoreDriver == config.StoreMemory {
		log.Warn("using in-memory store; data is lost on exit")
		return memstore.New(), func() {}, nil
	}
	db, err := openMySQL(cfg)
	if err != nil {
		return nil, nil, err
	}
	if migrate {
		if err := database.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
	}
	return repository.NewStore(db), func() { _ = db.Close() }, nil
}

func openMySQL(cfg config.Config) (*sql.DB, error) {
	if cfg.StoreDriver != config.StoreMySQL {
		return nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}
	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	return db, nil
}
