package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/iliyamo/range-booking/internal/config"
	"github.com/iliyamo/range-booking/internal/service"
)

func newUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage accounts",
	}
	cmd.AddCommand(newUserAddCmd())
	return cmd
}

func newUserAddCmd() *cobra.Command {
	var in service.NewUser

	c := &cobra.Command{
		Use:   "add",
		Short: "Create an account (mysql store)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if cfg.StoreDriver == config.StoreMemory {
				return fmt.Errorf("user add needs a persistent store; use --bootstrap-admin-email with serve instead")
			}
			log, err := config.NewLogger(cfg.Env)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			ctx := context.Background()
			store, closeStore, err := openStore(ctx, cfg, log, true)
			if err != nil {
				return err
			}
			defer closeStore()

			u, err := service.NewUserService(store, cfg.BcryptCost, log).Create(ctx, in)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s %q (id %d)\n", u.Role, u.Email, u.ID)
			return nil
		},
	}

	c.Flags().StringVar(&in.Email, "email", "", "email address")
	c.Flags().StringVar(&in.DisplayName, "name", "", "display name")
	c.Flags().StringVar(&in.Password, "password", "", "password")
	c.Flags().StringVar(&in.Role, "role", "MEMBER", "MEMBER, INSTRUCTOR or ADMIN")
	_ = c.MarkFlagRequired("email")
	_ = c.MarkFlagRequired("name")
	_ = c.MarkFlagRequired("password")
	return c
}

// ensureAdmin creates an administrator unless the email is taken.
func ensureAdmin(ctx context.Context, users *service.UserService, email, password string, log *zap.Logger) error {
	_, err := users.Create(ctx, service.NewUser{Email: email, DisplayName: "Administrator", Password: password, Role: "ADMIN"})
	switch {
	case err == nil:
		log.Info("bootstrap administrator created", zap.String("email", email))
		return nil
	case errors.Is(err, service.ErrDuplicateEmail):
		return nil
	}
	return fmt.Errorf("bootstrap administrator: %w", err)
}
