package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/iliyamo/range-booking/internal/config"
	"github.com/iliyamo/range-booking/internal/handler"
	"github.com/iliyamo/range-booking/internal/notify"
	"github.com/iliyamo/range-booking/internal/queue"
	"github.com/iliyamo/range-booking/internal/router"
	"github.com/iliyamo/range-booking/internal/service"
)

func newServeCmd() *cobra.Command {
	var migrate bool
	var adminEmail, adminPassword string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the booking HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			log, err := config.NewLogger(cfg.Env)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			policy, ok := service.ParseClosurePolicy(config.LoadBookingConfig().ClosureConflictPolicy)
			if !ok {
				return fmt.Errorf("CLOSURE_CONFLICT_POLICY must be cancel or notify")
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			store, closeStore, err := openStore(ctx, cfg, log, migrate)
			if err != nil {
				return err
			}
			defer closeStore()

			var sink notify.Sink = notify.NewLogSink(log)
			if broker := config.LoadBrokerConfig(); broker.Enabled {
				pub := queue.NewPublisher(broker.URL, broker.Queue, log)
				defer func() { _ = pub.Close() }()
				sink = pub
				log.Info("notifications go to rabbitmq", zap.String("queue", broker.Queue))
			}
			dispatcher := notify.NewDispatcher(store.Reservations(), sink, log)

			users := service.NewUserService(store, cfg.BcryptCost, log)
			facility := service.NewFacilityService(store, dispatcher, log)
			closures := service.NewClosureService(store, dispatcher, policy, log)
			engine := service.NewBookingEngine(store, dispatcher, log)
			sessions := service.NewSessionService(store, users, cfg.JWTSecret, cfg.AccessTTL(), cfg.RefreshTTL(), log)

			if adminEmail != "" {
				if err := ensureAdmin(ctx, users, adminEmail, adminPassword, log); err != nil {
					return err
				}
			}

			rdb := config.NewRedisClient(log)
			if rdb != nil {
				defer func() { _ = rdb.Close() }()
			}

			e := router.New(router.Deps{
				JWTSecret:    cfg.JWTSecret,
				Log:          log,
				Redis:        rdb,
				RateLimit:    config.LoadRateLimitConfig(),
				Cache:        config.LoadCacheConfig(),
				Auth:         handler.NewAuthHandler(sessions, users, log),
				Stations:     handler.NewStationHandler(facility, dispatcher, log),
				Closures:     handler.NewClosureHandler(closures, dispatcher, log),
				Reservations: handler.NewReservationHandler(engine, log),
				Users:        handler.NewUserHandler(users, log),
			})

			addr := ":" + cfg.Port
			errCh := make(chan error, 1)
			go func() {
				log.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env),
					zap.String("store", cfg.StoreDriver), zap.String("closure_policy", string(policy)))
				if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}
			shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
			defer stop()
			log.Info("shutting down")
			return e.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().BoolVar(&migrate, "migrate", true, "apply the database schema on startup (mysql store)")
	cmd.Flags().StringVar(&adminEmail, "bootstrap-admin-email", os.Getenv("BOOTSTRAP_ADMIN_EMAIL"), "create this administrator if no account uses the email")
	cmd.Flags().StringVar(&adminPassword, "bootstrap-admin-password", os.Getenv("BOOTSTRAP_ADMIN_PASSWORD"), "password for the bootstrap administrator")
	return cmd
}
