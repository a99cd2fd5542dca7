package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/iliyamo/range-booking/internal/config"
	"github.com/iliyamo/range-booking/internal/queue"
)

func newConsumeCmd() *cobra.Command {
	var logDir string
	cmd := &cobra.Command{
		Use:   "consume",
		Short: "Consume booking notifications from RabbitMQ and append them to a log file",
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := config.NewLogger(os.Getenv("APP_ENV"))
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			broker := config.LoadBrokerConfig()
			if logDir != "" {
				broker.LogDir = logDir
			}
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			log.Info("consuming notifications", zap.String("queue", broker.Queue), zap.String("log_dir", broker.LogDir))
			return queue.NewConsumer(broker.URL, broker.Queue, broker.LogDir, log).Run(ctx)
		},
	}
	cmd.Flags().StringVar(&logDir, "log-dir", "", "directory for notifications.log (default NOTIFY_LOG_DIR or logs)")
	return cmd
}
