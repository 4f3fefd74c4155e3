package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configFile string
	cmd := &cobra.Command{
		Use:          "crawld",
		Short:        "Crawl supervisor daemon",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(newViper(), configFile)
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg.LogLevel, cfg.Development)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			app, err := NewApp(cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize server: %w", err)
			}
			logger.Info("server listening",
				zap.Stringer("address", app.Addr()),
				zap.Bool("insecure", cfg.Insecure),
				zap.String("metrics_address", cfg.MetricsAddress))

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return app.Run(ctx)
		},
	}
	cmd.Flags().StringVarP(&configFile, "config", "c", "", "path to a YAML config file")
	return cmd
}
