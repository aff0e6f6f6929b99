package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/spherical/qr-detector/internal/api"
	"github.com/spherical/qr-detector/internal/config"
	"github.com/spherical/qr-detector/pkg/qrdetect"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long:  "Serve the QR detection endpoints until SIGINT or SIGTERM, then shut down gracefully.",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := newLogger(cfg, false)
	logger.Info().
		Str("host", cfg.Server.Host).
		Int("port", cfg.Server.Port).
		Int("workers", cfg.Processing.Workers).
		Str("temp_dir", cfg.Processing.TempDir).
		Msg("Starting QR detector API")

	client, err := qrdetect.NewClientWithConfig(cfg, logger)
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	router := api.NewRouter(logger, client, cfg.Server)
	return api.NewServer(cfg, router, logger).Run(ctx)
}
