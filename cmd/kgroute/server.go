package kgroute

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/soundprediction/kgroute/pkg/config"
	"github.com/soundprediction/kgroute/pkg/server"
)

const shutdownGrace = 30 * time.Second

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Serve the answer API over HTTP",
	Long: `Serve kgroute over HTTP until SIGINT or SIGTERM.

Routes:
  POST /api/v1/answer         answer a question
  GET  /api/v1/entity-types   entity types of the graph
  GET  /api/v1/runs[/:id]     archived runs (needs archive.dsn)
  GET  /health /ready /live /health/detailed

The graph, models and listener come from the config file, KGROUTE_*
environment variables and the flags below.`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(serverCmd)

	f := serverCmd.Flags()
	f.String("host", "localhost", "Listen host")
	f.Int("port", 8080, "Listen port")
	f.String("mode", "debug", "Gin mode: debug, release or test")

	addGraphFlags(serverCmd)
	addModelFlags(serverCmd)
}

func runServer(cmd *cobra.Command, _ []string) error {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	cfg, client, logger, release, err := setup(parent, cmd)
	if err != nil {
		return err
	}
	defer release()

	if err := validateServerConfig(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	srv := server.New(cfg, client, logger)
	srv.Setup()

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	served := make(chan error, 1)
	go func() { served <- srv.Start() }()

	select {
	case err := <-served:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down", "cause", context.Cause(ctx))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}
	if err := <-served; err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

func validateServerConfig(cfg *config.Config) error {
	switch {
	case cfg.Server.Port <= 0 || cfg.Server.Port > 65535:
		return fmt.Errorf("invalid port: %d", cfg.Server.Port)
	case cfg.Database.Driver != "memory" && cfg.Database.URI == "":
		return fmt.Errorf("database URI is required")
	}
	return nil
}
