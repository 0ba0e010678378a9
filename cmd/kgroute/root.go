package kgroute

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/soundprediction/kgroute"
	"github.com/soundprediction/kgroute/pkg/config"
	kgLogger "github.com/soundprediction/kgroute/pkg/logger"
	"github.com/soundprediction/kgroute/pkg/telemetry"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "kgroute",
		Short: "kgroute: multi-route question answering over knowledge graphs",
		Long: `kgroute answers natural-language questions by exploring a knowledge graph
along several planned reasoning routes. Each route is expanded hop by hop
under the guidance of a language model until its evidence is sufficient, and
the answers of finished routes are reconciled into one final answer.

Graphs can be served by Neo4j, an embedded Ladybug database or a YAML fixture
loaded into memory.`,
		SilenceUsage: true,
	}
)

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.kgroute.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "terminal", "log format (terminal, text, json)")

	viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".kgroute")
	}

	viper.SetEnvPrefix("KGROUTE")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// loadConfig loads the configuration and applies the flags the user set.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	overrideConfigWithFlags(cmd, cfg)
	return cfg, nil
}

// newLogger builds the process logger. Error records are also written to
// Parquet when a telemetry path is configured; the returned closer flushes
// them.
func newLogger(cfg *config.Config, w io.Writer) (*slog.Logger, io.Closer) {
	level := kgLogger.ParseLevel(cfg.Log.Level)
	logger := kgLogger.New(w, level, cfg.Log.Format)
	if cfg.Telemetry.ParquetPath == "" {
		return logger, io.NopCloser(nil)
	}
	handler, err := telemetry.NewParquetHandler(logger.Handler(), cfg.Telemetry.ParquetPath)
	if err != nil {
		logger.Warn("Failed to initialize error tracking", "error", err)
		return logger, io.NopCloser(nil)
	}
	return slog.New(handler), handler
}

// setup loads the configuration, the logger and a client built from both.
// The returned function releases all of them.
func setup(ctx context.Context, cmd *cobra.Command) (*config.Config, *kgroute.Client, *slog.Logger, func(), error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	logger, logCloser := newLogger(cfg, os.Stderr)
	slog.SetDefault(logger)

	client, err := kgroute.NewClientFromConfig(ctx, cfg, logger)
	if err != nil {
		_ = logCloser.Close()
		return nil, nil, nil, nil, fmt.Errorf("failed to initialize kgroute: %w", err)
	}
	logger.Debug("kgroute initialized",
		"driver", cfg.Database.Driver,
		"model", cfg.NLP.Models["default"].Model,
		"embedding", cfg.Embedding.Provider,
		"judge", cfg.Search.Judge,
		"topics", cfg.Topics.Extractor,
	)

	release := func() {
		if err := client.Close(context.Background()); err != nil {
			logger.Warn("Failed to close kgroute client", "error", err)
		}
		_ = logCloser.Close()
	}
	return cfg, client, logger, release, nil
}
