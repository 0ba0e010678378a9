package kgroute

import (
	"github.com/spf13/cobra"

	"github.com/soundprediction/kgroute/pkg/config"
)

// addGraphFlags registers the database flags.
func addGraphFlags(cmd *cobra.Command) {
	cmd.Flags().String("db-driver", "neo4j", "Graph driver (neo4j, ladybug, memory)")
	cmd.Flags().String("db-uri", "bolt://localhost:7687", "Database URI, or path for ladybug")
	cmd.Flags().String("db-username", "", "Database username (neo4j only)")
	cmd.Flags().String("db-password", "", "Database password (neo4j only)")
	cmd.Flags().String("db-database", "", "Database name (neo4j only)")
	cmd.Flags().String("db-fixture", "", "YAML graph fixture loaded by the memory driver")
}

// addModelFlags registers the model, judge and search flags.
func addModelFlags(cmd *cobra.Command) {
	cmd.Flags().String("nlp-provider", "openai", "NLP provider (openai, ollama, rustbert)")
	cmd.Flags().String("nlp-model", "gpt-4o-mini", "NLP model")
	cmd.Flags().String("nlp-api-key", "", "NLP API key")
	cmd.Flags().String("nlp-base-url", "", "NLP base URL")
	cmd.Flags().Float32("nlp-temperature", 0, "NLP temperature")
	cmd.Flags().Int("nlp-max-tokens", 2048, "NLP max tokens")

	cmd.Flags().String("embedding-provider", "openai", "Embedding provider (openai, ollama, embedeverything, none)")
	cmd.Flags().String("embedding-model", "text-embedding-3-small", "Embedding model")
	cmd.Flags().String("embedding-api-key", "", "Embedding API key")
	cmd.Flags().String("embedding-base-url", "", "Embedding base URL")

	cmd.Flags().String("judge", "llm", "Relevance judge (llm, embedding, rerank)")
	cmd.Flags().String("domain", "open", "Prompt domain (open, movie, sports, yearly)")
	cmd.Flags().String("topics", "llm", "Topic extractor (llm, gliner, rustbert)")
	cmd.Flags().Int64("seed", 0, "Sampling seed, 0 derives it from the run id")
	cmd.Flags().Bool("cache", false, "Cache embeddings and relevance judgments on disk")

	cmd.Flags().String("telemetry-parquet-path", "", "Directory for telemetry (errors, token usage and route traces)")
	addArchiveFlags(cmd)
}

// addArchiveFlags registers the run archive flags.
func addArchiveFlags(cmd *cobra.Command) {
	cmd.Flags().String("archive-type", "", "Run archive backend (postgres, dolt)")
	cmd.Flags().String("archive-dsn", "", "Run archive connection string, empty disables archiving")
}

// overrideConfigWithFlags copies every flag the user set into cfg. Flags
// left at their defaults do not override the configuration file.
func overrideConfigWithFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	changed := func(name string) bool {
		return flags.Lookup(name) != nil && flags.Changed(name)
	}
	str := func(name string, dst *string) {
		if changed(name) {
			*dst, _ = flags.GetString(name)
		}
	}
	integer := func(name string, dst *int) {
		if changed(name) {
			*dst, _ = flags.GetInt(name)
		}
	}

	// Server flags
	str("host", &cfg.Server.Host)
	integer("port", &cfg.Server.Port)
	str("mode", &cfg.Server.Mode)

	// Database flags
	str("db-driver", &cfg.Database.Driver)
	str("db-uri", &cfg.Database.URI)
	str("db-username", &cfg.Database.Username)
	str("db-password", &cfg.Database.Password)
	str("db-database", &cfg.Database.Database)
	str("db-fixture", &cfg.Database.FixturePath)

	// NLP flags
	if cfg.NLP.Models == nil {
		cfg.NLP.Models = make(map[string]config.NLPModelConfig)
	}
	m := cfg.NLP.Models["default"]
	str("nlp-provider", &m.Provider)
	str("nlp-model", &m.Model)
	str("nlp-api-key", &m.APIKey)
	str("nlp-base-url", &m.BaseURL)
	if changed("nlp-temperature") {
		m.Temperature, _ = flags.GetFloat32("nlp-temperature")
	}
	integer("nlp-max-tokens", &m.MaxTokens)
	cfg.NLP.Models["default"] = m

	// Embedding flags
	str("embedding-provider", &cfg.Embedding.Provider)
	str("embedding-model", &cfg.Embedding.Model)
	str("embedding-api-key", &cfg.Embedding.APIKey)
	str("embedding-base-url", &cfg.Embedding.BaseURL)

	// Search flags
	str("judge", &cfg.Search.Judge)
	str("domain", &cfg.Search.Domain)
	str("topics", &cfg.Topics.Extractor)
	if changed("seed") {
		cfg.Search.Seed, _ = flags.GetInt64("seed")
	}
	if changed("cache") {
		cfg.Cache.Enabled, _ = flags.GetBool("cache")
	}

	// Telemetry flags
	if changed("telemetry-parquet-path") {
		cfg.Telemetry.ParquetPath, _ = flags.GetString("telemetry-parquet-path")
		cfg.Telemetry.TrackTokens = cfg.Telemetry.ParquetPath != ""
		cfg.Telemetry.TraceRoutes = cfg.Telemetry.ParquetPath != ""
	}

	// Archive flags
	str("archive-type", &cfg.Archive.Type)
	str("archive-dsn", &cfg.Archive.DSN)
}
