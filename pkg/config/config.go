package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/viper"
)

// Config is the full kgroute configuration. It is read by viper from a
// config file and KGROUTE_* variables, then patched by overrideWithEnv.
type Config struct {
	Log            LogConfig            `mapstructure:"log"`
	Server         ServerConfig         `mapstructure:"server"`
	Database       DatabaseConfig       `mapstructure:"database"`
	NLP            NLPConfig            `mapstructure:"nlp"`
	Embedding      EmbeddingConfig      `mapstructure:"embedding"`
	Search         SearchConfig         `mapstructure:"search"`
	Cache          CacheConfig          `mapstructure:"cache"`
	Telemetry      TelemetryConfig      `mapstructure:"telemetry"`
	Alert          AlertConfig          `mapstructure:"alert"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
	Topics         TopicsConfig         `mapstructure:"topics"`
	Archive        ArchiveConfig        `mapstructure:"archive"`
}

// AlertConfig holds configuration for alerting
type AlertConfig struct {
	Enabled  bool     `mapstructure:"enabled"`
	SMTPHost string   `mapstructure:"smtp_host"`
	SMTPPort int      `mapstructure:"smtp_port"`
	Username string   `mapstructure:"username"`
	Password string   `mapstructure:"password"`
	From     string   `mapstructure:"from"`
	To       []string `mapstructure:"to"`
}

// CircuitBreakerConfig holds configuration for circuit breaking
type CircuitBreakerConfig struct {
	Enabled          bool    `mapstructure:"enabled"`
	MaxRequests      uint32  `mapstructure:"max_requests"`
	Interval         int     `mapstructure:"interval"` // in seconds
	Timeout          int     `mapstructure:"timeout"`  // in seconds
	ReadyToTripRatio float64 `mapstructure:"ready_to_trip_ratio"`
}

// TelemetryConfig holds telemetry configuration
type TelemetryConfig struct {
	// ParquetPath is the directory for error logs, token usage and route traces.
	ParquetPath string `mapstructure:"parquet_path"`
	// TrackTokens enables per-call token usage records.
	TrackTokens bool `mapstructure:"track_tokens"`
	// TraceRoutes enables one record per explored route.
	TraceRoutes bool `mapstructure:"trace_routes"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // text, json, terminal
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // gin mode: debug, release, test
}

// DatabaseConfig holds graph database configuration
type DatabaseConfig struct {
	Driver      string `mapstructure:"driver"` // neo4j, ladybug, memory
	URI         string `mapstructure:"uri"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	Database    string `mapstructure:"database"`
	VectorIndex string `mapstructure:"vector_index"`
	// FixturePath is a YAML graph loaded into the memory driver.
	FixturePath string `mapstructure:"fixture_path"`
}

// NLPConfig holds NLP configuration
type NLPConfig struct {
	// Models is a map of model configurations. "default" answers and judges
	// sufficiency; "small", when present, scores relevance.
	Models map[string]NLPModelConfig `mapstructure:"models"`

	// MaxRetries bounds retries of a failed model call.
	MaxRetries int `mapstructure:"max_retries"`
}

// NLPModelConfig holds configuration for a specific model
type NLPModelConfig struct {
	Provider    string  `mapstructure:"provider"` // openai, ollama, rustbert
	Model       string  `mapstructure:"model"`
	APIKey      string  `mapstructure:"api_key"`
	BaseURL     string  `mapstructure:"base_url"`
	Temperature float32 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	// Sampling knobs; zero leaves the provider default.
	TopP float32 `mapstructure:"top_p"`
	TopK int     `mapstructure:"top_k"`
	MinP float32 `mapstructure:"min_p"`
	// MaxConcurrent bounds in-flight requests for self-hosted providers.
	MaxConcurrent int64 `mapstructure:"max_concurrent"`
}

// EmbeddingConfig holds embedding configuration
type EmbeddingConfig struct {
	Provider   string `mapstructure:"provider"` // openai, ollama, embedeverything, none
	Model      string `mapstructure:"model"`
	APIKey     string `mapstructure:"api_key"`
	BaseURL    string `mapstructure:"base_url"`
	Dimensions int    `mapstructure:"dimensions"`
}

// SearchConfig holds the route exploration parameters.
type SearchConfig struct {
	Width        int    `mapstructure:"width"`
	Depth        int    `mapstructure:"depth"`
	MaxRoutes    int    `mapstructure:"max_routes"`
	CandidateCap int    `mapstructure:"candidate_cap"`
	AlignTopK    int    `mapstructure:"align_top_k"`
	Concurrency  int    `mapstructure:"concurrency"`
	Seed         int64  `mapstructure:"seed"`
	Judge        string `mapstructure:"judge"`  // llm, embedding, rerank
	Domain       string `mapstructure:"domain"` // prompt domain: movie, sports, open
	// RerankModel is the cross-encoder used by the rerank judge.
	RerankModel string `mapstructure:"rerank_model"`
}

// CacheConfig holds configuration of the on-disk embedding and judgment cache.
type CacheConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
	TTL     int    `mapstructure:"ttl"` // in seconds, 0 keeps entries forever
}

// TopicsConfig selects how topic entities are extracted from routes.
type TopicsConfig struct {
	Extractor string   `mapstructure:"extractor"` // llm, gliner, rustbert
	ModelPath string   `mapstructure:"model_path"`
	Labels    []string `mapstructure:"labels"`
	Threshold float32  `mapstructure:"threshold"`
}

// ArchiveConfig locates the store of answered questions. An empty DSN
// disables archiving.
type ArchiveConfig struct {
	Type string `mapstructure:"type"` // postgres, dolt
	DSN  string `mapstructure:"dsn"`
}

// Load decodes the viper state into a Config.
func Load() (*Config, error) {
	setDefaults()

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	overrideWithEnv(config)
	return config, nil
}

func setDefaults() {
	defaults := map[string]any{
		"log.level":  "info",
		"log.format": "terminal",

		"server.host": "localhost",
		"server.port": 8080,
		"server.mode": "debug",

		"database.driver":       "neo4j",
		"database.uri":          "bolt://localhost:7687",
		"database.username":     "neo4j",
		"database.password":     "",
		"database.database":     "neo4j",
		"database.vector_index": "entityVector",

		"nlp.models.default.provider":    "openai",
		"nlp.models.default.model":       "gpt-4o-mini",
		"nlp.models.default.temperature": 0.0,
		"nlp.models.default.max_tokens":  2048,
		"nlp.max_retries":                3,

		"embedding.provider": "openai",
		"embedding.model":    "text-embedding-3-small",

		"search.width":         30,
		"search.depth":         3,
		"search.max_routes":    5,
		"search.candidate_cap": 120,
		"search.align_top_k":   45,
		"search.concurrency":   8,
		"search.judge":         "llm",
		"search.domain":        "open",
		"search.rerank_model":  "BAAI/bge-reranker-base",

		"archive.type": "postgres",

		"topics.extractor": "llm",
		"topics.threshold": 0.5,

		"circuit_breaker.max_requests":        1,
		"circuit_breaker.interval":            60,
		"circuit_breaker.timeout":             30,
		"circuit_breaker.ready_to_trip_ratio": 0.6,
	}
	if home, err := os.UserHomeDir(); err == nil {
		defaults["telemetry.parquet_path"] = filepath.Join(home, ".kgroute", "telemetry")
		defaults["cache.path"] = filepath.Join(home, ".kgroute", "cache")
	}
	for k, v := range defaults {
		viper.SetDefault(k, v)
	}
}

// overrideWithEnv applies the conventional provider and database variables.
// Later entries win, so DB_URI beats NEO4J_URI and LADYBUG_DB_PATH.
func overrideWithEnv(config *Config) {
	if config.NLP.Models == nil {
		config.NLP.Models = make(map[string]NLPModelConfig)
	}
	def := config.NLP.Models["default"]
	openAIKey := os.Getenv("OPENAI_API_KEY")
	if def.APIKey == "" {
		def.APIKey = openAIKey
	}

	for _, o := range []struct {
		env string
		dst *string
	}{
		{"OPENAI_BASE_URL", &def.BaseURL},
		{"NEO4J_URI", &config.Database.URI},
		{"NEO4J_USER", &config.Database.Username},
		{"NEO4J_PASSWORD", &config.Database.Password},
		{"LADYBUG_DB_PATH", &config.Database.URI},
		{"DB_DRIVER", &config.Database.Driver},
		{"DB_URI", &config.Database.URI},
		{"ARCHIVE_DSN", &config.Archive.DSN},
		{"SERVER_HOST", &config.Server.Host},
		{"TELEMETRY_PARQUET_PATH", &config.Telemetry.ParquetPath},
	} {
		if v := os.Getenv(o.env); v != "" {
			*o.dst = v
		}
	}
	if host := os.Getenv("OLLAMA_HOST"); host != "" && def.Provider == "ollama" {
		def.BaseURL = host
	}
	if p, err := strconv.Atoi(os.Getenv("SERVER_PORT")); err == nil {
		config.Server.Port = p
	}

	config.NLP.Models["default"] = def
	if small, ok := config.NLP.Models["small"]; ok && small.APIKey == "" {
		small.APIKey = def.APIKey
		config.NLP.Models["small"] = small
	}
	if config.Embedding.APIKey == "" {
		config.Embedding.APIKey = openAIKey
	}
}
