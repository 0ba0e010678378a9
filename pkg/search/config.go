package search

import "github.com/soundprediction/kgroute/pkg/prompts"

const (
	DefaultWidth        = 30
	DefaultDepth        = 3
	DefaultMaxRoutes    = 5
	DefaultCandidateCap = 120
	DefaultAlignTopK    = 45
	DefaultConcurrency  = 8
)

// Config controls route exploration.
type Config struct {
	// Width is the beam width: relations kept per hop and batch size of
	// triplet judgments.
	Width int `mapstructure:"width" json:"width"`
	// Depth is the maximum number of hops per route.
	Depth int `mapstructure:"depth" json:"depth"`
	// MaxRoutes bounds the number of planned routes.
	MaxRoutes int `mapstructure:"max_routes" json:"max_routes"`
	// CandidateCap bounds the triplet candidates judged per relation.
	CandidateCap int `mapstructure:"candidate_cap" json:"candidate_cap"`
	// AlignTopK bounds the graph entities considered per topic.
	AlignTopK int `mapstructure:"align_top_k" json:"align_top_k"`
	// Concurrency bounds the fan-out within one hop.
	Concurrency int `mapstructure:"concurrency" json:"concurrency"`
	// Seed makes candidate sampling reproducible. Zero derives the seed from
	// the run id.
	Seed int64 `mapstructure:"seed" json:"seed"`
	// Domain selects prompt hints.
	Domain string `mapstructure:"domain" json:"domain"`
}

// DefaultConfig returns the default exploration settings.
func DefaultConfig() Config {
	return Config{
		Width:        DefaultWidth,
		Depth:        DefaultDepth,
		MaxRoutes:    DefaultMaxRoutes,
		CandidateCap: DefaultCandidateCap,
		AlignTopK:    DefaultAlignTopK,
		Concurrency:  DefaultConcurrency,
		Domain:       prompts.DefaultDomain,
	}
}

// WithDefaults fills unset fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.Width <= 0 {
		c.Width = d.Width
	}
	if c.Depth <= 0 {
		c.Depth = d.Depth
	}
	if c.MaxRoutes <= 0 {
		c.MaxRoutes = d.MaxRoutes
	}
	if c.CandidateCap <= 0 {
		c.CandidateCap = d.CandidateCap
	}
	if c.AlignTopK <= 0 {
		c.AlignTopK = d.AlignTopK
	}
	if c.Concurrency <= 0 {
		c.Concurrency = d.Concurrency
	}
	if c.Domain == "" {
		c.Domain = d.Domain
	}
	return c
}
