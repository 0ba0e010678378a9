package archive

import (
	"context"
	"fmt"

	_ "github.com/dolthub/driver"
	_ "github.com/lib/pq"
)

// Archive backends.
const (
	TypePostgres = "postgres"
	TypeDolt     = "dolt"
)

// doltDatabase is created inside the embedded Dolt directory.
const doltDatabase = "kgroute"

// Config selects and locates the archive backend.
type Config struct {
	// Type is TypePostgres or TypeDolt. Empty means TypePostgres.
	Type string
	// DSN is the connection string of the backend.
	DSN string
}

// New opens the configured store and creates its tables.
func New(ctx context.Context, config *Config) (*SQLStore, error) {
	if config == nil {
		return nil, fmt.Errorf("archive config is required")
	}
	if config.DSN == "" {
		return nil, fmt.Errorf("connection string is required")
	}

	var (
		store *SQLStore
		err   error
	)
	switch config.Type {
	case TypePostgres, "":
		store, err = openSQL(postgresDialect, config.DSN)
	case TypeDolt:
		store, err = openSQL(doltDialect, config.DSN,
			"CREATE DATABASE IF NOT EXISTS "+doltDatabase,
			"USE "+doltDatabase,
		)
	default:
		return nil, fmt.Errorf("unsupported archive type: %s (supported: postgres, dolt)", config.Type)
	}
	if err != nil {
		return nil, err
	}

	if err := store.Initialize(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}
