package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as database/sql driver
)

type Config struct {
	URL             string `split_words:"true"`
	MaxOpenConns    int    `split_words:"true" default:"10"`
	MaxIdleConns    int    `split_words:"true" default:"5"`
	ConnMaxLifetime string `split_words:"true" default:"1h"`
	PingTimeout     int    `split_words:"true" default:"5"`
}

// Enabled reports whether a database URL was configured.
func (c *Config) Enabled() bool {
	return strings.TrimSpace(c.URL) != ""
}

// New opens a pooled *sql.DB through the pgx driver and verifies connectivity.
func (c *Config) New(ctx context.Context) (*sql.DB, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("POSTGRES_URL is empty")
	}

	db, err := sql.Open("pgx", c.URL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	lifetime, err := time.ParseDuration(c.ConnMaxLifetime)
	if err != nil || lifetime <= 0 {
		lifetime = time.Hour
	}
	if c.MaxOpenConns > 0 {
		db.SetMaxOpenConns(c.MaxOpenConns)
	}
	if c.MaxIdleConns > 0 {
		db.SetMaxIdleConns(c.MaxIdleConns)
	}
	db.SetConnMaxLifetime(lifetime)

	timeout := time.Duration(c.PingTimeout) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}
