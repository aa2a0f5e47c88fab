// Package postgres manages the pooled connection to the job store.
package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Config holds pool construction parameters.
type Config struct {
	URL      string
	MaxConns int32
	// SessionTimeZone is pinned with SET TIME ZONE on every new connection
	// so naive datetimes share one reference frame (e.g. "+08:00").
	SessionTimeZone string
}

// Pool wraps a pgx connection pool.
type Pool struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// New parses the URL, applies pool settings, pins the session time zone on
// each connection, and verifies connectivity with a ping.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Pool, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	pc, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing database URL: %w", err)
	}
	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	if tz := cfg.SessionTimeZone; tz != "" {
		pc.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			// SET TIME ZONE takes no parameter placeholder, so the
			// operator-supplied value is escaped as a string literal.
			_, err := conn.Exec(ctx, "SET TIME ZONE "+quoteLiteral(tz))
			if err != nil {
				logger.Warn("session time zone set failed (ignored)", "tz", tz, "error", err)
			}
			return nil
		}
	}

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	logger.Info("connected to job store", "max_conns", pc.MaxConns, "session_time_zone", cfg.SessionTimeZone)
	return &Pool{pool: pool, logger: logger}, nil
}

// DB returns the underlying pgx pool.
func (p *Pool) DB() *pgxpool.Pool { return p.pool }

// Close releases all pooled connections.
func (p *Pool) Close() { p.pool.Close() }

// quoteLiteral wraps s in single quotes, doubling any embedded quote.
func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
