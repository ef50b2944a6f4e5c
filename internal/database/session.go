// Package database opens the dedicated connections used by the database sink.
//
// A Session pins exactly one physical connection for its whole lifetime so a
// worker never shares connections (or transactions) with another worker.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"coffeeshop/internal/config"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	go_ora "github.com/sijms/go-ora/v2"
)

// Session is a single live database connection.
type Session struct {
	driver string
	db     *sql.DB
	conn   *sql.Conn
}

// NewSession pins one connection of db and verifies it is alive. On error db
// is closed.
func NewSession(ctx context.Context, driver string, db *sql.DB) (*Session, error) {
	db.SetMaxOpenConns(1)
	conn, err := db.Conn(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to acquire %s connection: %w", driver, err)
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		db.Close()
		return nil, fmt.Errorf("failed to reach %s database: %w", driver, err)
	}
	return &Session{driver: driver, db: db, conn: conn}, nil
}

// Open connects to the configured database without the wallet bootstrap.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*Session, error) {
	var db *sql.DB
	switch cfg.Driver {
	case config.DriverOracle:
		var err error
		db, err = sql.Open("oracle", oracleURL(cfg.Target(), cfg.Username, cfg.Password))
		if err != nil {
			return nil, fmt.Errorf("failed to open oracle database: %w", err)
		}
	case config.DriverPgx:
		cc, err := pgx.ParseConfig(cfg.Target())
		if err != nil {
			return nil, fmt.Errorf("invalid pgx connection string: %w", err)
		}
		if cfg.Username != "" {
			cc.User = cfg.Username
		}
		if cfg.Password != "" {
			cc.Password = cfg.Password
		}
		db = stdlib.OpenDB(*cc)
	case config.DriverSQLite:
		var err error
		db, err = sql.Open("sqlite3", cfg.Target())
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite database: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}
	return NewSession(ctx, cfg.Driver, db)
}

// oracleURL accepts either a go-ora URL or a connect string as returned by
// DatabaseConfig.Target ("host:port/service", TNS descriptor or EZConnect)
// and returns a go-ora URL.
func oracleURL(target, user, password string) string {
	if strings.HasPrefix(strings.ToLower(target), "oracle://") {
		return target
	}
	return go_ora.BuildJDBC(user, password, target, nil)
}

// Driver returns the driver name the session was opened with.
func (s *Session) Driver() string { return s.driver }

// Conn exposes the pinned connection.
func (s *Session) Conn() *sql.Conn { return s.conn }

// BeginTx starts a transaction on the pinned connection.
func (s *Session) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return s.conn.BeginTx(ctx, nil)
}

// Placeholder returns the positional bind marker for parameter n (1-based).
func (s *Session) Placeholder(n int) string {
	switch s.driver {
	case config.DriverOracle:
		return fmt.Sprintf(":%d", n)
	case config.DriverPgx:
		return fmt.Sprintf("$%d", n)
	default:
		return "?"
	}
}

// Close releases the connection and its pool.
func (s *Session) Close() error {
	return errors.Join(s.conn.Close(), s.db.Close())
}
