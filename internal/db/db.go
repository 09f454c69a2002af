package db

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	sqlite3 "github.com/mattn/go-sqlite3"

	"climate-server/internal/config"
)

// Open connects to the configured database and verifies it with a ping.
// The returned handle keeps the driver name so sqlx can rebind placeholders.
func Open(ctx context.Context, cfg config.Config) (*sqlx.DB, error) {
	dsn, err := buildDSN(cfg)
	if err != nil {
		return nil, err
	}

	var sqlDB *sql.DB
	if cfg.LogSQL {
		connector, err := NewLoggingConnector(driverFor(cfg.Driver), dsn, slog.Default().With("component", "sql"))
		if err != nil {
			return nil, fmt.Errorf("db open: %w", err)
		}
		sqlDB = sql.OpenDB(connector)
	} else {
		sqlDB, err = sql.Open(cfg.Driver, dsn)
		if err != nil {
			return nil, fmt.Errorf("db open: %w", err)
		}
	}

	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns >= 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}

	return sqlx.NewDb(sqlDB, cfg.Driver), nil
}

func Close(db *sqlx.DB) error {
	if db == nil {
		return nil
	}
	return db.Close()
}

func driverFor(name string) driver.Driver {
	switch name {
	case config.DriverPostgres:
		return stdlib.GetDefaultDriver()
	default:
		return &sqlite3.SQLiteDriver{}
	}
}

func buildDSN(cfg config.Config) (string, error) {
	if cfg.Driver == config.DriverPostgres {
		if cfg.DSN == "" {
			return "", fmt.Errorf("db dsn: DB_DSN is required for driver %s", cfg.Driver)
		}
		return cfg.DSN, nil
	}
	if cfg.DSN != "" {
		return cfg.DSN, nil
	}

	path := cfg.Path
	var params []string
	if cfg.ReadOnly {
		// The service only reads; refuse to create a missing file.
		if _, err := os.Stat(strings.TrimPrefix(stripQuery(path), "file:")); err != nil {
			return "", fmt.Errorf("sqlite path %s: %w", path, err)
		}
		params = []string{
			"mode=ro",
			"_busy_timeout=5000",
		}
	} else {
		dir := filepath.Dir(strings.TrimPrefix(stripQuery(path), "file:"))
		if dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return "", fmt.Errorf("mkdir %s: %w", dir, err)
			}
		}
		params = []string{
			"_foreign_keys=on",
			"_busy_timeout=5000",
			"_journal_mode=WAL",
		}
	}

	if strings.HasPrefix(path, "file:") {
		sep := "?"
		if strings.Contains(path, "?") {
			sep = "&"
		}
		return path + sep + strings.Join(params, "&"), nil
	}

	return fmt.Sprintf("file:%s?%s", path, strings.Join(params, "&")), nil
}

func stripQuery(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		return path[:i]
	}
	return path
}
