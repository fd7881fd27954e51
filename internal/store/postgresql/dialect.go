package postgresql

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Dialect implements SQL dialect for PostgreSQL
type Dialect struct{}

// NewDialect creates a new PostgreSQL dialect
func NewDialect() *Dialect {
	return &Dialect{}
}

// GetPlaceholder returns PostgreSQL-style placeholders ($1, $2, etc.)
func (p *Dialect) GetPlaceholder(index int) string {
	return fmt.Sprintf("$%d", index)
}

// ConvertBoolToStorage converts bool to PostgreSQL storage format (native bool)
func (p *Dialect) ConvertBoolToStorage(b bool) interface{} {
	return b
}

// ConvertBoolFromStorage converts PostgreSQL bool storage to bool
func (p *Dialect) ConvertBoolFromStorage(val interface{}) bool {
	if b, ok := val.(bool); ok {
		return b
	}
	return false
}

// Connect establishes a connection to PostgreSQL with connection pooling
func (p *Dialect) Connect(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open PostgreSQL connection: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(1 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL database: %w", err)
	}
	return db, nil
}

// GetEnsureStatements returns PostgreSQL-specific table creation statements
func (p *Dialect) GetEnsureStatements(credentials, automationRuns string) []string {
	return []string{
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (account_key TEXT PRIMARY KEY, provider TEXT NOT NULL, access_token TEXT NOT NULL, refresh_token TEXT NOT NULL, expiry TEXT NOT NULL, tenant_id TEXT NOT NULL DEFAULT '', stale BOOLEAN NOT NULL DEFAULT FALSE, updated_at TEXT NOT NULL)", credentials),
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (id SERIAL PRIMARY KEY, job TEXT NOT NULL, status TEXT NOT NULL, started_at TEXT NOT NULL, finished_at TEXT NOT NULL DEFAULT '', messages TEXT NOT NULL DEFAULT '')", automationRuns),
	}
}

// GetDriverName returns the driver name for logging
func (p *Dialect) GetDriverName() string {
	return "postgresql"
}
