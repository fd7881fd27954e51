// Package store persists account credentials and automation run
// history behind a driver-agnostic Connector. Token columns hold
// ciphertext only.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/finward/opsflow/internal/common"
	"github.com/finward/opsflow/internal/retry"
	"github.com/finward/opsflow/internal/store/connector"
	"github.com/finward/opsflow/internal/store/postgresql"
	"github.com/finward/opsflow/internal/store/sqlite"
)

// Supported driver names.
const (
	DriverSqlite     = "sqlite"
	DriverPostgresql = "postgresql"
)

// DefaultTableNames returns the standard table names
func DefaultTableNames() connector.TableNames {
	return connector.TableNames{
		Credentials:    "credentials",
		AutomationRuns: "automation_runs",
	}
}

// Store is the facade the rest of the service uses. Transient
// connection errors are retried; everything else surfaces directly.
type Store struct {
	conn   connector.Connector
	tables connector.TableNames
	retry  *retry.Config
	logger *common.Logger
}

// Open builds, loads, and ensures a store for the given driver.
// Config keys are driver specific (sqlite: path; postgresql: dsn or
// host/port/user/password/dbname/sslmode). Table names can be
// overridden with credentials_table / automation_runs_table.
func Open(driver string, config map[string]interface{}) (*Store, error) {
	var conn connector.Connector
	switch driver {
	case DriverSqlite, "":
		conn = sqlite.NewStore()
	case DriverPostgresql, "postgres":
		conn = postgresql.NewStore()
	default:
		return nil, fmt.Errorf("unsupported store driver: %q", driver)
	}

	if err := conn.Load(config); err != nil {
		return nil, fmt.Errorf("failed to load store config: %w", err)
	}

	tables := DefaultTableNames()
	if name, _ := config["credentials_table"].(string); name != "" {
		tables.Credentials = name
	}
	if name, _ := config["automation_runs_table"].(string); name != "" {
		tables.AutomationRuns = name
	}

	st := &Store{
		conn:   conn,
		tables: tables,
		retry:  retry.DefaultRetryConfig(),
		logger: common.GetLogger().WithStore(driver),
	}
	if err := st.conn.Ensure(tables); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ensure store schema: %w", err)
	}
	return st, nil
}

// SetRetryConfig overrides the transient-error retry policy
func (s *Store) SetRetryConfig(cfg *retry.Config) {
	if cfg != nil {
		s.retry = cfg
	}
}

// UpsertCredential writes the account's credential row atomically
func (s *Store) UpsertCredential(ctx context.Context, rec connector.CredentialRecord) error {
	return retry.WithRetry(ctx, s.retry, func() error {
		return s.conn.UpsertCredential(s.tables, rec)
	})
}

// GetCredential returns the account's credential row, nil when absent
func (s *Store) GetCredential(ctx context.Context, accountKey string) (*connector.CredentialRecord, error) {
	var rec *connector.CredentialRecord
	err := retry.WithRetry(ctx, s.retry, func() error {
		var err error
		rec, err = s.conn.GetCredential(s.tables, accountKey)
		return err
	})
	return rec, err
}

// ListCredentials returns all credential rows
func (s *Store) ListCredentials(ctx context.Context) ([]connector.CredentialRecord, error) {
	var recs []connector.CredentialRecord
	err := retry.WithRetry(ctx, s.retry, func() error {
		var err error
		recs, err = s.conn.ListCredentials(s.tables)
		return err
	})
	return recs, err
}

// DeleteCredential removes the account's credential row
func (s *Store) DeleteCredential(ctx context.Context, accountKey string) error {
	return retry.WithRetry(ctx, s.retry, func() error {
		return s.conn.DeleteCredential(s.tables, accountKey)
	})
}

// MarkCredentialStale flags a credential so callers know a full
// re-registration is required.
func (s *Store) MarkCredentialStale(ctx context.Context, accountKey string, stale bool) error {
	return retry.WithRetry(ctx, s.retry, func() error {
		return s.conn.MarkCredentialStale(s.tables, accountKey, stale)
	})
}

// BeginRun records the start of an automation run and returns its id
func (s *Store) BeginRun(ctx context.Context, job string) (int, error) {
	var id int
	startedAt := time.Now().UTC().Format(time.RFC3339Nano)
	err := retry.WithRetry(ctx, s.retry, func() error {
		var err error
		id, err = s.conn.BeginRun(s.tables, job, startedAt)
		return err
	})
	return id, err
}

// FinishRun closes a run with its terminal status and message log
func (s *Store) FinishRun(ctx context.Context, id int, status, messages string) error {
	finishedAt := time.Now().UTC().Format(time.RFC3339Nano)
	return retry.WithRetry(ctx, s.retry, func() error {
		return s.conn.FinishRun(s.tables, id, status, finishedAt, messages)
	})
}

// GetRun returns one run record, nil when absent
func (s *Store) GetRun(ctx context.Context, id int) (*connector.RunRecord, error) {
	var rec *connector.RunRecord
	err := retry.WithRetry(ctx, s.retry, func() error {
		var err error
		rec, err = s.conn.GetRun(s.tables, id)
		return err
	})
	return rec, err
}

// ListRuns returns the run history ordered oldest first
func (s *Store) ListRuns(ctx context.Context) ([]connector.RunRecord, error) {
	var recs []connector.RunRecord
	err := retry.WithRetry(ctx, s.retry, func() error {
		var err error
		recs, err = s.conn.ListRuns(s.tables)
		return err
	})
	return recs, err
}

// Close releases the underlying connection
func (s *Store) Close() error {
	return s.conn.Close()
}
