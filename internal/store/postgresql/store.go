package postgresql

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/finward/opsflow/internal/store/connector"
)

// Store persists credentials and automation runs in PostgreSQL.
// It implements connector.Connector.
type Store struct {
	db      *sql.DB
	dialect *Dialect
	dsn     string
}

// NewStore creates an unconnected PostgreSQL store
func NewStore() *Store {
	return &Store{dialect: NewDialect()}
}

// Load reads connection settings from the store config map
func (s *Store) Load(config map[string]interface{}) error {
	if config == nil {
		return errors.New("postgresql store config is nil")
	}
	if dsn, _ := config["dsn"].(string); dsn != "" {
		s.dsn = dsn
		return nil
	}
	host, _ := config["host"].(string)
	if host == "" {
		return errors.New("postgresql store requires a dsn or host")
	}
	port, _ := config["port"].(int)
	if port == 0 {
		port = 5432
	}
	user, _ := config["user"].(string)
	password, _ := config["password"].(string)
	dbname, _ := config["dbname"].(string)
	sslmode, _ := config["sslmode"].(string)
	if sslmode == "" {
		sslmode = "disable"
	}
	s.dsn = fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		host, port, user, password, dbname, sslmode)
	return nil
}

// Validate checks that the store is ready to connect
func (s *Store) Validate() error {
	if s.dsn == "" {
		return errors.New("postgresql store dsn not configured")
	}
	return nil
}

// Connect opens the database, reusing an existing connection
func (s *Store) Connect() (*sql.DB, error) {
	if s.db != nil {
		return s.db, nil
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	db, err := s.dialect.Connect(s.dsn)
	if err != nil {
		return nil, err
	}
	s.db = db
	return db, nil
}

// Ensure creates the credential and run tables when missing
func (s *Store) Ensure(tn connector.TableNames) error {
	db, err := s.Connect()
	if err != nil {
		return err
	}
	for _, stmt := range s.dialect.GetEnsureStatements(tn.Credentials, tn.AutomationRuns) {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to ensure postgresql schema: %w", err)
		}
	}
	return nil
}

// UpsertCredential inserts or replaces the account's credential row
func (s *Store) UpsertCredential(tn connector.TableNames, rec connector.CredentialRecord) error {
	db, err := s.Connect()
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`INSERT INTO %s (account_key, provider, access_token, refresh_token, expiry, tenant_id, stale, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (account_key) DO UPDATE SET
		provider = EXCLUDED.provider,
		access_token = EXCLUDED.access_token,
		refresh_token = EXCLUDED.refresh_token,
		expiry = EXCLUDED.expiry,
		tenant_id = EXCLUDED.tenant_id,
		stale = EXCLUDED.stale,
		updated_at = EXCLUDED.updated_at`, tn.Credentials)
	_, err = db.Exec(query, rec.AccountKey, rec.Provider, rec.AccessToken, rec.RefreshToken,
		rec.Expiry, rec.TenantID, s.dialect.ConvertBoolToStorage(rec.Stale), rec.UpdatedAt)
	return err
}

// GetCredential returns the account's credential row, nil when absent
func (s *Store) GetCredential(tn connector.TableNames, accountKey string) (*connector.CredentialRecord, error) {
	db, err := s.Connect()
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT account_key, provider, access_token, refresh_token, expiry, tenant_id, stale, updated_at FROM %s WHERE account_key = $1`, tn.Credentials)
	row := db.QueryRow(query, accountKey)

	var rec connector.CredentialRecord
	err = row.Scan(&rec.AccountKey, &rec.Provider, &rec.AccessToken, &rec.RefreshToken,
		&rec.Expiry, &rec.TenantID, &rec.Stale, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListCredentials returns all credential rows ordered by account key
func (s *Store) ListCredentials(tn connector.TableNames) ([]connector.CredentialRecord, error) {
	db, err := s.Connect()
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT account_key, provider, access_token, refresh_token, expiry, tenant_id, stale, updated_at FROM %s ORDER BY account_key ASC`, tn.Credentials)
	rows, err := db.Query(query)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []connector.CredentialRecord
	for rows.Next() {
		var rec connector.CredentialRecord
		if err := rows.Scan(&rec.AccountKey, &rec.Provider, &rec.AccessToken, &rec.RefreshToken,
			&rec.Expiry, &rec.TenantID, &rec.Stale, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// DeleteCredential removes the account's credential row
func (s *Store) DeleteCredential(tn connector.TableNames, accountKey string) error {
	db, err := s.Connect()
	if err != nil {
		return err
	}
	_, err = db.Exec(fmt.Sprintf(`DELETE FROM %s WHERE account_key = $1`, tn.Credentials), accountKey)
	return err
}

// MarkCredentialStale flags the account's credential as needing re-auth
func (s *Store) MarkCredentialStale(tn connector.TableNames, accountKey string, stale bool) error {
	db, err := s.Connect()
	if err != nil {
		return err
	}
	_, err = db.Exec(fmt.Sprintf(`UPDATE %s SET stale = $1 WHERE account_key = $2`, tn.Credentials),
		s.dialect.ConvertBoolToStorage(stale), accountKey)
	return err
}

// BeginRun inserts a running record and returns its id
func (s *Store) BeginRun(tn connector.TableNames, job, startedAt string) (int, error) {
	db, err := s.Connect()
	if err != nil {
		return 0, err
	}
	var id int
	query := fmt.Sprintf(`INSERT INTO %s (job, status, started_at) VALUES ($1, $2, $3) RETURNING id`, tn.AutomationRuns)
	err = db.QueryRow(query, job, connector.RunStatusRunning, startedAt).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

// FinishRun closes a run record with its terminal status and messages
func (s *Store) FinishRun(tn connector.TableNames, id int, status, finishedAt, messages string) error {
	db, err := s.Connect()
	if err != nil {
		return err
	}
	_, err = db.Exec(fmt.Sprintf(`UPDATE %s SET status = $1, finished_at = $2, messages = $3 WHERE id = $4`, tn.AutomationRuns),
		status, finishedAt, messages, id)
	return err
}

// GetRun returns one run record, nil when absent
func (s *Store) GetRun(tn connector.TableNames, id int) (*connector.RunRecord, error) {
	db, err := s.Connect()
	if err != nil {
		return nil, err
	}
	row := db.QueryRow(fmt.Sprintf(`SELECT id, job, status, started_at, finished_at, messages FROM %s WHERE id = $1`, tn.AutomationRuns), id)

	var rec connector.RunRecord
	err = row.Scan(&rec.ID, &rec.Job, &rec.Status, &rec.StartedAt, &rec.FinishedAt, &rec.Messages)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListRuns returns run history ordered by id ASC
func (s *Store) ListRuns(tn connector.TableNames) ([]connector.RunRecord, error) {
	db, err := s.Connect()
	if err != nil {
		return nil, err
	}
	rows, err := db.Query(fmt.Sprintf(`SELECT id, job, status, started_at, finished_at, messages FROM %s ORDER BY id ASC`, tn.AutomationRuns))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []connector.RunRecord
	for rows.Next() {
		var rec connector.RunRecord
		if err := rows.Scan(&rec.ID, &rec.Job, &rec.Status, &rec.StartedAt, &rec.FinishedAt, &rec.Messages); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Close closes the underlying database
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
