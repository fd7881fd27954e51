package connector

import "database/sql"

// CredentialRecord is one account's stored credential. Token fields
// hold ciphertext; encryption happens above the store.
type CredentialRecord struct {
	AccountKey   string
	Provider     string
	AccessToken  string
	RefreshToken string
	Expiry       string // RFC3339Nano
	TenantID     string
	Stale        bool
	UpdatedAt    string // RFC3339Nano
}

// RunRecord is one automation run. Messages is the JSON-encoded
// outcome log; FinishedAt is empty while the run is in flight.
type RunRecord struct {
	ID         int
	Job        string
	Status     string
	StartedAt  string
	FinishedAt string
	Messages   string
}

// Run statuses persisted in the automation_runs table.
const (
	RunStatusRunning   = "running"
	RunStatusSucceeded = "succeeded"
	RunStatusFailed    = "failed"
)

// TableNames represents database table names
type TableNames struct {
	Credentials    string
	AutomationRuns string
}

type Connector interface {
	Connect() (*sql.DB, error)
	Validate() error
	Load(config map[string]interface{}) error
	Ensure(tn TableNames) error
	UpsertCredential(tn TableNames, rec CredentialRecord) error
	GetCredential(tn TableNames, accountKey string) (*CredentialRecord, error)
	ListCredentials(tn TableNames) ([]CredentialRecord, error)
	DeleteCredential(tn TableNames, accountKey string) error
	MarkCredentialStale(tn TableNames, accountKey string, stale bool) error
	BeginRun(tn TableNames, job, startedAt string) (int, error)
	FinishRun(tn TableNames, id int, status, finishedAt, messages string) error
	GetRun(tn TableNames, id int) (*RunRecord, error)
	// ListRuns returns run history ordered by id ASC
	ListRuns(tn TableNames) ([]RunRecord, error)
	Close() error
}
