package opsflow

import (
	"context"

	"github.com/finward/opsflow/internal/credential"
	"github.com/finward/opsflow/internal/fetch"
	"github.com/finward/opsflow/internal/httpx"
	"github.com/finward/opsflow/internal/message"
	"github.com/finward/opsflow/internal/orchestration"
	"github.com/finward/opsflow/internal/store"
)

// Re-export commonly used types for public API

// Outcome is the terminal result of one request, success or failure.
type Outcome = httpx.Outcome

// Failure carries the failure classification of a request.
type Failure = httpx.Failure

// Failure kinds reported by the request client.
const (
	FailTimeout    = httpx.FailTimeout
	FailHTTPStatus = httpx.FailHTTPStatus
	FailTransport  = httpx.FailTransport
	FailDecode     = httpx.FailDecode
	FailAuth       = httpx.FailAuth
	FailMalformed  = httpx.FailMalformed
)

// ClientConfig configures a request client.
type ClientConfig = httpx.Config

// NewClient builds a request client for one service base URL.
func NewClient(cfg ClientConfig) *httpx.Client { return httpx.New(cfg) }

// Message is one automation outcome line.
type Message = message.Message

// ErrorFree reports whether no message carries the error severity.
func ErrorFree(msgs []Message) bool { return message.ErrorFree(msgs) }

// CredentialManager refreshes and persists account tokens.
type CredentialManager = credential.Manager

// CredentialProvider is the pluggable token backend interface.
type CredentialProvider = credential.Provider

// RegisterCredentialProvider exposes custom provider registration for
// library users.
func RegisterCredentialProvider(typ string, f credential.Factory) { credential.Register(typ, f) }

// BuildCredentialProvider builds a registered provider from its spec.
func BuildCredentialProvider(typ string, spec map[string]interface{}) (CredentialProvider, error) {
	return credential.Build(typ, spec)
}

// Store is an alias to the internal store type.
type Store = store.Store

// Store drivers accepted by OpenStore.
const (
	DriverSqlite     = store.DriverSqlite
	DriverPostgresql = store.DriverPostgresql
)

// OpenStore opens (and initializes) a store with the given driver.
func OpenStore(driver string, config map[string]interface{}) (*Store, error) {
	return store.Open(driver, config)
}

// Runbook is the YAML job definition document.
type Runbook = orchestration.Runbook

// Runner executes runbook jobs against registered task handlers.
type Runner = orchestration.Runner

// TaskFunc is one job handler.
type TaskFunc = orchestration.TaskFunc

// LoadRunbook loads and validates a runbook file.
func LoadRunbook(path string) (*Runbook, error) { return orchestration.LoadRunbook(path) }

// NewRunner builds a runner recording runs in the given store.
func NewRunner(st *Store) *Runner { return orchestration.NewRunner(st) }

// Poller polls an asynchronous job until completion or deadline.
type Poller = fetch.Poller

// Collect drains a cursor-paged listing. See fetch.Collect.
var Collect = fetch.Collect

// Run executes every job in the runbook in dependency order.
func Run(ctx context.Context, r *Runner, rb *Runbook) ([]orchestration.JobResult, error) {
	return r.Run(ctx, rb)
}
