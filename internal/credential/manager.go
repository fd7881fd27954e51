// Package credential owns the token lifecycle for every connected
// account: encrypted persistence, refresh ahead of expiry, and
// re-registration when a refresh token dies.
package credential

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/finward/opsflow/internal/common"
	"github.com/finward/opsflow/internal/httpx"
	"github.com/finward/opsflow/internal/store"
	"github.com/finward/opsflow/internal/store/connector"
)

// refreshBuffer refreshes tokens slightly before they expire so a
// token handed to a caller stays valid for the whole request.
const refreshBuffer = 5 * time.Minute

var (
	// ErrNotRegistered means no credential row exists for the account.
	ErrNotRegistered = errors.New("credential: account not registered")
	// ErrReauthRequired means the stored refresh token was rejected and
	// only a new authorization code can recover the account.
	ErrReauthRequired = errors.New("credential: re-authorization required")
)

// Credential is a decrypted, live view of an account's tokens.
type Credential struct {
	AccessToken string
	TenantID    string
	Provider    string
}

// Manager serializes refreshes per account and keeps the store in
// sync with the provider.
type Manager struct {
	store     *store.Store
	cipher    *Cipher
	providers map[string]Provider
	buffer    time.Duration
	logger    *common.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	now func() time.Time
}

// NewManager builds a manager over the given store and cipher
func NewManager(st *store.Store, cipher *Cipher) *Manager {
	return &Manager{
		store:     st,
		cipher:    cipher,
		providers: map[string]Provider{},
		buffer:    refreshBuffer,
		logger:    common.GetLogger().WithComponent("credential"),
		locks:     map[string]*sync.Mutex{},
		now:       time.Now,
	}
}

// AddProvider wires a built provider under its name
func (m *Manager) AddProvider(name string, p Provider) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.providers[normalizeKey(name)] = p
}

func (m *Manager) provider(name string) (Provider, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.providers[normalizeKey(name)]
	if !ok {
		return nil, fmt.Errorf("credential: no provider configured for %q", name)
	}
	return p, nil
}

// accountLock returns the per-account mutex, creating it on first use.
func (m *Manager) accountLock(accountKey string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[accountKey]
	if !ok {
		l = &sync.Mutex{}
		m.locks[accountKey] = l
	}
	return l
}

// Credential returns a live access token for the account, refreshing
// and persisting first when the stored one is expired or inside the
// refresh buffer. Concurrent callers share a single refresh.
func (m *Manager) Credential(ctx context.Context, accountKey string) (*Credential, error) {
	rec, err := m.store.GetCredential(ctx, accountKey)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotRegistered, accountKey)
	}
	if rec.Stale {
		return nil, fmt.Errorf("%w: %s", ErrReauthRequired, accountKey)
	}
	if m.fresh(rec) {
		return m.decryptView(rec)
	}

	lock := m.accountLock(accountKey)
	lock.Lock()
	defer lock.Unlock()

	// Another caller may have refreshed while we waited for the lock.
	rec, err = m.store.GetCredential(ctx, accountKey)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotRegistered, accountKey)
	}
	if rec.Stale {
		return nil, fmt.Errorf("%w: %s", ErrReauthRequired, accountKey)
	}
	if m.fresh(rec) {
		return m.decryptView(rec)
	}

	return m.refresh(ctx, rec)
}

// fresh reports whether the stored token is still outside the buffer.
func (m *Manager) fresh(rec *connector.CredentialRecord) bool {
	expiry, err := time.Parse(time.RFC3339Nano, rec.Expiry)
	if err != nil {
		return false
	}
	return m.now().Add(m.buffer).Before(expiry)
}

func (m *Manager) decryptView(rec *connector.CredentialRecord) (*Credential, error) {
	access, err := m.cipher.Decrypt(rec.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("stored access token unreadable: %w", err)
	}
	return &Credential{AccessToken: access, TenantID: rec.TenantID, Provider: rec.Provider}, nil
}

// refresh trades the stored refresh token for a new pair and persists
// it. A rejected refresh token marks the record stale; any other
// failure leaves the record untouched.
func (m *Manager) refresh(ctx context.Context, rec *connector.CredentialRecord) (*Credential, error) {
	logger := m.logger.WithProvider(rec.Provider).WithAccount(rec.AccountKey)

	p, err := m.provider(rec.Provider)
	if err != nil {
		return nil, err
	}
	refreshToken, err := m.cipher.Decrypt(rec.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("stored refresh token unreadable: %w", err)
	}

	tok, err := p.Refresh(ctx, refreshToken)
	if err != nil {
		if IsInvalidGrant(err) {
			logger.Warn("refresh token rejected, marking credential stale")
			if markErr := m.store.MarkCredentialStale(ctx, rec.AccountKey, true); markErr != nil {
				logger.Error("failed to mark credential stale", "error", markErr)
			}
			return nil, fmt.Errorf("%w: %s", ErrReauthRequired, rec.AccountKey)
		}
		return nil, err
	}

	if err := m.persist(ctx, rec.AccountKey, rec.Provider, rec.TenantID, tok); err != nil {
		return nil, err
	}
	logger.Info("credential refreshed", "expiry", tok.Expiry.UTC().Format(time.RFC3339))
	return &Credential{AccessToken: tok.AccessToken, TenantID: rec.TenantID, Provider: rec.Provider}, nil
}

// persist encrypts and upserts a token pair for the account.
func (m *Manager) persist(ctx context.Context, accountKey, provider, tenantID string, tok *Token) error {
	access, err := m.cipher.Encrypt(tok.AccessToken)
	if err != nil {
		return err
	}
	refresh, err := m.cipher.Encrypt(tok.RefreshToken)
	if err != nil {
		return err
	}
	return m.store.UpsertCredential(ctx, connector.CredentialRecord{
		AccountKey:   accountKey,
		Provider:     provider,
		AccessToken:  access,
		RefreshToken: refresh,
		Expiry:       tok.Expiry.UTC().Format(time.RFC3339Nano),
		TenantID:     tenantID,
		Stale:        false,
		UpdatedAt:    m.now().UTC().Format(time.RFC3339Nano),
	})
}

// Register exchanges an authorization code, discovers the tenant, and
// persists the account's first credential. Providers with multiple
// tenants get one record per tenant, keyed accountKey/tenant-id for
// all but the first.
func (m *Manager) Register(ctx context.Context, accountKey, providerName, code string) error {
	p, err := m.provider(providerName)
	if err != nil {
		return err
	}
	tok, err := p.Exchange(ctx, code)
	if err != nil {
		return err
	}
	if tok.RefreshToken == "" {
		return errors.New("credential: provider returned no refresh token; request offline access")
	}
	tenants, err := p.Tenants(ctx, tok.AccessToken)
	if err != nil {
		return err
	}
	for i, tenant := range tenants {
		key := accountKey
		if i > 0 {
			key = accountKey + "/" + tenant.ID
		}
		if err := m.persist(ctx, key, normalizeKey(providerName), tenant.ID, tok); err != nil {
			return err
		}
		m.logger.WithProvider(providerName).WithAccount(key).Info("credential registered",
			"tenant", tenant.Name)
	}
	return nil
}

// Authorizer adapts the manager into the request layer's auth hook.
// Providers with tenants also get their tenant header injected.
func (m *Manager) Authorizer(accountKey, tenantHeader string) httpx.Authorizer {
	return func(ctx context.Context) (map[string]string, error) {
		cred, err := m.Credential(ctx, accountKey)
		if err != nil {
			return nil, err
		}
		headers := map[string]string{"Authorization": "Bearer " + cred.AccessToken}
		if tenantHeader != "" && cred.TenantID != "" {
			headers[tenantHeader] = cred.TenantID
		}
		return headers, nil
	}
}
