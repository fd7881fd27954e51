package credential

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/tidwall/gjson"
	"golang.org/x/oauth2"

	"github.com/finward/opsflow/internal/httpx"
)

// Token is a live access/refresh token pair from a provider.
type Token struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
}

// Tenant is one organisation the token grants access to.
type Tenant struct {
	ID   string
	Name string
}

// Provider is the plugin interface for a credential provider.
// Implementations wrap endpoint configuration and know how to
// exchange, refresh, and enumerate tenants for a token.
type Provider interface {
	Refresh(ctx context.Context, refreshToken string) (*Token, error)
	Exchange(ctx context.Context, code string) (*Token, error)
	Tenants(ctx context.Context, accessToken string) ([]Tenant, error)
}

// Factory builds a Provider instance from a loosely-typed spec map.
// Decoding into a concrete config struct is the typical responsibility of a Factory.
type Factory func(spec map[string]interface{}) (Provider, error)

// In-memory registry of provider factories keyed by normalized type.
var providers = map[string]Factory{}

// normalizeKey lower-cases and trims provider type keys.
func normalizeKey(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// Register registers a provider factory under a type key (e.g. "oauth", "xero").
func Register(typ string, f Factory) {
	key := normalizeKey(typ)
	if key == "" || f == nil {
		return
	}
	providers[key] = f
}

// Build constructs a Provider from its type key and spec map.
func Build(typ string, spec map[string]interface{}) (Provider, error) {
	f, ok := providers[normalizeKey(typ)]
	if !ok {
		return nil, errors.New("credential: unsupported provider type: " + typ)
	}
	return f(spec)
}

// OAuthConfig configures the generic OAuth provider.
type OAuthConfig struct {
	ClientID       string   `mapstructure:"client_id"`
	ClientSecret   string   `mapstructure:"client_secret"`
	AuthURL        string   `mapstructure:"auth_url"`
	TokenURL       string   `mapstructure:"token_url"`
	RedirectURL    string   `mapstructure:"redirect_url"`
	Scopes         []string `mapstructure:"scopes"`
	ConnectionsURL string   `mapstructure:"connections_url"`
}

// OAuthProvider drives a standard authorization-code OAuth service.
// Refresh posts grant_type=refresh_token with Basic client auth, as
// golang.org/x/oauth2 does it.
type OAuthProvider struct {
	cfg         OAuthConfig
	connections *httpx.Client
}

// NewOAuthProvider builds a provider from config
func NewOAuthProvider(cfg OAuthConfig) (*OAuthProvider, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, errors.New("credential: oauth provider requires client_id and client_secret")
	}
	if cfg.TokenURL == "" {
		return nil, errors.New("credential: oauth provider requires token_url")
	}
	p := &OAuthProvider{cfg: cfg}
	if cfg.ConnectionsURL != "" {
		p.connections = httpx.New(httpx.Config{BaseURL: cfg.ConnectionsURL})
	}
	return p, nil
}

func (p *OAuthProvider) oauth2Config() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     p.cfg.ClientID,
		ClientSecret: p.cfg.ClientSecret,
		RedirectURL:  p.cfg.RedirectURL,
		Scopes:       p.cfg.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  p.cfg.AuthURL,
			TokenURL: p.cfg.TokenURL,
		},
	}
}

// Refresh trades a refresh token for a fresh pair. The previous
// refresh token is kept when the provider does not rotate it.
func (p *OAuthProvider) Refresh(ctx context.Context, refreshToken string) (*Token, error) {
	if refreshToken == "" {
		return nil, errors.New("credential: empty refresh token")
	}
	src := p.oauth2Config().TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, fmt.Errorf("token refresh failed: %w", err)
	}
	out := &Token{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
	}
	if out.RefreshToken == "" {
		out.RefreshToken = refreshToken
	}
	return out, nil
}

// Exchange trades an authorization code for the initial token pair
func (p *OAuthProvider) Exchange(ctx context.Context, code string) (*Token, error) {
	tok, err := p.oauth2Config().Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("code exchange failed: %w", err)
	}
	return &Token{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
	}, nil
}

// Tenants lists the organisations the access token is connected to.
// Providers without a connections endpoint report a single empty
// tenant.
func (p *OAuthProvider) Tenants(ctx context.Context, accessToken string) ([]Tenant, error) {
	if p.connections == nil {
		return []Tenant{{}}, nil
	}
	out := p.connections.Get(ctx, "", httpx.WithHeaders(map[string]string{
		"Authorization": "Bearer " + accessToken,
	}))
	if !out.OK {
		return nil, fmt.Errorf("tenant discovery failed: %w", out.Failure)
	}
	if !out.JSON.IsArray() {
		return nil, errors.New("tenant discovery returned a non-array payload")
	}
	var tenants []Tenant
	out.JSON.ForEach(func(_, conn gjson.Result) bool {
		tenants = append(tenants, Tenant{
			ID:   conn.Get("tenantId").String(),
			Name: conn.Get("tenantName").String(),
		})
		return true
	})
	if len(tenants) == 0 {
		return nil, errors.New("token is not connected to any tenant")
	}
	return tenants, nil
}

// IsInvalidGrant reports whether a refresh failed because the stored
// refresh token itself was rejected, meaning re-registration is the
// only way forward.
func IsInvalidGrant(err error) bool {
	var re *oauth2.RetrieveError
	if !errors.As(err, &re) {
		return false
	}
	if re.ErrorCode == "invalid_grant" || re.ErrorCode == "invalid_client" {
		return true
	}
	return strings.Contains(string(re.Body), "invalid_grant")
}

// Built-in provider registrations
func init() {
	Register("oauth", func(spec map[string]interface{}) (Provider, error) {
		var c OAuthConfig
		if err := mapstructure.Decode(spec, &c); err != nil {
			return nil, err
		}
		return NewOAuthProvider(c)
	})

	// xero: identity endpoints plus tenant discovery preset
	Register("xero", func(spec map[string]interface{}) (Provider, error) {
		var c OAuthConfig
		if err := mapstructure.Decode(spec, &c); err != nil {
			return nil, err
		}
		if c.AuthURL == "" {
			c.AuthURL = "https://login.xero.com/identity/connect/authorize"
		}
		if c.TokenURL == "" {
			c.TokenURL = "https://identity.xero.com/connect/token"
		}
		if c.ConnectionsURL == "" {
			c.ConnectionsURL = "https://api.xero.com/connections"
		}
		return NewOAuthProvider(c)
	})

	// google: standard endpoints, no tenant concept
	Register("google", func(spec map[string]interface{}) (Provider, error) {
		var c OAuthConfig
		if err := mapstructure.Decode(spec, &c); err != nil {
			return nil, err
		}
		if c.AuthURL == "" {
			c.AuthURL = "https://accounts.google.com/o/oauth2/auth"
		}
		if c.TokenURL == "" {
			c.TokenURL = "https://oauth2.googleapis.com/token"
		}
		return NewOAuthProvider(c)
	})
}
