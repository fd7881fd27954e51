package credential

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestBuildUnknownProviderType(t *testing.T) {
	if _, err := Build("saml", map[string]interface{}{}); err == nil {
		t.Fatalf("unknown provider type must not build")
	}
}

func TestBuildOAuthRequiresClientAndTokenURL(t *testing.T) {
	_, err := Build("oauth", map[string]interface{}{"client_id": "id"})
	if err == nil {
		t.Fatalf("missing client_secret/token_url must be rejected")
	}
	p, err := Build("oauth", map[string]interface{}{
		"client_id":     "id",
		"client_secret": "secret",
		"token_url":     "https://id.example.com/token",
	})
	if err != nil || p == nil {
		t.Fatalf("valid spec should build: %v", err)
	}
}

func TestBuildXeroDefaultsEndpoints(t *testing.T) {
	p, err := Build("xero", map[string]interface{}{
		"client_id":     "id",
		"client_secret": "secret",
	})
	if err != nil {
		t.Fatalf("xero spec should build with preset endpoints: %v", err)
	}
	op := p.(*OAuthProvider)
	if op.cfg.TokenURL == "" || op.cfg.ConnectionsURL == "" {
		t.Errorf("xero provider should carry preset endpoints: %+v", op.cfg)
	}
}

func TestOAuthProviderRefresh(t *testing.T) {
	var gotGrant, gotRefresh string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		gotGrant = r.FormValue("grant_type")
		gotRefresh = r.FormValue("refresh_token")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token":  "new-access",
			"refresh_token": "new-refresh",
			"token_type":    "Bearer",
			"expires_in":    1800,
		})
	}))
	defer srv.Close()

	p, err := NewOAuthProvider(OAuthConfig{
		ClientID: "id", ClientSecret: "secret", TokenURL: srv.URL,
	})
	if err != nil {
		t.Fatalf("provider: %v", err)
	}

	tok, err := p.Refresh(context.Background(), "old-refresh")
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if gotGrant != "refresh_token" || gotRefresh != "old-refresh" {
		t.Errorf("wrong token request: grant=%q refresh=%q", gotGrant, gotRefresh)
	}
	if tok.AccessToken != "new-access" || tok.RefreshToken != "new-refresh" {
		t.Errorf("unexpected token pair: %+v", tok)
	}
	if tok.Expiry.IsZero() {
		t.Errorf("expiry should be set from expires_in")
	}
}

func TestOAuthProviderRefreshKeepsOldRefreshToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "new-access",
			"token_type":   "Bearer",
			"expires_in":   1800,
		})
	}))
	defer srv.Close()

	p, _ := NewOAuthProvider(OAuthConfig{ClientID: "id", ClientSecret: "s", TokenURL: srv.URL})
	tok, err := p.Refresh(context.Background(), "keep-me")
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if tok.RefreshToken != "keep-me" {
		t.Errorf("non-rotating provider should keep the old refresh token, got %q", tok.RefreshToken)
	}
}

func TestOAuthProviderRefreshInvalidGrant(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
	}))
	defer srv.Close()

	p, _ := NewOAuthProvider(OAuthConfig{ClientID: "id", ClientSecret: "s", TokenURL: srv.URL})
	_, err := p.Refresh(context.Background(), "revoked")
	if err == nil {
		t.Fatalf("expected refresh failure")
	}
	if !IsInvalidGrant(err) {
		t.Errorf("rejected refresh token should classify as invalid grant: %v", err)
	}
}

func TestOAuthProviderTenants(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"tenantId":"t-1","tenantName":"Acme"},{"tenantId":"t-2","tenantName":"Beta"}]`))
	}))
	defer srv.Close()

	p, _ := NewOAuthProvider(OAuthConfig{
		ClientID: "id", ClientSecret: "s",
		TokenURL: "https://unused.example.com/token", ConnectionsURL: srv.URL,
	})
	tenants, err := p.Tenants(context.Background(), "live-token")
	if err != nil {
		t.Fatalf("tenants: %v", err)
	}
	if gotAuth != "Bearer live-token" {
		t.Errorf("tenant discovery must carry the bearer token, got %q", gotAuth)
	}
	if len(tenants) != 2 || tenants[0].ID != "t-1" || tenants[1].Name != "Beta" {
		t.Errorf("unexpected tenants: %+v", tenants)
	}
}

func TestOAuthProviderTenantsWithoutEndpoint(t *testing.T) {
	p, _ := NewOAuthProvider(OAuthConfig{ClientID: "id", ClientSecret: "s", TokenURL: "https://x/token"})
	tenants, err := p.Tenants(context.Background(), "tok")
	if err != nil || len(tenants) != 1 || tenants[0].ID != "" {
		t.Fatalf("providers without tenants should report one empty tenant: %v %+v", err, tenants)
	}
}

func TestIsInvalidGrantIgnoresOtherErrors(t *testing.T) {
	if IsInvalidGrant(context.DeadlineExceeded) {
		t.Errorf("plain errors are not invalid grants")
	}
}
