package oauth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

type stubProvider struct {
	identity *Identity
	lastCode string
}

func (p *stubProvider) Name() string                  { return "stub" }
func (p *stubProvider) AuthCodeURL(state string) string { return "https://stub/auth?state=" + state }

func (p *stubProvider) Exchange(ctx context.Context, code string) (*Identity, string, error) {
	p.lastCode = code
	return p.identity, "token-123", nil
}

func TestGenerateState(t *testing.T) {
	a, err := GenerateState()
	require.NoError(t, err)
	b, err := GenerateState()
	require.NoError(t, err)

	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}

func TestComplete(t *testing.T) {
	ctx := context.Background()
	p := &stubProvider{identity: &Identity{Email: "a@x.com"}}

	t.Run("success", func(t *testing.T) {
		ident, access, err := Complete(ctx, p,
			map[string]string{"state": "s1", "code": "c1"},
			map[string]string{"state": "s1"})
		require.NoError(t, err)
		assert.Equal(t, "a@x.com", ident.Email)
		assert.Equal(t, "token-123", access)
		assert.Equal(t, "c1", p.lastCode)
	})

	t.Run("provider error passthrough", func(t *testing.T) {
		_, _, err := Complete(ctx, p,
			map[string]string{"error": "access_denied", "error_description": "user said no"},
			nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "access_denied")
		assert.Contains(t, err.Error(), "user said no")
	})

	t.Run("state mismatch", func(t *testing.T) {
		_, _, err := Complete(ctx, p,
			map[string]string{"state": "forged", "code": "c1"},
			map[string]string{"state": "s1"})
		assert.ErrorIs(t, err, ErrStateMismatch)
	})

	t.Run("missing state", func(t *testing.T) {
		_, _, err := Complete(ctx, p,
			map[string]string{"code": "c1"},
			map[string]string{"state": ""})
		assert.ErrorIs(t, err, ErrStateMismatch)
	})

	t.Run("missing code", func(t *testing.T) {
		_, _, err := Complete(ctx, p,
			map[string]string{"state": "s1"},
			map[string]string{"state": "s1"})
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrStateMismatch)
	})
}

func TestRegistry(t *testing.T) {
	p := &stubProvider{}
	r := NewRegistry(p)

	got, ok := r.Get("stub")
	assert.True(t, ok)
	assert.Same(t, p, got)

	_, ok = r.Get("missing")
	assert.False(t, ok)
}

func tokenEndpoint(t *testing.T, mux *http.ServeMux) {
	t.Helper()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "access-abc",
			"token_type":   "Bearer",
		})
	})
}

func TestGoogleExchange(t *testing.T) {
	mux := http.NewServeMux()
	tokenEndpoint(t, mux)
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.Header.Get("Authorization"), "access-abc")
		json.NewEncoder(w).Encode(map[string]any{
			"email":          "a@x.com",
			"email_verified": true,
			"given_name":     "Ada",
			"family_name":    "Lovelace",
			"picture":        "https://img/a.png",
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	g := NewGoogle("id", "secret", "https://app/callback")
	g.Config.Endpoint = oauth2.Endpoint{TokenURL: srv.URL + "/token"}
	g.UserInfoURL = srv.URL + "/userinfo"

	ident, access, err := g.Exchange(context.Background(), "the-code")
	require.NoError(t, err)
	assert.Equal(t, "access-abc", access)
	assert.Equal(t, &Identity{
		Email:         "a@x.com",
		EmailVerified: true,
		GivenName:     "Ada",
		FamilyName:    "Lovelace",
		Picture:       "https://img/a.png",
	}, ident)
}

func TestGoogleExchangeUserInfoFailure(t *testing.T) {
	mux := http.NewServeMux()
	tokenEndpoint(t, mux)
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	g := NewGoogle("id", "secret", "")
	g.Config.Endpoint = oauth2.Endpoint{TokenURL: srv.URL + "/token"}
	g.UserInfoURL = srv.URL + "/userinfo"

	_, _, err := g.Exchange(context.Background(), "the-code")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 403")
}

func TestGitHubExchange(t *testing.T) {
	mux := http.NewServeMux()
	tokenEndpoint(t, mux)
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"name":       "Grace Brewster Hopper",
			"login":      "ghopper",
			"avatar_url": "https://img/g.png",
		})
	})
	mux.HandleFunc("/user/emails", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]any{
			{"email": "secondary@x.com", "primary": false, "verified": false},
			{"email": "primary@x.com", "primary": true, "verified": true},
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	g := NewGitHub("id", "secret", "https://app/callback")
	g.Config.Endpoint = oauth2.Endpoint{TokenURL: srv.URL + "/token"}
	g.APIBaseURL = srv.URL

	ident, access, err := g.Exchange(context.Background(), "the-code")
	require.NoError(t, err)
	assert.Equal(t, "access-abc", access)
	assert.Equal(t, "primary@x.com", ident.Email)
	assert.True(t, ident.EmailVerified)
	assert.Equal(t, "Grace", ident.GivenName)
	assert.Equal(t, "Brewster Hopper", ident.FamilyName)
	assert.Equal(t, "https://img/g.png", ident.Picture)
}

func TestGitHubExchangeFallbacks(t *testing.T) {
	mux := http.NewServeMux()
	tokenEndpoint(t, mux)
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"login": "mononym"})
	})
	mux.HandleFunc("/user/emails", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]any{
			{"email": "only@x.com", "primary": false, "verified": true},
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	g := NewGitHub("id", "secret", "")
	g.Config.Endpoint = oauth2.Endpoint{TokenURL: srv.URL + "/token"}
	g.APIBaseURL = srv.URL

	ident, _, err := g.Exchange(context.Background(), "the-code")
	require.NoError(t, err)
	assert.Equal(t, "only@x.com", ident.Email, "no primary email falls back to the first")
	assert.Equal(t, "mononym", ident.GivenName, "no display name falls back to login")
	assert.Empty(t, ident.FamilyName)
}

func TestAuthCodeURLCarriesState(t *testing.T) {
	g := NewGoogle("id", "secret", "https://app/callback")
	u := g.AuthCodeURL("state-xyz")
	assert.Contains(t, u, "state=state-xyz")
	assert.Contains(t, u, "client_id=id")
}
