package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/spec-kit/service-desk/internal/domain"
)

func newFakeGitHub(t *testing.T, user githubUser, emails []githubEmail) *GitHubProvider {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/login/oauth/access_token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"access_token": "gho_test", "token_type": "bearer"})
	})
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer gho_test" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(user)
	})
	mux.HandleFunc("/user/emails", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(emails)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	p := NewGitHubProvider("client", "secret", "http://localhost/callback")
	p.config.Endpoint = oauth2.Endpoint{
		AuthURL:   srv.URL + "/login/oauth/authorize",
		TokenURL:  srv.URL + "/login/oauth/access_token",
		AuthStyle: oauth2.AuthStyleInParams,
	}
	p.apiBase = srv.URL
	return p
}

func TestGitHubExchange(t *testing.T) {
	p := newFakeGitHub(t, githubUser{ID: 42, Login: "alice", Name: "Alice Doe", Email: "alice@example.com"}, nil)

	identity, err := p.Exchange(context.Background(), "code")
	require.NoError(t, err)
	assert.Equal(t, domain.ExternalIdentity{
		Provider:    domain.ProviderGitHub,
		Subject:     "42",
		Email:       "alice@example.com",
		DisplayName: "Alice Doe",
	}, identity)
}

func TestGitHubExchangeFallsBackToPrimaryEmail(t *testing.T) {
	p := newFakeGitHub(t, githubUser{ID: 7, Login: "carol"}, []githubEmail{
		{Email: "old@example.com", Verified: true},
		{Email: "carol@example.com", Primary: true, Verified: true},
	})

	identity, err := p.Exchange(context.Background(), "code")
	require.NoError(t, err)
	assert.Equal(t, "carol@example.com", identity.Email)
	assert.Equal(t, "carol", identity.DisplayName)
}

func TestGitHubExchangeRequiresVerifiedEmail(t *testing.T) {
	p := newFakeGitHub(t, githubUser{ID: 7, Login: "carol"}, []githubEmail{{Email: "x@example.com"}})

	_, err := p.Exchange(context.Background(), "code")
	assert.Error(t, err)
}

func TestAuthURLCarriesState(t *testing.T) {
	p := NewGitHubProvider("client", "secret", "http://localhost/callback")
	assert.Contains(t, p.AuthURL("state-123"), "state=state-123")
}
