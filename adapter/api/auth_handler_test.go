package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iahome/platform/internal/identity/application/signin"
	identityPersistence "github.com/iahome/platform/internal/identity/infrastructure/persistence"
	"github.com/iahome/platform/internal/shared/infrastructure/migrations"
)

func setupAuthTestDB(t *testing.T) *sql.DB {
	t.Helper()

	sqlDB, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, migrations.RunSQLiteMigrations(context.Background(), sqlDB))

	return sqlDB
}

// fakeProvider serves the token and userinfo endpoints of an OAuth provider.
func fakeProvider(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "provider-token",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	})
	mux.HandleFunc("GET /userinfo", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer provider-token", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"email": "nouvelle@iahome.fr",
			"name":  "Nouvelle Utilisatrice",
		})
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func setupAuthHandler(t *testing.T) *AuthHandler {
	t.Helper()

	provider := fakeProvider(t)
	sqlDB := setupAuthTestDB(t)

	users := identityPersistence.NewSQLiteUserRepository(sqlDB)
	tokens := identityPersistence.NewSQLiteOAuthTokenRepository(sqlDB)

	service, err := signin.NewService(signin.Config{
		Provider:     "casdoor",
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		AuthURL:      provider.URL + "/authorize",
		TokenURL:     provider.URL + "/token",
		RedirectURL:  "http://localhost:8080/auth/callback",
		Scopes:       []string{"openid", "profile", "email"},
	}, users, tokens, signin.UserInfoFetcher(provider.URL+"/userinfo", nil), nil)
	require.NoError(t, err)

	return NewAuthHandler(service, nil)
}

func TestLoginRedirectsWithStateCookie(t *testing.T) {
	handler := setupAuthHandler(t)

	rec := httptest.NewRecorder()
	handler.Login(rec, httptest.NewRequest(http.MethodGet, "/auth/login", nil))

	require.Equal(t, http.StatusFound, rec.Code)

	var state string
	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == stateCookieName {
			state = cookie.Value
			require.True(t, cookie.HttpOnly)
		}
	}
	require.NotEmpty(t, state)

	location, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	require.Equal(t, "/authorize", location.Path)
	require.Equal(t, state, location.Query().Get("state"))
}

func TestCallbackRejectsStateMismatch(t *testing.T) {
	handler := setupAuthHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/auth/callback?code=abc&state=forged", nil)
	req.AddCookie(&http.Cookie{Name: stateCookieName, Value: "original"})
	rec := httptest.NewRecorder()
	handler.Callback(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCallbackProvisionsAccount(t *testing.T) {
	handler := setupAuthHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/auth/callback?code=auth-code&state=xyz", nil)
	req.AddCookie(&http.Cookie{Name: stateCookieName, Value: "xyz"})
	rec := httptest.NewRecorder()
	handler.Callback(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Success bool `json:"success"`
		User    struct {
			UserID       string `json:"userId"`
			Email        string `json:"email"`
			Name         string `json:"name"`
			TokenBalance int    `json:"tokenBalance"`
		} `json:"user"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.True(t, body.Success)
	require.Equal(t, "nouvelle@iahome.fr", body.User.Email)
	require.Equal(t, "Nouvelle Utilisatrice", body.User.Name)
	require.Equal(t, signin.SignupBonus, body.User.TokenBalance)
	require.NotEmpty(t, body.User.UserID)
}
