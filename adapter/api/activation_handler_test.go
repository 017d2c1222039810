package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/iahome/platform/internal/access"
	activationApp "github.com/iahome/platform/internal/activation/application"
	activationPersistence "github.com/iahome/platform/internal/activation/infrastructure/persistence"
	catalogDomain "github.com/iahome/platform/internal/catalog/domain"
	catalogPersistence "github.com/iahome/platform/internal/catalog/infrastructure/persistence"
	"github.com/iahome/platform/internal/shared/infrastructure/migrations"

	_ "modernc.org/sqlite"
)

type apiFixture struct {
	server *httptest.Server
	db     *sql.DB
	userID uuid.UUID
}

// setupAPI builds the full handler stack on an in-memory SQLite database
// with one user (20 tokens) and two modules: pdf (15 tokens) and demo (free).
func setupAPI(t *testing.T) *apiFixture {
	t.Helper()

	sqlDB, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, migrations.RunSQLiteMigrations(context.Background(), sqlDB))

	userID := uuid.New()
	now := time.Now().UTC().Format(time.RFC3339)
	_, err = sqlDB.Exec(
		`INSERT INTO users (id, email, name, role, token_balance, created_at, updated_at) VALUES (?, 'alice@example.com', 'Alice', 'user', 20, ?, ?)`,
		userID.String(), now, now,
	)
	require.NoError(t, err)

	moduleRepo := catalogPersistence.NewSQLiteModuleRepository(sqlDB)
	ctx := context.Background()

	pdf, err := catalogDomain.NewModule("pdf", "PDF Tools", 15)
	require.NoError(t, err)
	pdf.Category = "documents"
	pdf.Featured = true
	require.NoError(t, moduleRepo.Save(ctx, pdf))

	demo, err := catalogDomain.NewModule("demo", "Demo", 0)
	require.NoError(t, err)
	require.NoError(t, moduleRepo.Save(ctx, demo))

	activationRepo := activationPersistence.NewSQLiteActivationRepository(sqlDB)
	service := activationApp.NewService(moduleRepo, activationRepo, activationRepo, nil, nil, nil)

	issuer, err := access.NewIssuer([]byte("test-secret"), time.Minute, "iahome.fr", moduleRepo, service)
	require.NoError(t, err)

	server := NewServer(
		DefaultServerConfig(),
		NewActivationHandler(service, issuer, nil),
		NewCatalogHandler(moduleRepo, nil),
		nil,
		nil,
		nil,
	)

	srv := httptest.NewServer(server.Handler())
	t.Cleanup(srv.Close)

	return &apiFixture{server: srv, db: sqlDB, userID: userID}
}

func (f *apiFixture) post(t *testing.T, path string, body map[string]any) (*http.Response, map[string]any) {
	t.Helper()

	payload, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(f.server.URL+path, "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func (f *apiFixture) get(t *testing.T, path string) (*http.Response, map[string]any) {
	t.Helper()

	resp, err := http.Get(f.server.URL + path)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func TestActivateModule_Success(t *testing.T) {
	f := setupAPI(t)

	resp, body := f.post(t, "/api/v1/activate-module", map[string]any{
		"userId":     f.userID.String(),
		"userEmail":  "alice@example.com",
		"moduleId":   "pdf",
		"moduleCost": 15,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, true, body["success"])

	activation, ok := body["activation"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "pdf", activation["moduleId"])
	require.Equal(t, true, activation["active"])
	require.Equal(t, "tokens", activation["source"])

	var balance int
	require.NoError(t, f.db.QueryRow(`SELECT token_balance FROM users WHERE id = ?`, f.userID.String()).Scan(&balance))
	require.Equal(t, 5, balance)
}

func TestActivateModule_InsufficientBalance(t *testing.T) {
	f := setupAPI(t)

	// The first activation spends 15 of 20 tokens.
	resp, _ := f.post(t, "/api/v1/activate-module", map[string]any{
		"userId":   f.userID.String(),
		"moduleId": "pdf",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Add a second paid module the user can no longer afford.
	ctx := context.Background()
	moduleRepo := catalogPersistence.NewSQLiteModuleRepository(f.db)
	comfy, err := catalogDomain.NewModule("comfyui", "ComfyUI", 25)
	require.NoError(t, err)
	require.NoError(t, moduleRepo.Save(ctx, comfy))

	resp, body := f.post(t, "/api/v1/activate-module", map[string]any{
		"userId":   f.userID.String(),
		"moduleId": "comfyui",
	})
	require.Equal(t, http.StatusPaymentRequired, resp.StatusCode)
	require.Equal(t, false, body["success"])
	require.Equal(t, "Solde insuffisant", body["error"])
}

func TestActivateModule_AnonymousGetsLoginRedirect(t *testing.T) {
	f := setupAPI(t)

	resp, body := f.post(t, "/api/v1/activate-module", map[string]any{
		"moduleId": "pdf",
	})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, false, body["success"])
	require.Equal(t, "/login?redirect=/card/pdf", body["redirectTo"])
}

func TestActivateModule_UnknownModule(t *testing.T) {
	f := setupAPI(t)

	resp, body := f.post(t, "/api/v1/activate-module", map[string]any{
		"userId":   f.userID.String(),
		"moduleId": "missing",
	})
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.Equal(t, "Module introuvable", body["error"])
}

func TestCheckModuleActivation_LifecycleAndAliases(t *testing.T) {
	f := setupAPI(t)

	check := func(path string) bool {
		resp, body := f.post(t, path, map[string]any{
			"userId":   f.userID.String(),
			"moduleId": "pdf",
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		return body["isActivated"] == true
	}

	require.False(t, check("/api/v1/check-module-activation"))

	resp, _ := f.post(t, "/api/v1/activate-module", map[string]any{
		"userId":   f.userID.String(),
		"moduleId": "pdf",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.True(t, check("/api/v1/check-module-activation"))
	require.True(t, check("/api/check-module-activation"))
	require.True(t, check("/api/check-module-acces"))
	require.True(t, check("/api/check-module-accès"))
}

func TestCheckModuleActivation_AnonymousIsNotActivated(t *testing.T) {
	f := setupAPI(t)

	resp, body := f.post(t, "/api/v1/check-module-activation", map[string]any{
		"moduleId": "pdf",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, false, body["isActivated"])
}

func TestModuleAccessToken_RequiresActivation(t *testing.T) {
	f := setupAPI(t)

	resp, body := f.post(t, "/api/v1/module-access-token", map[string]any{
		"userId":    f.userID.String(),
		"userEmail": "alice@example.com",
		"moduleId":  "pdf",
	})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	require.Equal(t, "Module non activé", body["error"])
}

func TestModuleAccessToken_IssuesSignedURL(t *testing.T) {
	f := setupAPI(t)

	resp, _ := f.post(t, "/api/v1/activate-module", map[string]any{
		"userId":   f.userID.String(),
		"moduleId": "pdf",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := f.post(t, "/api/v1/module-access-token", map[string]any{
		"userId":    f.userID.String(),
		"userEmail": "alice@example.com",
		"moduleId":  "pdf",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, body["token"])
	require.Contains(t, body["url"], "https://pdf.iahome.fr")
	require.Contains(t, body["url"], "token=")
}

func TestListActivations(t *testing.T) {
	f := setupAPI(t)

	for _, slug := range []string{"pdf", "demo"} {
		resp, _ := f.post(t, "/api/v1/activate-module", map[string]any{
			"userId":   f.userID.String(),
			"moduleId": slug,
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	resp, body := f.get(t, "/api/v1/users/"+f.userID.String()+"/activations")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	activations, ok := body["activations"].([]any)
	require.True(t, ok)
	require.Len(t, activations, 2)
}

func TestListActivations_InvalidUserID(t *testing.T) {
	f := setupAPI(t)

	resp, _ := f.get(t, "/api/v1/users/not-a-uuid/activations")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCatalog_GetModule(t *testing.T) {
	f := setupAPI(t)

	resp, body := f.get(t, "/api/v1/modules/pdf")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "pdf", body["slug"])
	require.Equal(t, float64(15), body["price"])

	resp, _ = f.get(t, "/api/v1/modules/missing")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCatalog_FeaturedOnlyListsFeatured(t *testing.T) {
	f := setupAPI(t)

	resp, body := f.get(t, "/api/v1/modules/featured")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	modules, ok := body["modules"].([]any)
	require.True(t, ok)
	require.Len(t, modules, 1)
	first, ok := modules[0].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "pdf", first["slug"])
}
