package api

import (
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"
	"time"

	"github.com/iahome/platform/internal/identity/application/signin"
)

const stateCookieName = "iahome_oauth_state"

// AuthHandler handles the OAuth sign-in flow.
type AuthHandler struct {
	service *signin.Service
	logger  *slog.Logger
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(service *signin.Service, logger *slog.Logger) *AuthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthHandler{service: service, logger: logger}
}

// Login redirects to the provider's authorization page. The CSRF state is
// stored in a short-lived cookie and checked on callback.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	state, err := newState()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Erreur interne")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/auth",
		MaxAge:   int((10 * time.Minute).Seconds()),
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.service.AuthURL(state), http.StatusFound)
}

// Callback completes the sign-in and returns the account.
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(stateCookieName)
	if err != nil || cookie.Value == "" || cookie.Value != r.URL.Query().Get("state") {
		writeError(w, http.StatusBadRequest, "Etat OAuth invalide")
		return
	}

	// Clear the state cookie, it is single use.
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    "",
		Path:     "/auth",
		MaxAge:   -1,
		HttpOnly: true,
	})

	code := r.URL.Query().Get("code")
	if code == "" {
		writeError(w, http.StatusBadRequest, "Code d'autorisation manquant")
		return
	}

	user, err := h.service.CompleteSignIn(r.Context(), code)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "sign-in failed", "error", err)
		writeError(w, http.StatusBadGateway, "Echec de la connexion")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"user": map[string]any{
			"userId":       user.ID().String(),
			"email":        user.Email().String(),
			"name":         user.Name().String(),
			"tokenBalance": user.TokenBalance(),
		},
	})
}

func newState() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
