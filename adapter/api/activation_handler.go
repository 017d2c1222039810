package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/iahome/platform/internal/access"
	activationApp "github.com/iahome/platform/internal/activation/application"
	activationDomain "github.com/iahome/platform/internal/activation/domain"
	catalogDomain "github.com/iahome/platform/internal/catalog/domain"
	identityDomain "github.com/iahome/platform/internal/identity/domain"
)

// ActivationHandler handles activation and access token requests.
type ActivationHandler struct {
	service *activationApp.Service
	issuer  *access.Issuer
	logger  *slog.Logger
}

// NewActivationHandler creates a new activation handler.
func NewActivationHandler(service *activationApp.Service, issuer *access.Issuer, logger *slog.Logger) *ActivationHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ActivationHandler{service: service, issuer: issuer, logger: logger}
}

type activateRequest struct {
	UserID     string `json:"userId"`
	UserEmail  string `json:"userEmail"`
	ModuleID   string `json:"moduleId"`
	ModuleCost int    `json:"moduleCost"`
}

type activationResponse struct {
	UserID      string     `json:"userId"`
	ModuleID    string     `json:"moduleId"`
	Active      bool       `json:"active"`
	Source      string     `json:"source"`
	AccessLevel string     `json:"accessLevel"`
	CreatedAt   time.Time  `json:"createdAt"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
}

func toActivationResponse(r *activationDomain.Record) activationResponse {
	return activationResponse{
		UserID:      r.UserID.String(),
		ModuleID:    r.ModuleID,
		Active:      r.Active,
		Source:      r.Source,
		AccessLevel: r.AccessLevel,
		CreatedAt:   r.CreatedAt,
		ExpiresAt:   r.ExpiresAt,
	}
}

// Activate handles POST /api/v1/activate-module.
func (h *ActivationHandler) Activate(w http.ResponseWriter, r *http.Request) {
	var req activateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Requête invalide")
		return
	}
	userID, ok := requireUser(w, req.UserID, req.ModuleID)
	if !ok {
		return
	}

	record, err := h.service.Activate(r.Context(), activationApp.ActivateCommand{
		UserID:       userID,
		UserEmail:    req.UserEmail,
		ModuleID:     req.ModuleID,
		DeclaredCost: req.ModuleCost,
	})
	if err != nil {
		h.writeActivateError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"activation": toActivationResponse(record),
	})
}

func (h *ActivationHandler) writeActivateError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, identityDomain.ErrInsufficientTokens):
		writeError(w, http.StatusPaymentRequired, "Solde insuffisant")
	case errors.Is(err, catalogDomain.ErrModuleNotFound):
		writeError(w, http.StatusNotFound, "Module introuvable")
	case errors.Is(err, identityDomain.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "Utilisateur introuvable")
	default:
		h.logger.ErrorContext(r.Context(), "activation failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Erreur lors de l'activation du module")
	}
}

type checkRequest struct {
	UserID   string `json:"userId"`
	ModuleID string `json:"moduleId"`
}

// CheckActivation handles POST /api/v1/check-module-activation and the two
// legacy paths. Anonymous or malformed user IDs report not activated.
func (h *ActivationHandler) CheckActivation(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Requête invalide")
		return
	}
	if req.ModuleID == "" {
		writeError(w, http.StatusBadRequest, "Module manquant")
		return
	}

	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		userID = uuid.Nil
	}
	active, err := h.service.Check(r.Context(), userID, req.ModuleID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "activation check failed", "error", err, "module", req.ModuleID)
		writeError(w, http.StatusInternalServerError, "Erreur lors de la vérification")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"isActivated": active})
}

type accessTokenRequest struct {
	UserID    string `json:"userId"`
	UserEmail string `json:"userEmail"`
	ModuleID  string `json:"moduleId"`
}

// AccessToken handles POST /api/v1/module-access-token. Tokens are issued per
// request and never cached; each open of a module goes through here.
func (h *ActivationHandler) AccessToken(w http.ResponseWriter, r *http.Request) {
	var req accessTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Requête invalide")
		return
	}
	userID, ok := requireUser(w, req.UserID, req.ModuleID)
	if !ok {
		return
	}

	grant, err := h.issuer.Issue(r.Context(), userID, req.UserEmail, req.ModuleID)
	if err != nil {
		switch {
		case errors.Is(err, activationDomain.ErrNotActivated):
			writeError(w, http.StatusForbidden, "Module non activé")
		case errors.Is(err, catalogDomain.ErrModuleNotFound):
			writeError(w, http.StatusNotFound, "Module introuvable")
		default:
			h.logger.ErrorContext(r.Context(), "token issuance failed", "error", err, "module", req.ModuleID)
			writeError(w, http.StatusInternalServerError, "Erreur lors de la génération du jeton")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"token": grant.Token,
		"url":   grant.URL,
	})
}

// ListActivations handles GET /api/v1/users/{userID}/activations.
func (h *ActivationHandler) ListActivations(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(r.PathValue("userID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Identifiant utilisateur invalide")
		return
	}

	records, err := h.service.List(r.Context(), userID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "listing activations failed", "error", err, "user_id", userID)
		writeError(w, http.StatusInternalServerError, "Erreur lors de la récupération des activations")
		return
	}

	out := make([]activationResponse, 0, len(records))
	for i := range records {
		out = append(out, toActivationResponse(&records[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"activations": out})
}

// requireUser parses the user ID and rejects anonymous requests with a login
// redirect hint.
func requireUser(w http.ResponseWriter, rawID, moduleID string) (uuid.UUID, bool) {
	if rawID == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]any{
			"success":    false,
			"error":      "Authentification requise",
			"redirectTo": "/login?redirect=/card/" + moduleID,
		})
		return uuid.Nil, false
	}
	userID, err := uuid.Parse(rawID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Identifiant utilisateur invalide")
		return uuid.Nil, false
	}
	return userID, true
}
