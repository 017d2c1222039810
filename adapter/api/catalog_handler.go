package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/iahome/platform/internal/catalog/domain"
)

// CatalogHandler serves the module catalog.
type CatalogHandler struct {
	modules domain.ModuleRepository
	logger  *slog.Logger
}

// NewCatalogHandler creates a new catalog handler.
func NewCatalogHandler(modules domain.ModuleRepository, logger *slog.Logger) *CatalogHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CatalogHandler{modules: modules, logger: logger}
}

type moduleResponse struct {
	ID          string `json:"id"`
	Slug        string `json:"slug"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Price       int    `json:"price"`
	Featured    bool   `json:"featured"`
}

func toModuleResponse(m *domain.Module) moduleResponse {
	return moduleResponse{
		ID:          m.ID.String(),
		Slug:        m.Slug,
		Title:       m.Title,
		Description: m.Description,
		Category:    m.Category,
		Price:       m.Price,
		Featured:    m.Featured,
	}
}

// ListModules handles GET /api/v1/modules.
func (h *CatalogHandler) ListModules(w http.ResponseWriter, r *http.Request) {
	filter := domain.ListFilter{
		Category:   r.URL.Query().Get("category"),
		ActiveOnly: true,
		Limit:      100,
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			filter.Limit = n
		}
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n >= 0 {
			filter.Offset = n
		}
	}

	h.list(w, r, filter)
}

// GetFeatured handles GET /api/v1/modules/featured.
func (h *CatalogHandler) GetFeatured(w http.ResponseWriter, r *http.Request) {
	featured := true
	h.list(w, r, domain.ListFilter{
		Featured:   &featured,
		ActiveOnly: true,
		Limit:      50,
	})
}

func (h *CatalogHandler) list(w http.ResponseWriter, r *http.Request, filter domain.ListFilter) {
	modules, err := h.modules.List(r.Context(), filter)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "listing modules failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Erreur lors de la récupération des modules")
		return
	}

	out := make([]moduleResponse, 0, len(modules))
	for _, m := range modules {
		out = append(out, toModuleResponse(m))
	}
	writeJSON(w, http.StatusOK, map[string]any{"modules": out})
}

// GetModule handles GET /api/v1/modules/{slug}.
func (h *CatalogHandler) GetModule(w http.ResponseWriter, r *http.Request) {
	module, err := h.modules.FindBySlug(r.Context(), r.PathValue("slug"))
	if err != nil {
		if errors.Is(err, domain.ErrModuleNotFound) {
			writeError(w, http.StatusNotFound, "Module introuvable")
			return
		}
		h.logger.ErrorContext(r.Context(), "fetching module failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Erreur lors de la récupération du module")
		return
	}
	writeJSON(w, http.StatusOK, toModuleResponse(module))
}
