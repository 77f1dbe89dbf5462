package sidebar

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/televita-health/televita/internal/platform/httpx"
	"github.com/televita-health/televita/internal/rbac"
)

// Handler serves the navigation endpoints.
type Handler struct {
	logger  *slog.Logger
	service *rbac.Service
	mw      rbac.Middleware
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *rbac.Service, mw rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, mw: mw}
}

// MountRoutes registers sidebar routes. Both endpoints require a session;
// neither requires a specific permission.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.mw.RequireAuthenticated)
		r.Get("/all", h.all)
		r.Get("/allowed", h.allowed)
	})
}

func (h *Handler) all(w http.ResponseWriter, r *http.Request) {
	httpx.OK(w, http.StatusOK, Entries())
}

func (h *Handler) allowed(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.mw.CurrentUserID(r)
	if !ok {
		httpx.Fail(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	grants, err := h.service.GrantsFor(r.Context(), userID)
	if err != nil {
		if errors.Is(err, rbac.ErrNotFound) {
			httpx.Fail(w, http.StatusForbidden, "Acesso negado")
			return
		}
		if h.logger != nil {
			h.logger.Error("sidebar grants", slog.Int64("user_id", userID), slog.Any("error", err))
		}
		httpx.Fail(w, http.StatusInternalServerError, "internal error")
		return
	}
	httpx.OK(w, http.StatusOK, Filter(Entries(), grants))
}
