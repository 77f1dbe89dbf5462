package auth

import (
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/televita-health/televita/internal/platform/httpx"
	"github.com/televita-health/televita/internal/rbac"
	"github.com/televita-health/televita/internal/shared"
)

// Handler exposes login, logout and identity endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
	sessions  *shared.SessionManager
	csrf      *shared.CSRFManager
	mw        rbac.Middleware
	audit     *shared.AuditLogger
}

// NewHandler builds a Handler instance. audit may be nil.
func NewHandler(logger *slog.Logger, service *Service, sessions *shared.SessionManager, csrf *shared.CSRFManager, mw rbac.Middleware, audit *shared.AuditLogger) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		validator: validator.New(),
		sessions:  sessions,
		csrf:      csrf,
		mw:        mw,
		audit:     audit,
	}
}

// MountRoutes registers authentication routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/login", h.login)
	r.Group(func(r chi.Router) {
		r.Use(h.mw.RequireAuthenticated)
		r.Post("/logout", h.logout)
		r.Get("/me", h.me)
	})
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type userView struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

type loginResponse struct {
	User      userView `json:"user"`
	CSRFToken string   `json:"csrf_token"`
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "email e senha são obrigatórios")
		return
	}

	user, err := h.service.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, shared.ErrInvalidCredentials) {
			httpx.Fail(w, http.StatusUnauthorized, "Credenciais inválidas")
			return
		}
		h.logger.Error("authenticate", slog.Any("error", err))
		httpx.Fail(w, http.StatusInternalServerError, "internal error")
		return
	}

	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		h.logger.Error("login without session in context")
		httpx.Fail(w, http.StatusInternalServerError, "internal error")
		return
	}
	sess.SetUser(strconv.FormatInt(user.ID, 10))

	expiresAt := time.Now().Add(h.sessions.TTL())
	if err := h.service.RegisterSession(r.Context(), sess.ID, user.ID, expiresAt, clientIP(r), r.UserAgent()); err != nil {
		h.logger.Error("register session", slog.Int64("user_id", user.ID), slog.Any("error", err))
	}

	token, err := h.csrf.EnsureToken(r.Context(), sess)
	if err != nil {
		h.logger.Error("issue csrf token", slog.Any("error", err))
		httpx.Fail(w, http.StatusInternalServerError, "internal error")
		return
	}

	if h.audit != nil {
		if err := h.audit.Record(r.Context(), shared.AuditLog{
			ActorID:  user.ID,
			Action:   "auth.login",
			Entity:   "session",
			EntityID: sess.ID,
		}); err != nil {
			h.logger.Warn("audit record", slog.String("action", "auth.login"), slog.Any("error", err))
		}
	}

	httpx.OK(w, http.StatusOK, loginResponse{
		User: userView{
			ID:    user.ID,
			Email: user.Email,
			Name:  user.Name,
			Role:  string(user.Role),
		},
		CSRFToken: token,
	})
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		httpx.OK(w, http.StatusOK, nil)
		return
	}

	if err := h.service.RemoveSession(r.Context(), sess.ID); err != nil {
		h.logger.Error("remove session", slog.String("session_id", sess.ID), slog.Any("error", err))
	}

	if h.audit != nil {
		if actorID, ok := h.mw.CurrentUserID(r); ok {
			if err := h.audit.Record(r.Context(), shared.AuditLog{
				ActorID:  actorID,
				Action:   "auth.logout",
				Entity:   "session",
				EntityID: sess.ID,
			}); err != nil {
				h.logger.Warn("audit record", slog.String("action", "auth.logout"), slog.Any("error", err))
			}
		}
	}

	h.sessions.Destroy(sess)
	httpx.OK(w, http.StatusOK, nil)
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.mw.CurrentUserID(r)
	if !ok {
		httpx.Fail(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	user, err := h.service.CurrentUser(r.Context(), userID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			httpx.Fail(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		h.logger.Error("load current user", slog.Int64("user_id", userID), slog.Any("error", err))
		httpx.Fail(w, http.StatusInternalServerError, "internal error")
		return
	}

	httpx.OK(w, http.StatusOK, userView{
		ID:    user.ID,
		Email: user.Email,
		Name:  user.Name,
		Role:  string(user.Role),
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
