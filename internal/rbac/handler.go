package rbac

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/televita-health/televita/internal/platform/httpx"
	"github.com/televita-health/televita/internal/shared"
)

// ChangeNotifier enqueues a notification after a user's grants change.
type ChangeNotifier interface {
	PermissionChanged(ctx context.Context, userID int64, module Module, action Action, allowed bool) error
}

// Handler exposes the permission administration endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
	mw        Middleware
	audit     *shared.AuditLogger
	notifier  ChangeNotifier
}

// NewHandler builds a Handler instance. audit and notifier may be nil.
func NewHandler(logger *slog.Logger, service *Service, mw Middleware, audit *shared.AuditLogger, notifier ChangeNotifier) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		validator: validator.New(),
		mw:        mw,
		audit:     audit,
		notifier:  notifier,
	}
}

// MountRoutes registers permission routes. Every endpoint is restricted to
// admin and management roles.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.mw.RequireRole(RoleAdmin, RoleManagement))

		r.Get("/", h.listRolePermissions)
		r.Post("/", h.createRolePermission)
		r.Put("/{id}", h.updateRolePermission)
		r.Delete("/{id}", h.deleteRolePermission)

		r.Get("/catalog", h.catalog)

		r.Get("/role/{role}", h.rolePermissions)
		r.Post("/role/bulk", h.bulkCreateRolePermissions)

		r.Get("/user/{userID}", h.userPermissions)
		r.Get("/user/{userID}/all", h.userView)
		r.Post("/user", h.upsertUserPermission)
		r.Post("/user/bulk", h.replaceUserPermissions)
		r.Delete("/user/{userID}/{module}/{action}", h.deleteUserPermission)
	})
}

func (h *Handler) listRolePermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.service.ListRolePermissions(r.Context())
	if err != nil {
		h.respondError(w, r, "list role permissions", err)
		return
	}
	httpx.OK(w, http.StatusOK, perms)
}

type rolePermissionRequest struct {
	Role   string `json:"role" validate:"required"`
	Module string `json:"module" validate:"required"`
	Action string `json:"action" validate:"required"`
}

func (h *Handler) createRolePermission(w http.ResponseWriter, r *http.Request) {
	var req rolePermissionRequest
	if !h.decode(w, r, &req) {
		return
	}
	role, module, action, ok := h.parseTriple(w, req.Role, req.Module, req.Action)
	if !ok {
		return
	}
	perm, err := h.service.CreateRolePermission(r.Context(), role, module, action)
	if err != nil {
		h.respondError(w, r, "create role permission", err)
		return
	}
	h.recordAudit(r, "permission.role.create", "role_permission", strconv.FormatInt(perm.ID, 10), map[string]any{
		"role": role, "module": module, "action": action,
	})
	httpx.OK(w, http.StatusCreated, perm)
}

func (h *Handler) updateRolePermission(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Fail(w, http.StatusBadRequest, "invalid permission id")
		return
	}
	var req rolePermissionRequest
	if !h.decode(w, r, &req) {
		return
	}
	role, module, action, ok := h.parseTriple(w, req.Role, req.Module, req.Action)
	if !ok {
		return
	}
	perm, err := h.service.UpdateRolePermission(r.Context(), id, role, module, action)
	if err != nil {
		h.respondError(w, r, "update role permission", err)
		return
	}
	h.recordAudit(r, "permission.role.update", "role_permission", strconv.FormatInt(id, 10), map[string]any{
		"role": role, "module": module, "action": action,
	})
	httpx.OK(w, http.StatusOK, perm)
}

func (h *Handler) deleteRolePermission(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Fail(w, http.StatusBadRequest, "invalid permission id")
		return
	}
	if err := h.service.DeleteRolePermission(r.Context(), id); err != nil {
		h.respondError(w, r, "delete role permission", err)
		return
	}
	h.recordAudit(r, "permission.role.delete", "role_permission", strconv.FormatInt(id, 10), nil)
	httpx.OK(w, http.StatusOK, nil)
}

// catalog returns the fixed role/module/action enumerations for admin UIs.
func (h *Handler) catalog(w http.ResponseWriter, r *http.Request) {
	httpx.OK(w, http.StatusOK, map[string]any{
		"roles":   Roles(),
		"modules": Modules(),
		"actions": Actions(),
	})
}

func (h *Handler) rolePermissions(w http.ResponseWriter, r *http.Request) {
	role, err := ParseRole(chi.URLParam(r, "role"))
	if err != nil {
		httpx.Fail(w, http.StatusBadRequest, err.Error())
		return
	}
	perms, err := h.service.RolePermissions(r.Context(), role)
	if err != nil {
		h.respondError(w, r, "list permissions by role", err)
		return
	}
	httpx.OK(w, http.StatusOK, perms)
}

type bulkRolePermissionsRequest struct {
	Role        string `json:"role" validate:"required"`
	Permissions []struct {
		Module string `json:"module" validate:"required"`
		Action string `json:"action" validate:"required"`
	} `json:"permissions" validate:"required,min=1,dive"`
}

func (h *Handler) bulkCreateRolePermissions(w http.ResponseWriter, r *http.Request) {
	var req bulkRolePermissionsRequest
	if !h.decode(w, r, &req) {
		return
	}
	role, err := ParseRole(req.Role)
	if err != nil {
		httpx.Fail(w, http.StatusBadRequest, err.Error())
		return
	}
	entries := make([]ModuleAction, 0, len(req.Permissions))
	for _, p := range req.Permissions {
		module, err := ParseModule(p.Module)
		if err != nil {
			httpx.Fail(w, http.StatusBadRequest, err.Error())
			return
		}
		action, err := ParseAction(p.Action)
		if err != nil {
			httpx.Fail(w, http.StatusBadRequest, err.Error())
			return
		}
		entries = append(entries, ModuleAction{Module: module, Action: action})
	}
	inserted, err := h.service.BulkCreateRolePermissions(r.Context(), role, entries)
	if err != nil {
		h.respondError(w, r, "bulk create role permissions", err)
		return
	}
	h.recordAudit(r, "permission.role.bulk_create", "role", string(role), map[string]any{
		"requested": len(entries), "inserted": inserted,
	})
	httpx.OK(w, http.StatusCreated, map[string]int{"inserted": inserted})
}

func (h *Handler) userPermissions(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.parseUserID(w, r)
	if !ok {
		return
	}
	perms, err := h.service.UserPermissions(r.Context(), userID)
	if err != nil {
		h.respondError(w, r, "list user permissions", err)
		return
	}
	httpx.OK(w, http.StatusOK, perms)
}

func (h *Handler) userView(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.parseUserID(w, r)
	if !ok {
		return
	}
	view, err := h.service.ViewUser(r.Context(), userID)
	if err != nil {
		h.respondError(w, r, "combined user view", err)
		return
	}
	httpx.OK(w, http.StatusOK, view)
}

type upsertUserPermissionRequest struct {
	UserID  int64  `json:"user_id" validate:"required,gt=0"`
	Module  string `json:"module" validate:"required"`
	Action  string `json:"action" validate:"required"`
	Allowed *bool  `json:"allowed" validate:"required"`
}

func (h *Handler) upsertUserPermission(w http.ResponseWriter, r *http.Request) {
	var req upsertUserPermissionRequest
	if !h.decode(w, r, &req) {
		return
	}
	module, err := ParseModule(req.Module)
	if err != nil {
		httpx.Fail(w, http.StatusBadRequest, err.Error())
		return
	}
	action, err := ParseAction(req.Action)
	if err != nil {
		httpx.Fail(w, http.StatusBadRequest, err.Error())
		return
	}
	perm, err := h.service.UpsertUserPermission(r.Context(), req.UserID, module, action, *req.Allowed)
	if err != nil {
		h.respondError(w, r, "upsert user permission", err)
		return
	}
	h.recordAudit(r, "permission.user.upsert", "user_permission", strconv.FormatInt(req.UserID, 10), map[string]any{
		"module": module, "action": action, "allowed": *req.Allowed,
	})
	h.notify(r.Context(), req.UserID, module, action, *req.Allowed)
	httpx.OK(w, http.StatusOK, perm)
}

type replaceUserPermissionsRequest struct {
	UserID      int64 `json:"user_id" validate:"required,gt=0"`
	Permissions []struct {
		Module  string `json:"module" validate:"required"`
		Action  string `json:"action" validate:"required"`
		Allowed bool   `json:"allowed"`
	} `json:"permissions" validate:"dive"`
}

func (h *Handler) replaceUserPermissions(w http.ResponseWriter, r *http.Request) {
	var req replaceUserPermissionsRequest
	if !h.decode(w, r, &req) {
		return
	}
	entries := make([]Override, 0, len(req.Permissions))
	for _, p := range req.Permissions {
		module, err := ParseModule(p.Module)
		if err != nil {
			httpx.Fail(w, http.StatusBadRequest, err.Error())
			return
		}
		action, err := ParseAction(p.Action)
		if err != nil {
			httpx.Fail(w, http.StatusBadRequest, err.Error())
			return
		}
		entries = append(entries, Override{Module: module, Action: action, Allowed: p.Allowed})
	}
	if err := h.service.ReplaceUserPermissions(r.Context(), req.UserID, entries); err != nil {
		h.respondError(w, r, "replace user permissions", err)
		return
	}
	h.recordAudit(r, "permission.user.replace", "user_permission", strconv.FormatInt(req.UserID, 10), map[string]any{
		"count": len(entries),
	})
	httpx.OK(w, http.StatusOK, map[string]int{"count": len(entries)})
}

func (h *Handler) deleteUserPermission(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.parseUserID(w, r)
	if !ok {
		return
	}
	module, err := ParseModule(chi.URLParam(r, "module"))
	if err != nil {
		httpx.Fail(w, http.StatusBadRequest, err.Error())
		return
	}
	action, err := ParseAction(chi.URLParam(r, "action"))
	if err != nil {
		httpx.Fail(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.service.DeleteUserPermission(r.Context(), userID, module, action); err != nil {
		h.respondError(w, r, "delete user permission", err)
		return
	}
	h.recordAudit(r, "permission.user.delete", "user_permission", strconv.FormatInt(userID, 10), map[string]any{
		"module": module, "action": action,
	})
	httpx.OK(w, http.StatusOK, nil)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	if err := h.validator.Struct(target); err != nil {
		httpx.Fail(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

func (h *Handler) parseTriple(w http.ResponseWriter, rawRole, rawModule, rawAction string) (Role, Module, Action, bool) {
	role, err := ParseRole(rawRole)
	if err != nil {
		httpx.Fail(w, http.StatusBadRequest, err.Error())
		return "", "", "", false
	}
	module, err := ParseModule(rawModule)
	if err != nil {
		httpx.Fail(w, http.StatusBadRequest, err.Error())
		return "", "", "", false
	}
	action, err := ParseAction(rawAction)
	if err != nil {
		httpx.Fail(w, http.StatusBadRequest, err.Error())
		return "", "", "", false
	}
	return role, module, action, true
}

func (h *Handler) parseUserID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Fail(w, http.StatusBadRequest, "invalid user id")
		return 0, false
	}
	return id, true
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case err == nil:
		return
	case errors.Is(err, ErrNotFound):
		httpx.Fail(w, http.StatusNotFound, "Registro não encontrado")
	case errors.Is(err, ErrDuplicate):
		httpx.Fail(w, http.StatusConflict, "Permissão já cadastrada")
	case errors.Is(err, ErrInvalidInput):
		httpx.Fail(w, http.StatusBadRequest, err.Error())
	default:
		if h.logger != nil {
			h.logger.Error(op, slog.Any("error", err))
		}
		httpx.Fail(w, http.StatusInternalServerError, "internal error")
	}
}

func (h *Handler) recordAudit(r *http.Request, action, entity, entityID string, meta map[string]any) {
	if h.audit == nil {
		return
	}
	actorID, _ := h.mw.CurrentUserID(r)
	if err := h.audit.Record(r.Context(), shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   entity,
		EntityID: entityID,
		Meta:     meta,
	}); err != nil && h.logger != nil {
		h.logger.Warn("audit record", slog.String("action", action), slog.Any("error", err))
	}
}

func (h *Handler) notify(ctx context.Context, userID int64, module Module, action Action, allowed bool) {
	if h.notifier == nil {
		return
	}
	if err := h.notifier.PermissionChanged(ctx, userID, module, action, allowed); err != nil && h.logger != nil {
		h.logger.Warn("enqueue permission notification", slog.Int64("user_id", userID), slog.Any("error", err))
	}
}
