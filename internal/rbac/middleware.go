package rbac

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/televita-health/televita/internal/platform/httpx"
	"github.com/televita-health/televita/internal/shared"
)

// DecisionRecorder receives the outcome of each authorization check.
type DecisionRecorder interface {
	RecordAuthzDecision(module, action, outcome string)
}

// Middleware wires the authorization gate in front of HTTP handlers.
type Middleware struct {
	Service *Service
	Logger  *slog.Logger
	Metrics DecisionRecorder
}

// Require enforces one (module, action) pair. Requests without an
// authenticated identity are denied with 401 before the resolver is
// consulted; a resolver deny (including unknown users) is a terminal 403.
func (m Middleware) Require(module Module, action Action) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := m.currentUserID(r)
			if !ok {
				m.record(module, action, "unauthenticated")
				httpx.Fail(w, http.StatusUnauthorized, "Unauthorized")
				return
			}
			allowed, err := m.Service.Resolve(r.Context(), userID, module, action)
			if err != nil && !errors.Is(err, ErrNotFound) {
				if m.Logger != nil {
					m.Logger.Error("authz resolve", slog.Int64("user_id", userID), slog.String("module", string(module)), slog.Any("error", err))
				}
				m.record(module, action, "error")
				httpx.Fail(w, http.StatusInternalServerError, "internal error")
				return
			}
			if err != nil || !allowed {
				m.record(module, action, "deny")
				httpx.Fail(w, http.StatusForbidden, "Acesso negado")
				return
			}
			m.record(module, action, "allow")
			next.ServeHTTP(w, r)
		})
	}
}

// RequireRole restricts a route to users holding one of the given roles.
// Used by the administration endpoints, which are not themselves subject to
// per-module grants.
func (m Middleware) RequireRole(roles ...Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := m.currentUserID(r)
			if !ok {
				httpx.Fail(w, http.StatusUnauthorized, "Unauthorized")
				return
			}
			role, err := m.Service.RoleOf(r.Context(), userID)
			if err != nil {
				if errors.Is(err, ErrNotFound) {
					httpx.Fail(w, http.StatusForbidden, "Acesso negado")
					return
				}
				if m.Logger != nil {
					m.Logger.Error("authz role lookup", slog.Int64("user_id", userID), slog.Any("error", err))
				}
				httpx.Fail(w, http.StatusInternalServerError, "internal error")
				return
			}
			for _, allowed := range roles {
				if role == allowed {
					next.ServeHTTP(w, r)
					return
				}
			}
			httpx.Fail(w, http.StatusForbidden, "Acesso negado")
		})
	}
}

// RequireAuthenticated only checks that a session identity exists.
func (m Middleware) RequireAuthenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := m.currentUserID(r); !ok {
			httpx.Fail(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// CurrentUserID extracts the acting user from the request session.
func (m Middleware) CurrentUserID(r *http.Request) (int64, bool) {
	return m.currentUserID(r)
}

func (m Middleware) currentUserID(r *http.Request) (int64, bool) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		return 0, false
	}
	raw := strings.TrimSpace(sess.User())
	if raw == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		if m.Logger != nil {
			m.Logger.Error("authz parse user id", slog.String("value", raw))
		}
		return 0, false
	}
	return id, true
}

func (m Middleware) record(module Module, action Action, outcome string) {
	if m.Metrics != nil {
		m.Metrics.RecordAuthzDecision(string(module), string(action), outcome)
	}
}
