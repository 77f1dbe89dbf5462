package rbac_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/televita-health/televita/internal/rbac"
	"github.com/televita-health/televita/internal/shared"
	_ "github.com/televita-health/televita/testing"
)

func newSessionRequest(t *testing.T, userID string) *http.Request {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	manager := shared.NewSessionManager(client, "test_session", time.Hour, false)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	sess, err := manager.Load(context.Background(), req)
	require.NoError(t, err)
	if userID != "" {
		sess.SetUser(userID)
	}
	return req.WithContext(shared.ContextWithSession(req.Context(), sess))
}

func decodeEnvelope(t *testing.T, res *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &body))
	return body
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequireUnauthenticated(t *testing.T) {
	mw := rbac.Middleware{Service: rbac.NewService(newFakeRepo())}
	handler := mw.Require(rbac.ModuleSessions, rbac.ActionRead)(okHandler())

	req := newSessionRequest(t, "")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	assert.Equal(t, http.StatusUnauthorized, res.Code)
	body := decodeEnvelope(t, res)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "Unauthorized", body["error"])
}

func TestRequireDenied(t *testing.T) {
	repo := newFakeRepo()
	repo.roles[10] = rbac.RolePatient
	mw := rbac.Middleware{Service: rbac.NewService(repo)}
	handler := mw.Require(rbac.ModuleFinance, rbac.ActionRead)(okHandler())

	req := newSessionRequest(t, "10")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	assert.Equal(t, http.StatusForbidden, res.Code)
	body := decodeEnvelope(t, res)
	assert.Equal(t, "Acesso negado", body["error"])
}

func TestRequireUnknownUserDenied(t *testing.T) {
	mw := rbac.Middleware{Service: rbac.NewService(newFakeRepo())}
	handler := mw.Require(rbac.ModuleSessions, rbac.ActionRead)(okHandler())

	req := newSessionRequest(t, "404")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	assert.Equal(t, http.StatusForbidden, res.Code)
}

func TestRequireAllowed(t *testing.T) {
	repo := newFakeRepo()
	repo.roles[10] = rbac.RolePatient
	repo.rolePerms = append(repo.rolePerms, rbac.RolePermission{ID: 1, Role: rbac.RolePatient, Module: rbac.ModuleSessions, Action: rbac.ActionRead})
	mw := rbac.Middleware{Service: rbac.NewService(repo)}
	handler := mw.Require(rbac.ModuleSessions, rbac.ActionRead)(okHandler())

	req := newSessionRequest(t, "10")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	assert.Equal(t, http.StatusOK, res.Code)
}

func TestRequireOverrideDenies(t *testing.T) {
	repo := newFakeRepo()
	repo.roles[10] = rbac.RolePatient
	repo.rolePerms = append(repo.rolePerms, rbac.RolePermission{ID: 1, Role: rbac.RolePatient, Module: rbac.ModuleSessions, Action: rbac.ActionRead})
	repo.userPerms = append(repo.userPerms, rbac.UserPermission{UserID: 10, Module: rbac.ModuleSessions, Action: rbac.ActionRead, Allowed: false})
	mw := rbac.Middleware{Service: rbac.NewService(repo)}
	handler := mw.Require(rbac.ModuleSessions, rbac.ActionRead)(okHandler())

	req := newSessionRequest(t, "10")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	assert.Equal(t, http.StatusForbidden, res.Code)
}

func TestRequireRole(t *testing.T) {
	repo := newFakeRepo()
	repo.roles[1] = rbac.RoleAdmin
	repo.roles[2] = rbac.RolePatient
	mw := rbac.Middleware{Service: rbac.NewService(repo)}
	handler := mw.RequireRole(rbac.RoleAdmin, rbac.RoleManagement)(okHandler())

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, newSessionRequest(t, "1"))
	assert.Equal(t, http.StatusOK, res.Code)

	res = httptest.NewRecorder()
	handler.ServeHTTP(res, newSessionRequest(t, "2"))
	assert.Equal(t, http.StatusForbidden, res.Code)

	res = httptest.NewRecorder()
	handler.ServeHTTP(res, newSessionRequest(t, ""))
	assert.Equal(t, http.StatusUnauthorized, res.Code)
}

func TestRequireAuthenticated(t *testing.T) {
	mw := rbac.Middleware{Service: rbac.NewService(newFakeRepo())}
	handler := mw.RequireAuthenticated(okHandler())

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, newSessionRequest(t, "7"))
	assert.Equal(t, http.StatusOK, res.Code)

	res = httptest.NewRecorder()
	handler.ServeHTTP(res, newSessionRequest(t, ""))
	assert.Equal(t, http.StatusUnauthorized, res.Code)
}

type recordedDecision struct {
	module, action, outcome string
}

type fakeRecorder struct {
	decisions []recordedDecision
}

func (f *fakeRecorder) RecordAuthzDecision(module, action, outcome string) {
	f.decisions = append(f.decisions, recordedDecision{module, action, outcome})
}

func TestRequireRecordsDecisions(t *testing.T) {
	repo := newFakeRepo()
	repo.roles[10] = rbac.RolePatient
	recorder := &fakeRecorder{}
	mw := rbac.Middleware{Service: rbac.NewService(repo), Metrics: recorder}
	handler := mw.Require(rbac.ModuleFinance, rbac.ActionRead)(okHandler())

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, newSessionRequest(t, "10"))

	require.Len(t, recorder.decisions, 1)
	assert.Equal(t, recordedDecision{"finance", "read", "deny"}, recorder.decisions[0])
}
