package rbac_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/televita-health/televita/internal/rbac"
	"github.com/televita-health/televita/internal/shared"
)

type capturedNotification struct {
	userID  int64
	module  rbac.Module
	action  rbac.Action
	allowed bool
}

type fakeNotifier struct {
	sent []capturedNotification
}

func (f *fakeNotifier) PermissionChanged(ctx context.Context, userID int64, module rbac.Module, action rbac.Action, allowed bool) error {
	f.sent = append(f.sent, capturedNotification{userID, module, action, allowed})
	return nil
}

func newPermissionsRouter(t *testing.T, repo *fakeRepo, actor string) (http.Handler, *fakeNotifier) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	manager := shared.NewSessionManager(client, "test_session", time.Hour, false)

	service := rbac.NewService(repo)
	mw := rbac.Middleware{Service: service}
	notifier := &fakeNotifier{}
	handler := rbac.NewHandler(nil, service, mw, nil, notifier)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			sess, err := manager.Load(req.Context(), req)
			require.NoError(t, err)
			if actor != "" {
				sess.SetUser(actor)
			}
			next.ServeHTTP(w, req.WithContext(shared.ContextWithSession(req.Context(), sess)))
		})
	})
	r.Route("/permissions", handler.MountRoutes)
	return r, notifier
}

func adminRepo() *fakeRepo {
	repo := newFakeRepo()
	repo.roles[1] = rbac.RoleAdmin
	return repo
}

func TestHandlerListEnvelope(t *testing.T) {
	repo := adminRepo()
	repo.rolePerms = append(repo.rolePerms, rbac.RolePermission{ID: 1, Role: rbac.RolePatient, Module: rbac.ModuleSessions, Action: rbac.ActionRead})
	router, _ := newPermissionsRouter(t, repo, "1")

	req := httptest.NewRequest(http.MethodGet, "/permissions/", nil)
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)

	require.Equal(t, http.StatusOK, res.Code)
	body := decodeEnvelope(t, res)
	assert.Equal(t, true, body["success"])
	data, ok := body["data"].([]any)
	require.True(t, ok)
	assert.Len(t, data, 1)
}

func TestHandlerForbiddenForNonAdmin(t *testing.T) {
	repo := adminRepo()
	repo.roles[2] = rbac.RolePsychologist
	router, _ := newPermissionsRouter(t, repo, "2")

	req := httptest.NewRequest(http.MethodGet, "/permissions/", nil)
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)

	assert.Equal(t, http.StatusForbidden, res.Code)
	body := decodeEnvelope(t, res)
	assert.Equal(t, "Acesso negado", body["error"])
}

func TestHandlerCreateRolePermission(t *testing.T) {
	router, _ := newPermissionsRouter(t, adminRepo(), "1")

	payload := `{"role":"patient","module":"sessions","action":"read"}`
	req := httptest.NewRequest(http.MethodPost, "/permissions/", strings.NewReader(payload))
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)

	require.Equal(t, http.StatusCreated, res.Code)

	// A second identical create conflicts.
	req = httptest.NewRequest(http.MethodPost, "/permissions/", strings.NewReader(payload))
	res = httptest.NewRecorder()
	router.ServeHTTP(res, req)
	assert.Equal(t, http.StatusConflict, res.Code)
}

func TestHandlerCreateValidation(t *testing.T) {
	router, _ := newPermissionsRouter(t, adminRepo(), "1")

	for _, payload := range []string{
		`{"module":"sessions","action":"read"}`,
		`{"role":"patient","module":"videochat","action":"read"}`,
		`{"role":"patient","module":"sessions","action":"explode"}`,
		`not json`,
	} {
		req := httptest.NewRequest(http.MethodPost, "/permissions/", strings.NewReader(payload))
		res := httptest.NewRecorder()
		router.ServeHTTP(res, req)
		assert.Equal(t, http.StatusBadRequest, res.Code, "payload %s", payload)
	}
}

func TestHandlerRejectsUnknownTriple(t *testing.T) {
	repo := adminRepo()
	repo.rolePerms = append(repo.rolePerms, rbac.RolePermission{ID: 7, Role: rbac.RolePatient, Module: rbac.ModuleSessions, Action: rbac.ActionRead})
	router, _ := newPermissionsRouter(t, repo, "1")

	for _, tc := range []struct {
		method, path, payload string
	}{
		{http.MethodPost, "/permissions/", `{"role":"wizard","module":"sessions","action":"read"}`},
		{http.MethodPut, "/permissions/7", `{"role":"wizard","module":"sessions","action":"read"}`},
		{http.MethodPut, "/permissions/7", `{"role":"patient","module":"videochat","action":"read"}`},
		{http.MethodPut, "/permissions/7", `{"role":"patient","module":"sessions","action":"explode"}`},
	} {
		req := httptest.NewRequest(tc.method, tc.path, strings.NewReader(tc.payload))
		res := httptest.NewRecorder()
		router.ServeHTTP(res, req)
		assert.Equal(t, http.StatusBadRequest, res.Code, "%s %s %s", tc.method, tc.path, tc.payload)
	}
}

func TestHandlerDeleteNotFound(t *testing.T) {
	router, _ := newPermissionsRouter(t, adminRepo(), "1")

	req := httptest.NewRequest(http.MethodDelete, "/permissions/42", nil)
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)

	assert.Equal(t, http.StatusNotFound, res.Code)
}

func TestHandlerBulkCreate(t *testing.T) {
	repo := adminRepo()
	repo.rolePerms = append(repo.rolePerms, rbac.RolePermission{ID: 99, Role: rbac.RoleFinance, Module: rbac.ModuleReports, Action: rbac.ActionRead})
	router, _ := newPermissionsRouter(t, repo, "1")

	payload := `{"role":"finance","permissions":[{"module":"reports","action":"read"},{"module":"finance","action":"manage"}]}`
	req := httptest.NewRequest(http.MethodPost, "/permissions/role/bulk", strings.NewReader(payload))
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)

	require.Equal(t, http.StatusCreated, res.Code)
	body := decodeEnvelope(t, res)
	data := body["data"].(map[string]any)
	// The pre-existing triple is skipped.
	assert.Equal(t, float64(1), data["inserted"])
}

func TestHandlerUpsertUserPermissionNotifies(t *testing.T) {
	repo := adminRepo()
	repo.roles[10] = rbac.RolePatient
	router, notifier := newPermissionsRouter(t, repo, "1")

	payload := `{"user_id":10,"module":"finance","action":"read","allowed":false}`
	req := httptest.NewRequest(http.MethodPost, "/permissions/user", strings.NewReader(payload))
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)

	require.Equal(t, http.StatusOK, res.Code)
	require.Len(t, notifier.sent, 1)
	assert.Equal(t, capturedNotification{10, rbac.ModuleFinance, rbac.ActionRead, false}, notifier.sent[0])
}

func TestHandlerUpsertRequiresAllowed(t *testing.T) {
	router, _ := newPermissionsRouter(t, adminRepo(), "1")

	payload := `{"user_id":10,"module":"finance","action":"read"}`
	req := httptest.NewRequest(http.MethodPost, "/permissions/user", strings.NewReader(payload))
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)

	assert.Equal(t, http.StatusBadRequest, res.Code)
}

func TestHandlerDeleteUserPermissionPath(t *testing.T) {
	repo := adminRepo()
	repo.userPerms = append(repo.userPerms,
		rbac.UserPermission{UserID: 10, Module: rbac.ModuleFinance, Action: rbac.ActionRead, Allowed: true},
		rbac.UserPermission{UserID: 10, Module: rbac.ModuleFinance, Action: rbac.ActionUpdate, Allowed: true},
	)
	router, _ := newPermissionsRouter(t, repo, "1")

	req := httptest.NewRequest(http.MethodDelete, "/permissions/user/10/finance/read", nil)
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)

	require.Equal(t, http.StatusOK, res.Code)
	require.Len(t, repo.userPerms, 1)
	assert.Equal(t, rbac.ActionUpdate, repo.userPerms[0].Action)
}

func TestHandlerReplaceUnknownUser(t *testing.T) {
	router, _ := newPermissionsRouter(t, adminRepo(), "1")

	// An empty replacement must not succeed silently for a user that
	// does not exist.
	payload := `{"user_id":99,"permissions":[]}`
	req := httptest.NewRequest(http.MethodPost, "/permissions/user/bulk", strings.NewReader(payload))
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)

	require.Equal(t, http.StatusNotFound, res.Code)
	body := decodeEnvelope(t, res)
	assert.Equal(t, "Registro não encontrado", body["error"])
}

func TestHandlerUserViewCombined(t *testing.T) {
	repo := adminRepo()
	repo.roles[10] = rbac.RolePatient
	repo.rolePerms = append(repo.rolePerms, rbac.RolePermission{ID: 1, Role: rbac.RolePatient, Module: rbac.ModuleSessions, Action: rbac.ActionRead})
	router, _ := newPermissionsRouter(t, repo, "1")

	req := httptest.NewRequest(http.MethodGet, "/permissions/user/10/all", nil)
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)

	require.Equal(t, http.StatusOK, res.Code)
	body := decodeEnvelope(t, res)
	data := body["data"].(map[string]any)
	assert.Equal(t, "patient", data["role"])
}
