package users_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/televita-health/televita/internal/rbac"
	"github.com/televita-health/televita/internal/shared"
	"github.com/televita-health/televita/internal/users"
)

type stubRepo struct {
	users map[int64]users.User
}

func (s *stubRepo) CountUsers(ctx context.Context) (int, error) {
	return len(s.users), nil
}

func (s *stubRepo) ListUsers(ctx context.Context, limit, offset int) ([]users.User, error) {
	var out []users.User
	for _, u := range s.users {
		out = append(out, u)
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (s *stubRepo) GetUser(ctx context.Context, id int64) (users.User, error) {
	u, ok := s.users[id]
	if !ok {
		return users.User{}, shared.ErrNotFound
	}
	return u, nil
}

func (s *stubRepo) UpdateRole(ctx context.Context, id int64, role rbac.Role) (users.User, error) {
	u, ok := s.users[id]
	if !ok {
		return users.User{}, shared.ErrNotFound
	}
	u.Role = role
	s.users[id] = u
	return u, nil
}

type stubResetter struct {
	resetFor []int64
}

func (s *stubResetter) DeleteAllUserPermissions(ctx context.Context, userID int64) error {
	s.resetFor = append(s.resetFor, userID)
	return nil
}

func TestChangeRoleResetsOverrides(t *testing.T) {
	repo := &stubRepo{users: map[int64]users.User{
		10: {ID: 10, Email: "ana@televita.app", Role: rbac.RolePatient, IsActive: true},
	}}
	resetter := &stubResetter{}
	svc := users.NewService(repo, resetter)

	user, err := svc.ChangeRole(context.Background(), 10, rbac.RoleFinance)
	require.NoError(t, err)
	assert.Equal(t, rbac.RoleFinance, user.Role)
	assert.Equal(t, []int64{10}, resetter.resetFor)
}

func TestChangeRoleUnknownUser(t *testing.T) {
	svc := users.NewService(&stubRepo{users: map[int64]users.User{}}, &stubResetter{})

	_, err := svc.ChangeRole(context.Background(), 99, rbac.RoleAdmin)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestListUsersNeverNil(t *testing.T) {
	svc := users.NewService(&stubRepo{users: map[int64]users.User{}}, nil)

	list, pagination, err := svc.ListUsers(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)
	assert.Equal(t, 1, pagination.Page)
	assert.Equal(t, 0, pagination.Total)
}

func TestListUsersPagination(t *testing.T) {
	repo := &stubRepo{users: map[int64]users.User{}}
	for i := int64(1); i <= 45; i++ {
		repo.users[i] = users.User{ID: i, Role: rbac.RolePatient}
	}
	svc := users.NewService(repo, nil)

	list, pagination, err := svc.ListUsers(context.Background(), 2, 20)
	require.NoError(t, err)
	assert.Len(t, list, 20)
	assert.Equal(t, 45, pagination.Total)
	assert.Equal(t, 3, pagination.TotalPages)
	assert.Equal(t, 2, pagination.Page)
}
