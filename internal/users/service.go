package users

import (
	"context"

	"github.com/televita-health/televita/internal/rbac"
	"github.com/televita-health/televita/internal/shared"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	CountUsers(ctx context.Context) (int, error)
	ListUsers(ctx context.Context, limit, offset int) ([]User, error)
	GetUser(ctx context.Context, id int64) (User, error)
	UpdateRole(ctx context.Context, id int64, role rbac.Role) (User, error)
}

// OverrideResetter drops a user's custom permission grants.
type OverrideResetter interface {
	DeleteAllUserPermissions(ctx context.Context, userID int64) error
}

// Service handles user administration logic.
type Service struct {
	repo      RepositoryPort
	overrides OverrideResetter
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort, overrides OverrideResetter) *Service {
	return &Service{repo: repo, overrides: overrides}
}

// ListUsers returns one page of users with pagination metadata.
func (s *Service) ListUsers(ctx context.Context, page, perPage int) ([]User, shared.Pagination, error) {
	if perPage <= 0 || perPage > 100 {
		perPage = 20
	}
	if page <= 0 {
		page = 1
	}
	total, err := s.repo.CountUsers(ctx)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	users, err := s.repo.ListUsers(ctx, perPage, (page-1)*perPage)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	if users == nil {
		users = []User{}
	}
	return users, shared.NewPagination(page, perPage, total), nil
}

// GetUser fetches one user.
func (s *Service) GetUser(ctx context.Context, id int64) (User, error) {
	return s.repo.GetUser(ctx, id)
}

// ChangeRole switches a user's role and resets their permission overrides:
// custom grants amend a specific role and must not survive a role change.
func (s *Service) ChangeRole(ctx context.Context, id int64, role rbac.Role) (User, error) {
	user, err := s.repo.UpdateRole(ctx, id, role)
	if err != nil {
		return User{}, err
	}
	if s.overrides != nil {
		if err := s.overrides.DeleteAllUserPermissions(ctx, id); err != nil {
			return User{}, err
		}
	}
	return user, nil
}
