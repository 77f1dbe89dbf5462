package rbac

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"
)

// Service orchestrates permission resolution and administration.
type Service struct {
	repo Repository
}

// NewService constructs a Service backed by the provided repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Resolve decides whether userID may perform action on module. A user
// override is authoritative whatever its value; otherwise the role default
// applies; absence of both is a deny. A missing user surfaces ErrNotFound
// and callers must treat it as denial.
func (s *Service) Resolve(ctx context.Context, userID int64, module Module, action Action) (bool, error) {
	role, err := s.repo.RoleOf(ctx, userID)
	if err != nil {
		return false, err
	}

	override, err := s.repo.GetUserPermission(ctx, userID, module, action)
	switch {
	case err == nil:
		return override.Allowed, nil
	case !errors.Is(err, ErrNotFound):
		return false, err
	}

	return s.repo.HasRolePermission(ctx, role, module, action)
}

// GrantsFor fetches the full permission snapshot of one user: role defaults
// and overrides in a single pass. Consumers that evaluate many pairs use
// this instead of repeated Resolve calls.
func (s *Service) GrantsFor(ctx context.Context, userID int64) (Grants, error) {
	role, err := s.repo.RoleOf(ctx, userID)
	if err != nil {
		return Grants{}, err
	}

	var (
		rolePerms []RolePermission
		userPerms []UserPermission
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		rolePerms, err = s.repo.RolePermissionsByRole(gctx, role)
		return err
	})
	g.Go(func() error {
		var err error
		userPerms, err = s.repo.UserPermissions(gctx, userID)
		return err
	})
	if err := g.Wait(); err != nil {
		return Grants{}, err
	}

	return NewGrants(role, rolePerms, userPerms), nil
}

// UserView combines a user's role defaults and overrides for admin screens.
type UserView struct {
	UserID          int64            `json:"user_id"`
	Role            Role             `json:"role"`
	RolePermissions []RolePermission `json:"role_permissions"`
	Overrides       []UserPermission `json:"overrides"`
}

// ViewUser returns the combined role+override view of one user.
func (s *Service) ViewUser(ctx context.Context, userID int64) (UserView, error) {
	role, err := s.repo.RoleOf(ctx, userID)
	if err != nil {
		return UserView{}, err
	}
	rolePerms, err := s.repo.RolePermissionsByRole(ctx, role)
	if err != nil {
		return UserView{}, err
	}
	userPerms, err := s.repo.UserPermissions(ctx, userID)
	if err != nil {
		return UserView{}, err
	}
	if rolePerms == nil {
		rolePerms = []RolePermission{}
	}
	if userPerms == nil {
		userPerms = []UserPermission{}
	}
	return UserView{UserID: userID, Role: role, RolePermissions: rolePerms, Overrides: userPerms}, nil
}

// RoleOf returns the role of the given user.
func (s *Service) RoleOf(ctx context.Context, userID int64) (Role, error) {
	return s.repo.RoleOf(ctx, userID)
}

// ListRolePermissions returns every role permission.
func (s *Service) ListRolePermissions(ctx context.Context) ([]RolePermission, error) {
	perms, err := s.repo.ListRolePermissions(ctx)
	if err != nil {
		return nil, err
	}
	if perms == nil {
		perms = []RolePermission{}
	}
	return perms, nil
}

// RolePermissions returns the permissions of one role.
func (s *Service) RolePermissions(ctx context.Context, role Role) ([]RolePermission, error) {
	perms, err := s.repo.RolePermissionsByRole(ctx, role)
	if err != nil {
		return nil, err
	}
	if perms == nil {
		perms = []RolePermission{}
	}
	return perms, nil
}

// CreateRolePermission adds one role default grant.
func (s *Service) CreateRolePermission(ctx context.Context, role Role, module Module, action Action) (RolePermission, error) {
	return s.repo.CreateRolePermission(ctx, role, module, action)
}

// UpdateRolePermission rewrites one role permission by ID.
func (s *Service) UpdateRolePermission(ctx context.Context, id int64, role Role, module Module, action Action) (RolePermission, error) {
	return s.repo.UpdateRolePermission(ctx, id, role, module, action)
}

// DeleteRolePermission removes one role permission by ID.
func (s *Service) DeleteRolePermission(ctx context.Context, id int64) error {
	return s.repo.DeleteRolePermission(ctx, id)
}

// BulkCreateRolePermissions inserts a batch of role defaults, ignoring
// triples that already exist. Returns the number actually inserted.
func (s *Service) BulkCreateRolePermissions(ctx context.Context, role Role, entries []ModuleAction) (int, error) {
	return s.repo.BulkUpsertRolePermissions(ctx, role, entries)
}

// UserPermissions returns the overrides of one user.
func (s *Service) UserPermissions(ctx context.Context, userID int64) ([]UserPermission, error) {
	perms, err := s.repo.UserPermissions(ctx, userID)
	if err != nil {
		return nil, err
	}
	if perms == nil {
		perms = []UserPermission{}
	}
	return perms, nil
}

// UpsertUserPermission writes one override idempotently on the unique triple.
func (s *Service) UpsertUserPermission(ctx context.Context, userID int64, module Module, action Action, allowed bool) (UserPermission, error) {
	return s.repo.UpsertUserPermission(ctx, userID, module, action, allowed)
}

// DeleteUserPermission removes exactly one override.
func (s *Service) DeleteUserPermission(ctx context.Context, userID int64, module Module, action Action) error {
	return s.repo.DeleteUserPermission(ctx, userID, module, action)
}

// ReplaceUserPermissions swaps the full override set of one user.
func (s *Service) ReplaceUserPermissions(ctx context.Context, userID int64, entries []Override) error {
	// Resolve the user first so an empty replacement on an unknown user
	// still reports ErrNotFound instead of deleting nothing and succeeding.
	if _, err := s.repo.RoleOf(ctx, userID); err != nil {
		return err
	}
	return s.repo.ReplaceUserPermissions(ctx, userID, entries)
}

// DeleteAllUserPermissions drops every override of one user. Invoked on
// role changes so custom grants never outlive the role they amended.
func (s *Service) DeleteAllUserPermissions(ctx context.Context, userID int64) error {
	return s.repo.DeleteAllUserPermissions(ctx, userID)
}
