package rbac

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/televita-health/televita/internal/platform/db"
)

// Repository defines persistence operations for the permission store.
type Repository interface {
	RoleOf(ctx context.Context, userID int64) (Role, error)

	ListRolePermissions(ctx context.Context) ([]RolePermission, error)
	RolePermissionsByRole(ctx context.Context, role Role) ([]RolePermission, error)
	GetRolePermission(ctx context.Context, id int64) (RolePermission, error)
	HasRolePermission(ctx context.Context, role Role, module Module, action Action) (bool, error)
	CreateRolePermission(ctx context.Context, role Role, module Module, action Action) (RolePermission, error)
	UpdateRolePermission(ctx context.Context, id int64, role Role, module Module, action Action) (RolePermission, error)
	DeleteRolePermission(ctx context.Context, id int64) error
	BulkUpsertRolePermissions(ctx context.Context, role Role, entries []ModuleAction) (int, error)

	UserPermissions(ctx context.Context, userID int64) ([]UserPermission, error)
	GetUserPermission(ctx context.Context, userID int64, module Module, action Action) (UserPermission, error)
	UpsertUserPermission(ctx context.Context, userID int64, module Module, action Action, allowed bool) (UserPermission, error)
	DeleteUserPermission(ctx context.Context, userID int64, module Module, action Action) error
	ReplaceUserPermissions(ctx context.Context, userID int64, entries []Override) error
	DeleteAllUserPermissions(ctx context.Context, userID int64) error
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

var _ Repository = (*PGRepository)(nil)

// RoleOf returns the role of the given user.
func (r *PGRepository) RoleOf(ctx context.Context, userID int64) (Role, error) {
	var role Role
	err := r.pool.QueryRow(ctx, `SELECT role FROM users WHERE id = $1`, userID).Scan(&role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", err
	}
	return role, nil
}

// ListRolePermissions returns every role permission ordered by role, module, action.
func (r *PGRepository) ListRolePermissions(ctx context.Context) ([]RolePermission, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, role, module, action, created_at FROM role_permissions ORDER BY role, module, action`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRolePermissions(rows)
}

// RolePermissionsByRole returns the permissions of one role.
func (r *PGRepository) RolePermissionsByRole(ctx context.Context, role Role) ([]RolePermission, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, role, module, action, created_at FROM role_permissions WHERE role = $1 ORDER BY module, action`, role)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRolePermissions(rows)
}

// GetRolePermission fetches one role permission by ID.
func (r *PGRepository) GetRolePermission(ctx context.Context, id int64) (RolePermission, error) {
	var p RolePermission
	err := r.pool.QueryRow(ctx, `SELECT id, role, module, action, created_at FROM role_permissions WHERE id = $1`, id).
		Scan(&p.ID, &p.Role, &p.Module, &p.Action, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return RolePermission{}, ErrNotFound
		}
		return RolePermission{}, err
	}
	return p, nil
}

// HasRolePermission reports whether the (role, module, action) triple exists.
func (r *PGRepository) HasRolePermission(ctx context.Context, role Role, module Module, action Action) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM role_permissions WHERE role = $1 AND module = $2 AND action = $3)`, role, module, action).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

// CreateRolePermission inserts a new role permission.
func (r *PGRepository) CreateRolePermission(ctx context.Context, role Role, module Module, action Action) (RolePermission, error) {
	var p RolePermission
	err := r.pool.QueryRow(ctx, `INSERT INTO role_permissions (role, module, action) VALUES ($1, $2, $3) RETURNING id, role, module, action, created_at`, role, module, action).
		Scan(&p.ID, &p.Role, &p.Module, &p.Action, &p.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return RolePermission{}, ErrDuplicate
		}
		return RolePermission{}, err
	}
	return p, nil
}

// UpdateRolePermission rewrites an existing role permission in place.
func (r *PGRepository) UpdateRolePermission(ctx context.Context, id int64, role Role, module Module, action Action) (RolePermission, error) {
	var p RolePermission
	err := r.pool.QueryRow(ctx, `UPDATE role_permissions SET role = $2, module = $3, action = $4 WHERE id = $1 RETURNING id, role, module, action, created_at`, id, role, module, action).
		Scan(&p.ID, &p.Role, &p.Module, &p.Action, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return RolePermission{}, ErrNotFound
		}
		if isUniqueViolation(err) {
			return RolePermission{}, ErrDuplicate
		}
		return RolePermission{}, err
	}
	return p, nil
}

// DeleteRolePermission removes a role permission by ID.
func (r *PGRepository) DeleteRolePermission(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM role_permissions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// BulkUpsertRolePermissions inserts the given entries for a role, skipping
// triples that already exist. Returns the number of rows inserted.
func (r *PGRepository) BulkUpsertRolePermissions(ctx context.Context, role Role, entries []ModuleAction) (int, error) {
	inserted := 0
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		for _, e := range entries {
			tag, err := tx.Exec(ctx, `INSERT INTO role_permissions (role, module, action) VALUES ($1, $2, $3) ON CONFLICT (role, module, action) DO NOTHING`, role, e.Module, e.Action)
			if err != nil {
				return err
			}
			inserted += int(tag.RowsAffected())
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// UserPermissions returns every override of one user.
func (r *PGRepository) UserPermissions(ctx context.Context, userID int64) ([]UserPermission, error) {
	rows, err := r.pool.Query(ctx, `SELECT user_id, module, action, allowed, created_at, updated_at FROM user_permissions WHERE user_id = $1 ORDER BY module, action`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var perms []UserPermission
	for rows.Next() {
		var p UserPermission
		if err := rows.Scan(&p.UserID, &p.Module, &p.Action, &p.Allowed, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

// GetUserPermission fetches one override.
func (r *PGRepository) GetUserPermission(ctx context.Context, userID int64, module Module, action Action) (UserPermission, error) {
	var p UserPermission
	err := r.pool.QueryRow(ctx, `SELECT user_id, module, action, allowed, created_at, updated_at FROM user_permissions WHERE user_id = $1 AND module = $2 AND action = $3`, userID, module, action).
		Scan(&p.UserID, &p.Module, &p.Action, &p.Allowed, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return UserPermission{}, ErrNotFound
		}
		return UserPermission{}, err
	}
	return p, nil
}

// UpsertUserPermission writes an override, updating the Allowed value in
// place when the triple already exists.
func (r *PGRepository) UpsertUserPermission(ctx context.Context, userID int64, module Module, action Action, allowed bool) (UserPermission, error) {
	var p UserPermission
	err := r.pool.QueryRow(ctx, `
		INSERT INTO user_permissions (user_id, module, action, allowed)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, module, action) DO UPDATE SET allowed = EXCLUDED.allowed, updated_at = NOW()
		RETURNING user_id, module, action, allowed, created_at, updated_at`,
		userID, module, action, allowed).
		Scan(&p.UserID, &p.Module, &p.Action, &p.Allowed, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return UserPermission{}, ErrNotFound
		}
		return UserPermission{}, err
	}
	return p, nil
}

// DeleteUserPermission removes exactly one override, leaving siblings intact.
func (r *PGRepository) DeleteUserPermission(ctx context.Context, userID int64, module Module, action Action) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM user_permissions WHERE user_id = $1 AND module = $2 AND action = $3`, userID, module, action)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ReplaceUserPermissions swaps the full override set of one user inside a
// transaction so no stale override survives the replacement.
func (r *PGRepository) ReplaceUserPermissions(ctx context.Context, userID int64, entries []Override) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM user_permissions WHERE user_id = $1`, userID); err != nil {
			return err
		}
		for _, e := range entries {
			if _, err := tx.Exec(ctx, `INSERT INTO user_permissions (user_id, module, action, allowed) VALUES ($1, $2, $3, $4)`, userID, e.Module, e.Action, e.Allowed); err != nil {
				if isForeignKeyViolation(err) {
					return ErrNotFound
				}
				return err
			}
		}
		return nil
	})
}

// DeleteAllUserPermissions drops every override of one user.
func (r *PGRepository) DeleteAllUserPermissions(ctx context.Context, userID int64) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM user_permissions WHERE user_id = $1`, userID)
	return err
}

func scanRolePermissions(rows pgx.Rows) ([]RolePermission, error) {
	var perms []RolePermission
	for rows.Next() {
		var p RolePermission
		if err := rows.Scan(&p.ID, &p.Role, &p.Module, &p.Action, &p.CreatedAt); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rbac: scan role permissions: %w", err)
	}
	return perms, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}
