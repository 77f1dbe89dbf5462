package rbac

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound indicates that the requested record does not exist.
var ErrNotFound = errors.New("rbac: not found")

// ErrDuplicate indicates a unique constraint conflict on a permission triple.
var ErrDuplicate = errors.New("rbac: duplicate permission")

// ErrInvalidInput indicates a malformed role, module or action value.
var ErrInvalidInput = errors.New("rbac: invalid input")

// Role classifies a user account. The set is fixed at deploy time.
type Role string

const (
	RoleAdmin        Role = "admin"
	RoleManagement   Role = "management"
	RoleFinance      Role = "finance"
	RolePatient      Role = "patient"
	RolePsychologist Role = "psychologist"
)

// Roles lists every known role.
func Roles() []Role {
	return []Role{RoleAdmin, RoleManagement, RoleFinance, RolePatient, RolePsychologist}
}

// ParseRole normalizes and validates a role value.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("%w: unknown role %q", ErrInvalidInput, s)
	}
	return r, nil
}

// Valid reports whether the role belongs to the known set.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleManagement, RoleFinance, RolePatient, RolePsychologist:
		return true
	}
	return false
}

// Module names a feature area subject to access control.
type Module string

const (
	ModuleUsers         Module = "users"
	ModulePatients      Module = "patients"
	ModulePsychologists Module = "psychologists"
	ModuleAgenda        Module = "agenda"
	ModuleSessions      Module = "sessions"
	ModuleFinance       Module = "finance"
	ModuleReports       Module = "reports"
	ModulePermissions   Module = "permissions"
	ModuleAudit         Module = "audit"
	ModuleSettings      Module = "settings"
)

// Modules lists every known module.
func Modules() []Module {
	return []Module{
		ModuleUsers, ModulePatients, ModulePsychologists, ModuleAgenda,
		ModuleSessions, ModuleFinance, ModuleReports, ModulePermissions,
		ModuleAudit, ModuleSettings,
	}
}

// ParseModule normalizes and validates a module value.
func ParseModule(s string) (Module, error) {
	m := Module(strings.ToLower(strings.TrimSpace(s)))
	if !m.Valid() {
		return "", fmt.Errorf("%w: unknown module %q", ErrInvalidInput, s)
	}
	return m, nil
}

// Valid reports whether the module belongs to the known set.
func (m Module) Valid() bool {
	switch m {
	case ModuleUsers, ModulePatients, ModulePsychologists, ModuleAgenda,
		ModuleSessions, ModuleFinance, ModuleReports, ModulePermissions,
		ModuleAudit, ModuleSettings:
		return true
	}
	return false
}

// Action is the operation being attempted on a module.
type Action string

const (
	ActionRead    Action = "read"
	ActionCreate  Action = "create"
	ActionUpdate  Action = "update"
	ActionDelete  Action = "delete"
	ActionManage  Action = "manage"
	ActionApprove Action = "approve"
)

// Actions lists every known action.
func Actions() []Action {
	return []Action{ActionRead, ActionCreate, ActionUpdate, ActionDelete, ActionManage, ActionApprove}
}

// ParseAction normalizes and validates an action value.
func ParseAction(s string) (Action, error) {
	a := Action(strings.ToLower(strings.TrimSpace(s)))
	if !a.Valid() {
		return "", fmt.Errorf("%w: unknown action %q", ErrInvalidInput, s)
	}
	return a, nil
}

// Valid reports whether the action belongs to the known set.
func (a Action) Valid() bool {
	switch a {
	case ActionRead, ActionCreate, ActionUpdate, ActionDelete, ActionManage, ActionApprove:
		return true
	}
	return false
}

// RolePermission grants an action on a module to every user of a role.
// Presence means allow; there is no boolean column.
type RolePermission struct {
	ID        int64     `json:"id"`
	Role      Role      `json:"role"`
	Module    Module    `json:"module"`
	Action    Action    `json:"action"`
	CreatedAt time.Time `json:"created_at"`
}

// UserPermission is a per-user override for one module/action pair. It takes
// precedence over the role default whether Allowed is true or false.
type UserPermission struct {
	UserID    int64     `json:"user_id"`
	Module    Module    `json:"module"`
	Action    Action    `json:"action"`
	Allowed   bool      `json:"allowed"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ModuleAction identifies one permission slot.
type ModuleAction struct {
	Module Module
	Action Action
}

// Override pairs a permission slot with an explicit allow/deny value.
type Override struct {
	Module  Module
	Action  Action
	Allowed bool
}

// Grants is a snapshot of the permission sources for one user: the role
// defaults plus the user's overrides. Allowed applies the precedence rule
// without further store reads, so consumers that evaluate many pairs (the
// sidebar, the combined view) fetch once and decide locally.
type Grants struct {
	Role      Role
	roleSet   map[ModuleAction]struct{}
	overrides map[ModuleAction]bool
}

// NewGrants builds a Grants snapshot from fetched rows.
func NewGrants(role Role, rolePerms []RolePermission, userPerms []UserPermission) Grants {
	g := Grants{
		Role:      role,
		roleSet:   make(map[ModuleAction]struct{}, len(rolePerms)),
		overrides: make(map[ModuleAction]bool, len(userPerms)),
	}
	for _, p := range rolePerms {
		g.roleSet[ModuleAction{p.Module, p.Action}] = struct{}{}
	}
	for _, p := range userPerms {
		g.overrides[ModuleAction{p.Module, p.Action}] = p.Allowed
	}
	return g
}

// Allowed resolves one module/action pair: an override is authoritative
// whatever its value, otherwise the role default applies, otherwise deny.
func (g Grants) Allowed(module Module, action Action) bool {
	key := ModuleAction{module, action}
	if allowed, ok := g.overrides[key]; ok {
		return allowed
	}
	_, ok := g.roleSet[key]
	return ok
}

// CanView reports whether the user may read or manage the module. Either
// action suffices.
func (g Grants) CanView(module Module) bool {
	return g.Allowed(module, ActionRead) || g.Allowed(module, ActionManage)
}
