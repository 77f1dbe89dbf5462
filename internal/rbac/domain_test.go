package rbac

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEnums(t *testing.T) {
	role, err := ParseRole("  Admin ")
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, role)

	_, err = ParseRole("superuser")
	assert.ErrorIs(t, err, ErrInvalidInput)

	module, err := ParseModule("Finance")
	require.NoError(t, err)
	assert.Equal(t, ModuleFinance, module)

	_, err = ParseModule("")
	assert.ErrorIs(t, err, ErrInvalidInput)

	action, err := ParseAction("MANAGE")
	require.NoError(t, err)
	assert.Equal(t, ActionManage, action)

	_, err = ParseAction("destroy")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestGrantsRoleDefault(t *testing.T) {
	g := NewGrants(RolePatient, []RolePermission{
		{Role: RolePatient, Module: ModuleSessions, Action: ActionRead},
	}, nil)

	assert.True(t, g.Allowed(ModuleSessions, ActionRead))
	assert.False(t, g.Allowed(ModuleSessions, ActionDelete))
	assert.False(t, g.Allowed(ModuleFinance, ActionRead))
}

func TestGrantsOverrideBeatsRoleGrant(t *testing.T) {
	g := NewGrants(RolePatient,
		[]RolePermission{{Role: RolePatient, Module: ModuleSessions, Action: ActionRead}},
		[]UserPermission{{Module: ModuleSessions, Action: ActionRead, Allowed: false}},
	)

	// The override revokes what the role grants.
	assert.False(t, g.Allowed(ModuleSessions, ActionRead))
}

func TestGrantsOverrideGrantsBeyondRole(t *testing.T) {
	g := NewGrants(RolePsychologist,
		nil,
		[]UserPermission{{Module: ModuleFinance, Action: ActionRead, Allowed: true}},
	)

	assert.True(t, g.Allowed(ModuleFinance, ActionRead))
	assert.False(t, g.Allowed(ModuleFinance, ActionUpdate))
}

func TestGrantsEmptyDeniesEverything(t *testing.T) {
	g := NewGrants(RolePatient, nil, nil)
	for _, m := range Modules() {
		for _, a := range Actions() {
			assert.False(t, g.Allowed(m, a), "module %s action %s", m, a)
		}
	}
}

func TestCanViewReadOrManage(t *testing.T) {
	readOnly := NewGrants(RoleFinance, []RolePermission{
		{Role: RoleFinance, Module: ModuleReports, Action: ActionRead},
	}, nil)
	manageOnly := NewGrants(RoleFinance, []RolePermission{
		{Role: RoleFinance, Module: ModuleReports, Action: ActionManage},
	}, nil)

	assert.True(t, readOnly.CanView(ModuleReports))
	assert.True(t, manageOnly.CanView(ModuleReports))
	assert.False(t, readOnly.CanView(ModuleFinance))
}
