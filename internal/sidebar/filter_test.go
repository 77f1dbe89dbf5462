package sidebar_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/televita-health/televita/internal/rbac"
	"github.com/televita-health/televita/internal/sidebar"
)

func entryKeys(entries []sidebar.Entry) []string {
	keys := make([]string, len(entries))
	for i, e := range entries {
		keys[i] = e.Key
	}
	return keys
}

func TestFilterAlwaysVisibleForEveryone(t *testing.T) {
	// Zero permissions: only the always-visible entries remain.
	grants := rbac.NewGrants(rbac.RolePatient, nil, nil)

	visible := sidebar.Filter(sidebar.Entries(), grants)

	assert.Equal(t, []string{"home", "help"}, entryKeys(visible))
}

func TestFilterReadSuffices(t *testing.T) {
	grants := rbac.NewGrants(rbac.RolePatient, []rbac.RolePermission{
		{Role: rbac.RolePatient, Module: rbac.ModuleAgenda, Action: rbac.ActionRead},
	}, nil)

	visible := sidebar.Filter(sidebar.Entries(), grants)

	assert.Contains(t, entryKeys(visible), "agenda")
}

func TestFilterManageSuffices(t *testing.T) {
	grants := rbac.NewGrants(rbac.RoleManagement, []rbac.RolePermission{
		{Role: rbac.RoleManagement, Module: rbac.ModuleFinance, Action: rbac.ActionManage},
	}, nil)

	visible := sidebar.Filter(sidebar.Entries(), grants)

	assert.Contains(t, entryKeys(visible), "finance")
	assert.NotContains(t, entryKeys(visible), "reports")
}

func TestFilterOverrideHidesEntry(t *testing.T) {
	grants := rbac.NewGrants(rbac.RolePatient,
		[]rbac.RolePermission{{Role: rbac.RolePatient, Module: rbac.ModuleAgenda, Action: rbac.ActionRead}},
		[]rbac.UserPermission{{Module: rbac.ModuleAgenda, Action: rbac.ActionRead, Allowed: false}},
	)

	visible := sidebar.Filter(sidebar.Entries(), grants)

	assert.NotContains(t, entryKeys(visible), "agenda")
}

func TestFilterPreservesOrder(t *testing.T) {
	grants := rbac.NewGrants(rbac.RoleAdmin, []rbac.RolePermission{
		{Role: rbac.RoleAdmin, Module: rbac.ModuleUsers, Action: rbac.ActionManage},
		{Role: rbac.RoleAdmin, Module: rbac.ModuleAgenda, Action: rbac.ActionRead},
	}, nil)

	visible := sidebar.Filter(sidebar.Entries(), grants)

	// Agenda precedes users in the static list regardless of grant order.
	keys := entryKeys(visible)
	require.Equal(t, []string{"home", "agenda", "users", "help"}, keys)
}

func TestFilterCustomEntryWithoutModuleNorFlag(t *testing.T) {
	entries := []sidebar.Entry{
		{Key: "broken", Label: "Broken"},
		{Key: "home", Label: "Home", AlwaysVisible: true},
	}
	grants := rbac.NewGrants(rbac.RoleAdmin, nil, nil)

	visible := sidebar.Filter(entries, grants)

	assert.Equal(t, []string{"home"}, entryKeys(visible))
}
