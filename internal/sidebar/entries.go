// Package sidebar selects the navigation entries a user may see.
package sidebar

import "github.com/televita-health/televita/internal/rbac"

// Entry describes one navigation item. Module is empty for entries flagged
// AlwaysVisible; everything else is gated on read-or-manage of its module.
type Entry struct {
	Key           string      `json:"key"`
	Label         string      `json:"label"`
	Path          string      `json:"path"`
	Icon          string      `json:"icon"`
	Module        rbac.Module `json:"module,omitempty"`
	AlwaysVisible bool        `json:"always_visible"`
}

// Entries returns the full navigation list in display order.
func Entries() []Entry {
	return []Entry{
		{Key: "home", Label: "Início", Path: "/", Icon: "home", AlwaysVisible: true},
		{Key: "agenda", Label: "Agenda", Path: "/agenda", Icon: "calendar", Module: rbac.ModuleAgenda},
		{Key: "sessions", Label: "Consultas", Path: "/sessions", Icon: "video", Module: rbac.ModuleSessions},
		{Key: "patients", Label: "Pacientes", Path: "/patients", Icon: "heart", Module: rbac.ModulePatients},
		{Key: "psychologists", Label: "Psicólogos", Path: "/psychologists", Icon: "user-check", Module: rbac.ModulePsychologists},
		{Key: "users", Label: "Usuários", Path: "/users", Icon: "users", Module: rbac.ModuleUsers},
		{Key: "finance", Label: "Financeiro", Path: "/finance", Icon: "dollar-sign", Module: rbac.ModuleFinance},
		{Key: "reports", Label: "Relatórios", Path: "/reports", Icon: "bar-chart", Module: rbac.ModuleReports},
		{Key: "permissions", Label: "Permissões", Path: "/permissions", Icon: "shield", Module: rbac.ModulePermissions},
		{Key: "audit", Label: "Auditoria", Path: "/audit", Icon: "file-text", Module: rbac.ModuleAudit},
		{Key: "settings", Label: "Configurações", Path: "/settings", Icon: "settings", Module: rbac.ModuleSettings},
		{Key: "help", Label: "Ajuda", Path: "/help", Icon: "help-circle", AlwaysVisible: true},
	}
}
