package service

import "github.com/pguia/crm-authz/internal/domain"

// CatalogEntry is a permission shipped with the system
type CatalogEntry struct {
	Key    domain.PermissionKey
	Name   string
	Module string
}

// RoleTemplate is a role created by the bootstrap
type RoleTemplate struct {
	Name        domain.RoleName
	Description string
	Color       string
	IsSystem    bool
	Permissions []domain.PermissionKey
}

// Role names created by the bootstrap
const (
	RoleAdministrator  domain.RoleName = "Administrator"
	RoleDirector       domain.RoleName = "Director"
	RoleManager        domain.RoleName = "Manager"
	RoleSalesperson    domain.RoleName = "Salesperson"
	RoleImplementation domain.RoleName = "Implementation"
)

// Keys referenced by the compatibility guards
var (
	PermAdminAccess          = domain.MustPermissionKey("admin_access")
	PermAdminUsersManage     = domain.MustPermissionKey("admin_users_manage")
	PermImplementationAccess = domain.MustPermissionKey("implementation_access")
)

var defaultCatalog = []CatalogEntry{
	{"admin_access", "Access admin panel", "Admin"},
	{"admin_users_manage", "Manage users", "Admin"},
	{"admin_permissions_manage", "Manage permissions", "Admin"},

	{"leads_view", "View leads", "Leads"},
	{"leads_create", "Create leads", "Leads"},
	{"leads_edit", "Edit leads", "Leads"},
	{"leads_delete", "Delete leads", "Leads"},
	{"leads_convert", "Convert leads", "Leads"},
	{"leads_approve_conversion", "Approve lead conversion", "Leads"},

	{"clients_view", "View clients", "Clients"},
	{"clients_create", "Create clients", "Clients"},
	{"clients_edit", "Edit clients", "Clients"},
	{"clients_delete", "Delete clients", "Clients"},

	{"projects_view", "View projects", "Projects"},
	{"projects_create", "Create projects", "Projects"},
	{"projects_edit", "Edit projects", "Projects"},
	{"projects_delete", "Delete projects", "Projects"},
	{"projects_manage_tasks", "Manage project tasks", "Projects"},

	{"tasks_view", "View tasks", "Tasks"},
	{"tasks_create", "Create tasks", "Tasks"},
	{"tasks_edit", "Edit tasks", "Tasks"},
	{"tasks_delete", "Delete tasks", "Tasks"},

	{"implementation_access", "Access implementation", "Implementation"},
	{"implementation_manage", "Manage implementation", "Implementation"},

	{"email_marketing_access", "Access email marketing", "Email Marketing"},
	{"email_marketing_send", "Send emails", "Email Marketing"},

	{"chat_access", "Access chat", "Chat"},

	{"reports_view", "View reports", "Reports"},
	{"reports_export", "Export reports", "Reports"},
}

// DefaultCatalog returns a copy of the built-in permission catalog
func DefaultCatalog() []CatalogEntry {
	out := make([]CatalogEntry, len(defaultCatalog))
	copy(out, defaultCatalog)
	return out
}

// DefaultRoles returns the roles the bootstrap creates. Administrator holds every catalog key.
func DefaultRoles() []RoleTemplate {
	all := make([]domain.PermissionKey, 0, len(defaultCatalog))
	for _, e := range defaultCatalog {
		all = append(all, e.Key)
	}

	return []RoleTemplate{
		{
			Name:        RoleAdministrator,
			Description: "Full system access",
			Color:       "#F44336",
			IsSystem:    true,
			Permissions: all,
		},
		{
			Name:        RoleDirector,
			Description: "Full management access",
			Color:       "#9C27B0",
			IsSystem:    true,
			Permissions: []domain.PermissionKey{
				"admin_access", "leads_view", "leads_create", "leads_edit", "leads_delete",
				"leads_convert", "leads_approve_conversion", "clients_view", "clients_create",
				"clients_edit", "clients_delete", "projects_view", "projects_create",
				"projects_edit", "projects_delete", "projects_manage_tasks", "tasks_view",
				"tasks_create", "tasks_edit", "tasks_delete", "implementation_access",
				"implementation_manage", "email_marketing_access", "email_marketing_send",
				"chat_access", "reports_view", "reports_export",
			},
		},
		{
			Name:        RoleManager,
			Description: "Departmental management access",
			Color:       "#3F51B5",
			IsSystem:    true,
			Permissions: []domain.PermissionKey{
				"leads_view", "leads_create", "leads_edit", "leads_convert",
				"clients_view", "clients_create", "clients_edit", "projects_view",
				"projects_create", "projects_edit", "projects_manage_tasks",
				"tasks_view", "tasks_create", "tasks_edit", "chat_access", "reports_view",
			},
		},
		{
			Name:        RoleSalesperson,
			Description: "Sales and lead focused access",
			Color:       "#4CAF50",
			Permissions: []domain.PermissionKey{
				"leads_view", "leads_create", "leads_edit", "leads_convert",
				"clients_view", "tasks_view", "tasks_create", "chat_access",
			},
		},
		{
			Name:        RoleImplementation,
			Description: "Implementation module access",
			Color:       "#FF9800",
			Permissions: []domain.PermissionKey{
				"implementation_access", "implementation_manage", "projects_view",
				"projects_manage_tasks", "tasks_view", "tasks_create", "tasks_edit",
				"clients_view", "chat_access",
			},
		},
	}
}
