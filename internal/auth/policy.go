package auth

import "strings"

const (
	// AdminRole grants blanket authorization by name, case-insensitively.
	AdminRole = "ADMIN"
	// PermAdminAll grants blanket authorization by permission key. Both forms
	// exist because different callers check one or the other; IsAdmin tests
	// both.
	PermAdminAll = "admin:all"

	PermManageUsers       = "admin:users:manage"
	PermManageRoles       = "admin:roles:manage"
	PermManagePermissions = "admin:permissions:manage"
	PermReadAudit         = "admin:audit:read"
	PermInvestmentsRead   = "investments:read"
	PermInvestmentsExport = "investments:export"
	PermScreenerRun       = "screener:run"
)

// BuiltinPermissions is the seed catalog ensured at startup.
var BuiltinPermissions = []Permission{
	{Key: PermAdminAll, Description: "Full administrative access"},
	{Key: PermManageUsers, Description: "Create and update users, assign roles"},
	{Key: PermManageRoles, Description: "Create and update roles"},
	{Key: PermManagePermissions, Description: "Replace role permission sets"},
	{Key: PermReadAudit, Description: "Read the audit log"},
	{Key: PermInvestmentsRead, Description: "Read screened equity data"},
	{Key: PermInvestmentsExport, Description: "Export screener results"},
	{Key: PermScreenerRun, Description: "Run screener queries"},
}

// Requirement is a declarative authorization predicate evaluated against a
// resolved Context. Authorization logic is data, not boolean chains scattered
// across call sites.
type Requirement interface {
	Satisfied(c *Context) bool
}

type anyOfPerms []string

func (req anyOfPerms) Satisfied(c *Context) bool {
	for _, key := range req {
		if c.HasPermission(key) {
			return true
		}
	}
	return false
}

type allOfPerms []string

func (req allOfPerms) Satisfied(c *Context) bool {
	for _, key := range req {
		if !c.HasPermission(key) {
			return false
		}
	}
	return true
}

type anyOfRoles []string

func (req anyOfRoles) Satisfied(c *Context) bool {
	for _, name := range req {
		if c.HasRole(name) {
			return true
		}
	}
	return false
}

// AnyOf is satisfied when the context holds at least one of the permission keys.
func AnyOf(keys ...string) Requirement { return anyOfPerms(keys) }

// AllOf is satisfied only when the context holds every permission key.
func AllOf(keys ...string) Requirement { return allOfPerms(keys) }

// AnyRole is satisfied when the context holds at least one of the role names,
// compared case-insensitively.
func AnyRole(names ...string) Requirement { return anyOfRoles(names) }

// IsAdmin reports blanket authorization: the ADMIN role (any casing) or the
// admin:all permission. Either alone suffices.
func IsAdmin(c *Context) bool {
	if c == nil {
		return false
	}
	return c.HasRole(AdminRole) || c.HasPermission(PermAdminAll)
}

// Evaluate applies a requirement to a context. Admin short-circuits to allow.
func Evaluate(c *Context, req Requirement) bool {
	if c == nil {
		return false
	}
	if IsAdmin(c) {
		return true
	}
	return req.Satisfied(c)
}

// NormalizeRoleName upper-cases a role name for storage, preserving the
// convention that role names are written in upper case.
func NormalizeRoleName(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}
