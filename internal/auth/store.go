package auth

import (
	"context"
	"time"
)

// UserUpdate carries a partial user mutation. Nil fields are untouched.
type UserUpdate struct {
	FullName     *string
	IsActive     *bool
	PasswordHash *string
}

// RoleUpdate carries a partial role mutation.
type RoleUpdate struct {
	Name        *string
	Description *string
}

// Store describes persistence required by the auth subsystem. Implementations
// surface ErrNotFound and ErrConflict for the corresponding constraint
// outcomes; everything else is an infrastructure failure.
type Store interface {
	// Users.
	CreateUser(ctx context.Context, u User) (User, error)
	GetUser(ctx context.Context, id string) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	ListUsers(ctx context.Context) ([]User, error)
	UpdateUser(ctx context.Context, id string, upd UserUpdate) (User, error)
	TouchLastLogin(ctx context.Context, id string, at time.Time) error
	CountUsers(ctx context.Context) (int, error)

	// Roles.
	CreateRole(ctx context.Context, r Role) (Role, error)
	GetRole(ctx context.Context, id string) (Role, error)
	GetRoleByName(ctx context.Context, name string) (Role, error)
	ListRoles(ctx context.Context) ([]Role, error)
	UpdateRole(ctx context.Context, id string, upd RoleUpdate) (Role, error)

	// Permissions and mappings.
	EnsurePermissions(ctx context.Context, perms []Permission) error
	ListPermissions(ctx context.Context) ([]Permission, error)
	SetRolePermissions(ctx context.Context, roleID string, permissionIDs []string) error
	AssignRoleToUser(ctx context.Context, a UserRoleAssignment) (UserRoleAssignment, error)

	// Sessions.
	InsertSession(ctx context.Context, s Session) error
	RevokeSessionByTokenHash(ctx context.Context, tokenHash string, at time.Time) error
	RevokeSessionByID(ctx context.Context, id string, at time.Time) error
	RevokeSessionsForUser(ctx context.Context, userID string, at time.Time) error
	// ResolveSession joins a token hash to its user, roles and permissions in
	// one query. Returns (nil, nil) when nothing valid matches; callers treat
	// that uniformly as unauthenticated.
	ResolveSession(ctx context.Context, tokenHash string, now time.Time) (*Context, error)

	// Audit.
	AppendAudit(ctx context.Context, e AuditEntry) error
	ListAudit(ctx context.Context, f AuditFilter, limit int) ([]AuditEntry, error)
}

// AuditSink receives best-effort audit writes. Implementations must not
// propagate persistence failures to the caller.
type AuditSink interface {
	Record(ctx context.Context, e AuditEntry)
}
