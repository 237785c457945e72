package auth

import (
	"strings"
	"time"
)

// User is an account identified by its normalized email. Users are never hard
// deleted; deactivation flips IsActive and revokes every open session.
type User struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	FullName     string     `json:"full_name"`
	PasswordHash string     `json:"-"`
	IsActive     bool       `json:"is_active"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Role is a named bundle of permissions. Names are unique; callers upper-case
// them by convention and comparisons are case-insensitive.
type Role struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Permission is an atomic capability key such as "investments:read".
type Permission struct {
	ID          string    `json:"id"`
	Key         string    `json:"key"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// UserRoleAssignment links a user to a role and records who assigned it.
type UserRoleAssignment struct {
	UserID     string    `json:"user_id"`
	RoleID     string    `json:"role_id"`
	AssignedBy string    `json:"assigned_by,omitempty"`
	AssignedAt time.Time `json:"assigned_at"`
}

// Session binds a hashed token to a user. The raw token is handed to the
// browser once and never persisted.
type Session struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	TokenHash string     `json:"-"`
	ClientIP  string     `json:"client_ip,omitempty"`
	UserAgent string     `json:"user_agent,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt time.Time  `json:"expires_at"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
}

// AuditEntry is an append-only record of a security-relevant action.
type AuditEntry struct {
	ID          string            `json:"id"`
	ActorUserID string            `json:"actor_user_id,omitempty"`
	Action      string            `json:"action"`
	EntityType  string            `json:"entity_type"`
	EntityID    string            `json:"entity_id,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	IPAddress   string            `json:"ip_address,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

// AuditFilter narrows an audit log listing. Zero fields match everything.
type AuditFilter struct {
	From   time.Time
	To     time.Time
	Actor  string
	Action string
}

// Context is the request-scoped identity resolved from a valid session:
// the user plus the deduplicated union of role names and permission keys.
// It is computed fresh per request and never persisted.
type Context struct {
	User          User      `json:"user"`
	SessionID     string    `json:"-"`
	SessionExpiry time.Time `json:"session_expires_at"`
	Roles         []string  `json:"roles"`
	Permissions   []string  `json:"permissions"`
}

// HasRole reports whether the context holds the named role, case-insensitively.
func (c *Context) HasRole(name string) bool {
	for _, r := range c.Roles {
		if strings.EqualFold(r, name) {
			return true
		}
	}
	return false
}

// HasPermission reports whether the context holds the exact permission key.
func (c *Context) HasPermission(key string) bool {
	for _, p := range c.Permissions {
		if p == key {
			return true
		}
	}
	return false
}
