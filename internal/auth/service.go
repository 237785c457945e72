package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// MaxAuditRows caps audit log listings.
const MaxAuditRows = 500

// Service implements RBAC administration: user, role, permission and mapping
// mutations, each paired with an audit write. The service performs no
// authorization of its own — guards run in the HTTP layer before any method
// here executes.
type Service struct {
	store    Store
	codec    *Codec
	sessions *Sessions
	audit    AuditSink
	now      func() time.Time
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithServiceClock overrides the time source, for tests.
func WithServiceClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs the administration service.
func NewService(store Store, codec *Codec, sessions *Sessions, sink AuditSink, opts ...ServiceOption) (*Service, error) {
	if store == nil || codec == nil || sessions == nil || sink == nil {
		return nil, errors.New("auth: store, codec, sessions and audit sink are required")
	}
	s := &Service{
		store:    store,
		codec:    codec,
		sessions: sessions,
		audit:    sink,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// EnsureBuiltins makes sure the seed permission catalog exists.
func (s *Service) EnsureBuiltins(ctx context.Context) error {
	return s.store.EnsurePermissions(ctx, BuiltinPermissions)
}

// Authenticate verifies credentials for an active user. Unknown email,
// deactivated account and wrong password all collapse into ErrUnauthenticated
// so callers cannot enumerate accounts. On success the user's last-login
// timestamp is advanced.
func (s *Service) Authenticate(ctx context.Context, email, password string) (User, error) {
	email = NormalizeEmail(email)
	if email == "" || password == "" {
		return User{}, ErrUnauthenticated
	}
	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return User{}, ErrUnauthenticated
		}
		return User{}, err
	}
	if !user.IsActive {
		return User{}, ErrUnauthenticated
	}
	if !s.codec.VerifyPassword(password, user.PasswordHash) {
		return User{}, ErrUnauthenticated
	}
	if err := s.store.TouchLastLogin(ctx, user.ID, s.now().UTC()); err != nil {
		return User{}, err
	}
	return user, nil
}

// CreateUserInput carries the fields for user creation.
type CreateUserInput struct {
	Email    string
	FullName string
	Password string
	IsActive bool
}

// CreateUser creates a user. A duplicate normalized email surfaces as
// ErrConflict.
func (s *Service) CreateUser(ctx context.Context, in CreateUserInput) (User, error) {
	email := NormalizeEmail(in.Email)
	if email == "" || !strings.Contains(email, "@") {
		return User{}, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	hash, err := s.codec.HashPassword(in.Password)
	if err != nil {
		return User{}, err
	}
	user, err := s.store.CreateUser(ctx, User{
		Email:        email,
		FullName:     strings.TrimSpace(in.FullName),
		PasswordHash: hash,
		IsActive:     in.IsActive,
	})
	if err != nil {
		return User{}, err
	}
	s.audit.Record(ctx, AuditEntry{
		Action:     "admin.user.create",
		EntityType: "user",
		EntityID:   user.ID,
		Metadata:   map[string]string{"email": user.Email},
	})
	return user, nil
}

// UpdateUserInput carries a partial user mutation; nil fields are untouched.
type UpdateUserInput struct {
	FullName *string
	IsActive *bool
	Password *string
}

// UpdateUser applies a partial update. Deactivating the user or replacing the
// password revokes every open session for immediate lockout — the guard layer
// depends on this invariant.
func (s *Service) UpdateUser(ctx context.Context, id string, in UpdateUserInput) (User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return User{}, fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	upd := UserUpdate{IsActive: in.IsActive}
	if in.FullName != nil {
		trimmed := strings.TrimSpace(*in.FullName)
		upd.FullName = &trimmed
	}
	if in.Password != nil {
		hash, err := s.codec.HashPassword(*in.Password)
		if err != nil {
			return User{}, err
		}
		upd.PasswordHash = &hash
	}
	user, err := s.store.UpdateUser(ctx, id, upd)
	if err != nil {
		return User{}, err
	}
	deactivated := in.IsActive != nil && !*in.IsActive
	if deactivated || in.Password != nil {
		if err := s.sessions.RevokeAllForUser(ctx, id); err != nil {
			return User{}, fmt.Errorf("revoke sessions: %w", err)
		}
	}
	meta := map[string]string{}
	if in.IsActive != nil {
		meta["is_active"] = strconv.FormatBool(*in.IsActive)
	}
	if in.Password != nil {
		meta["password_reset"] = "true"
	}
	s.audit.Record(ctx, AuditEntry{
		Action:     "admin.user.update",
		EntityType: "user",
		EntityID:   user.ID,
		Metadata:   meta,
	})
	return user, nil
}

// ListUsers returns every user.
func (s *Service) ListUsers(ctx context.Context) ([]User, error) {
	return s.store.ListUsers(ctx)
}

// CreateRole creates a role. Names are stored upper-cased; duplicates surface
// as ErrConflict.
func (s *Service) CreateRole(ctx context.Context, name, description string) (Role, error) {
	name = NormalizeRoleName(name)
	if name == "" {
		return Role{}, fmt.Errorf("%w: role name is required", ErrInvalidInput)
	}
	role, err := s.store.CreateRole(ctx, Role{Name: name, Description: strings.TrimSpace(description)})
	if err != nil {
		return Role{}, err
	}
	s.audit.Record(ctx, AuditEntry{
		Action:     "admin.role.create",
		EntityType: "role",
		EntityID:   role.ID,
		Metadata:   map[string]string{"name": role.Name},
	})
	return role, nil
}

// UpdateRoleInput carries a partial role mutation.
type UpdateRoleInput struct {
	Name        *string
	Description *string
}

// UpdateRole applies a partial role update.
func (s *Service) UpdateRole(ctx context.Context, id string, in UpdateRoleInput) (Role, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Role{}, fmt.Errorf("%w: role_id is required", ErrInvalidInput)
	}
	upd := RoleUpdate{}
	if in.Name != nil {
		name := NormalizeRoleName(*in.Name)
		if name == "" {
			return Role{}, fmt.Errorf("%w: role name is required", ErrInvalidInput)
		}
		upd.Name = &name
	}
	if in.Description != nil {
		desc := strings.TrimSpace(*in.Description)
		upd.Description = &desc
	}
	role, err := s.store.UpdateRole(ctx, id, upd)
	if err != nil {
		return Role{}, err
	}
	s.audit.Record(ctx, AuditEntry{
		Action:     "admin.role.update",
		EntityType: "role",
		EntityID:   role.ID,
		Metadata:   map[string]string{"name": role.Name},
	})
	return role, nil
}

// ListRoles returns every role.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.store.ListRoles(ctx)
}

// ListPermissions returns the permission catalog.
func (s *Service) ListPermissions(ctx context.Context) ([]Permission, error) {
	return s.store.ListPermissions(ctx)
}

// AssignRole links a role to a user. Assigning an already-held role is a
// no-op, not an error.
func (s *Service) AssignRole(ctx context.Context, userID, roleID, assignedBy string) (UserRoleAssignment, error) {
	userID = strings.TrimSpace(userID)
	roleID = strings.TrimSpace(roleID)
	if userID == "" || roleID == "" {
		return UserRoleAssignment{}, fmt.Errorf("%w: user_id and role_id are required", ErrInvalidInput)
	}
	assignment, err := s.store.AssignRoleToUser(ctx, UserRoleAssignment{
		UserID:     userID,
		RoleID:     roleID,
		AssignedBy: assignedBy,
	})
	if err != nil {
		return UserRoleAssignment{}, err
	}
	s.audit.Record(ctx, AuditEntry{
		Action:     "admin.user.assign_role",
		EntityType: "user",
		EntityID:   userID,
		Metadata:   map[string]string{"role_id": roleID},
	})
	return assignment, nil
}

// SetRolePermissions replaces the role's permission set wholesale inside one
// transaction. Callers submit the complete desired set, not a delta.
func (s *Service) SetRolePermissions(ctx context.Context, roleID string, permissionIDs []string) error {
	roleID = strings.TrimSpace(roleID)
	if roleID == "" {
		return fmt.Errorf("%w: role_id is required", ErrInvalidInput)
	}
	ids := dedupeStrings(permissionIDs)
	if err := s.store.SetRolePermissions(ctx, roleID, ids); err != nil {
		return err
	}
	s.audit.Record(ctx, AuditEntry{
		Action:     "admin.role.permissions.replace",
		EntityType: "role",
		EntityID:   roleID,
		Metadata:   map[string]string{"count": strconv.Itoa(len(ids))},
	})
	return nil
}

// ListAuditLogs returns filtered audit entries, most recent first, capped at
// MaxAuditRows.
func (s *Service) ListAuditLogs(ctx context.Context, f AuditFilter) ([]AuditEntry, error) {
	return s.store.ListAudit(ctx, f, MaxAuditRows)
}

// SeedAdmin bootstraps the first administrator when the user table is empty:
// an active user with the ADMIN role. Safe to call on every startup.
func (s *Service) SeedAdmin(ctx context.Context, email, password string) error {
	count, err := s.store.CountUsers(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	user, err := s.CreateUser(ctx, CreateUserInput{
		Email:    email,
		FullName: "Administrator",
		Password: password,
		IsActive: true,
	})
	if err != nil {
		return err
	}
	role, err := s.store.GetRoleByName(ctx, AdminRole)
	if errors.Is(err, ErrNotFound) {
		role, err = s.CreateRole(ctx, AdminRole, "Full administrative access")
	}
	if err != nil {
		return err
	}
	_, err = s.AssignRole(ctx, user.ID, role.ID, user.ID)
	return err
}

func dedupeStrings(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
