// Package authtest provides an in-memory auth.Store for tests that need a
// working persistence layer without a database.
package authtest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"screener.dev/internal/auth"
)

// MemStore implements auth.Store on maps. Setting Err makes every call fail
// with it, which simulates an unreachable backend.
type MemStore struct {
	mu  sync.Mutex
	seq int

	Err error

	Users     map[string]auth.User
	Roles     map[string]auth.Role
	Perms     map[string]auth.Permission
	UserRoles map[string]map[string]auth.UserRoleAssignment
	RolePerms map[string]map[string]bool
	Sessions  map[string]auth.Session
	Audit     []auth.AuditEntry
}

var _ auth.Store = (*MemStore)(nil)

func NewMemStore() *MemStore {
	return &MemStore{
		Users:     make(map[string]auth.User),
		Roles:     make(map[string]auth.Role),
		Perms:     make(map[string]auth.Permission),
		UserRoles: make(map[string]map[string]auth.UserRoleAssignment),
		RolePerms: make(map[string]map[string]bool),
		Sessions:  make(map[string]auth.Session),
	}
}

func (m *MemStore) nextID(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s-%04d", prefix, m.seq)
}

func (m *MemStore) CreateUser(_ context.Context, u auth.User) (auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return auth.User{}, m.Err
	}
	for _, existing := range m.Users {
		if strings.EqualFold(existing.Email, u.Email) {
			return auth.User{}, fmt.Errorf("%w: email already exists", auth.ErrConflict)
		}
	}
	if u.ID == "" {
		u.ID = m.nextID("user")
	}
	m.Users[u.ID] = u
	return u, nil
}

func (m *MemStore) GetUser(_ context.Context, id string) (auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return auth.User{}, m.Err
	}
	u, ok := m.Users[id]
	if !ok {
		return auth.User{}, auth.ErrNotFound
	}
	return u, nil
}

func (m *MemStore) GetUserByEmail(_ context.Context, email string) (auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return auth.User{}, m.Err
	}
	for _, u := range m.Users {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return auth.User{}, auth.ErrNotFound
}

func (m *MemStore) ListUsers(_ context.Context) ([]auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	users := make([]auth.User, 0, len(m.Users))
	for _, u := range m.Users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Email < users[j].Email })
	return users, nil
}

func (m *MemStore) UpdateUser(_ context.Context, id string, upd auth.UserUpdate) (auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return auth.User{}, m.Err
	}
	u, ok := m.Users[id]
	if !ok {
		return auth.User{}, auth.ErrNotFound
	}
	if upd.FullName != nil {
		u.FullName = *upd.FullName
	}
	if upd.IsActive != nil {
		u.IsActive = *upd.IsActive
	}
	if upd.PasswordHash != nil {
		u.PasswordHash = *upd.PasswordHash
	}
	u.UpdatedAt = time.Now().UTC()
	m.Users[id] = u
	return u, nil
}

func (m *MemStore) TouchLastLogin(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	u, ok := m.Users[id]
	if !ok {
		return auth.ErrNotFound
	}
	u.LastLoginAt = &at
	m.Users[id] = u
	return nil
}

func (m *MemStore) CountUsers(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return 0, m.Err
	}
	return len(m.Users), nil
}

func (m *MemStore) CreateRole(_ context.Context, r auth.Role) (auth.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return auth.Role{}, m.Err
	}
	for _, existing := range m.Roles {
		if strings.EqualFold(existing.Name, r.Name) {
			return auth.Role{}, fmt.Errorf("%w: role name already exists", auth.ErrConflict)
		}
	}
	if r.ID == "" {
		r.ID = m.nextID("role")
	}
	m.Roles[r.ID] = r
	return r, nil
}

func (m *MemStore) GetRole(_ context.Context, id string) (auth.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return auth.Role{}, m.Err
	}
	r, ok := m.Roles[id]
	if !ok {
		return auth.Role{}, auth.ErrNotFound
	}
	return r, nil
}

func (m *MemStore) GetRoleByName(_ context.Context, name string) (auth.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return auth.Role{}, m.Err
	}
	for _, r := range m.Roles {
		if strings.EqualFold(r.Name, name) {
			return r, nil
		}
	}
	return auth.Role{}, auth.ErrNotFound
}

func (m *MemStore) ListRoles(_ context.Context) ([]auth.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	roles := make([]auth.Role, 0, len(m.Roles))
	for _, r := range m.Roles {
		roles = append(roles, r)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i].Name < roles[j].Name })
	return roles, nil
}

func (m *MemStore) UpdateRole(_ context.Context, id string, upd auth.RoleUpdate) (auth.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return auth.Role{}, m.Err
	}
	r, ok := m.Roles[id]
	if !ok {
		return auth.Role{}, auth.ErrNotFound
	}
	if upd.Name != nil {
		for otherID, other := range m.Roles {
			if otherID != id && strings.EqualFold(other.Name, *upd.Name) {
				return auth.Role{}, fmt.Errorf("%w: role name already exists", auth.ErrConflict)
			}
		}
		r.Name = *upd.Name
	}
	if upd.Description != nil {
		r.Description = *upd.Description
	}
	r.UpdatedAt = time.Now().UTC()
	m.Roles[id] = r
	return r, nil
}

func (m *MemStore) EnsurePermissions(_ context.Context, perms []auth.Permission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
next:
	for _, p := range perms {
		for _, existing := range m.Perms {
			if existing.Key == p.Key {
				continue next
			}
		}
		if p.ID == "" {
			p.ID = m.nextID("perm")
		}
		m.Perms[p.ID] = p
	}
	return nil
}

func (m *MemStore) ListPermissions(_ context.Context) ([]auth.Permission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	perms := make([]auth.Permission, 0, len(m.Perms))
	for _, p := range m.Perms {
		perms = append(perms, p)
	}
	sort.Slice(perms, func(i, j int) bool { return perms[i].Key < perms[j].Key })
	return perms, nil
}

func (m *MemStore) SetRolePermissions(_ context.Context, roleID string, permissionIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	if _, ok := m.Roles[roleID]; !ok {
		return auth.ErrNotFound
	}
	set := make(map[string]bool, len(permissionIDs))
	for _, id := range permissionIDs {
		if _, ok := m.Perms[id]; !ok {
			return fmt.Errorf("%w: permission %s not found", auth.ErrNotFound, id)
		}
		set[id] = true
	}
	m.RolePerms[roleID] = set
	return nil
}

func (m *MemStore) AssignRoleToUser(_ context.Context, a auth.UserRoleAssignment) (auth.UserRoleAssignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return auth.UserRoleAssignment{}, m.Err
	}
	if _, ok := m.Users[a.UserID]; !ok {
		return auth.UserRoleAssignment{}, auth.ErrNotFound
	}
	if _, ok := m.Roles[a.RoleID]; !ok {
		return auth.UserRoleAssignment{}, auth.ErrNotFound
	}
	if m.UserRoles[a.UserID] == nil {
		m.UserRoles[a.UserID] = make(map[string]auth.UserRoleAssignment)
	}
	if existing, ok := m.UserRoles[a.UserID][a.RoleID]; ok {
		return existing, nil
	}
	if a.AssignedAt.IsZero() {
		a.AssignedAt = time.Now().UTC()
	}
	m.UserRoles[a.UserID][a.RoleID] = a
	return a, nil
}

func (m *MemStore) InsertSession(_ context.Context, s auth.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Sessions[s.ID] = s
	return nil
}

func (m *MemStore) RevokeSessionByTokenHash(_ context.Context, tokenHash string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	for id, s := range m.Sessions {
		if s.TokenHash == tokenHash && s.RevokedAt == nil {
			s.RevokedAt = &at
			m.Sessions[id] = s
		}
	}
	return nil
}

func (m *MemStore) RevokeSessionByID(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	if s, ok := m.Sessions[id]; ok && s.RevokedAt == nil {
		s.RevokedAt = &at
		m.Sessions[id] = s
	}
	return nil
}

func (m *MemStore) RevokeSessionsForUser(_ context.Context, userID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	for id, s := range m.Sessions {
		if s.UserID == userID && s.RevokedAt == nil {
			s.RevokedAt = &at
			m.Sessions[id] = s
		}
	}
	return nil
}

func (m *MemStore) ResolveSession(_ context.Context, tokenHash string, now time.Time) (*auth.Context, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	for _, s := range m.Sessions {
		if s.TokenHash != tokenHash || s.RevokedAt != nil || !s.ExpiresAt.After(now) {
			continue
		}
		u, ok := m.Users[s.UserID]
		if !ok || !u.IsActive {
			return nil, nil
		}
		roleSet := make(map[string]bool)
		permSet := make(map[string]bool)
		for roleID := range m.UserRoles[u.ID] {
			role, ok := m.Roles[roleID]
			if !ok {
				continue
			}
			roleSet[role.Name] = true
			for permID := range m.RolePerms[roleID] {
				if p, ok := m.Perms[permID]; ok {
					permSet[p.Key] = true
				}
			}
		}
		return &auth.Context{
			User:          u,
			SessionID:     s.ID,
			SessionExpiry: s.ExpiresAt,
			Roles:         sortedKeys(roleSet),
			Permissions:   sortedKeys(permSet),
		}, nil
	}
	return nil, nil
}

func (m *MemStore) AppendAudit(_ context.Context, e auth.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Audit = append(m.Audit, e)
	return nil
}

func (m *MemStore) ListAudit(_ context.Context, f auth.AuditFilter, limit int) ([]auth.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	var out []auth.AuditEntry
	for i := len(m.Audit) - 1; i >= 0 && len(out) < limit; i-- {
		e := m.Audit[i]
		if !f.From.IsZero() && e.CreatedAt.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && e.CreatedAt.After(f.To) {
			continue
		}
		if f.Actor != "" && e.ActorUserID != f.Actor {
			continue
		}
		if f.Action != "" && e.Action != f.Action {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
