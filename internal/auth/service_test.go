package auth_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"screener.dev/internal/auth"
	"screener.dev/internal/auth/authtest"
)

type captureSink struct {
	mu      sync.Mutex
	entries []auth.AuditEntry
}

func (s *captureSink) Record(_ context.Context, e auth.AuditEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
}

func (s *captureSink) actions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.Action
	}
	return out
}

func newTestService(t *testing.T) (*auth.Service, *auth.Sessions, *authtest.MemStore, *captureSink) {
	t.Helper()
	store := authtest.NewMemStore()
	codec, err := auth.NewCodec(bcrypt.MinCost, "test-pepper")
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	sessions := auth.NewSessions(store, codec)
	sink := &captureSink{}
	svc, err := auth.NewService(store, codec, sessions, sink)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc, sessions, store, sink
}

func TestAuthenticate(t *testing.T) {
	svc, _, store, _ := newTestService(t)
	ctx := context.Background()

	user, err := svc.CreateUser(ctx, auth.CreateUserInput{
		Email:    "Ada@Example.com",
		FullName: "Ada Lovelace",
		Password: "difference-engine",
		IsActive: true,
	})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if user.Email != "ada@example.com" {
		t.Fatalf("email not normalized: %s", user.Email)
	}

	if _, err := svc.Authenticate(ctx, "nobody@example.com", "difference-engine"); !errors.Is(err, auth.ErrUnauthenticated) {
		t.Fatalf("unknown email: got %v, want ErrUnauthenticated", err)
	}
	if _, err := svc.Authenticate(ctx, "ada@example.com", "wrong"); !errors.Is(err, auth.ErrUnauthenticated) {
		t.Fatalf("wrong password: got %v, want ErrUnauthenticated", err)
	}

	got, err := svc.Authenticate(ctx, "  ADA@example.COM ", "difference-engine")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if got.ID != user.ID {
		t.Fatalf("authenticated wrong user: %s", got.ID)
	}
	if store.Users[user.ID].LastLoginAt == nil {
		t.Fatal("last_login_at not advanced on success")
	}

	inactive := false
	if _, err := svc.UpdateUser(ctx, user.ID, auth.UpdateUserInput{IsActive: &inactive}); err != nil {
		t.Fatalf("UpdateUser: %v", err)
	}
	if _, err := svc.Authenticate(ctx, "ada@example.com", "difference-engine"); !errors.Is(err, auth.ErrUnauthenticated) {
		t.Fatalf("deactivated user: got %v, want ErrUnauthenticated", err)
	}
}

func TestCreateUserDuplicateEmail(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	in := auth.CreateUserInput{Email: "dup@example.com", FullName: "First", Password: "password-one", IsActive: true}
	if _, err := svc.CreateUser(ctx, in); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	in.Email = "DUP@example.com"
	if _, err := svc.CreateUser(ctx, in); !errors.Is(err, auth.ErrConflict) {
		t.Fatalf("duplicate email: got %v, want ErrConflict", err)
	}
}

func TestUpdateUserRevokesSessions(t *testing.T) {
	svc, sessions, _, _ := newTestService(t)
	ctx := context.Background()

	user, err := svc.CreateUser(ctx, auth.CreateUserInput{
		Email: "grace@example.com", FullName: "Grace Hopper", Password: "cobol-compiler", IsActive: true,
	})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	_, raw, err := sessions.Create(ctx, user.ID, "203.0.113.9", "test-agent")
	if err != nil {
		t.Fatalf("sessions.Create: %v", err)
	}
	if ac, err := sessions.Resolve(ctx, raw); err != nil || ac == nil {
		t.Fatalf("fresh session should resolve, got ctx=%v err=%v", ac, err)
	}

	inactive := false
	if _, err := svc.UpdateUser(ctx, user.ID, auth.UpdateUserInput{IsActive: &inactive}); err != nil {
		t.Fatalf("UpdateUser deactivate: %v", err)
	}
	if ac, err := sessions.Resolve(ctx, raw); err != nil || ac != nil {
		t.Fatalf("deactivation must revoke sessions, got ctx=%v err=%v", ac, err)
	}

	active := true
	if _, err := svc.UpdateUser(ctx, user.ID, auth.UpdateUserInput{IsActive: &active}); err != nil {
		t.Fatalf("UpdateUser reactivate: %v", err)
	}
	_, raw2, err := sessions.Create(ctx, user.ID, "203.0.113.9", "test-agent")
	if err != nil {
		t.Fatalf("sessions.Create: %v", err)
	}
	newPassword := "flow-matic-rules"
	if _, err := svc.UpdateUser(ctx, user.ID, auth.UpdateUserInput{Password: &newPassword}); err != nil {
		t.Fatalf("UpdateUser password: %v", err)
	}
	if ac, err := sessions.Resolve(ctx, raw2); err != nil || ac != nil {
		t.Fatalf("password change must revoke sessions, got ctx=%v err=%v", ac, err)
	}
	if _, err := svc.Authenticate(ctx, "grace@example.com", newPassword); err != nil {
		t.Fatalf("new password rejected: %v", err)
	}
}

func TestRolesAndPermissions(t *testing.T) {
	svc, _, store, _ := newTestService(t)
	ctx := context.Background()

	if err := svc.EnsureBuiltins(ctx); err != nil {
		t.Fatalf("EnsureBuiltins: %v", err)
	}
	perms, err := svc.ListPermissions(ctx)
	if err != nil {
		t.Fatalf("ListPermissions: %v", err)
	}
	if len(perms) != len(auth.BuiltinPermissions) {
		t.Fatalf("expected %d builtin permissions, got %d", len(auth.BuiltinPermissions), len(perms))
	}
	// Idempotent re-run must not duplicate the catalog.
	if err := svc.EnsureBuiltins(ctx); err != nil {
		t.Fatalf("EnsureBuiltins again: %v", err)
	}
	again, _ := svc.ListPermissions(ctx)
	if len(again) != len(perms) {
		t.Fatalf("catalog grew on re-run: %d -> %d", len(perms), len(again))
	}

	role, err := svc.CreateRole(ctx, "analyst", "Screens equities")
	if err != nil {
		t.Fatalf("CreateRole: %v", err)
	}
	if role.Name != "ANALYST" {
		t.Fatalf("role name not normalized: %s", role.Name)
	}
	if _, err := svc.CreateRole(ctx, "Analyst", ""); !errors.Is(err, auth.ErrConflict) {
		t.Fatalf("duplicate role: got %v, want ErrConflict", err)
	}

	var permIDs []string
	for _, p := range perms {
		if p.Key == auth.PermScreenerRun || p.Key == auth.PermInvestmentsRead {
			permIDs = append(permIDs, p.ID)
		}
	}
	// Duplicates in the submitted set collapse.
	if err := svc.SetRolePermissions(ctx, role.ID, append(permIDs, permIDs[0])); err != nil {
		t.Fatalf("SetRolePermissions: %v", err)
	}
	if got := len(store.RolePerms[role.ID]); got != 2 {
		t.Fatalf("expected 2 role permissions, got %d", got)
	}
	if err := svc.SetRolePermissions(ctx, role.ID, []string{"perm-missing"}); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("unknown permission: got %v, want ErrNotFound", err)
	}

	user, err := svc.CreateUser(ctx, auth.CreateUserInput{
		Email: "alan@example.com", FullName: "Alan Turing", Password: "enigma-breaker", IsActive: true,
	})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	first, err := svc.AssignRole(ctx, user.ID, role.ID, "")
	if err != nil {
		t.Fatalf("AssignRole: %v", err)
	}
	second, err := svc.AssignRole(ctx, user.ID, role.ID, "")
	if err != nil {
		t.Fatalf("AssignRole repeat: %v", err)
	}
	if first.AssignedAt != second.AssignedAt {
		t.Fatal("repeated assignment must return the existing row")
	}
	if _, err := svc.AssignRole(ctx, user.ID, "role-missing", ""); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("unknown role: got %v, want ErrNotFound", err)
	}
}

func TestMutationsAreAudited(t *testing.T) {
	svc, _, _, sink := newTestService(t)
	ctx := context.Background()

	if err := svc.EnsureBuiltins(ctx); err != nil {
		t.Fatalf("EnsureBuiltins: %v", err)
	}
	user, err := svc.CreateUser(ctx, auth.CreateUserInput{
		Email: "audit@example.com", FullName: "Audit Target", Password: "ten-characters", IsActive: true,
	})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	role, err := svc.CreateRole(ctx, "auditor", "")
	if err != nil {
		t.Fatalf("CreateRole: %v", err)
	}
	if _, err := svc.AssignRole(ctx, user.ID, role.ID, user.ID); err != nil {
		t.Fatalf("AssignRole: %v", err)
	}

	want := []string{"admin.user.create", "admin.role.create", "admin.user.assign_role"}
	got := sink.actions()
	if len(got) != len(want) {
		t.Fatalf("expected %d audit entries, got %v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("audit action %d = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestSeedAdmin(t *testing.T) {
	svc, sessions, store, _ := newTestService(t)
	ctx := context.Background()

	if err := svc.SeedAdmin(ctx, "root@example.com", "bootstrap-secret"); err != nil {
		t.Fatalf("SeedAdmin: %v", err)
	}
	user, err := store.GetUserByEmail(ctx, "root@example.com")
	if err != nil {
		t.Fatalf("seeded admin missing: %v", err)
	}
	role, err := store.GetRoleByName(ctx, auth.AdminRole)
	if err != nil {
		t.Fatalf("ADMIN role missing: %v", err)
	}
	if _, ok := store.UserRoles[user.ID][role.ID]; !ok {
		t.Fatal("admin role not assigned to seeded user")
	}

	// Second run is a no-op once users exist.
	if err := svc.SeedAdmin(ctx, "other@example.com", "another-secret"); err != nil {
		t.Fatalf("SeedAdmin rerun: %v", err)
	}
	if _, err := store.GetUserByEmail(ctx, "other@example.com"); !errors.Is(err, auth.ErrNotFound) {
		t.Fatal("rerun must not create a second admin")
	}

	// The seeded admin carries blanket authorization.
	admin, err := svc.Authenticate(ctx, "root@example.com", "bootstrap-secret")
	if err != nil {
		t.Fatalf("Authenticate seeded admin: %v", err)
	}
	_, raw, err := sessions.Create(ctx, admin.ID, "", "")
	if err != nil {
		t.Fatalf("sessions.Create: %v", err)
	}
	ac, err := sessions.Resolve(ctx, raw)
	if err != nil || ac == nil {
		t.Fatalf("Resolve: ctx=%v err=%v", ac, err)
	}
	if !auth.IsAdmin(ac) {
		t.Fatalf("seeded admin context not admin: roles=%v perms=%v", ac.Roles, ac.Permissions)
	}
}
