package pg

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return New(db), mock
}

func TestResolveSessionAggregatesRolesAndPermissions(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	created := now.Add(-time.Hour)
	expires := now.Add(23 * time.Hour)

	cols := []string{"id", "email", "full_name", "is_active", "last_login_at", "created_at", "updated_at",
		"id", "expires_at", "name", "key"}
	rows := sqlmock.NewRows(cols).
		AddRow("user-1", "ada@example.com", "Ada", true, now, created, created, "sess-1", expires, "ANALYST", "screener:run").
		AddRow("user-1", "ada@example.com", "Ada", true, now, created, created, "sess-1", expires, "ANALYST", "investments:read").
		AddRow("user-1", "ada@example.com", "Ada", true, now, created, created, "sess-1", expires, "AUDITOR", "admin:audit:read").
		AddRow("user-1", "ada@example.com", "Ada", true, now, created, created, "sess-1", expires, "AUDITOR", "screener:run")

	mock.ExpectQuery("from sessions s").WithArgs("hash-abc", now).WillReturnRows(rows)

	ac, err := store.ResolveSession(context.Background(), "hash-abc", now)
	if err != nil {
		t.Fatalf("ResolveSession: %v", err)
	}
	if ac == nil {
		t.Fatal("expected a resolved context")
	}
	if ac.User.ID != "user-1" || ac.SessionID != "sess-1" || !ac.SessionExpiry.Equal(expires) {
		t.Fatalf("unexpected context: %+v", ac)
	}
	if ac.User.LastLoginAt == nil {
		t.Fatal("last login not mapped")
	}

	wantRoles := []string{"ANALYST", "AUDITOR"}
	if len(ac.Roles) != len(wantRoles) {
		t.Fatalf("roles = %v, want %v", ac.Roles, wantRoles)
	}
	for i, r := range wantRoles {
		if ac.Roles[i] != r {
			t.Fatalf("roles = %v, want %v", ac.Roles, wantRoles)
		}
	}
	wantPerms := []string{"admin:audit:read", "investments:read", "screener:run"}
	if len(ac.Permissions) != len(wantPerms) {
		t.Fatalf("permissions = %v, want %v", ac.Permissions, wantPerms)
	}
	for i, p := range wantPerms {
		if ac.Permissions[i] != p {
			t.Fatalf("permissions = %v, want %v", ac.Permissions, wantPerms)
		}
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestResolveSessionNoRolesStillResolves(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	cols := []string{"id", "email", "full_name", "is_active", "last_login_at", "created_at", "updated_at",
		"id", "expires_at", "name", "key"}
	rows := sqlmock.NewRows(cols).
		AddRow("user-2", "new@example.com", "New User", true, nil, now, now, "sess-2", now.Add(time.Hour), nil, nil)

	mock.ExpectQuery("from sessions s").WithArgs("hash-def", now).WillReturnRows(rows)

	ac, err := store.ResolveSession(context.Background(), "hash-def", now)
	if err != nil {
		t.Fatalf("ResolveSession: %v", err)
	}
	if ac == nil {
		t.Fatal("expected a resolved context")
	}
	if len(ac.Roles) != 0 || len(ac.Permissions) != 0 {
		t.Fatalf("expected empty grants, got roles=%v perms=%v", ac.Roles, ac.Permissions)
	}
	if ac.User.LastLoginAt != nil {
		t.Fatal("nil last login must stay nil")
	}
}

func TestResolveSessionNoMatch(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	cols := []string{"id", "email", "full_name", "is_active", "last_login_at", "created_at", "updated_at",
		"id", "expires_at", "name", "key"}
	mock.ExpectQuery("from sessions s").WithArgs("hash-unknown", now).WillReturnRows(sqlmock.NewRows(cols))

	ac, err := store.ResolveSession(context.Background(), "hash-unknown", now)
	if err != nil {
		t.Fatalf("ResolveSession: %v", err)
	}
	if ac != nil {
		t.Fatalf("expected nil context for no match, got %+v", ac)
	}
}

func TestSessionRevocations(t *testing.T) {
	store, mock := newMockStore(t)
	at := time.Now().UTC()

	mock.ExpectExec("update sessions set revoked_at").WithArgs("hash-1", at).
		WillReturnResult(sqlmock.NewResult(0, 1))
	if err := store.RevokeSessionByTokenHash(context.Background(), "hash-1", at); err != nil {
		t.Fatalf("RevokeSessionByTokenHash: %v", err)
	}

	// Matching nothing is not an error.
	mock.ExpectExec("update sessions set revoked_at").WithArgs("hash-missing", at).
		WillReturnResult(sqlmock.NewResult(0, 0))
	if err := store.RevokeSessionByTokenHash(context.Background(), "hash-missing", at); err != nil {
		t.Fatalf("no-op revoke: %v", err)
	}

	mock.ExpectExec("update sessions set revoked_at").WithArgs("sess-1", at).
		WillReturnResult(sqlmock.NewResult(0, 1))
	if err := store.RevokeSessionByID(context.Background(), "sess-1", at); err != nil {
		t.Fatalf("RevokeSessionByID: %v", err)
	}

	mock.ExpectExec("update sessions set revoked_at").WithArgs("user-1", at).
		WillReturnResult(sqlmock.NewResult(0, 3))
	if err := store.RevokeSessionsForUser(context.Background(), "user-1", at); err != nil {
		t.Fatalf("RevokeSessionsForUser: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
