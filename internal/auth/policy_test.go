package auth

import "testing"

func TestIsAdmin(t *testing.T) {
	cases := []struct {
		name string
		ctx  Context
		want bool
	}{
		{"by role", Context{Roles: []string{"ADMIN"}}, true},
		{"by role case-insensitive", Context{Roles: []string{"admin"}}, true},
		{"by blanket permission", Context{Permissions: []string{PermAdminAll}}, true},
		{"plain user", Context{Roles: []string{"ANALYST"}, Permissions: []string{PermScreenerRun}}, false},
		{"empty context", Context{}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsAdmin(&tc.ctx); got != tc.want {
				t.Fatalf("IsAdmin = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestEvaluateAdminShortCircuit(t *testing.T) {
	admin := &Context{Roles: []string{"admin"}}
	if !Evaluate(admin, AnyOf(PermManageUsers)) {
		t.Fatal("admin must satisfy any permission requirement")
	}
	if !Evaluate(admin, AllOf(PermManageUsers, PermManageRoles, PermReadAudit)) {
		t.Fatal("admin must satisfy compound requirements")
	}
	if !Evaluate(admin, AnyRole("AUDITOR")) {
		t.Fatal("admin must satisfy role requirements")
	}
}

func TestEvaluateRequirements(t *testing.T) {
	ctx := &Context{
		Roles:       []string{"ANALYST"},
		Permissions: []string{PermScreenerRun, PermInvestmentsRead},
	}

	if !Evaluate(ctx, AnyOf(PermScreenerRun, PermManageUsers)) {
		t.Fatal("AnyOf should match a held permission")
	}
	if Evaluate(ctx, AnyOf(PermManageUsers)) {
		t.Fatal("AnyOf should fail when no permission is held")
	}
	if !Evaluate(ctx, AllOf(PermScreenerRun, PermInvestmentsRead)) {
		t.Fatal("AllOf should match when every permission is held")
	}
	if Evaluate(ctx, AllOf(PermScreenerRun, PermInvestmentsExport)) {
		t.Fatal("AllOf should fail when any permission is missing")
	}
	if !Evaluate(ctx, AnyRole("analyst")) {
		t.Fatal("AnyRole should match case-insensitively")
	}
	if Evaluate(ctx, AnyRole("AUDITOR")) {
		t.Fatal("AnyRole should fail for unheld roles")
	}
	if Evaluate(nil, AnyOf(PermScreenerRun)) {
		t.Fatal("nil context must never satisfy a requirement")
	}
}

func TestNormalizeRoleName(t *testing.T) {
	if got := NormalizeRoleName("  analyst "); got != "ANALYST" {
		t.Fatalf("unexpected normalization: %s", got)
	}
}
