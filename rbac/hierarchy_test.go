package rbac

import "testing"

func TestNewHierarchyValidation(t *testing.T) {
	cases := []struct {
		name       string
		order      []Role
		orgWide    Role
		management Role
	}{
		{"empty order", nil, RoleOrgAdmin, RoleHR},
		{"duplicate role", []Role{RoleEmployee, RoleEmployee}, RoleEmployee, RoleEmployee},
		{"empty role name", []Role{RoleEmployee, ""}, RoleEmployee, RoleEmployee},
		{"org-wide threshold outside order", []Role{RoleEmployee, RoleHR}, RoleOrgAdmin, RoleHR},
		{"management threshold outside order", []Role{RoleEmployee, RoleOrgAdmin}, RoleOrgAdmin, RoleHR},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewHierarchy(tc.order, tc.orgWide, tc.management); err == nil {
				t.Fatal("expected constructor to reject hierarchy")
			}
		})
	}
}

func TestHasMinimumRole(t *testing.T) {
	h := DefaultHierarchy()

	cases := []struct {
		principal Role
		required  Role
		want      bool
	}{
		{RoleHR, RoleEmployee, true},
		{RoleEmployee, RoleHR, false},
		{RoleEmployee, RoleEmployee, true},
		{RoleSuperAdmin, RoleTrainee, true},
		{RoleTrainee, RoleSuperAdmin, false},
		{"janitor", RoleTrainee, false},
		{RoleOrgAdmin, "janitor", false},
	}
	for _, tc := range cases {
		if got := h.HasMinimumRole(tc.principal, tc.required); got != tc.want {
			t.Errorf("HasMinimumRole(%q, %q) = %v, want %v", tc.principal, tc.required, got, tc.want)
		}
	}
}

func TestHasAnyRoleIsExact(t *testing.T) {
	h := DefaultHierarchy()

	if !h.HasAnyRole(RoleHR, RoleHR, RoleDeptAdmin) {
		t.Error("expected exact member to match")
	}
	// Outranking a listed role is not membership.
	if h.HasAnyRole(RoleSuperAdmin, RoleHR, RoleDeptAdmin) {
		t.Error("expected super_admin to fail exact-membership check")
	}
	if h.HasAnyRole("janitor", "janitor") {
		t.Error("expected unknown role to fail even when listed")
	}
	if h.HasAnyRole(RoleHR) {
		t.Error("expected empty allow list to deny")
	}
}

func TestHasDepartmentAccess(t *testing.T) {
	h := DefaultHierarchy()

	cases := []struct {
		name          string
		role          Role
		principalDept string
		targetDept    string
		want          bool
	}{
		{"same department", RoleDeptAdmin, "engineering", "engineering", true},
		{"other department", RoleDeptAdmin, "engineering", "sales", false},
		{"org admin crosses departments", RoleOrgAdmin, "engineering", "sales", true},
		{"super admin crosses departments", RoleSuperAdmin, "", "sales", true},
		{"unscoped resource", RoleTrainee, "engineering", "", true},
		{"principal without department", RoleEmployee, "", "sales", false},
		{"unknown role same department", "janitor", "sales", "sales", true},
		{"unknown role other department", "janitor", "sales", "engineering", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := h.HasDepartmentAccess(tc.role, tc.principalDept, tc.targetDept)
			if got != tc.want {
				t.Fatalf("HasDepartmentAccess(%q, %q, %q) = %v, want %v",
					tc.role, tc.principalDept, tc.targetDept, got, tc.want)
			}
		})
	}
}

func TestHasSelfOrManagementAccess(t *testing.T) {
	h := DefaultHierarchy()

	if !h.HasSelfOrManagementAccess("u1", RoleTrainee, "u1") {
		t.Error("expected self-access regardless of role")
	}
	if h.HasSelfOrManagementAccess("u1", RoleEmployee, "u2") {
		t.Error("expected employee to be denied another principal's record")
	}
	if !h.HasSelfOrManagementAccess("u1", RoleHR, "u2") {
		t.Error("expected hr to reach another principal's record")
	}
	if !h.HasSelfOrManagementAccess("u1", RoleOrgAdmin, "u2") {
		t.Error("expected org_admin to reach another principal's record")
	}
	// Two anonymous principals are not the same principal.
	if h.HasSelfOrManagementAccess("", RoleEmployee, "") {
		t.Error("expected empty principal IDs to never match as self")
	}
}

func TestCustomThresholds(t *testing.T) {
	h, err := NewHierarchy(
		[]Role{RoleEmployee, RoleTeamLead, RoleDeptAdmin},
		RoleDeptAdmin, RoleTeamLead,
	)
	if err != nil {
		t.Fatalf("NewHierarchy failed: %v", err)
	}

	if !h.HasDepartmentAccess(RoleDeptAdmin, "a", "b") {
		t.Error("expected custom org-wide threshold to bypass department scoping")
	}
	if h.HasDepartmentAccess(RoleTeamLead, "a", "b") {
		t.Error("expected role below custom org-wide threshold to stay scoped")
	}
	if !h.HasSelfOrManagementAccess("u1", RoleTeamLead, "u2") {
		t.Error("expected custom management threshold to grant access")
	}
}
