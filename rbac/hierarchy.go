package rbac

import "errors"

// Role is a named rung in the hierarchy.
type Role string

// The platform's built-in roles, least to most privileged.
const (
	RoleTrainee        Role = "trainee"
	RoleIntern         Role = "intern"
	RoleContractor     Role = "contractor"
	RoleEmployee       Role = "employee"
	RoleTeamLead       Role = "team_lead"
	RoleProjectManager Role = "project_manager"
	RoleHR             Role = "hr"
	RoleDeptAdmin      Role = "dept_admin"
	RoleOrgAdmin       Role = "org_admin"
	RoleSuperAdmin     Role = "super_admin"
)

// Hierarchy is a frozen total order over role names plus the two threshold
// roles the scoping predicates pivot on.
type Hierarchy struct {
	order      []Role
	index      map[Role]int
	orgWide    Role
	management Role
}

// NewHierarchy builds a hierarchy from order (least privileged first).
// orgWide is the threshold at or above which department scoping is bypassed;
// management is the threshold for managing other principals' records.
// Both thresholds must be members of order.
func NewHierarchy(order []Role, orgWide, management Role) (*Hierarchy, error) {
	if len(order) == 0 {
		return nil, errors.New("role order must not be empty")
	}

	index := make(map[Role]int, len(order))
	for i, role := range order {
		if role == "" {
			return nil, errors.New("role order contains empty role")
		}
		if _, dup := index[role]; dup {
			return nil, errors.New("role order contains duplicate role")
		}
		index[role] = i
	}
	if _, ok := index[orgWide]; !ok {
		return nil, errors.New("org-wide threshold role not in hierarchy")
	}
	if _, ok := index[management]; !ok {
		return nil, errors.New("management threshold role not in hierarchy")
	}

	return &Hierarchy{
		order:      append([]Role(nil), order...),
		index:      index,
		orgWide:    orgWide,
		management: management,
	}, nil
}

// DefaultHierarchy returns the platform's built-in ten-role order with
// org_admin as the org-wide threshold and hr as the management threshold.
func DefaultHierarchy() *Hierarchy {
	h, err := NewHierarchy([]Role{
		RoleTrainee,
		RoleIntern,
		RoleContractor,
		RoleEmployee,
		RoleTeamLead,
		RoleProjectManager,
		RoleHR,
		RoleDeptAdmin,
		RoleOrgAdmin,
		RoleSuperAdmin,
	}, RoleOrgAdmin, RoleHR)
	if err != nil {
		// The built-in order is a compile-time constant; this cannot fail.
		panic(err)
	}
	return h
}

// Level returns the positional index of role, or false if the role is not a
// member of the hierarchy.
func (h *Hierarchy) Level(role Role) (int, bool) {
	i, ok := h.index[role]
	return i, ok
}

// Contains reports hierarchy membership.
func (h *Hierarchy) Contains(role Role) bool {
	_, ok := h.index[role]
	return ok
}

// Roles returns the order, least privileged first.
func (h *Hierarchy) Roles() []Role {
	return append([]Role(nil), h.order...)
}

// HasMinimumRole reports whether principal is at least as privileged as
// required. A principal role missing from the hierarchy has no level and is
// denied; a required role missing from the hierarchy denies everything.
func (h *Hierarchy) HasMinimumRole(principal, required Role) bool {
	pl, ok := h.Level(principal)
	if !ok {
		return false
	}
	rl, ok := h.Level(required)
	if !ok {
		return false
	}
	return pl >= rl
}

// HasAnyRole reports exact membership of principal in allowed. There is no
// "or higher" expansion here; call sites that want threshold semantics use
// HasMinimumRole instead.
func (h *Hierarchy) HasAnyRole(principal Role, allowed ...Role) bool {
	if !h.Contains(principal) {
		return false
	}
	for _, role := range allowed {
		if principal == role {
			return true
		}
	}
	return false
}

// HasDepartmentAccess reports whether a principal may touch a resource
// scoped to targetDept. Principals at or above the org-wide threshold bypass
// department equality entirely. An empty targetDept means the resource is
// not department-scoped and access is always granted; scoping is opt-in per
// resource.
func (h *Hierarchy) HasDepartmentAccess(principalRole Role, principalDept, targetDept string) bool {
	if targetDept == "" {
		return true
	}
	if h.HasMinimumRole(principalRole, h.orgWide) {
		return true
	}
	return principalDept != "" && principalDept == targetDept
}

// HasSelfOrManagementAccess grants a principal access to its own record
// regardless of role, and otherwise requires the management threshold.
func (h *Hierarchy) HasSelfOrManagementAccess(principalID string, principalRole Role, targetPrincipalID string) bool {
	if principalID != "" && principalID == targetPrincipalID {
		return true
	}
	return h.HasMinimumRole(principalRole, h.management)
}
