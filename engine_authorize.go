package authcore

import (
	"context"

	"github.com/stratushr/authcore/rbac"
)

// Target describes the resource an authorization decision is about. Zero
// fields relax the corresponding check: an empty Department means the
// resource is not department scoped, an empty PrincipalID means it is not
// owned by anyone in particular.
type Target struct {
	Department  string
	PrincipalID string
}

// Policy is one authorization rule evaluated against the stored principal
// and a target. Policies fail closed: an unknown role denies.
type Policy func(h *rbac.Hierarchy, p Principal, t Target) bool

// MinimumRole admits principals whose role is at or above required.
func MinimumRole(required rbac.Role) Policy {
	return func(h *rbac.Hierarchy, p Principal, _ Target) bool {
		return h.HasMinimumRole(rbac.Role(p.Role), required)
	}
}

// AnyOf admits principals whose role is exactly one of allowed. Seniority
// does not substitute for membership; a super_admin is denied by
// AnyOf(RoleHR) unless listed.
func AnyOf(allowed ...rbac.Role) Policy {
	return func(h *rbac.Hierarchy, p Principal, _ Target) bool {
		return h.HasAnyRole(rbac.Role(p.Role), allowed...)
	}
}

// DepartmentScope admits principals whose department matches the target's,
// with roles at or above the org-wide threshold bypassing the check. An
// unscoped target admits everyone with a known role.
func DepartmentScope() Policy {
	return func(h *rbac.Hierarchy, p Principal, t Target) bool {
		return h.HasDepartmentAccess(rbac.Role(p.Role), p.Department, t.Department)
	}
}

// SelfOrManagement admits the principal the target belongs to, and any
// principal at or above the management threshold.
func SelfOrManagement() Policy {
	return func(h *rbac.Hierarchy, p Principal, t Target) bool {
		return h.HasSelfOrManagementAccess(p.ID, rbac.Role(p.Role), t.PrincipalID)
	}
}

// AllOf admits only when every listed policy admits. An empty list denies.
func AllOf(policies ...Policy) Policy {
	return func(h *rbac.Hierarchy, p Principal, t Target) bool {
		for _, pol := range policies {
			if !pol(h, p, t) {
				return false
			}
		}
		return len(policies) > 0
	}
}

// Authorize evaluates policy for the authenticated identity against target
// and returns [ErrPermissionDenied] when it does not admit.
//
// Role, department, and liveness are read from the identity store at
// decision time, not from the credential: a transfer or deactivation takes
// effect on the next authorization, not at credential expiry.
func (e *Engine) Authorize(ctx context.Context, id Identity, target Target, policy Policy) error {
	if err := e.checkReady(); err != nil {
		return err
	}
	if policy == nil || id.PrincipalID == "" {
		e.metricInc(MetricPermissionDenied)
		return ErrPermissionDenied
	}

	principal, err := e.identities.GetByID(ctx, id.PrincipalID)
	if err != nil {
		e.metricInc(MetricPermissionDenied)
		e.emitAudit(ctx, auditEventPermissionDenied, false, id.PrincipalID, id.Email, ErrPrincipalNotFound, nil)
		return ErrPermissionDenied
	}
	if !principal.Active {
		e.metricInc(MetricPermissionDenied)
		e.emitAudit(ctx, auditEventPermissionDenied, false, principal.ID, principal.Email, ErrPrincipalInactive, nil)
		return ErrPermissionDenied
	}

	if !policy(e.hierarchy, principal, target) {
		e.metricInc(MetricPermissionDenied)
		e.emitAudit(ctx, auditEventPermissionDenied, false, principal.ID, principal.Email, ErrPermissionDenied,
			map[string]string{"target_department": target.Department, "target_principal": target.PrincipalID})
		return ErrPermissionDenied
	}

	return nil
}
