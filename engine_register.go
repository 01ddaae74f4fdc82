package authcore

import (
	"context"
	"errors"
	"log"

	"github.com/stratushr/authcore/admission"
	"github.com/stratushr/authcore/rbac"
)

// Register creates a principal. Role and department fall back to the
// configured defaults when empty; both are validated before the identity
// store is touched. Email uniqueness is owned by the store.
//
// When [AccountConfig.AutoLogin] is set the result carries a credential
// pair, making registration count as the first login.
func (e *Engine) Register(ctx context.Context, input RegisterInput) (RegisterResult, error) {
	if err := e.checkReady(); err != nil {
		return RegisterResult{}, err
	}
	if !e.config.Account.Enabled {
		return RegisterResult{}, errors.New("registration is disabled")
	}

	if err := e.admit(ctx, admission.PurposeCreate, ""); err != nil {
		return RegisterResult{}, err
	}

	if input.Email == "" {
		return RegisterResult{}, ErrInvalidCredentials
	}

	if err := e.policy.Check(input.Password); err != nil {
		e.emitAudit(ctx, auditEventRegisterFailure, false, "", input.Email, err,
			map[string]string{"reason": "weak_password"})
		return RegisterResult{}, errors.Join(ErrWeakPassword, err)
	}

	role := input.Role
	if role == "" {
		role = string(e.config.Account.DefaultRole)
	}
	if !e.hierarchy.Contains(rbac.Role(role)) {
		e.emitAudit(ctx, auditEventRegisterFailure, false, "", input.Email, ErrInvalidRole,
			map[string]string{"role": role})
		return RegisterResult{}, ErrInvalidRole
	}

	department := input.Department
	if department == "" {
		department = e.config.Account.DefaultDepartment
	}
	if department != "" && len(e.departments) > 0 {
		if _, ok := e.departments[department]; !ok {
			e.emitAudit(ctx, auditEventRegisterFailure, false, "", input.Email, ErrInvalidDepartment,
				map[string]string{"department": department})
			return RegisterResult{}, ErrInvalidDepartment
		}
	}

	hash, err := e.hasher.Hash(input.Password)
	if err != nil {
		return RegisterResult{}, err
	}
	input.Password = ""

	principal, err := e.identities.Create(ctx, CreatePrincipalInput{
		Email:        input.Email,
		PasswordHash: hash,
		Role:         role,
		Department:   department,
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			e.metricInc(MetricRegisterDuplicate)
			e.emitAudit(ctx, auditEventRegisterFailure, false, "", input.Email, err,
				map[string]string{"reason": "duplicate_email"})
			e.enumerationDelay(ctx)
			return RegisterResult{}, ErrDuplicateEmail
		}
		e.emitAudit(ctx, auditEventRegisterFailure, false, "", input.Email, err, nil)
		return RegisterResult{}, err
	}

	if err := e.notifier.SendWelcomeNotification(ctx, principal.Email); err != nil {
		e.emitAudit(ctx, auditEventNotifyFailure, false, principal.ID, principal.Email, err,
			map[string]string{"notification": "welcome"})
		log.Print("authcore: welcome notification failed")
	}

	result := RegisterResult{Principal: principal}
	result.Principal.PasswordHash = ""

	if e.config.Account.AutoLogin {
		pair, err := e.issuePair(ctx, principal)
		if err != nil {
			// The account exists; surface the registration and let the caller
			// log in explicitly.
			e.metricInc(MetricRegisterSuccess)
			e.emitAudit(ctx, auditEventRegisterSuccess, true, principal.ID, principal.Email, err,
				map[string]string{"auto_login": "failed"})
			return result, nil
		}
		result.Tokens = pair
	}

	e.metricInc(MetricRegisterSuccess)
	e.emitAudit(ctx, auditEventRegisterSuccess, true, principal.ID, principal.Email, nil, nil)

	return result, nil
}
