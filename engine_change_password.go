package authcore

import (
	"context"
	"errors"
	"log"

	"github.com/stratushr/authcore/admission"
)

// ChangePassword replaces a principal's password after verifying the
// current one. Every live refresh credential and any pending reset marker
// is revoked before success is reported: credentials minted under the old
// password do not outlive it.
//
// The revocation cascade fails closed. If the registry is unreachable the
// password is already updated but the operation reports
// [ErrRegistryUnavailable]; old sessions may briefly survive and the
// caller should retry [Engine.LogoutAll].
func (e *Engine) ChangePassword(ctx context.Context, principalID, currentPassword, newPassword string) error {
	if err := e.checkReady(); err != nil {
		return err
	}
	if principalID == "" {
		return ErrPrincipalNotFound
	}

	if err := e.admit(ctx, admission.PurposeAuth, "chpwd:"+principalID); err != nil {
		return err
	}

	principal, err := e.identities.GetByID(ctx, principalID)
	if err != nil {
		e.metricInc(MetricPasswordChangeFailure)
		return ErrPrincipalNotFound
	}
	if !principal.Active {
		e.metricInc(MetricPasswordChangeFailure)
		return ErrPrincipalInactive
	}

	ok, err := e.hasher.Verify(currentPassword, principal.PasswordHash)
	if err != nil || !ok {
		e.metricInc(MetricPasswordChangeFailure)
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, principal.ID, principal.Email, ErrInvalidCredentials,
			map[string]string{"reason": "password_mismatch"})
		e.enumerationDelay(ctx)
		return ErrInvalidCredentials
	}

	if err := e.policy.Check(newPassword); err != nil {
		e.metricInc(MetricPasswordChangeFailure)
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, principal.ID, principal.Email, err,
			map[string]string{"reason": "weak_password"})
		return errors.Join(ErrWeakPassword, err)
	}

	// Reusing the current password would make the revocation cascade a lie.
	if same, err := e.hasher.Verify(newPassword, principal.PasswordHash); err == nil && same {
		e.metricInc(MetricPasswordChangeFailure)
		return errors.Join(ErrWeakPassword, errors.New("new password must differ from the current one"))
	}

	hash, err := e.hasher.Hash(newPassword)
	if err != nil {
		e.metricInc(MetricPasswordChangeFailure)
		return err
	}
	currentPassword, newPassword = "", ""

	if err := e.identities.UpdatePasswordHash(ctx, principal.ID, hash); err != nil {
		e.metricInc(MetricPasswordChangeFailure)
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, principal.ID, principal.Email, err, nil)
		return err
	}

	if err := e.registry.RevokeAll(ctx, principal.ID); err != nil {
		e.metricInc(MetricRegistryError)
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, principal.ID, principal.Email, ErrRegistryUnavailable,
			map[string]string{"stage": "revoke_all"})
		return errorsJoinRegistry(err)
	}
	if err := e.resetStore.Invalidate(ctx, principal.ID); err != nil {
		log.Print("authcore: pending reset invalidation failed")
	}

	e.resetAuthWindow(ctx, "login:"+principal.Email)
	e.resetAuthWindow(ctx, "chpwd:"+principal.ID)

	if err := e.notifier.SendPasswordChangedNotification(ctx, principal.Email); err != nil {
		e.emitAudit(ctx, auditEventNotifyFailure, false, principal.ID, principal.Email, err,
			map[string]string{"notification": "password_changed"})
		log.Print("authcore: password changed notification failed")
	}

	e.metricInc(MetricPasswordChangeSuccess)
	e.emitAudit(ctx, auditEventPasswordChangeSuccess, true, principal.ID, principal.Email, nil, nil)

	return nil
}
