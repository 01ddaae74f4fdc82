package authcore

import (
	"context"
	"errors"
	"log"

	"github.com/stratushr/authcore/admission"
)

// Admit consumes one unit of the key's admission budget for purpose. It
// returns nil when admitted, [ErrRateLimited] (joined with the underlying
// [admission.DeniedError], which carries RetryAfter) when the window is
// exhausted, and nil when the admission store is unreachable.
//
// An empty key falls back to the client IP attached via [WithClientIP];
// with neither, the request is admitted without consuming any budget.
//
// Admission fails open: shedding load is not a security boundary, and a
// Redis outage must not take authentication down with it. Fail-open
// admissions are counted under [MetricAdmissionFailOpen].
func (e *Engine) Admit(ctx context.Context, key string, purpose admission.Purpose) error {
	if err := e.checkReady(); err != nil {
		return err
	}
	return e.admit(ctx, purpose, key)
}

func (e *Engine) admit(ctx context.Context, purpose admission.Purpose, key string) error {
	if e.admission == nil {
		return nil
	}
	if key == "" {
		// Without an identity or an attached client IP there is nothing to
		// key a window on; one shared bucket would let any caller starve
		// every other anonymous caller.
		ip := clientIPFromContext(ctx)
		if ip == "" {
			return nil
		}
		key = "ip:" + ip
	}

	err := e.admission.AllowRequest(ctx, key, purpose)
	if err == nil {
		return nil
	}

	var denied *admission.DeniedError
	if errors.As(err, &denied) {
		e.metricInc(MetricRateLimited)
		e.emitAudit(ctx, auditEventAdmissionDenied, false, "", "", err,
			map[string]string{"purpose": string(purpose), "reason": string(denied.Reason)})
		return errors.Join(ErrRateLimited, denied)
	}

	if errors.Is(err, admission.ErrUnavailable) {
		e.metricInc(MetricAdmissionFailOpen)
		e.emitAudit(ctx, auditEventAdmissionFailOpen, true, "", "", err,
			map[string]string{"purpose": string(purpose)})
		log.Print("authcore: admission store unavailable, admitting")
		return nil
	}

	return err
}

// BeginRequest reserves a concurrency slot for key. Returns
// [ErrTooManyConcurrent] (joined with the underlying denial) when the
// per-key cap is reached. Slot unavailability fails open like the window
// budgets. A successful BeginRequest must be paired with [Engine.EndRequest].
func (e *Engine) BeginRequest(ctx context.Context, key string) error {
	if err := e.checkReady(); err != nil {
		return err
	}
	if e.admission == nil {
		return nil
	}
	if key == "" {
		ip := clientIPFromContext(ctx)
		if ip == "" {
			return nil
		}
		key = "ip:" + ip
	}

	err := e.admission.AcquireSlot(ctx, key)
	if err == nil {
		return nil
	}

	var denied *admission.DeniedError
	if errors.As(err, &denied) {
		e.metricInc(MetricConcurrencyDenied)
		e.emitAudit(ctx, auditEventAdmissionDenied, false, "", "", err,
			map[string]string{"reason": string(denied.Reason)})
		return errors.Join(ErrTooManyConcurrent, denied)
	}

	if errors.Is(err, admission.ErrUnavailable) {
		e.metricInc(MetricAdmissionFailOpen)
		log.Print("authcore: admission store unavailable, admitting")
		return nil
	}

	return err
}

// EndRequest releases the slot reserved by [Engine.BeginRequest]. Safe to
// call on a key that holds no slot.
func (e *Engine) EndRequest(ctx context.Context, key string) {
	if e == nil || e.admission == nil {
		return
	}
	if key == "" {
		ip := clientIPFromContext(ctx)
		if ip == "" {
			return
		}
		key = "ip:" + ip
	}
	if err := e.admission.ReleaseSlot(ctx, key); err != nil {
		log.Print("authcore: slot release failed")
	}
}

// ResetAdmission clears the key's window for purpose. Operator escape
// hatch; it does not touch concurrency slots.
func (e *Engine) ResetAdmission(ctx context.Context, key string, purpose admission.Purpose) error {
	if err := e.checkReady(); err != nil {
		return err
	}
	if e.admission == nil {
		return nil
	}
	return e.admission.Reset(ctx, key, purpose)
}
