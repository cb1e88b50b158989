package authcore

import (
	"context"

	"github.com/MrEthical07/authcore/internal/flows"
	"github.com/MrEthical07/authcore/session"
)

// Logout ends the session, clears the stored token, and discards any attempt in flight.
// Logging out while unauthenticated succeeds and changes nothing.
func (e *Engine) Logout(ctx context.Context) Outcome {
	return e.submit(ctx, func(reply chan<- Outcome) {
		commit := commitCtx(ctx)
		before := e.machine.Current()
		e.cancelInflight()
		if _, err := e.machine.Dispatch(commit, session.LoggedOut{Reason: "user"}); err != nil {
			e.logger.Warnf("logout rejected: %v", err)
		}
		if before.Authenticated() {
			e.metrics.Inc(MetricLogout)
			e.emitAudit(commit, sessionAudit(before, AuditLogout, "", true, nil))
			e.logger.Infof("user %s logged out", before.User.ID)
		}
		respond(reply, Outcome{Session: e.machine.Current()})
	})
}

// ExtendSession asks the backend to prolong the session and re-arms the expiry monitor.
// A rejected extension logs the user out: a session the backend will not extend is not
// trusted any longer. If ctx ends before the backend answers, the result is discarded and
// the session is left as it was.
func (e *Engine) ExtendSession(ctx context.Context) Outcome {
	return e.submit(ctx, func(reply chan<- Outcome) {
		cur := e.machine.Current()
		if !cur.Authenticated() {
			respond(reply, Outcome{Session: cur, Err: notSignedIn()})
			return
		}
		gen, token := e.machine.Generation(), cur.Token
		deps := e.flowDeps("")
		wctx, id := e.track(ctx)
		e.spawn(func() {
			exp, err := flows.RunExtend(wctx, token, deps)
			abandoned := wctx.Err() != nil
			e.post(func() {
				e.untrack(id)
				if abandoned || e.machine.Generation() != gen || e.machine.Current().Token != token {
					respond(reply, e.discarded("extend"))
					return
				}
				if err != nil {
					e.forceLogout(ctx, "extend_failed", err)
					respond(reply, Outcome{Session: e.machine.Current(), Err: err})
					return
				}
				commit := commitCtx(ctx)
				if _, derr := e.machine.Dispatch(commit, session.SessionExtended{Generation: gen, ExpiresAt: exp}); derr != nil {
					respond(reply, e.discarded("extend"))
					return
				}
				s := e.machine.Current()
				e.emitAudit(commit, sessionAudit(s, AuditSessionExtended, "", true, nil))
				e.logger.Debugf("session extended until %s", exp.UTC().Format("2006-01-02T15:04:05Z"))
				respond(reply, Outcome{Session: s})
			})
		})
	})
}

// UpdateProfile sends fields to the backend and replaces the session user with the
// backend's answer. The phase does not change.
func (e *Engine) UpdateProfile(ctx context.Context, fields ProfileFields) Outcome {
	return e.submit(ctx, func(reply chan<- Outcome) {
		cur := e.machine.Current()
		if !cur.Authenticated() {
			respond(reply, Outcome{Session: cur, Err: notSignedIn()})
			return
		}
		if err := fields.Validate(); err != nil {
			respond(reply, e.recordError(ctx, session.Normalize(err)))
			return
		}
		gen, token := e.machine.Generation(), cur.Token
		deps := e.flowDeps("")
		wctx, id := e.track(ctx)
		e.spawn(func() {
			user, err := flows.RunUpdateProfile(wctx, token, fields, deps)
			abandoned := wctx.Err() != nil
			e.post(func() {
				e.untrack(id)
				if abandoned || e.machine.Generation() != gen || e.machine.Current().Token != token {
					respond(reply, e.discarded("profile"))
					return
				}
				if err != nil {
					respond(reply, e.recordError(ctx, err))
					return
				}
				commit := commitCtx(ctx)
				if _, derr := e.machine.Dispatch(commit, session.ProfileUpdated{Generation: gen, User: user}); derr != nil {
					respond(reply, e.discarded("profile"))
					return
				}
				s := e.machine.Current()
				e.emitAudit(commit, sessionAudit(s, AuditProfileUpdated, "", true, nil))
				respond(reply, Outcome{Session: s})
			})
		})
	})
}

// DismissWarning hides the expiry banner. The countdown keeps running.
func (e *Engine) DismissWarning(ctx context.Context) Outcome {
	return e.submit(ctx, func(reply chan<- Outcome) {
		e.monitor.Dismiss()
		respond(reply, Outcome{Session: e.machine.Current()})
	})
}

// DismissError clears Session.LastError.
func (e *Engine) DismissError(ctx context.Context) Outcome {
	return e.submit(ctx, func(reply chan<- Outcome) {
		_, _ = e.machine.Dispatch(commitCtx(ctx), session.ErrorDismissed{})
		respond(reply, Outcome{Session: e.machine.Current()})
	})
}

// forceLogout ends the session without a user request and surfaces cause. Loop only.
func (e *Engine) forceLogout(ctx context.Context, reason string, cause *AuthError) {
	commit := commitCtx(ctx)
	before := e.machine.Current()
	e.cancelInflight()
	if _, err := e.machine.Dispatch(commit, session.LoggedOut{Reason: reason, Err: cause}); err != nil {
		e.logger.Warnf("forced logout rejected: %v", err)
		return
	}
	if !before.Authenticated() {
		return
	}

	e.metrics.Inc(MetricForcedLogout)
	ev := sessionAudit(before, AuditForcedLogout, "", false, cause)
	if ev.Metadata == nil {
		ev.Metadata = map[string]string{}
	}
	ev.Metadata["reason"] = reason
	e.emitAudit(commit, ev)
	e.logger.Warnf("user %s logged out: %s", before.User.ID, reason)
}
