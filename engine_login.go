package authcore

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/authcore/federated"
	"github.com/MrEthical07/authcore/internal/flows"
	"github.com/MrEthical07/authcore/session"
)

type loginFlow func(ctx context.Context, deps flows.Deps) (*flows.LoginResult, *AuthError)

// Login runs one login attempt to completion and returns the settled session.
//
// A new attempt supersedes any attempt still in flight; the older result is discarded when
// it arrives. Logging in while already authenticated is rejected without contacting the
// backend.
func (e *Engine) Login(ctx context.Context, attempt LoginAttempt) Outcome {
	switch a := attempt.(type) {
	case PasswordAttempt:
		return e.passwordLogin(ctx, a)
	case *PasswordAttempt:
		return e.passwordLogin(ctx, *a)
	case OtpAttempt:
		return e.VerifyOTP(ctx, a.Email, a.Code)
	case *OtpAttempt:
		return e.VerifyOTP(ctx, a.Email, a.Code)
	case FederatedAttempt:
		return e.federatedLogin(ctx, a.ProviderToken)
	case *FederatedAttempt:
		return e.federatedLogin(ctx, a.ProviderToken)
	default:
		return Outcome{Session: e.Session(), Err: session.Validationf("method", "unsupported login method")}
	}
}

// LoginWithPassword is shorthand for Login with a PasswordAttempt.
func (e *Engine) LoginWithPassword(ctx context.Context, email, password string, rememberMe bool) Outcome {
	return e.passwordLogin(ctx, PasswordAttempt{Email: email, Password: password, RememberMe: rememberMe})
}

func (e *Engine) passwordLogin(ctx context.Context, a PasswordAttempt) Outcome {
	return e.submit(ctx, func(reply chan<- Outcome) {
		if e.machine.Current().Authenticated() {
			respond(reply, Outcome{Session: e.machine.Current(), Err: alreadySignedIn()})
			return
		}
		if err := a.Validate(); err != nil {
			respond(reply, e.recordError(ctx, err))
			return
		}
		e.startAttempt(ctx, MethodPassword, func(wctx context.Context, deps flows.Deps) (*flows.LoginResult, *AuthError) {
			return flows.RunPasswordLogin(wctx, a.Email, a.Password, a.RememberMe, deps)
		}, reply)
	})
}

// RequestOTP asks the backend to send a one-time code to email and records the challenge
// that VerifyOTP later consumes. The session phase does not change.
func (e *Engine) RequestOTP(ctx context.Context, email string) Outcome {
	return e.submit(ctx, func(reply chan<- Outcome) {
		if e.machine.Current().Authenticated() {
			respond(reply, Outcome{Session: e.machine.Current(), Err: alreadySignedIn()})
			return
		}
		if err := flows.ValidateEmail(email); err != nil {
			respond(reply, e.recordError(ctx, err))
			return
		}
		deps := e.flowDeps(MethodOTP)
		wctx, id := e.track(ctx)
		e.spawn(func() {
			err := flows.RunRequestOTP(wctx, email, deps)
			e.post(func() {
				e.untrack(id)
				if err != nil {
					respond(reply, e.recordError(ctx, err))
					return
				}
				e.emitAudit(ctx, AuditEvent{
					EventType: AuditOtpRequested,
					Method:    MethodOTP,
					Success:   true,
					Metadata:  map[string]string{"email": session.NormalizeEmail(email)},
				})
				respond(reply, Outcome{Session: e.machine.Current()})
			})
		})
	})
}

// VerifyOTP consumes the pending challenge for email and, if one existed, submits code to
// the backend. A missing challenge fails with KindOtpExpiredOrInvalid without a network
// call, also when a session is already active. The challenge is spent whatever the
// backend answers.
func (e *Engine) VerifyOTP(ctx context.Context, email, code string) Outcome {
	return e.submit(ctx, func(reply chan<- Outcome) {
		attempt := OtpAttempt{Email: email, Code: code}
		if err := attempt.Validate(); err != nil {
			respond(reply, e.recordError(ctx, err))
			return
		}
		deps := e.flowDeps(MethodOTP)
		wctx, id := e.track(ctx)
		e.spawn(func() {
			err := flows.ConsumeOTPChallenge(wctx, email, code, deps)
			e.post(func() {
				e.untrack(id)
				if err != nil {
					e.metrics.Inc(MetricOtpLoginFailure)
					e.emitAudit(ctx, sessionAudit(e.machine.Current(), AuditLoginFailure, MethodOTP, false, err))
					respond(reply, e.recordError(ctx, err))
					return
				}
				if e.machine.Current().Authenticated() {
					respond(reply, Outcome{Session: e.machine.Current(), Err: alreadySignedIn()})
					return
				}
				e.startAttempt(ctx, MethodOTP, func(wctx context.Context, deps flows.Deps) (*flows.LoginResult, *AuthError) {
					return flows.RunOTPLogin(wctx, email, code, deps)
				}, reply)
			})
		})
	})
}

// FederatedLogin asks the configured TokenProvider for a provider token and exchanges it.
func (e *Engine) FederatedLogin(ctx context.Context) Outcome {
	return e.federatedLogin(ctx, "")
}

func (e *Engine) federatedLogin(ctx context.Context, providerToken string) Outcome {
	return e.submit(ctx, func(reply chan<- Outcome) {
		if e.machine.Current().Authenticated() {
			respond(reply, Outcome{Session: e.machine.Current(), Err: alreadySignedIn()})
			return
		}
		e.startAttempt(ctx, MethodFederated, func(wctx context.Context, deps flows.Deps) (*flows.LoginResult, *AuthError) {
			return flows.RunFederatedLogin(wctx, providerToken, deps)
		}, reply)
	})
}

// onFederatedEvent runs on the listener goroutine.
func (e *Engine) onFederatedEvent(ev federated.Event) {
	e.post(func() {
		switch ev.Kind {
		case federated.SignedOut:
			e.logger.Debugf("provider signed out; session unchanged")
			return
		case federated.SignedIn:
		default:
			return
		}
		cur := e.machine.Current()
		if cur.Authenticated() {
			e.metrics.Inc(MetricFederatedIgnored)
			e.emitAudit(e.baseCtx, sessionAudit(cur, AuditFederatedIgnored, MethodFederated, true, nil))
			e.logger.Debugf("provider sign-in ignored: already authenticated")
			return
		}
		token := ev.ProviderToken
		e.startAttempt(e.baseCtx, MethodFederated, func(wctx context.Context, deps flows.Deps) (*flows.LoginResult, *AuthError) {
			return flows.RunFederatedLogin(wctx, token, deps)
		}, nil)
	})
}

// startAttempt opens a new generation and runs flow on a worker. Loop only.
func (e *Engine) startAttempt(ctx context.Context, method string, flow loginFlow, reply chan<- Outcome) {
	commit := commitCtx(ctx)
	if _, err := e.machine.Dispatch(commit, session.LoginStarted{Method: method}); err != nil {
		respond(reply, Outcome{Session: e.machine.Current(), Err: alreadySignedIn()})
		return
	}
	gen := e.machine.Generation()
	deps := e.flowDeps(method)
	wctx, id := e.track(ctx)
	e.spawn(func() {
		res, err := flow(wctx, deps)
		abandoned := wctx.Err() != nil
		e.post(func() {
			e.untrack(id)
			if abandoned {
				respond(reply, e.abandonAttempt(commit, method, gen))
				return
			}
			respond(reply, e.settleAttempt(commit, method, gen, res, err))
		})
	})
}

// abandonAttempt withdraws an attempt whose caller went away. Nothing from its result is
// applied. Loop only.
func (e *Engine) abandonAttempt(ctx context.Context, method string, gen uint64) Outcome {
	if _, err := e.machine.Dispatch(ctx, session.LoginAbandoned{Generation: gen}); err != nil {
		return e.discarded(method)
	}
	e.metrics.Inc(MetricStaleResultDiscarded)
	e.logger.Debugf("%s attempt abandoned by its caller", method)
	return Outcome{Session: e.machine.Current(), Discarded: true}
}

func (e *Engine) settleAttempt(ctx context.Context, method string, gen uint64, res *flows.LoginResult, aerr *AuthError) Outcome {
	if aerr == nil && res == nil {
		aerr = session.WrapNetwork(errors.New("login returned no result"))
	}
	if aerr != nil {
		if _, err := e.machine.Dispatch(ctx, session.LoginFailed{Generation: gen, Err: aerr}); err != nil {
			return e.discarded(method)
		}
		s := e.machine.Current()
		e.emitAudit(ctx, sessionAudit(s, AuditLoginFailure, method, false, aerr))
		e.logger.Debugf("%s login failed: %v", method, aerr)
		return Outcome{Session: s, Err: aerr}
	}

	_, err := e.machine.Dispatch(ctx, session.LoginSucceeded{
		Generation:   gen,
		Token:        res.Token,
		User:         res.User,
		ExpiresAt:    res.ExpiresAt,
		IsNewAccount: res.IsNewAccount,
	})
	switch {
	case errors.Is(err, session.ErrIncompleteIdentity):
		bad := &AuthError{Kind: KindValidation, Message: "malformed backend response", Field: "response", Cause: err}
		return e.settleAttempt(ctx, method, gen, nil, bad)
	case err != nil:
		return e.discarded(method)
	}

	s := e.machine.Current()
	ev := sessionAudit(s, AuditLoginSuccess, method, true, nil)
	if res.IsNewAccount {
		ev.Metadata = map[string]string{"new_account": "true"}
	}
	e.emitAudit(ctx, ev)
	e.logger.Infof("%s login succeeded for user %s", method, s.User.ID)
	return Outcome{Session: s, IsNewAccount: res.IsNewAccount}
}

func (e *Engine) discarded(method string) Outcome {
	e.metrics.Inc(MetricStaleResultDiscarded)
	e.logger.Debugf("stale %s result discarded", method)
	return Outcome{Session: e.machine.Current(), Discarded: true}
}

// recordError surfaces err on the session without changing its phase. Loop only.
func (e *Engine) recordError(ctx context.Context, err *AuthError) Outcome {
	_, _ = e.machine.Dispatch(commitCtx(ctx), session.ErrorRecorded{Err: err})
	return Outcome{Session: e.machine.Current(), Err: err}
}

func (e *Engine) flowDeps(method string) flows.Deps {
	deps := e.deps
	deps.MetricInc = func(id int) { e.metrics.Inc(MetricID(id)) }
	deps.ObserveLatency = func(_ string, d time.Duration) { e.metrics.Observe(MetricBackendLatency, d) }
	deps.Warn = e.logger.Warnf

	m := flows.FlowMetrics{
		OtpIssued:           int(MetricOtpIssued),
		OtpConsumed:         int(MetricOtpConsumed),
		OtpMissingChallenge: int(MetricOtpMissingChallenge),
		OtpThrottled:        int(MetricOtpRequestThrottled),
		BootstrapSuccess:    int(MetricBootstrapSuccess),
		BootstrapFailure:    int(MetricBootstrapFailure),
		BootstrapTimeout:    int(MetricBootstrapTimeout),
		ExtendSuccess:       int(MetricExtendSuccess),
		ExtendFailure:       int(MetricExtendFailure),
		ProfileUpdated:      int(MetricProfileUpdated),
	}
	switch method {
	case MethodOTP:
		m.LoginSuccess, m.LoginFailure = int(MetricOtpLoginSuccess), int(MetricOtpLoginFailure)
	case MethodFederated:
		m.LoginSuccess, m.LoginFailure = int(MetricFederatedLoginSuccess), int(MetricFederatedLoginFailure)
	default:
		m.LoginSuccess, m.LoginFailure = int(MetricPasswordLoginSuccess), int(MetricPasswordLoginFailure)
	}
	deps.Metrics = m
	return deps
}
