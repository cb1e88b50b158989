package flows

import (
	"context"
	"time"

	"github.com/MrEthical07/authcore/gateway"
	"github.com/MrEthical07/authcore/session"
)

// RunExtend asks the backend to prolong the session behind token.
func RunExtend(ctx context.Context, token string, deps Deps) (time.Time, *session.AuthError) {
	deps = deps.withDefaults()
	if token == "" {
		return time.Time{}, session.NewError(session.KindTokenInvalidOrExpired, "no active session")
	}
	if deps.Gateway == nil {
		return time.Time{}, notReady()
	}

	start := deps.Now()
	exp, err := deps.Gateway.ExtendSession(ctx, token)
	deps.timed(OpExtend, start)
	if err != nil {
		deps.MetricInc(deps.Metrics.ExtendFailure)
		return time.Time{}, session.Normalize(err)
	}
	exp = deps.resolveExpiry(exp, "")
	if exp.IsZero() {
		deps.MetricInc(deps.Metrics.ExtendFailure)
		return time.Time{}, &session.AuthError{Kind: session.KindValidation, Message: "malformed backend response", Field: "expires_at"}
	}
	deps.MetricInc(deps.Metrics.ExtendSuccess)
	return exp, nil
}

// RunUpdateProfile sends a partial profile update and returns the backend's full user.
func RunUpdateProfile(ctx context.Context, token string, fields gateway.ProfileFields, deps Deps) (session.UserProfile, *session.AuthError) {
	deps = deps.withDefaults()
	if err := fields.Validate(); err != nil {
		return session.UserProfile{}, session.Normalize(err)
	}
	if token == "" {
		return session.UserProfile{}, session.NewError(session.KindTokenInvalidOrExpired, "no active session")
	}
	if deps.Gateway == nil {
		return session.UserProfile{}, notReady()
	}

	start := deps.Now()
	u, err := deps.Gateway.UpdateProfile(ctx, token, fields)
	deps.timed(OpProfile, start)
	if err != nil {
		return session.UserProfile{}, session.Normalize(err)
	}
	if u.ID == "" || !u.Role.Valid() {
		return session.UserProfile{}, &session.AuthError{Kind: session.KindValidation, Message: "malformed backend response", Field: "user"}
	}
	deps.MetricInc(deps.Metrics.ProfileUpdated)
	return u, nil
}
