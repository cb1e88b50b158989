package flows

import (
	"context"
	"errors"

	"github.com/MrEthical07/authcore/session"
)

// RunBootstrap verifies a stored token. A rejection or a timeout is reported as
// KindTokenInvalidOrExpired and the caller clears the token. A transport failure is
// reported as KindNetworkUnavailable; the token may still be good and is kept.
func RunBootstrap(ctx context.Context, token string, deps Deps) (*LoginResult, *session.AuthError) {
	deps = deps.withDefaults()
	if token == "" {
		return nil, nil
	}
	if deps.Gateway == nil {
		return nil, notReady()
	}

	if deps.VerifyTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, deps.VerifyTimeout)
		defer cancel()
	}

	start := deps.Now()
	id, err := deps.Gateway.VerifyToken(ctx, token)
	deps.timed(OpVerify, start)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			deps.MetricInc(deps.Metrics.BootstrapTimeout)
			return nil, &session.AuthError{
				Kind:      session.KindTokenInvalidOrExpired,
				Message:   "session verification timed out",
				SubReason: session.SubReasonVerificationTimeout,
				Cause:     err,
			}
		}
		deps.MetricInc(deps.Metrics.BootstrapFailure)
		if aerr := session.Normalize(err); aerr.Kind == session.KindNetworkUnavailable {
			return nil, aerr
		}
		return nil, &session.AuthError{
			Kind:      session.KindTokenInvalidOrExpired,
			Message:   session.ErrTokenInvalidOrExpired.Message,
			SubReason: session.SubReasonVerificationFailed,
			Cause:     err,
		}
	}
	if id.User.ID == "" || !id.User.Role.Valid() {
		deps.MetricInc(deps.Metrics.BootstrapFailure)
		return nil, &session.AuthError{
			Kind:      session.KindTokenInvalidOrExpired,
			Message:   session.ErrTokenInvalidOrExpired.Message,
			SubReason: session.SubReasonVerificationFailed,
		}
	}

	deps.MetricInc(deps.Metrics.BootstrapSuccess)
	return &LoginResult{
		Token:     token,
		User:      id.User,
		ExpiresAt: deps.resolveExpiry(id.ExpiresAt, token),
	}, nil
}
