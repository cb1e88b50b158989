package flows

import (
	"context"
	"errors"
	"strings"

	"github.com/MrEthical07/authcore/gateway"
	"github.com/MrEthical07/authcore/internal/rate"
	"github.com/MrEthical07/authcore/internal/stores"
	"github.com/MrEthical07/authcore/session"
)

var errGatewayMissing = errors.New("gateway not configured")

func notReady() *session.AuthError {
	return session.WrapNetwork(errGatewayMissing)
}

func (d Deps) fromGrant(g gateway.Grant) *LoginResult {
	return &LoginResult{
		Token:        g.Token,
		User:         g.User,
		ExpiresAt:    d.resolveExpiry(g.ExpiresAt, g.Token),
		IsNewAccount: g.IsNewAccount,
	}
}

func (d Deps) finish(op string, g gateway.Grant, err error) (*LoginResult, *session.AuthError) {
	if err != nil {
		d.MetricInc(d.Metrics.LoginFailure)
		return nil, session.Normalize(err)
	}
	if g.Token == "" || g.User.ID == "" || !g.User.Role.Valid() {
		d.MetricInc(d.Metrics.LoginFailure)
		d.Warn("%s login returned an incomplete identity", op)
		return nil, &session.AuthError{Kind: session.KindValidation, Message: "malformed backend response", Field: "response"}
	}
	d.MetricInc(d.Metrics.LoginSuccess)
	return d.fromGrant(g), nil
}

// RunPasswordLogin exchanges email and password for a session. Backend rejection
// reasons are passed through unchanged.
func RunPasswordLogin(ctx context.Context, email, password string, rememberMe bool, deps Deps) (*LoginResult, *session.AuthError) {
	deps = deps.withDefaults()
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	if err := ValidatePassword(password); err != nil {
		return nil, err
	}
	if deps.Gateway == nil {
		return nil, notReady()
	}

	start := deps.Now()
	g, err := deps.Gateway.LoginWithPassword(ctx, strings.TrimSpace(email), password, rememberMe)
	deps.timed(OpPassword, start)
	return deps.finish(OpPassword, g, err)
}

// RunRequestOTP asks the backend to deliver a code and records the challenge. A new
// request replaces any outstanding challenge for the same email.
func RunRequestOTP(ctx context.Context, email string, deps Deps) *session.AuthError {
	deps = deps.withDefaults()
	if err := ValidateEmail(email); err != nil {
		return err
	}
	if deps.Gateway == nil || deps.Challenges == nil {
		return notReady()
	}
	if deps.OtpThrottle != nil {
		if err := deps.OtpThrottle(ctx, session.NormalizeEmail(email)); err != nil {
			if errors.Is(err, rate.ErrRateLimited) {
				deps.MetricInc(deps.Metrics.OtpThrottled)
				return &session.AuthError{
					Kind:      session.KindValidation,
					Field:     "email",
					Message:   "too many code requests, try again later",
					SubReason: "rate_limited",
					Cause:     err,
				}
			}
			// The limiter's backend is advisory; the request still goes out.
			deps.Warn("otp throttle unavailable: %v", err)
		}
	}

	start := deps.Now()
	err := deps.Gateway.RequestOtp(ctx, session.NormalizeEmail(email))
	deps.timed(OpOtpIssue, start)
	if err != nil {
		return session.Normalize(err)
	}
	if err := deps.Challenges.Issue(ctx, email, deps.Now()); err != nil {
		deps.Warn("otp challenge not recorded: %v", err)
		return session.WrapNetwork(err)
	}
	deps.MetricInc(deps.Metrics.OtpIssued)
	return nil
}

// ConsumeOTPChallenge validates the submission and removes the challenge for email. It
// must run before the backend is contacted: the challenge is spent whatever the
// verification outcome.
func ConsumeOTPChallenge(ctx context.Context, email, code string, deps Deps) *session.AuthError {
	deps = deps.withDefaults()
	if err := ValidateEmail(email); err != nil {
		return err
	}
	if err := ValidateOtpCode(code); err != nil {
		return err
	}
	if deps.Challenges == nil {
		return notReady()
	}
	if _, err := deps.Challenges.Consume(ctx, email); err != nil {
		if errors.Is(err, stores.ErrOtpChallengeNotFound) {
			deps.MetricInc(deps.Metrics.OtpMissingChallenge)
			return session.NewError(session.KindOtpExpiredOrInvalid, "no code was requested for this email or it was already used")
		}
		return session.WrapNetwork(err)
	}
	deps.MetricInc(deps.Metrics.OtpConsumed)
	return nil
}

// RunOTPLogin submits a code whose challenge has already been consumed.
func RunOTPLogin(ctx context.Context, email, code string, deps Deps) (*LoginResult, *session.AuthError) {
	deps = deps.withDefaults()
	if deps.Gateway == nil {
		return nil, notReady()
	}
	start := deps.Now()
	g, err := deps.Gateway.LoginWithOtp(ctx, session.NormalizeEmail(email), strings.TrimSpace(code))
	deps.timed(OpOtpVerify, start)
	return deps.finish(OpOtpVerify, g, err)
}

// RunFederatedLogin exchanges a provider token for a session. An empty providerToken is
// obtained from deps.ProviderToken first.
func RunFederatedLogin(ctx context.Context, providerToken string, deps Deps) (*LoginResult, *session.AuthError) {
	deps = deps.withDefaults()
	if deps.Gateway == nil {
		return nil, notReady()
	}

	if providerToken == "" {
		if deps.ProviderToken == nil {
			return nil, &session.AuthError{
				Kind:      session.KindFederatedExchangeFailed,
				Message:   "no identity provider configured",
				SubReason: session.SubReasonProviderUnavailable,
			}
		}
		tok, err := deps.ProviderToken(ctx)
		if err != nil {
			deps.MetricInc(deps.Metrics.LoginFailure)
			return nil, providerError(err)
		}
		providerToken = tok
	}
	if strings.TrimSpace(providerToken) == "" {
		deps.MetricInc(deps.Metrics.LoginFailure)
		return nil, &session.AuthError{
			Kind:      session.KindFederatedExchangeFailed,
			Message:   "identity provider returned no token",
			SubReason: session.SubReasonProviderCancelled,
		}
	}

	start := deps.Now()
	g, err := deps.Gateway.ExchangeFederatedToken(ctx, providerToken)
	deps.timed(OpFederated, start)
	return deps.finish(OpFederated, g, err)
}

func providerError(err error) *session.AuthError {
	if ae, ok := session.AsAuthError(err); ok {
		return ae
	}
	if errors.Is(err, context.Canceled) {
		return &session.AuthError{
			Kind:      session.KindFederatedExchangeFailed,
			Message:   "sign-in was cancelled",
			SubReason: session.SubReasonProviderCancelled,
			Cause:     err,
		}
	}
	return &session.AuthError{
		Kind:      session.KindFederatedExchangeFailed,
		Message:   "identity provider unavailable",
		SubReason: session.SubReasonProviderUnavailable,
		Cause:     err,
	}
}
