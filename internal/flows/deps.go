package flows

import (
	"context"
	"time"

	"github.com/MrEthical07/authcore/gateway"
	"github.com/MrEthical07/authcore/internal/stores"
	"github.com/MrEthical07/authcore/session"
)

// LoginResult is the flow-local login response shape.
type LoginResult struct {
	Token        string
	User         session.UserProfile
	ExpiresAt    time.Time
	IsNewAccount bool
}

// FlowMetrics carries metric IDs incremented by the flows.
type FlowMetrics struct {
	LoginSuccess        int
	LoginFailure        int
	OtpIssued           int
	OtpConsumed         int
	OtpMissingChallenge int
	OtpThrottled        int
	BootstrapSuccess    int
	BootstrapFailure    int
	BootstrapTimeout    int
	ExtendSuccess       int
	ExtendFailure       int
	ProfileUpdated      int
}

// Deps captures flow dependencies. Only Gateway is required.
type Deps struct {
	Gateway    gateway.Gateway
	Challenges stores.OtpChallengeStore

	// ProviderToken obtains an opaque token from the federated identity provider.
	ProviderToken func(context.Context) (string, error)
	// ExpiryOf reads the expiry embedded in a session token.
	ExpiryOf func(token string) (time.Time, error)
	// OtpThrottle records a code request for email. It returns rate.ErrRateLimited when
	// the email has asked too often; nil means no limit.
	OtpThrottle func(ctx context.Context, email string) error

	Now           func() time.Time
	DefaultTTL    time.Duration
	VerifyTimeout time.Duration

	MetricInc      func(int)
	ObserveLatency func(op string, d time.Duration)
	Warn           func(string, ...any)

	Metrics FlowMetrics
}

func (d Deps) withDefaults() Deps {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.MetricInc == nil {
		d.MetricInc = func(int) {}
	}
	if d.ObserveLatency == nil {
		d.ObserveLatency = func(string, time.Duration) {}
	}
	if d.Warn == nil {
		d.Warn = func(string, ...any) {}
	}
	return d
}

// Latency observation keys.
const (
	OpVerify    = "verify"
	OpPassword  = "password"
	OpOtpIssue  = "otp_request"
	OpOtpVerify = "otp_verify"
	OpFederated = "federated"
	OpProfile   = "profile"
	OpExtend    = "extend"
)

func (d Deps) timed(op string, start time.Time) {
	d.ObserveLatency(op, d.Now().Sub(start))
}

// resolveExpiry prefers the backend's value, then the token's exp claim, then the
// configured default lifetime. Zero means the session does not expire client-side.
func (d Deps) resolveExpiry(explicit time.Time, token string) time.Time {
	if !explicit.IsZero() {
		return explicit
	}
	if d.ExpiryOf != nil && token != "" {
		if exp, err := d.ExpiryOf(token); err == nil && !exp.IsZero() {
			return exp
		}
	}
	if d.DefaultTTL > 0 {
		return d.Now().Add(d.DefaultTTL)
	}
	return time.Time{}
}
