package flows

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrEthical07/authcore/gateway"
	"github.com/MrEthical07/authcore/gateway/gatewaytest"
	"github.com/MrEthical07/authcore/internal/rate"
	"github.com/MrEthical07/authcore/internal/stores"
	"github.com/MrEthical07/authcore/session"
)

func newFlowDeps(t *testing.T) (Deps, *gatewaytest.Backend, *[]int) {
	t.Helper()
	b := gatewaytest.New()
	b.AddAccount(gatewaytest.Account{
		Profile:  session.UserProfile{Email: "a@b.com", Role: session.RolePlayer, ProfileComplete: true},
		Password: "secret",
	})
	var incs []int
	return Deps{
		Gateway:    b,
		Challenges: stores.NewMemoryOtpChallengeStore(0),
		MetricInc:  func(id int) { incs = append(incs, id) },
		Metrics: FlowMetrics{
			LoginSuccess:        1,
			LoginFailure:        2,
			OtpIssued:           3,
			OtpConsumed:         4,
			OtpMissingChallenge: 5,
			BootstrapSuccess:    6,
			BootstrapFailure:    7,
			BootstrapTimeout:    8,
			ExtendSuccess:       9,
			ExtendFailure:       10,
			ProfileUpdated:      11,
			OtpThrottled:        12,
		},
	}, b, &incs
}

func TestRunPasswordLoginValidatesBeforeNetwork(t *testing.T) {
	deps, b, _ := newFlowDeps(t)
	tests := []struct {
		email, password, field string
	}{
		{"", "secret", "email"},
		{"not-an-email", "secret", "email"},
		{"a@b.com", "", "password"},
	}
	for _, tt := range tests {
		_, err := RunPasswordLogin(context.Background(), tt.email, tt.password, false, deps)
		if err == nil || err.Kind != session.KindValidation || err.Field != tt.field {
			t.Fatalf("%q/%q: expected validation on %s, got %v", tt.email, tt.password, tt.field, err)
		}
	}
	if b.Calls(gatewaytest.OpPassword) != 0 {
		t.Fatalf("validation failures must not reach the backend")
	}
}

func TestRunPasswordLogin(t *testing.T) {
	deps, _, incs := newFlowDeps(t)
	res, err := RunPasswordLogin(context.Background(), "a@b.com", "secret", true, deps)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if res.Token == "" || res.User.Email != "a@b.com" || res.ExpiresAt.IsZero() {
		t.Fatalf("unexpected result %+v", res)
	}
	_, err = RunPasswordLogin(context.Background(), "a@b.com", "wrong", false, deps)
	if !errors.Is(err, session.ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	if len(*incs) != 2 || (*incs)[0] != 1 || (*incs)[1] != 2 {
		t.Fatalf("unexpected metric increments %v", *incs)
	}
}

func TestRunPasswordLoginUntypedErrorIsNetwork(t *testing.T) {
	deps, b, _ := newFlowDeps(t)
	b.FailNext(gatewaytest.OpPassword, errors.New("connection reset"))
	_, err := RunPasswordLogin(context.Background(), "a@b.com", "secret", false, deps)
	if !errors.Is(err, session.ErrNetworkUnavailable) {
		t.Fatalf("expected network unavailable, got %v", err)
	}
}

func TestOtpChallengeConsumedBeforeBackend(t *testing.T) {
	deps, b, _ := newFlowDeps(t)
	ctx := context.Background()

	if err := ConsumeOTPChallenge(ctx, "a@b.com", "1234", deps); !errors.Is(err, session.ErrOtpExpiredOrInvalid) {
		t.Fatalf("expected missing challenge error, got %v", err)
	}
	if b.Calls(gatewaytest.OpOtpVerify) != 0 {
		t.Fatalf("missing challenge must not reach the backend")
	}

	if err := RunRequestOTP(ctx, "a@b.com", deps); err != nil {
		t.Fatalf("request otp: %v", err)
	}
	code := b.LastOtp("a@b.com")
	if err := ConsumeOTPChallenge(ctx, "a@b.com", code, deps); err != nil {
		t.Fatalf("consume: %v", err)
	}
	res, err := RunOTPLogin(ctx, "a@b.com", code, deps)
	if err != nil {
		t.Fatalf("otp login: %v", err)
	}
	if res.User.Email != "a@b.com" {
		t.Fatalf("unexpected user %+v", res.User)
	}
	if err := ConsumeOTPChallenge(ctx, "a@b.com", code, deps); !errors.Is(err, session.ErrOtpExpiredOrInvalid) {
		t.Fatalf("expected consumed challenge error, got %v", err)
	}
}

func TestRunRequestOTPFailureRecordsNoChallenge(t *testing.T) {
	deps, b, _ := newFlowDeps(t)
	b.FailNext(gatewaytest.OpOtpIssue, session.WrapNetwork(errors.New("dial")))
	if err := RunRequestOTP(context.Background(), "a@b.com", deps); !errors.Is(err, session.ErrNetworkUnavailable) {
		t.Fatalf("expected network error, got %v", err)
	}
	if n := deps.Challenges.(*stores.MemoryOtpChallengeStore).Len(); n != 0 {
		t.Fatalf("expected no challenge, got %d", n)
	}
}

func TestRunFederatedLoginProviderErrors(t *testing.T) {
	deps, b, _ := newFlowDeps(t)
	ctx := context.Background()

	_, err := RunFederatedLogin(ctx, "", deps)
	if err == nil || err.SubReason != session.SubReasonProviderUnavailable {
		t.Fatalf("expected provider unavailable, got %v", err)
	}

	deps.ProviderToken = func(context.Context) (string, error) { return "", context.Canceled }
	_, err = RunFederatedLogin(ctx, "", deps)
	if err == nil || err.Kind != session.KindFederatedExchangeFailed || err.SubReason != session.SubReasonProviderCancelled {
		t.Fatalf("expected provider cancelled, got %v", err)
	}

	deps.ProviderToken = func(context.Context) (string, error) {
		return "", &session.AuthError{Kind: session.KindFederatedExchangeFailed, SubReason: session.SubReasonPopupBlocked}
	}
	_, err = RunFederatedLogin(ctx, "", deps)
	if err == nil || err.SubReason != session.SubReasonPopupBlocked {
		t.Fatalf("expected popup blocked, got %v", err)
	}
	if b.Calls(gatewaytest.OpFederated) != 0 {
		t.Fatalf("provider failures must not reach the backend")
	}
}

func TestRunFederatedLoginNewAccount(t *testing.T) {
	deps, _, _ := newFlowDeps(t)
	deps.ProviderToken = func(context.Context) (string, error) { return "google-id-token", nil }
	res, err := RunFederatedLogin(context.Background(), "", deps)
	if err != nil {
		t.Fatalf("federated login: %v", err)
	}
	if !res.IsNewAccount || res.User.ProfileComplete {
		t.Fatalf("expected new incomplete account, got %+v", res)
	}
}

func TestRunBootstrap(t *testing.T) {
	deps, b, _ := newFlowDeps(t)
	ctx := context.Background()

	if res, err := RunBootstrap(ctx, "", deps); res != nil || err != nil {
		t.Fatalf("empty token must not verify: %v %v", res, err)
	}
	if b.Calls(gatewaytest.OpVerify) != 0 {
		t.Fatalf("empty token reached backend")
	}

	token := b.IssueToken("a@b.com")
	res, err := RunBootstrap(ctx, token, deps)
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if res.Token != token || res.User.Email != "a@b.com" {
		t.Fatalf("unexpected result %+v", res)
	}

	b.RevokeToken(token)
	_, err = RunBootstrap(ctx, token, deps)
	if err == nil || err.Kind != session.KindTokenInvalidOrExpired || err.SubReason != session.SubReasonVerificationFailed {
		t.Fatalf("expected verification failure, got %v", err)
	}
}

func TestRunBootstrapUnreachableKeepsKind(t *testing.T) {
	deps, b, _ := newFlowDeps(t)
	b.FailNext(gatewaytest.OpVerify, session.WrapNetwork(errors.New("connection refused")))

	_, err := RunBootstrap(context.Background(), b.IssueToken("a@b.com"), deps)
	if err == nil || err.Kind != session.KindNetworkUnavailable {
		t.Fatalf("expected network unavailable, got %v", err)
	}
}

func TestRunBootstrapTimeout(t *testing.T) {
	deps, b, incs := newFlowDeps(t)
	deps.VerifyTimeout = 20 * time.Millisecond
	release := b.Hold(gatewaytest.OpVerify)
	defer release()

	_, err := RunBootstrap(context.Background(), b.IssueToken("a@b.com"), deps)
	if err == nil || err.Kind != session.KindTokenInvalidOrExpired || err.SubReason != session.SubReasonVerificationTimeout {
		t.Fatalf("expected verification timeout, got %v", err)
	}
	if last := (*incs)[len(*incs)-1]; last != 8 {
		t.Fatalf("expected timeout metric, got %d", last)
	}
}

func TestResolveExpiryOrder(t *testing.T) {
	now := time.Unix(1700000000, 0)
	claim := now.Add(30 * time.Minute)
	deps := Deps{
		Now:        func() time.Time { return now },
		DefaultTTL: time.Hour,
		ExpiryOf: func(token string) (time.Time, error) {
			if token == "jwt" {
				return claim, nil
			}
			return time.Time{}, errors.New("opaque")
		},
	}
	explicit := now.Add(5 * time.Minute)
	if got := deps.resolveExpiry(explicit, "jwt"); !got.Equal(explicit) {
		t.Fatalf("explicit expiry ignored: %v", got)
	}
	if got := deps.resolveExpiry(time.Time{}, "jwt"); !got.Equal(claim) {
		t.Fatalf("claim expiry ignored: %v", got)
	}
	if got := deps.resolveExpiry(time.Time{}, "opaque"); !got.Equal(now.Add(time.Hour)) {
		t.Fatalf("default ttl ignored: %v", got)
	}
	deps.DefaultTTL = 0
	if got := deps.resolveExpiry(time.Time{}, "opaque"); !got.IsZero() {
		t.Fatalf("expected no expiry, got %v", got)
	}
}

func TestRunExtendAndUpdateProfile(t *testing.T) {
	deps, b, _ := newFlowDeps(t)
	ctx := context.Background()
	token := b.IssueToken("a@b.com")

	exp, err := RunExtend(ctx, token, deps)
	if err != nil || exp.IsZero() {
		t.Fatalf("extend: %v %v", exp, err)
	}
	if _, err := RunExtend(ctx, "", deps); !errors.Is(err, session.ErrTokenInvalidOrExpired) {
		t.Fatalf("expected no-session error, got %v", err)
	}

	phone := "5550100123"
	u, err := RunUpdateProfile(ctx, token, gateway.ProfileFields{Phone: &phone}, deps)
	if err != nil {
		t.Fatalf("update profile: %v", err)
	}
	if u.Phone != phone {
		t.Fatalf("unexpected user %+v", u)
	}
	if _, err := RunUpdateProfile(ctx, token, gateway.ProfileFields{}, deps); !errors.Is(err, session.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestValidateOtpCode(t *testing.T) {
	for _, code := range []string{"1234", "123456", "12345678"} {
		if err := ValidateOtpCode(code); err != nil {
			t.Fatalf("%q: unexpected error %v", code, err)
		}
	}
	for _, code := range []string{"", "123", "123456789", "12a4"} {
		if err := ValidateOtpCode(code); err == nil {
			t.Fatalf("%q: expected validation error", code)
		}
	}
}

func TestRunRequestOTPThrottled(t *testing.T) {
	deps, b, incs := newFlowDeps(t)
	limiter := rate.New(rate.NewMemoryCounter(nil), rate.Config{MaxAttempts: 1, Window: time.Minute})
	deps.OtpThrottle = limiter.Allow

	if err := RunRequestOTP(context.Background(), "a@b.com", deps); err != nil {
		t.Fatalf("first request: %v", err)
	}
	err := RunRequestOTP(context.Background(), "A@B.com", deps)
	if err == nil || err.Kind != session.KindValidation || err.SubReason != "rate_limited" {
		t.Fatalf("expected rate limited validation error, got %v", err)
	}
	if b.Calls(gatewaytest.OpOtpIssue) != 1 {
		t.Fatalf("throttled request reached the backend: %d calls", b.Calls(gatewaytest.OpOtpIssue))
	}
	if (*incs)[len(*incs)-1] != 12 {
		t.Fatalf("throttle metric not counted: %v", *incs)
	}
}

func TestRunRequestOTPThrottleUnavailableFailsOpen(t *testing.T) {
	deps, b, _ := newFlowDeps(t)
	deps.OtpThrottle = func(context.Context, string) error { return rate.ErrUnavailable }

	if err := RunRequestOTP(context.Background(), "a@b.com", deps); err != nil {
		t.Fatalf("request: %v", err)
	}
	if b.Calls(gatewaytest.OpOtpIssue) != 1 {
		t.Fatal("request must still reach the backend")
	}
}
