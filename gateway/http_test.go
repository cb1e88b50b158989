package gateway_test

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MrEthical07/authcore/gateway"
	"github.com/MrEthical07/authcore/gateway/gatewaytest"
	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/session"
)

func newHTTPGateway(t *testing.T, h http.Handler, tokens *jwt.Manager) *gateway.HTTPClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := gateway.NewHTTPClient(gateway.HTTPConfig{BaseURL: srv.URL, Timeout: 2 * time.Second, Tokens: tokens})
	if err != nil {
		t.Fatalf("new http client: %v", err)
	}
	return c
}

func seededBackend() *gatewaytest.Backend {
	b := gatewaytest.New()
	b.AddAccount(gatewaytest.Account{
		Profile:  session.UserProfile{Email: "player@example.com", Role: session.RolePlayer, ProfileComplete: true},
		Password: "hunter22",
	})
	b.AddAccount(gatewaytest.Account{
		Profile:  session.UserProfile{Email: "owner@example.com", Role: session.RoleOwner, ProfileComplete: true},
		Password: "hunter22",
		Status:   gatewaytest.StatusPending,
	})
	b.AddAccount(gatewaytest.Account{
		Profile:  session.UserProfile{Email: "banned@example.com", Role: session.RoleOwner},
		Password: "hunter22",
		Status:   gatewaytest.StatusRejected,
	})
	return b
}

func TestHTTPPasswordLoginOutcomes(t *testing.T) {
	c := newHTTPGateway(t, seededBackend().Handler(), nil)
	ctx := context.Background()

	g, err := c.LoginWithPassword(ctx, "player@example.com", "hunter22", true)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if g.Token == "" || g.User.Role != session.RolePlayer || g.ExpiresAt.IsZero() {
		t.Fatalf("unexpected grant %+v", g)
	}

	tests := []struct {
		email string
		pass  string
		want  error
	}{
		{"player@example.com", "wrong", session.ErrInvalidCredentials},
		{"nobody@example.com", "hunter22", session.ErrInvalidCredentials},
		{"owner@example.com", "hunter22", session.ErrPendingApproval},
		{"banned@example.com", "hunter22", session.ErrAccountRejected},
	}
	for _, tt := range tests {
		_, err := c.LoginWithPassword(ctx, tt.email, tt.pass, false)
		if !errors.Is(err, tt.want) {
			t.Fatalf("%s: expected %v, got %v", tt.email, tt.want, err)
		}
	}
}

func TestHTTPServerErrorIsNetworkUnavailable(t *testing.T) {
	c := newHTTPGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}), nil)
	_, err := c.LoginWithPassword(context.Background(), "a@b.c", "x", false)
	if !errors.Is(err, session.ErrNetworkUnavailable) {
		t.Fatalf("expected network unavailable, got %v", err)
	}
}

func TestHTTPUnreachableIsNetworkUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := gateway.NewHTTPClient(gateway.HTTPConfig{BaseURL: url})
	if err != nil {
		t.Fatalf("new http client: %v", err)
	}
	if err := c.RequestOtp(context.Background(), "a@b.c"); !errors.Is(err, session.ErrNetworkUnavailable) {
		t.Fatalf("expected network unavailable, got %v", err)
	}
}

func TestHTTPTimeoutIsNetworkUnavailable(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	c, err := gateway.NewHTTPClient(gateway.HTTPConfig{BaseURL: srv.URL, Timeout: 50 * time.Millisecond})
	if err != nil {
		t.Fatalf("new http client: %v", err)
	}
	_, err = c.VerifyToken(context.Background(), "tok")
	if !errors.Is(err, session.ErrNetworkUnavailable) {
		t.Fatalf("expected network unavailable, got %v", err)
	}
}

func TestHTTPUnknownRoleRejected(t *testing.T) {
	c := newHTTPGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"token":"t","user":{"id":"u1","email":"a@b.c","role":"superuser"}}`))
	}), nil)
	_, err := c.LoginWithPassword(context.Background(), "a@b.c", "x", false)
	ae, ok := session.AsAuthError(err)
	if !ok || ae.Kind != session.KindValidation || ae.Field != "role" {
		t.Fatalf("expected role validation error, got %v", err)
	}
}

func TestHTTPExpiryFallsBackToTokenClaim(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	issuer, err := jwt.NewManager(jwt.Config{SigningMethod: jwt.MethodEd25519, PrivateKey: priv})
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}
	token, err := issuer.Issue("u1", "a@b.c", "admin", 15*time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	inspector, _ := jwt.NewManager(jwt.Config{})

	c := newHTTPGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"token":"` + token + `","user":{"id":"u1","email":"a@b.c","role":"admin","profile_complete":true}}`))
	}), inspector)

	g, err := c.LoginWithPassword(context.Background(), "a@b.c", "x", false)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if d := time.Until(g.ExpiresAt); d < 14*time.Minute || d > 15*time.Minute {
		t.Fatalf("expected expiry from exp claim, got %v", g.ExpiresAt)
	}
}

func TestHTTPExtendIgnoresRotatedToken(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	issuer, err := jwt.NewManager(jwt.Config{SigningMethod: jwt.MethodEd25519, PrivateKey: priv})
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}
	current, err := issuer.Issue("u1", "a@b.c", "player", 15*time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	rotated, err := issuer.Issue("u1", "a@b.c", "player", time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	inspector, _ := jwt.NewManager(jwt.Config{})

	c := newHTTPGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"token":"` + rotated + `"}`))
	}), inspector)

	exp, err := c.ExtendSession(context.Background(), current)
	if err != nil {
		t.Fatalf("extend: %v", err)
	}
	if d := time.Until(exp); d < 14*time.Minute || d > 15*time.Minute {
		t.Fatalf("expected expiry of the session token, got %v", exp)
	}
}

func TestHTTPOtpRoundTrip(t *testing.T) {
	b := seededBackend()
	c := newHTTPGateway(t, b.Handler(), nil)
	ctx := context.Background()

	if err := c.RequestOtp(ctx, "player@example.com"); err != nil {
		t.Fatalf("request otp: %v", err)
	}
	if _, err := c.LoginWithOtp(ctx, "player@example.com", "000000"); !errors.Is(err, session.ErrOtpExpiredOrInvalid) {
		t.Fatalf("expected otp error, got %v", err)
	}
	if err := c.RequestOtp(ctx, "player@example.com"); err != nil {
		t.Fatalf("request otp: %v", err)
	}
	code := b.LastOtp("player@example.com")
	g, err := c.LoginWithOtp(ctx, "player@example.com", code)
	if err != nil {
		t.Fatalf("verify otp: %v", err)
	}
	if g.User.Email != "player@example.com" {
		t.Fatalf("unexpected user %+v", g.User)
	}
}

func TestHTTPFederatedNewAccount(t *testing.T) {
	b := seededBackend()
	c := newHTTPGateway(t, b.Handler(), nil)

	g, err := c.ExchangeFederatedToken(context.Background(), "provider-token-1")
	if err != nil {
		t.Fatalf("exchange: %v", err)
	}
	if !g.IsNewAccount || g.User.ProfileComplete {
		t.Fatalf("expected new incomplete account, got %+v", g)
	}

	again, err := c.ExchangeFederatedToken(context.Background(), "provider-token-1")
	if err != nil {
		t.Fatalf("second exchange: %v", err)
	}
	if again.IsNewAccount || again.User.ID != g.User.ID {
		t.Fatalf("expected returning account, got %+v", again)
	}

	_, err = c.ExchangeFederatedToken(context.Background(), "")
	ae, ok := session.AsAuthError(err)
	if !ok || ae.Kind != session.KindFederatedExchangeFailed || ae.SubReason != session.SubReasonExchangeRejected {
		t.Fatalf("expected rejected exchange, got %v", err)
	}
}

func TestHTTPVerifyProfileAndExtend(t *testing.T) {
	b := seededBackend()
	c := newHTTPGateway(t, b.Handler(), nil)
	ctx := context.Background()

	token := b.IssueToken("player@example.com")
	id, err := c.VerifyToken(ctx, token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if id.User.Email != "player@example.com" {
		t.Fatalf("unexpected identity %+v", id)
	}

	phone := "+15550100123"
	first, last := "Ada", "Lovelace"
	u, err := c.UpdateProfile(ctx, token, gateway.ProfileFields{FirstName: &first, LastName: &last, Phone: &phone})
	if err != nil {
		t.Fatalf("update profile: %v", err)
	}
	if u.Phone != phone || !u.ProfileComplete {
		t.Fatalf("unexpected profile %+v", u)
	}

	exp, err := c.ExtendSession(ctx, token)
	if err != nil {
		t.Fatalf("extend: %v", err)
	}
	if exp.Before(id.ExpiresAt) {
		t.Fatalf("extension moved expiry backwards")
	}

	b.RevokeToken(token)
	if _, err := c.VerifyToken(ctx, token); !errors.Is(err, session.ErrTokenInvalidOrExpired) {
		t.Fatalf("expected token invalid, got %v", err)
	}
	if _, err := c.ExtendSession(ctx, token); !errors.Is(err, session.ErrTokenInvalidOrExpired) {
		t.Fatalf("expected token invalid on extend, got %v", err)
	}
}

func TestNewHTTPClientValidatesBaseURL(t *testing.T) {
	if _, err := gateway.NewHTTPClient(gateway.HTTPConfig{}); err == nil {
		t.Fatal("expected missing base URL error")
	}
	if _, err := gateway.NewHTTPClient(gateway.HTTPConfig{BaseURL: "ftp://example.com"}); err == nil {
		t.Fatal("expected unsupported scheme error")
	}
}

func TestProfileFieldsValidate(t *testing.T) {
	blank := "  "
	bad := "12ab"
	tests := []struct {
		name   string
		fields gateway.ProfileFields
		field  string
	}{
		{"empty", gateway.ProfileFields{}, "profile"},
		{"blank first", gateway.ProfileFields{FirstName: &blank}, "first_name"},
		{"bad phone", gateway.ProfileFields{Phone: &bad}, "phone"},
	}
	for _, tt := range tests {
		err := tt.fields.Validate()
		ae, ok := session.AsAuthError(err)
		if !ok || ae.Field != tt.field {
			t.Fatalf("%s: expected field %s, got %v", tt.name, tt.field, err)
		}
	}
}
