package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/session"
)

// Backend routes.
const (
	PathVerify            = "/auth/verify"
	PathLogin             = "/auth/login"
	PathOtpRequest        = "/auth/otp/request"
	PathOtpVerify         = "/auth/otp/verify"
	PathFederatedExchange = "/auth/federated/exchange"
	PathProfile           = "/users/me"
	PathExtend            = "/auth/session/extend"
)

// HTTPConfig configures an HTTPClient.
type HTTPConfig struct {
	// BaseURL is the backend origin, e.g. "https://api.example.com".
	BaseURL string
	// Timeout bounds each call when the caller's context has no earlier deadline.
	Timeout time.Duration
	// Client overrides the transport. Defaults to a client with no timeout of its own.
	Client *http.Client
	// Tokens reads the exp claim when a response omits expires_at. Optional.
	Tokens *jwt.Manager
	// UserAgent is sent on every request.
	UserAgent string
}

// HTTPClient implements Gateway over JSON/HTTP.
type HTTPClient struct {
	base      *url.URL
	timeout   time.Duration
	client    *http.Client
	tokens    *jwt.Manager
	userAgent string
}

// NewHTTPClient validates cfg and returns a client.
func NewHTTPClient(cfg HTTPConfig) (*HTTPClient, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("gateway: base URL is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("gateway: invalid base URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("gateway: unsupported scheme %q", base.Scheme)
	}
	if cfg.Timeout < 0 {
		return nil, errors.New("gateway: negative timeout")
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{}
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "authcore"
	}
	return &HTTPClient{
		base:      base,
		timeout:   cfg.Timeout,
		client:    client,
		tokens:    cfg.Tokens,
		userAgent: cfg.UserAgent,
	}, nil
}

func (c *HTTPClient) VerifyToken(ctx context.Context, token string) (Identity, error) {
	var out identityResponse
	if err := c.do(ctx, http.MethodPost, PathVerify, token, nil, &out, session.KindTokenInvalidOrExpired); err != nil {
		return Identity{}, err
	}
	if out.User == nil || out.User.ID == "" {
		return Identity{}, malformed("user")
	}
	return Identity{User: *out.User, ExpiresAt: c.expiry(out.ExpiresAt, token)}, nil
}

func (c *HTTPClient) LoginWithPassword(ctx context.Context, email, password string, rememberMe bool) (Grant, error) {
	req := passwordLoginRequest{Email: email, Password: password, RememberMe: rememberMe}
	return c.grant(ctx, PathLogin, req, session.KindInvalidCredentials)
}

func (c *HTTPClient) RequestOtp(ctx context.Context, email string) error {
	return c.do(ctx, http.MethodPost, PathOtpRequest, "", otpRequest{Email: email}, nil, session.KindValidation)
}

func (c *HTTPClient) LoginWithOtp(ctx context.Context, email, code string) (Grant, error) {
	return c.grant(ctx, PathOtpVerify, otpVerifyRequest{Email: email, Code: code}, session.KindOtpExpiredOrInvalid)
}

func (c *HTTPClient) ExchangeFederatedToken(ctx context.Context, providerToken string) (Grant, error) {
	g, err := c.grant(ctx, PathFederatedExchange, federatedExchangeRequest{ProviderToken: providerToken}, session.KindFederatedExchangeFailed)
	if err != nil {
		if ae, ok := session.AsAuthError(err); ok && ae.Kind == session.KindFederatedExchangeFailed && ae.SubReason == "" {
			ae.SubReason = session.SubReasonExchangeRejected
		}
		return Grant{}, err
	}
	return g, nil
}

func (c *HTTPClient) UpdateProfile(ctx context.Context, token string, fields ProfileFields) (session.UserProfile, error) {
	var out identityResponse
	if err := c.do(ctx, http.MethodPatch, PathProfile, token, fields, &out, session.KindTokenInvalidOrExpired); err != nil {
		return session.UserProfile{}, err
	}
	if out.User == nil || out.User.ID == "" {
		return session.UserProfile{}, malformed("user")
	}
	return *out.User, nil
}

func (c *HTTPClient) ExtendSession(ctx context.Context, token string) (time.Time, error) {
	var out extendResponse
	if err := c.do(ctx, http.MethodPost, PathExtend, token, nil, &out, session.KindTokenInvalidOrExpired); err != nil {
		return time.Time{}, err
	}
	exp := c.expiry(out.ExpiresAt, token)
	if exp.IsZero() {
		return time.Time{}, malformed("expires_at")
	}
	return exp, nil
}

func (c *HTTPClient) grant(ctx context.Context, path string, body any, fallback session.ErrorKind) (Grant, error) {
	var out grantResponse
	if err := c.do(ctx, http.MethodPost, path, "", body, &out, fallback); err != nil {
		return Grant{}, err
	}
	if out.Token == "" {
		return Grant{}, malformed("token")
	}
	if out.User == nil || out.User.ID == "" {
		return Grant{}, malformed("user")
	}
	return Grant{
		Token:        out.Token,
		User:         *out.User,
		ExpiresAt:    c.expiry(out.ExpiresAt, out.Token),
		IsNewAccount: out.IsNewAccount,
	}, nil
}

func (c *HTTPClient) expiry(explicit *time.Time, token string) time.Time {
	if explicit != nil && !explicit.IsZero() {
		return *explicit
	}
	if c.tokens == nil || token == "" {
		return time.Time{}
	}
	exp, err := c.tokens.ExpiresAt(token)
	if err != nil {
		return time.Time{}
	}
	return exp
}

func (c *HTTPClient) do(
	ctx context.Context,
	method string,
	path string,
	bearer string,
	in any,
	out any,
	fallback session.ErrorKind,
) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return session.Validationf("request", "encode request: %v", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, body)
	if err != nil {
		return session.WrapNetwork(err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return session.WrapNetwork(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp, fallback)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return nil
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(out); err != nil {
		if ae, ok := session.AsAuthError(err); ok {
			return ae
		}
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return session.WrapNetwork(err)
		}
		return &session.AuthError{Kind: session.KindValidation, Message: "malformed backend response", Field: "response", Cause: err}
	}
	return nil
}

func malformed(field string) *session.AuthError {
	return &session.AuthError{Kind: session.KindValidation, Message: "malformed backend response", Field: field}
}
