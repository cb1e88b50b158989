// Package gatewaytest provides an in-memory backend that implements gateway.Gateway and
// serves the same contract over HTTP.
package gatewaytest

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/MrEthical07/authcore/gateway"
	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/session"
	"github.com/google/uuid"
)

// Operation names used by Calls, Hold, and FailNext.
const (
	OpVerify    = "verify"
	OpPassword  = "password"
	OpOtpIssue  = "otp_request"
	OpOtpVerify = "otp_verify"
	OpFederated = "federated"
	OpProfile   = "profile"
	OpExtend    = "extend"
)

// Account statuses.
const (
	StatusActive   = "active"
	StatusPending  = "pending"
	StatusRejected = "rejected"
)

// Account is a backend user record.
type Account struct {
	Profile  session.UserProfile
	Password string
	Status   string
}

// Backend is a thread-safe fake of the authentication service.
type Backend struct {
	mu        sync.Mutex
	accounts  map[string]*Account
	tokens    map[string]tokenEntry
	otps      map[string]string
	federated map[string]string
	calls     map[string]int
	holds     map[string]chan struct{}
	failures  map[string][]error

	ttl    time.Duration
	now    func() time.Time
	issuer *jwt.Manager
	otpGen func() string
}

type tokenEntry struct {
	email     string
	expiresAt time.Time
}

// Option customizes a Backend.
type Option func(*Backend)

// WithTTL sets the lifetime of issued tokens.
func WithTTL(ttl time.Duration) Option {
	return func(b *Backend) { b.ttl = ttl }
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(b *Backend) { b.now = now }
}

// WithIssuer issues signed JWTs instead of opaque tokens.
func WithIssuer(m *jwt.Manager) Option {
	return func(b *Backend) { b.issuer = m }
}

// WithOtpGenerator sets how one-time codes are generated.
func WithOtpGenerator(gen func() string) Option {
	return func(b *Backend) { b.otpGen = gen }
}

// New returns an empty backend.
func New(opts ...Option) *Backend {
	b := &Backend{
		accounts:  map[string]*Account{},
		tokens:    map[string]tokenEntry{},
		otps:      map[string]string{},
		federated: map[string]string{},
		calls:     map[string]int{},
		holds:     map[string]chan struct{}{},
		failures:  map[string][]error{},
		ttl:       time.Hour,
		now:       time.Now,
		otpGen:    func() string { return "123456" },
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

var _ gateway.Gateway = (*Backend)(nil)

// AddAccount registers an account. Password may be empty for federated-only users.
func (b *Backend) AddAccount(a Account) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if a.Status == "" {
		a.Status = StatusActive
	}
	if a.Profile.ID == "" {
		a.Profile.ID = uuid.NewString()
	}
	a.Profile.Email = session.NormalizeEmail(a.Profile.Email)
	acct := a
	b.accounts[a.Profile.Email] = &acct
}

// LinkProvider maps a provider token to an existing account email.
func (b *Backend) LinkProvider(providerToken, email string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.federated[providerToken] = session.NormalizeEmail(email)
}

// IssueToken mints a token for email directly, as if it had been stored by an earlier run.
func (b *Backend) IssueToken(email string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	token, _ := b.issueLocked(session.NormalizeEmail(email))
	return token
}

// RevokeToken invalidates token.
func (b *Backend) RevokeToken(token string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.tokens, token)
}

// LastOtp returns the outstanding code for email.
func (b *Backend) LastOtp(email string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.otps[session.NormalizeEmail(email)]
}

// Calls returns how many times op was invoked.
func (b *Backend) Calls(op string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[op]
}

// FailNext makes the next call of op return err.
func (b *Backend) FailNext(op string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures[op] = append(b.failures[op], err)
}

// Hold blocks every call of op until the returned release func is called or the call's
// context ends.
func (b *Backend) Hold(op string) (release func()) {
	ch := make(chan struct{})
	b.mu.Lock()
	b.holds[op] = ch
	b.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			if b.holds[op] == ch {
				delete(b.holds, op)
			}
			b.mu.Unlock()
			close(ch)
		})
	}
}

func (b *Backend) enter(ctx context.Context, op string) error {
	b.mu.Lock()
	b.calls[op]++
	hold := b.holds[op]
	var injected error
	if q := b.failures[op]; len(q) > 0 {
		injected = q[0]
		b.failures[op] = q[1:]
	}
	b.mu.Unlock()

	if hold != nil {
		select {
		case <-hold:
		case <-ctx.Done():
			return session.WrapNetwork(ctx.Err())
		}
	}
	if injected != nil {
		return injected
	}
	if err := ctx.Err(); err != nil {
		return session.WrapNetwork(err)
	}
	return nil
}

func (b *Backend) VerifyToken(ctx context.Context, token string) (gateway.Identity, error) {
	if err := b.enter(ctx, OpVerify); err != nil {
		return gateway.Identity{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	acct, entry, err := b.lookupLocked(token)
	if err != nil {
		return gateway.Identity{}, err
	}
	return gateway.Identity{User: acct.Profile, ExpiresAt: entry.expiresAt}, nil
}

func (b *Backend) LoginWithPassword(ctx context.Context, email, password string, _ bool) (gateway.Grant, error) {
	if err := b.enter(ctx, OpPassword); err != nil {
		return gateway.Grant{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	acct, ok := b.accounts[session.NormalizeEmail(email)]
	if !ok || acct.Password == "" || acct.Password != password {
		return gateway.Grant{}, session.NewError(session.KindInvalidCredentials, session.ErrInvalidCredentials.Message)
	}
	if err := statusError(acct); err != nil {
		return gateway.Grant{}, err
	}
	return b.grantLocked(acct, false)
}

func (b *Backend) RequestOtp(ctx context.Context, email string) error {
	if err := b.enter(ctx, OpOtpIssue); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	key := session.NormalizeEmail(email)
	if _, ok := b.accounts[key]; !ok {
		// Unknown addresses get no code but the same response.
		return nil
	}
	b.otps[key] = b.otpGen()
	return nil
}

func (b *Backend) LoginWithOtp(ctx context.Context, email, code string) (gateway.Grant, error) {
	if err := b.enter(ctx, OpOtpVerify); err != nil {
		return gateway.Grant{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	key := session.NormalizeEmail(email)
	want, ok := b.otps[key]
	delete(b.otps, key)
	if !ok || want != strings.TrimSpace(code) {
		return gateway.Grant{}, session.NewError(session.KindOtpExpiredOrInvalid, session.ErrOtpExpiredOrInvalid.Message)
	}
	acct, ok := b.accounts[key]
	if !ok {
		return gateway.Grant{}, session.NewError(session.KindOtpExpiredOrInvalid, session.ErrOtpExpiredOrInvalid.Message)
	}
	if err := statusError(acct); err != nil {
		return gateway.Grant{}, err
	}
	return b.grantLocked(acct, false)
}

func (b *Backend) ExchangeFederatedToken(ctx context.Context, providerToken string) (gateway.Grant, error) {
	if err := b.enter(ctx, OpFederated); err != nil {
		return gateway.Grant{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if strings.TrimSpace(providerToken) == "" {
		return gateway.Grant{}, &session.AuthError{
			Kind:      session.KindFederatedExchangeFailed,
			Message:   session.ErrFederatedExchangeFailed.Message,
			SubReason: session.SubReasonExchangeRejected,
		}
	}
	if email, ok := b.federated[providerToken]; ok {
		acct := b.accounts[email]
		if acct == nil {
			return gateway.Grant{}, &session.AuthError{
				Kind:      session.KindFederatedExchangeFailed,
				Message:   session.ErrFederatedExchangeFailed.Message,
				SubReason: session.SubReasonExchangeRejected,
			}
		}
		if err := statusError(acct); err != nil {
			return gateway.Grant{}, err
		}
		return b.grantLocked(acct, false)
	}

	id := uuid.NewString()
	email := "fed-" + id[:8] + "@users.example.com"
	acct := &Account{
		Profile: session.UserProfile{ID: id, Email: email, Role: session.RolePlayer, ProfileComplete: false},
		Status:  StatusActive,
	}
	b.accounts[email] = acct
	b.federated[providerToken] = email
	return b.grantLocked(acct, true)
}

func (b *Backend) UpdateProfile(ctx context.Context, token string, fields gateway.ProfileFields) (session.UserProfile, error) {
	if err := b.enter(ctx, OpProfile); err != nil {
		return session.UserProfile{}, err
	}
	if err := fields.Validate(); err != nil {
		return session.UserProfile{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	acct, _, err := b.lookupLocked(token)
	if err != nil {
		return session.UserProfile{}, err
	}
	p := fields.Apply(acct.Profile)
	p.ProfileComplete = p.FirstName != "" && p.LastName != "" && p.Phone != ""
	acct.Profile = p
	return p, nil
}

func (b *Backend) ExtendSession(ctx context.Context, token string) (time.Time, error) {
	if err := b.enter(ctx, OpExtend); err != nil {
		return time.Time{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	_, entry, err := b.lookupLocked(token)
	if err != nil {
		return time.Time{}, err
	}
	entry.expiresAt = b.now().Add(b.ttl)
	b.tokens[token] = entry
	return entry.expiresAt, nil
}

func (b *Backend) lookupLocked(token string) (*Account, tokenEntry, error) {
	entry, ok := b.tokens[token]
	if !ok || !b.now().Before(entry.expiresAt) {
		return nil, tokenEntry{}, session.NewError(session.KindTokenInvalidOrExpired, session.ErrTokenInvalidOrExpired.Message)
	}
	acct, ok := b.accounts[entry.email]
	if !ok {
		return nil, tokenEntry{}, session.NewError(session.KindTokenInvalidOrExpired, session.ErrTokenInvalidOrExpired.Message)
	}
	return acct, entry, nil
}

func (b *Backend) grantLocked(acct *Account, isNew bool) (gateway.Grant, error) {
	token, exp := b.issueLocked(acct.Profile.Email)
	if token == "" {
		return gateway.Grant{}, session.WrapNetwork(errors.New("token issue failed"))
	}
	return gateway.Grant{Token: token, User: acct.Profile, ExpiresAt: exp, IsNewAccount: isNew}, nil
}

func (b *Backend) issueLocked(email string) (string, time.Time) {
	exp := b.now().Add(b.ttl)
	token := "tok_" + uuid.NewString()
	if b.issuer != nil {
		role := ""
		if acct, ok := b.accounts[email]; ok {
			role = acct.Profile.Role.String()
		}
		signed, err := b.issuer.Issue(email, email, role, b.ttl)
		if err != nil {
			return "", time.Time{}
		}
		token = signed
	}
	b.tokens[token] = tokenEntry{email: email, expiresAt: exp}
	return token, exp
}

func statusError(acct *Account) error {
	switch acct.Status {
	case StatusPending:
		return session.NewError(session.KindPendingApproval, session.ErrPendingApproval.Message)
	case StatusRejected:
		return session.NewError(session.KindAccountRejected, session.ErrAccountRejected.Message)
	default:
		return nil
	}
}
