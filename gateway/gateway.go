package gateway

import (
	"context"
	"strings"
	"time"

	"github.com/MrEthical07/authcore/session"
)

// Identity is the result of verifying a stored token.
type Identity struct {
	User      session.UserProfile
	ExpiresAt time.Time
}

// Grant is the result of a successful login exchange.
type Grant struct {
	Token        string
	User         session.UserProfile
	ExpiresAt    time.Time
	IsNewAccount bool
}

// ProfileFields is a partial profile update. Nil fields are left unchanged.
type ProfileFields struct {
	FirstName *string `json:"first_name,omitempty"`
	LastName  *string `json:"last_name,omitempty"`
	Phone     *string `json:"phone,omitempty"`
}

// Empty reports whether no field is set.
func (f ProfileFields) Empty() bool {
	return f.FirstName == nil && f.LastName == nil && f.Phone == nil
}

// Validate rejects blank names and malformed phone numbers.
func (f ProfileFields) Validate() error {
	if f.Empty() {
		return session.Validationf("profile", "no fields to update")
	}
	if f.FirstName != nil && strings.TrimSpace(*f.FirstName) == "" {
		return session.Validationf("first_name", "first name must not be blank")
	}
	if f.LastName != nil && strings.TrimSpace(*f.LastName) == "" {
		return session.Validationf("last_name", "last name must not be blank")
	}
	if f.Phone != nil && !validPhone(*f.Phone) {
		return session.Validationf("phone", "phone number is invalid")
	}
	return nil
}

// Apply returns u with the set fields replaced.
func (f ProfileFields) Apply(u session.UserProfile) session.UserProfile {
	if f.FirstName != nil {
		u.FirstName = strings.TrimSpace(*f.FirstName)
	}
	if f.LastName != nil {
		u.LastName = strings.TrimSpace(*f.LastName)
	}
	if f.Phone != nil {
		u.Phone = strings.TrimSpace(*f.Phone)
	}
	return u
}

func validPhone(p string) bool {
	p = strings.TrimSpace(p)
	p = strings.TrimPrefix(p, "+")
	if len(p) < 7 || len(p) > 15 {
		return false
	}
	for _, r := range p {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Gateway is the backend contract consumed by the login flows and the engine.
type Gateway interface {
	VerifyToken(ctx context.Context, token string) (Identity, error)
	LoginWithPassword(ctx context.Context, email, password string, rememberMe bool) (Grant, error)
	RequestOtp(ctx context.Context, email string) error
	LoginWithOtp(ctx context.Context, email, code string) (Grant, error)
	ExchangeFederatedToken(ctx context.Context, providerToken string) (Grant, error)
	UpdateProfile(ctx context.Context, token string, fields ProfileFields) (session.UserProfile, error)
	ExtendSession(ctx context.Context, token string) (time.Time, error)
}
