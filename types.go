package authcore

import (
	"github.com/MrEthical07/authcore/gateway"
	"github.com/MrEthical07/authcore/guard"
	"github.com/MrEthical07/authcore/internal/flows"
	"github.com/MrEthical07/authcore/session"
)

type (
	// Session is a read-only snapshot of the authentication record.
	Session = session.Session
	// UserProfile is the identity carried by an authenticated Session.
	UserProfile = session.UserProfile
	// Role is the closed set of account roles.
	Role = session.Role
	// Phase is the coarse state of a Session.
	Phase = session.Phase
	// Warning is the expiry banner state.
	Warning = session.Warning
	// ProfileFields is a partial profile update.
	ProfileFields = gateway.ProfileFields
	// Route declares what a page requires.
	Route = guard.Route
	// Decision is the guard's answer for a Route.
	Decision = guard.Decision
)

const (
	RolePlayer = session.RolePlayer
	RoleOwner  = session.RoleOwner
	RoleAdmin  = session.RoleAdmin
)

const (
	PhaseBootstrapping   = session.PhaseBootstrapping
	PhaseUnauthenticated = session.PhaseUnauthenticated
	PhaseAuthenticating  = session.PhaseAuthenticating
	PhaseAuthenticated   = session.PhaseAuthenticated
)

// Login method names, used in audit events and LoginStarted actions.
const (
	MethodPassword  = "password"
	MethodOTP       = "otp"
	MethodFederated = "federated"
)

// LoginAttempt is one of PasswordAttempt, OtpAttempt, or FederatedAttempt.
type LoginAttempt interface {
	Method() string
	Validate() *AuthError
	isLoginAttempt()
}

// PasswordAttempt is an email and password login.
type PasswordAttempt struct {
	Email      string
	Password   string
	RememberMe bool
}

func (PasswordAttempt) Method() string  { return MethodPassword }
func (PasswordAttempt) isLoginAttempt() {}

// Validate checks the fields before any network call.
func (a PasswordAttempt) Validate() *AuthError {
	if err := flows.ValidateEmail(a.Email); err != nil {
		return err
	}
	return flows.ValidatePassword(a.Password)
}

// OtpAttempt submits a one-time code issued by RequestOTP.
type OtpAttempt struct {
	Email string
	Code  string
}

func (OtpAttempt) Method() string  { return MethodOTP }
func (OtpAttempt) isLoginAttempt() {}

// Validate checks the fields before any network call.
func (a OtpAttempt) Validate() *AuthError {
	if err := flows.ValidateEmail(a.Email); err != nil {
		return err
	}
	return flows.ValidateOtpCode(a.Code)
}

// FederatedAttempt exchanges a provider token. An empty ProviderToken asks the configured
// TokenProvider for one.
type FederatedAttempt struct {
	ProviderToken string
}

func (FederatedAttempt) Method() string       { return MethodFederated }
func (FederatedAttempt) isLoginAttempt()      {}
func (FederatedAttempt) Validate() *AuthError { return nil }

// Outcome is the result of an Engine action.
//
// Session is the snapshot after the action settled. Err is nil on success. Discarded is set
// when the backend answered after the attempt was superseded or logged out; its result was
// not applied.
type Outcome struct {
	Session      Session
	Err          *AuthError
	IsNewAccount bool
	Discarded    bool
}

// OK reports whether the action succeeded and was applied.
func (o Outcome) OK() bool {
	return o.Err == nil && !o.Discarded
}
