package session

import (
	"strconv"
	"strings"
	"time"
)

// Phase is the coarse authentication state of a Session.
type Phase uint8

const (
	// PhaseBootstrapping is the initial phase while the stored token is being replayed.
	PhaseBootstrapping Phase = iota
	// PhaseUnauthenticated means no identity is established.
	PhaseUnauthenticated
	// PhaseAuthenticating means a login attempt is in flight.
	PhaseAuthenticating
	// PhaseAuthenticated means token and user are both present.
	PhaseAuthenticated
	// PhaseFailed is transient: a failed attempt passes through it and settles in
	// PhaseUnauthenticated within the same transition. It is never stored.
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseBootstrapping:
		return "bootstrapping"
	case PhaseUnauthenticated:
		return "unauthenticated"
	case PhaseAuthenticating:
		return "authenticating"
	case PhaseAuthenticated:
		return "authenticated"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Role is the closed set of account roles.
type Role uint8

const (
	// RolePlayer books turfs.
	RolePlayer Role = iota + 1
	// RoleOwner lists and manages turfs; owner accounts require approval.
	RoleOwner
	// RoleAdmin approves owners and moderates the platform.
	RoleAdmin
)

// ParseRole maps a wire role name to a Role.
func ParseRole(s string) (Role, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "player", "user":
		return RolePlayer, true
	case "owner":
		return RoleOwner, true
	case "admin":
		return RoleAdmin, true
	default:
		return 0, false
	}
}

// Valid reports whether r is one of the defined roles.
func (r Role) Valid() bool {
	switch r {
	case RolePlayer, RoleOwner, RoleAdmin:
		return true
	default:
		return false
	}
}

func (r Role) String() string {
	switch r {
	case RolePlayer:
		return "player"
	case RoleOwner:
		return "owner"
	case RoleAdmin:
		return "admin"
	default:
		return ""
	}
}

// HomePath is the landing page of the role. Every role has one.
func (r Role) HomePath() string {
	switch r {
	case RolePlayer:
		return "/"
	case RoleOwner:
		return "/owner/dashboard"
	case RoleAdmin:
		return "/admin/dashboard"
	default:
		return "/"
	}
}

// MarshalText encodes the wire role name.
func (r Role) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, &AuthError{Kind: KindValidation, Message: "unknown role", Field: "role"}
	}
	return []byte(r.String()), nil
}

// UnmarshalText rejects role names outside the closed set.
func (r *Role) UnmarshalText(text []byte) error {
	parsed, ok := ParseRole(string(text))
	if !ok {
		return &AuthError{Kind: KindValidation, Message: "unknown role " + strconv.Quote(string(text)), Field: "role"}
	}
	*r = parsed
	return nil
}

// UserProfile is the resolved identity of an authenticated session.
type UserProfile struct {
	ID              string `json:"id"`
	Email           string `json:"email"`
	Role            Role   `json:"role"`
	FirstName       string `json:"first_name,omitempty"`
	LastName        string `json:"last_name,omitempty"`
	Phone           string `json:"phone,omitempty"`
	ProfileComplete bool   `json:"profile_complete"`
}

// DisplayName joins the name fields, falling back to the email.
func (u UserProfile) DisplayName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.Email
	}
	return name
}

// Session is the authoritative authentication record.
//
// Token and User are either both set or both empty.
type Session struct {
	ID         string
	Token      string
	User       *UserProfile
	Phase      Phase
	LastError  *AuthError
	ExpiresAt  time.Time
	Generation uint64
}

// Authenticated reports whether the session carries an identity.
func (s Session) Authenticated() bool {
	return s.Phase == PhaseAuthenticated && s.Token != "" && s.User != nil
}

// ProfileComplete is derived from the user; false when unauthenticated.
func (s Session) ProfileComplete() bool {
	return s.User != nil && s.User.ProfileComplete
}

// Role returns the user's role, or zero when unauthenticated.
func (s Session) Role() Role {
	if s.User == nil {
		return 0
	}
	return s.User.Role
}

// Clone returns a copy that shares no pointers with s.
func (s Session) Clone() Session {
	out := s
	if s.User != nil {
		u := *s.User
		out.User = &u
	}
	if s.LastError != nil {
		e := *s.LastError
		out.LastError = &e
	}
	return out
}

// Warning is the expiry banner state published by the Monitor.
type Warning struct {
	Active           bool
	SecondsRemaining uint32
}

// OtpChallenge records that a one-time code was issued for Email.
type OtpChallenge struct {
	Email    string
	IssuedAt time.Time
}

// NormalizeEmail is the canonical form used for challenge lookups.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
