package guard

import (
	"net/url"
	"strings"

	"github.com/MrEthical07/authcore/session"
)

// Kind is the outcome class of a Decision.
type Kind uint8

const (
	// Loading renders a neutral placeholder; the identity is not known yet.
	Loading Kind = iota + 1
	// Allow renders the requested route.
	Allow
	// Redirect navigates to Decision.Target instead.
	Redirect
)

func (k Kind) String() string {
	switch k {
	case Loading:
		return "loading"
	case Allow:
		return "allow"
	case Redirect:
		return "redirect"
	default:
		return "unknown"
	}
}

// Route is the declared requirement of a page. A zero RequiredRole accepts any role.
type Route struct {
	Path         string
	RequiresAuth bool
	RequiredRole session.Role
}

// Decision is the result of evaluating a Route against a Session.
type Decision struct {
	Kind   Kind
	Target string
}

// Policy holds the well-known paths used as redirect targets.
type Policy struct {
	LoginPath             string
	ProfileCompletionPath string
}

const (
	defaultLoginPath             = "/login"
	defaultProfileCompletionPath = "/complete-profile"
)

// DefaultPolicy returns the policy with the stock login and completion paths.
func DefaultPolicy() Policy {
	return Policy{
		LoginPath:             defaultLoginPath,
		ProfileCompletionPath: defaultProfileCompletionPath,
	}
}

func (p Policy) withDefaults() Policy {
	if p.LoginPath == "" {
		p.LoginPath = defaultLoginPath
	}
	if p.ProfileCompletionPath == "" {
		p.ProfileCompletionPath = defaultProfileCompletionPath
	}
	return p
}

// Route applies the authentication and role requirements of r. A redirect that would land
// on r.Path itself is returned as Allow.
func (p Policy) Route(s session.Session, r Route) Decision {
	p = p.withDefaults()
	if s.Phase == session.PhaseBootstrapping {
		return Decision{Kind: Loading}
	}

	authenticated := s.Authenticated()
	switch {
	case r.RequiresAuth && !authenticated:
		if samePath(r.Path, p.LoginPath) {
			return Decision{Kind: Allow}
		}
		return redirect(p.LoginPath + "?next=" + url.QueryEscape(pathOrRoot(r.Path)))
	case !r.RequiresAuth && authenticated,
		r.RequiredRole != 0 && authenticated && s.Role() != r.RequiredRole:
		return redirectAway(r.Path, s.Role().HomePath())
	}
	return Decision{Kind: Allow}
}

// ProfileGate redirects an authenticated session with an incomplete profile to the
// completion page. The completion page itself is always allowed.
func (p Policy) ProfileGate(s session.Session, path string) Decision {
	p = p.withDefaults()
	if s.Phase == session.PhaseBootstrapping {
		return Decision{Kind: Loading}
	}
	if !s.Authenticated() || s.ProfileComplete() {
		return Decision{Kind: Allow}
	}
	if samePath(path, p.ProfileCompletionPath) {
		return Decision{Kind: Allow}
	}
	return redirect(p.ProfileCompletionPath)
}

// Evaluate runs Route and, when it allows, ProfileGate.
func (p Policy) Evaluate(s session.Session, r Route) Decision {
	d := p.Route(s, r)
	if d.Kind != Allow {
		return d
	}
	return p.ProfileGate(s, r.Path)
}

// SafeNext returns next when it is a local absolute path, otherwise fallback. Scheme,
// host, and protocol-relative forms are rejected so a login return cannot leave the app.
func SafeNext(next, fallback string) string {
	next = strings.TrimSpace(next)
	if next == "" || !strings.HasPrefix(next, "/") {
		return fallback
	}
	if strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") || strings.ContainsAny(next, "\r\n\t") {
		return fallback
	}
	u, err := url.Parse(next)
	if err != nil || u.Scheme != "" || u.Host != "" || u.User != nil {
		return fallback
	}
	return next
}

func redirect(target string) Decision {
	return Decision{Kind: Redirect, Target: target}
}

func redirectAway(from, target string) Decision {
	if samePath(pathOrRoot(from), target) {
		return Decision{Kind: Allow}
	}
	return redirect(target)
}

func pathOrRoot(path string) string {
	if path == "" {
		return "/"
	}
	return path
}

func samePath(a, b string) bool {
	if i := strings.IndexAny(a, "?#"); i >= 0 {
		a = a[:i]
	}
	return strings.TrimSuffix(a, "/") == strings.TrimSuffix(b, "/")
}
