package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	authcore "github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/guard"
)

type fixedSession struct {
	s      authcore.Session
	policy guard.Policy
}

func (f fixedSession) Session() authcore.Session { return f.s }
func (f fixedSession) Decide(r authcore.Route) authcore.Decision {
	return f.policy.Evaluate(f.s, r)
}

func signedIn(role authcore.Role, complete bool) fixedSession {
	return fixedSession{
		s: authcore.Session{
			ID:    "s-1",
			Token: "tok",
			Phase: authcore.PhaseAuthenticated,
			User:  &authcore.UserProfile{ID: "u-1", Email: "u@example.com", Role: role, ProfileComplete: complete},
		},
		policy: guard.DefaultPolicy(),
	}
}

func signedOut() fixedSession {
	return fixedSession{s: authcore.Session{Phase: authcore.PhaseUnauthenticated}, policy: guard.DefaultPolicy()}
}

func serve(t *testing.T, mw func(http.Handler) http.Handler, target string) (*httptest.ResponseRecorder, *authcore.Session) {
	t.Helper()
	var seen *authcore.Session
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s, ok := SessionFromContext(r.Context()); ok {
			seen = &s
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec, seen
}

func TestGuardDecisions(t *testing.T) {
	tests := []struct {
		name     string
		engine   Decider
		mw       func(Decider) func(http.Handler) http.Handler
		target   string
		status   int
		location string
	}{
		{
			name:     "signed out goes to login with next",
			engine:   signedOut(),
			mw:       RequireSignedIn,
			target:   "/bookings?tab=past",
			status:   http.StatusSeeOther,
			location: "/login?next=%2Fbookings%3Ftab%3Dpast",
		},
		{
			name:   "signed in is admitted",
			engine: signedIn(authcore.RolePlayer, true),
			mw:     RequireSignedIn,
			target: "/bookings",
			status: http.StatusNoContent,
		},
		{
			name:     "wrong role goes home",
			engine:   signedIn(authcore.RolePlayer, true),
			mw:       func(d Decider) func(http.Handler) http.Handler { return RequireRole(d, authcore.RoleOwner) },
			target:   "/owner/dashboard",
			status:   http.StatusSeeOther,
			location: "/",
		},
		{
			name:     "incomplete profile goes to completion",
			engine:   signedIn(authcore.RoleOwner, false),
			mw:       RequireSignedIn,
			target:   "/owner/dashboard",
			status:   http.StatusSeeOther,
			location: "/complete-profile",
		},
		{
			name:   "completion page admits incomplete profile",
			engine: signedIn(authcore.RoleOwner, false),
			mw:     RequireSignedIn,
			target: "/complete-profile",
			status: http.StatusNoContent,
		},
		{
			name:     "login page skipped when signed in",
			engine:   signedIn(authcore.RoleAdmin, true),
			mw:       PublicOnly,
			target:   "/login",
			status:   http.StatusSeeOther,
			location: "/admin/dashboard",
		},
		{
			name:   "loading while bootstrapping",
			engine: fixedSession{s: authcore.Session{Phase: authcore.PhaseBootstrapping}},
			mw:     RequireSignedIn,
			target: "/bookings",
			status: http.StatusServiceUnavailable,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec, _ := serve(t, tc.mw(tc.engine), tc.target)
			if rec.Code != tc.status {
				t.Fatalf("status = %d, want %d", rec.Code, tc.status)
			}
			if tc.location != "" && rec.Header().Get("Location") != tc.location {
				t.Fatalf("location = %q, want %q", rec.Header().Get("Location"), tc.location)
			}
		})
	}
}

func TestGuardStoresSessionInContext(t *testing.T) {
	rec, seen := serve(t, RequireSignedIn(signedIn(authcore.RolePlayer, true)), "/bookings")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d", rec.Code)
	}
	if seen == nil || seen.ID != "s-1" {
		t.Fatalf("session not in context: %+v", seen)
	}
}

func TestGuardLoadingSetsRetryAfter(t *testing.T) {
	rec, _ := serve(t, RequireSignedIn(fixedSession{s: authcore.Session{Phase: authcore.PhaseBootstrapping}}), "/")
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header")
	}
}

func TestGuardNilEngine(t *testing.T) {
	rec, _ := serve(t, Guard(nil, authcore.Route{RequiresAuth: true}), "/")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestNextTarget(t *testing.T) {
	tests := []struct {
		query string
		want  string
	}{
		{"/login?next=%2Fbookings", "/bookings"},
		{"/login?next=https%3A%2F%2Fevil.example", "/"},
		{"/login?next=%2F%2Fevil.example", "/"},
		{"/login", "/"},
	}
	for _, tc := range tests {
		r := httptest.NewRequest(http.MethodGet, tc.query, nil)
		if got := NextTarget(r, "/"); got != tc.want {
			t.Fatalf("NextTarget(%q) = %q, want %q", tc.query, got, tc.want)
		}
	}
}
