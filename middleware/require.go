package middleware

import (
	"net/http"

	authcore "github.com/MrEthical07/authcore"
)

// RequireSignedIn guards a page that any authenticated role may open.
func RequireSignedIn(engine Decider) func(http.Handler) http.Handler {
	return Guard(engine, authcore.Route{RequiresAuth: true})
}

// RequireRole guards a page reserved for role. Other roles go to their own home.
func RequireRole(engine Decider, role authcore.Role) func(http.Handler) http.Handler {
	return Guard(engine, authcore.Route{RequiresAuth: true, RequiredRole: role})
}

// PublicOnly guards pages such as the login form that a signed-in user should skip.
func PublicOnly(engine Decider) func(http.Handler) http.Handler {
	return Guard(engine, authcore.Route{})
}
