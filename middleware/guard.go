package middleware

import (
	"context"
	"net/http"
	"strconv"

	authcore "github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/guard"
)

// Decider is the slice of *authcore.Engine the middleware needs.
type Decider interface {
	Decide(route authcore.Route) authcore.Decision
	Session() authcore.Session
}

type sessionContextKey struct{}

// SessionFromContext returns the snapshot the guard admitted the request with.
func SessionFromContext(ctx context.Context) (authcore.Session, bool) {
	s, ok := ctx.Value(sessionContextKey{}).(authcore.Session)
	return s, ok
}

// RetryAfter is sent with the 503 answer while the stored session is still being verified.
var RetryAfter = 1

// Guard evaluates route against the current session for every request.
//
// Allow passes the request on with the session in its context. Redirect answers 303 to the
// decision target. Loading answers 503 with Retry-After so the page is not rendered for
// an unknown identity. A nil engine is treated as signed out.
func Guard(engine Decider, route authcore.Route) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			rt := route
			if rt.Path == "" {
				rt.Path = r.URL.RequestURI()
			}
			// Read the snapshot before deciding so the context never holds a newer session
			// than the one the decision saw.
			s := engine.Session()
			d := engine.Decide(rt)

			switch d.Kind {
			case guard.Allow:
				ctx := context.WithValue(r.Context(), sessionContextKey{}, s)
				next.ServeHTTP(w, r.WithContext(ctx))
			case guard.Redirect:
				http.Redirect(w, r, d.Target, http.StatusSeeOther)
			case guard.Loading:
				w.Header().Set("Retry-After", strconv.Itoa(RetryAfter))
				http.Error(w, "session loading", http.StatusServiceUnavailable)
			default:
				http.Error(w, "unauthorized", http.StatusUnauthorized)
			}
		})
	}
}
