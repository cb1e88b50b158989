package middleware

import (
	"net/http"

	"github.com/MrEthical07/authcore/guard"
)

// NextTarget returns where to send the browser after a successful login: the request's
// next parameter when it is a local path, else fallback.
func NextTarget(r *http.Request, fallback string) string {
	return guard.SafeNext(r.URL.Query().Get("next"), fallback)
}
