package gatewaytest

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/MrEthical07/authcore/gateway"
	"github.com/MrEthical07/authcore/session"
)

// Handler serves the backend contract consumed by gateway.HTTPClient.
func (b *Backend) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+gateway.PathVerify, func(w http.ResponseWriter, r *http.Request) {
		id, err := b.VerifyToken(r.Context(), bearer(r))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"user": id.User, "expires_at": id.ExpiresAt.UTC().Format(time.RFC3339Nano)})
	})
	mux.HandleFunc("POST "+gateway.PathLogin, func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Email      string `json:"email"`
			Password   string `json:"password"`
			RememberMe bool   `json:"remember_me"`
		}
		if !readJSON(w, r, &req) {
			return
		}
		g, err := b.LoginWithPassword(r.Context(), req.Email, req.Password, req.RememberMe)
		writeGrant(w, g, err)
	})
	mux.HandleFunc("POST "+gateway.PathOtpRequest, func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Email string `json:"email"`
		}
		if !readJSON(w, r, &req) {
			return
		}
		if err := b.RequestOtp(r.Context(), req.Email); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	})
	mux.HandleFunc("POST "+gateway.PathOtpVerify, func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Email string `json:"email"`
			Code  string `json:"code"`
		}
		if !readJSON(w, r, &req) {
			return
		}
		g, err := b.LoginWithOtp(r.Context(), req.Email, req.Code)
		writeGrant(w, g, err)
	})
	mux.HandleFunc("POST "+gateway.PathFederatedExchange, func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ProviderToken string `json:"provider_token"`
		}
		if !readJSON(w, r, &req) {
			return
		}
		g, err := b.ExchangeFederatedToken(r.Context(), req.ProviderToken)
		writeGrant(w, g, err)
	})
	mux.HandleFunc("PATCH "+gateway.PathProfile, func(w http.ResponseWriter, r *http.Request) {
		var fields gateway.ProfileFields
		if !readJSON(w, r, &fields) {
			return
		}
		u, err := b.UpdateProfile(r.Context(), bearer(r), fields)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"user": u})
	})
	mux.HandleFunc("POST "+gateway.PathExtend, func(w http.ResponseWriter, r *http.Request) {
		exp, err := b.ExtendSession(r.Context(), bearer(r))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"expires_at": exp.UTC().Format(time.RFC3339Nano)})
	})
	return mux
}

func bearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
}

func readJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, session.Validationf("body", "malformed request"))
		return false
	}
	return true
}

func writeGrant(w http.ResponseWriter, g gateway.Grant, err error) {
	if err != nil {
		writeError(w, err)
		return
	}
	body := map[string]any{
		"token":      g.Token,
		"user":       g.User,
		"expires_at": g.ExpiresAt.UTC().Format(time.RFC3339Nano),
	}
	if g.IsNewAccount {
		body["is_new_account"] = true
	}
	writeJSON(w, http.StatusOK, body)
}

// StatusFor is the HTTP status the backend uses for kind.
func StatusFor(kind session.ErrorKind) int {
	switch kind {
	case session.KindInvalidCredentials, session.KindOtpExpiredOrInvalid,
		session.KindTokenInvalidOrExpired, session.KindFederatedExchangeFailed:
		return http.StatusUnauthorized
	case session.KindPendingApproval, session.KindAccountRejected:
		return http.StatusForbidden
	case session.KindValidation:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusServiceUnavailable
	}
}

func writeError(w http.ResponseWriter, err error) {
	ae := session.Normalize(err)
	body := map[string]any{
		"code":    ae.Code(),
		"message": ae.Message,
	}
	if ae.SubReason != "" {
		body["sub_reason"] = ae.SubReason
	}
	if ae.Field != "" {
		body["field"] = ae.Field
	}
	writeJSON(w, StatusFor(ae.Kind), map[string]any{"error": body})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
