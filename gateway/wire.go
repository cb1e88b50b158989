package gateway

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/MrEthical07/authcore/session"
)

const maxBodyBytes = 1 << 20

type passwordLoginRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	RememberMe bool   `json:"remember_me"`
}

type otpRequest struct {
	Email string `json:"email"`
}

type otpVerifyRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

type federatedExchangeRequest struct {
	ProviderToken string `json:"provider_token"`
}

type grantResponse struct {
	Token        string               `json:"token"`
	User         *session.UserProfile `json:"user"`
	ExpiresAt    *time.Time           `json:"expires_at,omitempty"`
	IsNewAccount bool                 `json:"is_new_account,omitempty"`
}

type identityResponse struct {
	User      *session.UserProfile `json:"user"`
	ExpiresAt *time.Time           `json:"expires_at,omitempty"`
}

// extendResponse carries only the new expiry. The session keeps its token across an
// extension.
type extendResponse struct {
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

type errorEnvelope struct {
	Error struct {
		Code      string `json:"code"`
		Message   string `json:"message"`
		SubReason string `json:"sub_reason,omitempty"`
		Field     string `json:"field,omitempty"`
	} `json:"error"`
}

// decodeError maps a non-2xx response to an AuthError. fallback is used when the body
// carries no recognized code.
func decodeError(resp *http.Response, fallback session.ErrorKind) *session.AuthError {
	if resp.StatusCode >= http.StatusInternalServerError {
		return &session.AuthError{
			Kind:    session.KindNetworkUnavailable,
			Message: "backend unavailable",
			Cause:   &StatusError{Code: resp.StatusCode},
		}
	}

	var env errorEnvelope
	_ = json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&env)

	kind, ok := session.KindFromCode(env.Error.Code)
	if !ok {
		switch resp.StatusCode {
		case http.StatusBadRequest, http.StatusUnprocessableEntity:
			kind = session.KindValidation
		case http.StatusTooManyRequests, http.StatusRequestTimeout:
			kind = session.KindNetworkUnavailable
		default:
			kind = fallback
		}
	}

	ae := session.NewError(kind, env.Error.Message)
	if ae.Message == "" {
		ae.Message = defaultMessage(kind)
	}
	ae.SubReason = env.Error.SubReason
	ae.Field = env.Error.Field
	ae.Cause = &StatusError{Code: resp.StatusCode}
	return ae
}

func defaultMessage(kind session.ErrorKind) string {
	switch kind {
	case session.KindInvalidCredentials:
		return session.ErrInvalidCredentials.Message
	case session.KindPendingApproval:
		return session.ErrPendingApproval.Message
	case session.KindAccountRejected:
		return session.ErrAccountRejected.Message
	case session.KindOtpExpiredOrInvalid:
		return session.ErrOtpExpiredOrInvalid.Message
	case session.KindTokenInvalidOrExpired:
		return session.ErrTokenInvalidOrExpired.Message
	case session.KindFederatedExchangeFailed:
		return session.ErrFederatedExchangeFailed.Message
	case session.KindNetworkUnavailable:
		return session.ErrNetworkUnavailable.Message
	default:
		return session.ErrValidation.Message
	}
}

// StatusError records the HTTP status behind an AuthError.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return "http status " + strconv.Itoa(e.Code)
}
