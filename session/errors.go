package session

import (
	"errors"
	"fmt"
)

// ErrorKind is the machine-readable tag of an authentication failure.
type ErrorKind uint8

const (
	// KindInvalidCredentials is a wrong email/password combination.
	KindInvalidCredentials ErrorKind = iota + 1
	// KindPendingApproval is an existing account awaiting administrative approval.
	KindPendingApproval
	// KindAccountRejected is an existing account that was denied.
	KindAccountRejected
	// KindOtpExpiredOrInvalid is a wrong, reused, or expired one-time code.
	KindOtpExpiredOrInvalid
	// KindTokenInvalidOrExpired is a stored token that failed verification.
	KindTokenInvalidOrExpired
	// KindFederatedExchangeFailed covers provider cancellation, blocked popups, and
	// rejected exchanges; SubReason tells them apart.
	KindFederatedExchangeFailed
	// KindNetworkUnavailable is a transport failure, distinct from a typed rejection.
	KindNetworkUnavailable
	// KindValidation is malformed input caught before any network call.
	KindValidation
)

var kindCodes = map[ErrorKind]string{
	KindInvalidCredentials:      "invalid_credentials",
	KindPendingApproval:         "pending_approval",
	KindAccountRejected:         "account_rejected",
	KindOtpExpiredOrInvalid:     "otp_expired_or_invalid",
	KindTokenInvalidOrExpired:   "token_invalid_or_expired",
	KindFederatedExchangeFailed: "federated_exchange_failed",
	KindNetworkUnavailable:      "network_unavailable",
	KindValidation:              "validation_error",
}

// Code returns the wire tag of k.
func (k ErrorKind) Code() string {
	if code, ok := kindCodes[k]; ok {
		return code
	}
	return "unknown"
}

func (k ErrorKind) String() string {
	return k.Code()
}

// KindFromCode maps a wire tag back to its kind.
func KindFromCode(code string) (ErrorKind, bool) {
	for k, c := range kindCodes {
		if c == code {
			return k, true
		}
	}
	return 0, false
}

// Sub-reasons of KindFederatedExchangeFailed.
const (
	SubReasonProviderCancelled   = "provider_cancelled"
	SubReasonPopupBlocked        = "popup_blocked"
	SubReasonProviderUnavailable = "provider_unavailable"
	SubReasonExchangeRejected    = "exchange_rejected"
)

// Sub-reasons of KindTokenInvalidOrExpired.
const (
	SubReasonVerificationTimeout = "verification_timeout"
	SubReasonVerificationFailed  = "verification_failed"
)

var (
	// ErrInvalidCredentials matches any AuthError of KindInvalidCredentials.
	ErrInvalidCredentials = &AuthError{Kind: KindInvalidCredentials, Message: "invalid email or password"}
	// ErrPendingApproval matches any AuthError of KindPendingApproval.
	ErrPendingApproval = &AuthError{Kind: KindPendingApproval, Message: "account is pending approval"}
	// ErrAccountRejected matches any AuthError of KindAccountRejected.
	ErrAccountRejected = &AuthError{Kind: KindAccountRejected, Message: "account was rejected"}
	// ErrOtpExpiredOrInvalid matches any AuthError of KindOtpExpiredOrInvalid.
	ErrOtpExpiredOrInvalid = &AuthError{Kind: KindOtpExpiredOrInvalid, Message: "code is invalid or has expired"}
	// ErrTokenInvalidOrExpired matches any AuthError of KindTokenInvalidOrExpired.
	ErrTokenInvalidOrExpired = &AuthError{Kind: KindTokenInvalidOrExpired, Message: "session token is invalid or expired"}
	// ErrFederatedExchangeFailed matches any AuthError of KindFederatedExchangeFailed.
	ErrFederatedExchangeFailed = &AuthError{Kind: KindFederatedExchangeFailed, Message: "federated sign-in failed"}
	// ErrNetworkUnavailable matches any AuthError of KindNetworkUnavailable.
	ErrNetworkUnavailable = &AuthError{Kind: KindNetworkUnavailable, Message: "network unavailable"}
	// ErrValidation matches any AuthError of KindValidation.
	ErrValidation = &AuthError{Kind: KindValidation, Message: "invalid input"}
)

// AuthError is a tagged failure with a human message.
type AuthError struct {
	Kind      ErrorKind
	Message   string
	SubReason string
	Field     string
	Cause     error
}

func (e *AuthError) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := e.Kind.Code() + ": " + e.Message
	if e.SubReason != "" {
		msg += " (" + e.SubReason + ")"
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *AuthError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is matches any AuthError of the same kind, so errors.Is(err, ErrInvalidCredentials)
// works regardless of message or cause.
func (e *AuthError) Is(target error) bool {
	var t *AuthError
	if !errors.As(target, &t) || t == nil || e == nil {
		return false
	}
	return t.Kind == e.Kind
}

// Code returns the wire tag of the error's kind.
func (e *AuthError) Code() string {
	if e == nil {
		return ""
	}
	return e.Kind.Code()
}

// NewError builds an AuthError of kind k.
func NewError(k ErrorKind, message string) *AuthError {
	return &AuthError{Kind: k, Message: message}
}

// Validationf builds a KindValidation error for field.
func Validationf(field, format string, args ...any) *AuthError {
	return &AuthError{Kind: KindValidation, Field: field, Message: fmt.Sprintf(format, args...)}
}

// WrapNetwork tags a transport failure.
func WrapNetwork(cause error) *AuthError {
	return &AuthError{Kind: KindNetworkUnavailable, Message: "network unavailable", Cause: cause}
}

// AsAuthError extracts the AuthError carried by err, if any.
func AsAuthError(err error) (*AuthError, bool) {
	var ae *AuthError
	if errors.As(err, &ae) && ae != nil {
		return ae, true
	}
	return nil, false
}

// KindOf returns the kind of err, or zero when err carries no AuthError.
func KindOf(err error) ErrorKind {
	if ae, ok := AsAuthError(err); ok {
		return ae.Kind
	}
	return 0
}

// Normalize converts any error into an AuthError. Untyped errors are treated as
// transport failures; a nil error stays nil.
func Normalize(err error) *AuthError {
	if err == nil {
		return nil
	}
	if ae, ok := AsAuthError(err); ok {
		return ae
	}
	return WrapNetwork(err)
}
