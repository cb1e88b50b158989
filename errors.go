package authcore

import (
	"errors"

	"github.com/MrEthical07/authcore/session"
)

// AuthError is the typed failure returned by every Engine entry point.
type AuthError = session.AuthError

// ErrorKind tags an AuthError.
type ErrorKind = session.ErrorKind

const (
	KindInvalidCredentials      = session.KindInvalidCredentials
	KindPendingApproval         = session.KindPendingApproval
	KindAccountRejected         = session.KindAccountRejected
	KindOtpExpiredOrInvalid     = session.KindOtpExpiredOrInvalid
	KindTokenInvalidOrExpired   = session.KindTokenInvalidOrExpired
	KindFederatedExchangeFailed = session.KindFederatedExchangeFailed
	KindNetworkUnavailable      = session.KindNetworkUnavailable
	KindValidation              = session.KindValidation
)

var (
	// ErrInvalidCredentials matches any AuthError of KindInvalidCredentials.
	ErrInvalidCredentials = session.ErrInvalidCredentials
	// ErrPendingApproval matches any AuthError of KindPendingApproval.
	ErrPendingApproval = session.ErrPendingApproval
	// ErrAccountRejected matches any AuthError of KindAccountRejected.
	ErrAccountRejected = session.ErrAccountRejected
	// ErrOtpExpiredOrInvalid matches any AuthError of KindOtpExpiredOrInvalid.
	ErrOtpExpiredOrInvalid = session.ErrOtpExpiredOrInvalid
	// ErrTokenInvalidOrExpired matches any AuthError of KindTokenInvalidOrExpired.
	ErrTokenInvalidOrExpired = session.ErrTokenInvalidOrExpired
	// ErrFederatedExchangeFailed matches any AuthError of KindFederatedExchangeFailed.
	ErrFederatedExchangeFailed = session.ErrFederatedExchangeFailed
	// ErrNetworkUnavailable matches any AuthError of KindNetworkUnavailable.
	ErrNetworkUnavailable = session.ErrNetworkUnavailable
	// ErrValidation matches any AuthError of KindValidation.
	ErrValidation = session.ErrValidation
)

var (
	// ErrEngineClosed is the cause carried by outcomes of calls made after Close.
	ErrEngineClosed = errors.New("engine closed")
	// ErrAlreadyStarted is returned by a second call to Start.
	ErrAlreadyStarted = errors.New("engine already started")
	// ErrBuilderUsed is returned by a second call to Build.
	ErrBuilderUsed = errors.New("builder already used")
	// ErrGatewayRequired is returned by Build without a gateway or backend URL.
	ErrGatewayRequired = errors.New("gateway or Backend.BaseURL required")

	errRedisRequired = errors.New("redis client or TokenStore.RedisAddr required")
)

// KindOf returns the kind carried by err, or zero.
func KindOf(err error) ErrorKind {
	return session.KindOf(err)
}

// AsAuthError extracts the AuthError carried by err.
func AsAuthError(err error) (*AuthError, bool) {
	return session.AsAuthError(err)
}
