package federated

import (
	"context"
	"errors"
	"strings"

	"github.com/MrEthical07/authcore/session"
	"golang.org/x/oauth2"
)

// TokenProvider yields an opaque provider token for a user-initiated federated login.
type TokenProvider interface {
	ProviderToken(ctx context.Context) (string, error)
}

// OAuth2Provider wraps an oauth2.TokenSource. It returns the id_token extra when the
// provider issues one and the access token otherwise.
type OAuth2Provider struct {
	source oauth2.TokenSource
}

// NewOAuth2Provider returns a provider over src.
func NewOAuth2Provider(src oauth2.TokenSource) *OAuth2Provider {
	return &OAuth2Provider{source: oauth2.ReuseTokenSource(nil, src)}
}

// NewOAuth2ConfigProvider refreshes tok through cfg as needed.
func NewOAuth2ConfigProvider(ctx context.Context, cfg *oauth2.Config, tok *oauth2.Token) *OAuth2Provider {
	return &OAuth2Provider{source: cfg.TokenSource(ctx, tok)}
}

func (p *OAuth2Provider) ProviderToken(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	tok, err := p.source.Token()
	if err != nil {
		return "", classifyOAuth2Error(err)
	}
	if id, ok := tok.Extra("id_token").(string); ok && strings.TrimSpace(id) != "" {
		return id, nil
	}
	if tok.AccessToken == "" {
		return "", &session.AuthError{
			Kind:      session.KindFederatedExchangeFailed,
			Message:   "identity provider returned no token",
			SubReason: session.SubReasonProviderCancelled,
		}
	}
	return tok.AccessToken, nil
}

func classifyOAuth2Error(err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && (re.ErrorCode == "access_denied" || re.ErrorCode == "consent_required") {
		return &session.AuthError{
			Kind:      session.KindFederatedExchangeFailed,
			Message:   "sign-in was cancelled",
			SubReason: session.SubReasonProviderCancelled,
			Cause:     err,
		}
	}
	return &session.AuthError{
		Kind:      session.KindFederatedExchangeFailed,
		Message:   "identity provider unavailable",
		SubReason: session.SubReasonProviderUnavailable,
		Cause:     err,
	}
}

// StaticProvider returns a fixed token or error.
type StaticProvider struct {
	Token string
	Err   error
}

func (p StaticProvider) ProviderToken(context.Context) (string, error) {
	if p.Err != nil {
		return "", p.Err
	}
	return p.Token, nil
}
