// Package gateway is the typed boundary to the backend authentication service.
//
// Every call is context-first and returns either a result or a *session.AuthError whose
// kind is one of the closed taxonomy; transport failures, timeouts, and 5xx responses are
// KindNetworkUnavailable. Calls are never retried here.
package gateway
