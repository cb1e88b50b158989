// Package jwt reads the claims of session tokens issued by the backend.
//
// Clients usually hold no verification key, so a Manager without keys inspects tokens
// without checking signatures and only uses them for hints such as the expiry time. The
// backend stays the authority on validity. When keys are configured the Manager verifies
// signatures, issuer, audience, and expiry, and can also mint tokens for local backends.
package jwt
