package jwt

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SigningMethod names the algorithm of verified tokens.
type SigningMethod string

const (
	// MethodEd25519 is EdDSA over Ed25519.
	MethodEd25519 SigningMethod = "ed25519"
	// MethodHS256 is HMAC-SHA256.
	MethodHS256 SigningMethod = "hs256"
)

// ErrNoExpiry is returned by ExpiresAt when the token carries no exp claim.
var ErrNoExpiry = errors.New("token has no expiry claim")

// Config configures a Manager. With no keys the Manager only inspects.
type Config struct {
	SigningMethod SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
}

// Claims is the payload of a session token.
type Claims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Manager inspects, and optionally verifies and issues, session tokens.
type Manager struct {
	config Config
	verify bool
}

// NewManager validates cfg. A config without keys yields an inspect-only manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	cfg.Issuer = strings.TrimSpace(cfg.Issuer)
	cfg.Audience = strings.TrimSpace(cfg.Audience)

	if len(cfg.PrivateKey) == 0 && len(cfg.PublicKey) == 0 {
		return &Manager{config: cfg}, nil
	}
	if cfg.SigningMethod == "" {
		cfg.SigningMethod = MethodEd25519
	}
	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) == 0 {
			return nil, errors.New("hs256 requires private key")
		}
	case MethodEd25519:
		if len(cfg.PrivateKey) > 0 {
			priv, err := parseEdPrivateKey(cfg.PrivateKey)
			if err != nil {
				return nil, err
			}
			if len(cfg.PublicKey) == 0 {
				cfg.PublicKey = priv.Public().(ed25519.PublicKey)
			}
		}
		if _, err := parseEdPublicKey(cfg.PublicKey); err != nil {
			return nil, err
		}
	default:
		return nil, errors.New("unsupported signing method")
	}
	return &Manager{config: cfg, verify: true}, nil
}

// Verifies reports whether signatures are checked.
func (j *Manager) Verifies() bool {
	return j.verify
}

// Inspect returns the claims of token. Inspect-only managers skip signature and expiry
// checks; verifying managers apply them.
func (j *Manager) Inspect(token string) (*Claims, error) {
	if strings.TrimSpace(token) == "" {
		return nil, jwt.ErrTokenMalformed
	}
	if !j.verify {
		claims := &Claims{}
		if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
			return nil, err
		}
		return claims, nil
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{j.method().Alg()}),
		jwt.WithExpirationRequired(),
	}
	if j.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(j.config.Leeway))
	}
	if j.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(j.config.Issuer))
	}
	if j.config.Audience != "" {
		options = append(options, jwt.WithAudience(j.config.Audience))
	}

	parsed, err := jwt.NewParser(options...).ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != j.method().Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return j.key(false)
	})
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}

// ExpiresAt returns the exp claim of token.
func (j *Manager) ExpiresAt(token string) (time.Time, error) {
	claims, err := j.Inspect(token)
	if err != nil {
		return time.Time{}, err
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, ErrNoExpiry
	}
	return claims.ExpiresAt.Time, nil
}

// Issue signs a token for subject. It requires a private key.
func (j *Manager) Issue(subject, email, role string, ttl time.Duration) (string, error) {
	if !j.verify || len(j.config.PrivateKey) == 0 {
		return "", errors.New("issuing requires a private key")
	}
	if ttl <= 0 {
		return "", errors.New("invalid TTL")
	}
	now := time.Now()
	claims := Claims{
		Email: email,
		Role:  role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subject,
			Issuer:    j.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if j.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{j.config.Audience}
	}
	k, err := j.key(true)
	if err != nil {
		return "", err
	}
	return jwt.NewWithClaims(j.method(), claims).SignedString(k)
}

func (j *Manager) method() jwt.SigningMethod {
	if j.config.SigningMethod == MethodHS256 {
		return jwt.SigningMethodHS256
	}
	return jwt.SigningMethodEdDSA
}

// key returns the signing key when sign is set, otherwise the verification key. HS256
// uses the shared secret for both.
func (j *Manager) key(sign bool) (any, error) {
	if j.config.SigningMethod == MethodHS256 {
		return j.config.PrivateKey, nil
	}
	if sign {
		return parseEdPrivateKey(j.config.PrivateKey)
	}
	return parseEdPublicKey(j.config.PublicKey)
}

func parseEdPrivateKey(raw []byte) (ed25519.PrivateKey, error) {
	if len(raw) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(raw), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(raw)
	if err != nil {
		return nil, fmt.Errorf("ed25519 private key: %w", err)
	}
	if k, ok := parsed.(ed25519.PrivateKey); ok {
		return k, nil
	}
	return nil, errors.New("ed25519 private key: wrong key type")
}

func parseEdPublicKey(raw []byte) (ed25519.PublicKey, error) {
	if len(raw) == ed25519.PublicKeySize {
		return ed25519.PublicKey(raw), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(raw)
	if err != nil {
		return nil, fmt.Errorf("ed25519 public key: %w", err)
	}
	if k, ok := parsed.(ed25519.PublicKey); ok {
		return k, nil
	}
	return nil, errors.New("ed25519 public key: wrong key type")
}
