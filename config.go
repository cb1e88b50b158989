package authcore

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/MrEthical07/authcore/tokenstore"
)

// Config is the full engine configuration. Build it from DefaultConfig and override
// fields, or load it with LoadConfigFile or LoadConfigEnv.
type Config struct {
	Backend    BackendConfig    `yaml:"backend"`
	Federated  FederatedConfig  `yaml:"federated"`
	Bootstrap  BootstrapConfig  `yaml:"bootstrap"`
	Session    SessionConfig    `yaml:"session"`
	TokenStore TokenStoreConfig `yaml:"token_store"`
	Otp        OtpConfig        `yaml:"otp"`
	JWT        JWTConfig        `yaml:"jwt"`
	Routes     RoutesConfig     `yaml:"routes"`
	Audit      AuditConfig      `yaml:"audit"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

/*
====================================
BACKEND CONFIG
====================================
*/

// BackendConfig locates the authentication service.
type BackendConfig struct {
	BaseURL   string        `yaml:"base_url"`
	Timeout   time.Duration `yaml:"timeout"`
	UserAgent string        `yaml:"user_agent"`
}

/*
====================================
FEDERATED CONFIG
====================================
*/

// Federated event sources.
const (
	FederatedSourceNone      = "none"
	FederatedSourceWebSocket = "websocket"
	FederatedSourceFile      = "file"
)

// FederatedConfig identifies the federated provider and where its session events come
// from. Source "none" disables the listener; FederatedLogin still works with a
// TokenProvider.
type FederatedConfig struct {
	Provider       string        `yaml:"provider"`
	ClientID       string        `yaml:"client_id"`
	Source         string        `yaml:"source"`
	StreamURL      string        `yaml:"stream_url"`
	CredentialFile string        `yaml:"credential_file"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
	Debounce       time.Duration `yaml:"debounce"`
}

// BootstrapConfig bounds the startup verification of a stored token.
type BootstrapConfig struct {
	VerifyTimeout time.Duration `yaml:"verify_timeout"`
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig tunes expiry handling. DefaultTTL applies when neither the backend nor
// the token states an expiry; zero leaves such sessions unmonitored.
type SessionConfig struct {
	WarningThreshold time.Duration `yaml:"warning_threshold"`
	TickInterval     time.Duration `yaml:"tick_interval"`
	DefaultTTL       time.Duration `yaml:"default_ttl"`
}

// TokenStoreConfig selects where the bearer token is persisted.
type TokenStoreConfig struct {
	Driver         string        `yaml:"driver"` // "memory" (default), "file", "redis", "keyring"
	Key            string        `yaml:"key"`
	FilePath       string        `yaml:"file_path"`
	RedisAddr      string        `yaml:"redis_addr"`
	RedisPassword  string        `yaml:"redis_password"`
	RedisDB        int           `yaml:"redis_db"`
	RedisPrefix    string        `yaml:"redis_prefix"`
	RedisTTL       time.Duration `yaml:"redis_ttl"`
	KeyringService string        `yaml:"keyring_service"`
}

// OtpConfig controls local bookkeeping of issued one-time-code challenges.
type OtpConfig struct {
	ChallengeTTL  time.Duration `yaml:"challenge_ttl"`
	Store         string        `yaml:"store"` // "memory" (default) or "redis"
	RedisPrefix   string        `yaml:"redis_prefix"`
	// MaxRequests caps code requests per email within RequestWindow. Zero disables.
	MaxRequests   int           `yaml:"max_requests"`
	RequestWindow time.Duration `yaml:"request_window"`
}

// JWTConfig configures optional token verification. Without keys token claims are read
// unverified and only used as expiry hints.
type JWTConfig struct {
	SigningMethod string        `yaml:"signing_method"` // "ed25519" (default), "hs256" optional
	PublicKeyFile string        `yaml:"public_key_file"`
	PublicKey     []byte        `yaml:"-"`
	PrivateKey    []byte        `yaml:"-"`
	Issuer        string        `yaml:"issuer"`
	Audience      string        `yaml:"audience"`
	Leeway        time.Duration `yaml:"leeway"`
}

// RoutesConfig names the redirect targets of the guard.
type RoutesConfig struct {
	LoginPath             string `yaml:"login_path"`
	ProfileCompletionPath string `yaml:"profile_completion_path"`
}

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool `yaml:"enabled"`
	BufferSize int  `yaml:"buffer_size"`
	DropIfFull bool `yaml:"drop_if_full"`
}

// MetricsConfig controls in-process metrics.
type MetricsConfig struct {
	Enabled                 bool `yaml:"enabled"`
	EnableLatencyHistograms bool `yaml:"enable_latency_histograms"`
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the baseline configuration.
func DefaultConfig() Config {
	return Config{
		Backend: BackendConfig{
			Timeout:   15 * time.Second,
			UserAgent: "authcore",
		},
		Federated: FederatedConfig{
			Source:         FederatedSourceNone,
			ReconnectDelay: 2 * time.Second,
			Debounce:       100 * time.Millisecond,
		},
		Bootstrap: BootstrapConfig{
			VerifyTimeout: 10 * time.Second,
		},
		Session: SessionConfig{
			WarningThreshold: 60 * time.Second,
			TickInterval:     time.Second,
		},
		TokenStore: TokenStoreConfig{
			Driver:         tokenstore.DriverMemory,
			Key:            "session_token",
			RedisPrefix:    "atk",
			KeyringService: "authcore",
		},
		Otp: OtpConfig{
			ChallengeTTL:  10 * time.Minute,
			Store:         "memory",
			RedisPrefix:   "aoc",
			MaxRequests:   5,
			RequestWindow: 15 * time.Minute,
		},
		JWT: JWTConfig{
			SigningMethod: "ed25519",
		},
		Routes: RoutesConfig{
			LoginPath:             "/login",
			ProfileCompletionPath: "/complete-profile",
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	// Backend
	if c.Backend.Timeout < 0 {
		return errors.New("Backend Timeout must be >= 0")
	}
	if c.Backend.BaseURL != "" {
		u, err := url.Parse(c.Backend.BaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return errors.New("Backend BaseURL must be an absolute http(s) URL")
		}
	}

	// Bootstrap
	if c.Bootstrap.VerifyTimeout <= 0 {
		return errors.New("Bootstrap VerifyTimeout must be > 0")
	}

	// Session
	if c.Session.WarningThreshold < 0 {
		return errors.New("Session WarningThreshold must be >= 0")
	}
	if c.Session.TickInterval <= 0 {
		return errors.New("Session TickInterval must be > 0")
	}
	if c.Session.DefaultTTL < 0 {
		return errors.New("Session DefaultTTL must be >= 0")
	}

	// Token store
	switch strings.ToLower(c.TokenStore.Driver) {
	case "", tokenstore.DriverMemory, tokenstore.DriverRedis, tokenstore.DriverKeyring:
	case tokenstore.DriverFile:
		if strings.TrimSpace(c.TokenStore.FilePath) == "" {
			return errors.New("TokenStore FilePath is required for the file driver")
		}
	default:
		return fmt.Errorf("TokenStore Driver %q is not supported", c.TokenStore.Driver)
	}
	if c.TokenStore.RedisTTL < 0 {
		return errors.New("TokenStore RedisTTL must be >= 0")
	}

	// OTP
	if c.Otp.ChallengeTTL <= 0 {
		return errors.New("Otp ChallengeTTL must be > 0")
	}
	switch c.Otp.Store {
	case "", "memory", "redis":
	default:
		return fmt.Errorf("Otp Store %q is not supported", c.Otp.Store)
	}
	if c.Otp.MaxRequests < 0 {
		return errors.New("Otp MaxRequests must be >= 0")
	}
	if c.Otp.MaxRequests > 0 && c.Otp.RequestWindow <= 0 {
		return errors.New("Otp RequestWindow must be > 0 when MaxRequests is set")
	}

	// Federated
	switch c.Federated.Source {
	case "", FederatedSourceNone:
	case FederatedSourceWebSocket:
		u, err := url.Parse(c.Federated.StreamURL)
		if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
			return errors.New("Federated StreamURL must be a ws(s) URL for the websocket source")
		}
	case FederatedSourceFile:
		if strings.TrimSpace(c.Federated.CredentialFile) == "" {
			return errors.New("Federated CredentialFile is required for the file source")
		}
	default:
		return fmt.Errorf("Federated Source %q is not supported", c.Federated.Source)
	}
	if c.Federated.ReconnectDelay < 0 || c.Federated.Debounce < 0 {
		return errors.New("Federated delays must be >= 0")
	}

	// JWT
	if c.JWT.SigningMethod != "" && c.JWT.SigningMethod != "ed25519" && c.JWT.SigningMethod != "hs256" {
		return errors.New("unsupported JWT signing method")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be between 0 and 2m")
	}

	// Routes
	if !strings.HasPrefix(c.Routes.LoginPath, "/") {
		return errors.New("Routes LoginPath must start with /")
	}
	if !strings.HasPrefix(c.Routes.ProfileCompletionPath, "/") {
		return errors.New("Routes ProfileCompletionPath must start with /")
	}
	if c.Routes.LoginPath == c.Routes.ProfileCompletionPath {
		return errors.New("Routes LoginPath and ProfileCompletionPath must differ")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}

	return nil
}

/*
====================================
LINT
====================================
*/

// LintSeverity ranks lint findings.
type LintSeverity int

const (
	LintInfo LintSeverity = iota
	LintWarn
	LintHigh
)

func (s LintSeverity) String() string {
	switch s {
	case LintInfo:
		return "INFO"
	case LintWarn:
		return "WARN"
	case LintHigh:
		return "HIGH"
	default:
		return "UNKNOWN"
	}
}

// LintWarning is one finding of Lint. Code is stable across releases.
type LintWarning struct {
	Code     string
	Severity LintSeverity
	Message  string
}

// LintResult is the list of findings of Lint.
type LintResult []LintWarning

// Codes returns the finding codes in order.
func (r LintResult) Codes() []string {
	out := make([]string, 0, len(r))
	for _, w := range r {
		out = append(out, w.Code)
	}
	return out
}

// BySeverity returns findings at or above floor.
func (r LintResult) BySeverity(floor LintSeverity) LintResult {
	var out LintResult
	for _, w := range r {
		if w.Severity >= floor {
			out = append(out, w)
		}
	}
	return out
}

// AsError joins findings at or above floor into one error, or returns nil.
func (r LintResult) AsError(floor LintSeverity) error {
	hits := r.BySeverity(floor)
	if len(hits) == 0 {
		return nil
	}
	msgs := make([]string, 0, len(hits))
	for _, w := range hits {
		msgs = append(msgs, fmt.Sprintf("[%s] %s: %s", w.Severity, w.Code, w.Message))
	}
	return errors.New("config lint: " + strings.Join(msgs, "; "))
}

// Lint reports settings that are valid but likely unintended. Lint never fails; use
// AsError to enforce a severity floor.
func (c *Config) Lint() LintResult {
	var r LintResult
	add := func(code string, sev LintSeverity, msg string) {
		r = append(r, LintWarning{Code: code, Severity: sev, Message: msg})
	}

	if u, err := url.Parse(c.Backend.BaseURL); err == nil && u.Scheme == "http" && !isLoopbackHost(u.Hostname()) {
		add("backend_plain_http", LintHigh, "bearer tokens would travel over plain http")
	}
	if c.Bootstrap.VerifyTimeout > 30*time.Second {
		add("verify_timeout_long", LintWarn, "startup stays in bootstrapping for up to "+c.Bootstrap.VerifyTimeout.String())
	}
	if c.Session.DefaultTTL > 0 && c.Session.WarningThreshold >= c.Session.DefaultTTL {
		add("warning_threshold_exceeds_ttl", LintWarn, "the expiry warning fires as soon as a default-TTL session starts")
	}
	if c.Session.WarningThreshold > 0 && c.Session.TickInterval > c.Session.WarningThreshold {
		add("tick_coarser_than_threshold", LintWarn, "the countdown updates less often than once per warning window")
	}
	if c.Session.WarningThreshold == 0 {
		add("warning_disabled", LintInfo, "sessions expire without a prior warning")
	}

	switch strings.ToLower(c.TokenStore.Driver) {
	case "", tokenstore.DriverMemory:
		add("token_store_memory", LintInfo, "sessions do not survive a restart")
	case tokenstore.DriverFile:
		if !filepath.IsAbs(c.TokenStore.FilePath) {
			add("token_file_relative_path", LintWarn, "token file location depends on the working directory")
		}
	case tokenstore.DriverRedis:
		if c.TokenStore.RedisTTL == 0 {
			add("redis_token_no_ttl", LintInfo, "stored tokens outlive their expiry in redis")
		}
	}

	if len(c.JWT.PublicKey) == 0 && len(c.JWT.PrivateKey) == 0 && c.JWT.PublicKeyFile == "" {
		add("jwt_unverified", LintInfo, "token claims are read without signature checks and used only as expiry hints")
	}
	if c.JWT.SigningMethod == "hs256" {
		add("jwt_hs256_shared_secret", LintWarn, "hs256 puts the backend signing secret on the client")
	}
	if c.Federated.Source == FederatedSourceWebSocket && strings.HasPrefix(c.Federated.StreamURL, "ws://") {
		add("federated_stream_plaintext", LintWarn, "provider tokens would travel over an unencrypted websocket")
	}
	if !c.Audit.Enabled {
		add("audit_disabled", LintInfo, "session lifecycle events are not audited")
	}

	sort.SliceStable(r, func(i, j int) bool { return r[i].Severity > r[j].Severity })
	return r
}

func isLoopbackHost(host string) bool {
	switch host {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return strings.HasSuffix(host, ".localhost")
}
