package authcore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable read by LoadConfigEnv.
const EnvPrefix = "AUTHCORE_"

// LoadConfigFile reads a YAML config over DefaultConfig and validates it. A
// jwt.public_key_file entry is read into JWT.PublicKey.
func LoadConfigFile(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := loadKeyFiles(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadConfigEnv loads the given dotenv files (".env" when none are named, silently
// skipped if absent) and then applies AUTHCORE_* variables over DefaultConfig. Variables
// already set in the process environment win over dotenv values.
func LoadConfigEnv(files ...string) (Config, error) {
	if len(files) == 0 {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load .env: %w", err)
		}
	} else if err := godotenv.Load(files...); err != nil {
		return Config{}, fmt.Errorf("load env files: %w", err)
	}

	cfg := DefaultConfig()
	if err := ApplyEnv(&cfg, os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := loadKeyFiles(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyEnv overrides cfg with AUTHCORE_* values found through lookup.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	e := envReader{lookup: lookup}

	e.str("BACKEND_BASE_URL", &cfg.Backend.BaseURL)
	e.duration("BACKEND_TIMEOUT", &cfg.Backend.Timeout)
	e.str("BACKEND_USER_AGENT", &cfg.Backend.UserAgent)

	e.str("FEDERATED_PROVIDER", &cfg.Federated.Provider)
	e.str("FEDERATED_CLIENT_ID", &cfg.Federated.ClientID)
	e.str("FEDERATED_SOURCE", &cfg.Federated.Source)
	e.str("FEDERATED_STREAM_URL", &cfg.Federated.StreamURL)
	e.str("FEDERATED_CREDENTIAL_FILE", &cfg.Federated.CredentialFile)
	e.duration("FEDERATED_RECONNECT_DELAY", &cfg.Federated.ReconnectDelay)

	e.duration("BOOTSTRAP_VERIFY_TIMEOUT", &cfg.Bootstrap.VerifyTimeout)

	e.duration("SESSION_WARNING_THRESHOLD", &cfg.Session.WarningThreshold)
	e.duration("SESSION_TICK_INTERVAL", &cfg.Session.TickInterval)
	e.duration("SESSION_DEFAULT_TTL", &cfg.Session.DefaultTTL)

	e.str("TOKEN_STORE_DRIVER", &cfg.TokenStore.Driver)
	e.str("TOKEN_STORE_KEY", &cfg.TokenStore.Key)
	e.str("TOKEN_STORE_FILE_PATH", &cfg.TokenStore.FilePath)
	e.str("TOKEN_STORE_REDIS_ADDR", &cfg.TokenStore.RedisAddr)
	e.str("TOKEN_STORE_REDIS_PASSWORD", &cfg.TokenStore.RedisPassword)
	e.integer("TOKEN_STORE_REDIS_DB", &cfg.TokenStore.RedisDB)
	e.str("TOKEN_STORE_REDIS_PREFIX", &cfg.TokenStore.RedisPrefix)
	e.duration("TOKEN_STORE_REDIS_TTL", &cfg.TokenStore.RedisTTL)
	e.str("TOKEN_STORE_KEYRING_SERVICE", &cfg.TokenStore.KeyringService)

	e.duration("OTP_CHALLENGE_TTL", &cfg.Otp.ChallengeTTL)
	e.str("OTP_STORE", &cfg.Otp.Store)
	e.integer("OTP_MAX_REQUESTS", &cfg.Otp.MaxRequests)
	e.duration("OTP_REQUEST_WINDOW", &cfg.Otp.RequestWindow)

	e.str("JWT_SIGNING_METHOD", &cfg.JWT.SigningMethod)
	e.str("JWT_PUBLIC_KEY_FILE", &cfg.JWT.PublicKeyFile)
	e.str("JWT_ISSUER", &cfg.JWT.Issuer)
	e.str("JWT_AUDIENCE", &cfg.JWT.Audience)
	e.duration("JWT_LEEWAY", &cfg.JWT.Leeway)

	e.str("ROUTES_LOGIN_PATH", &cfg.Routes.LoginPath)
	e.str("ROUTES_PROFILE_COMPLETION_PATH", &cfg.Routes.ProfileCompletionPath)

	e.boolean("AUDIT_ENABLED", &cfg.Audit.Enabled)
	e.integer("AUDIT_BUFFER_SIZE", &cfg.Audit.BufferSize)
	e.boolean("AUDIT_DROP_IF_FULL", &cfg.Audit.DropIfFull)

	e.boolean("METRICS_ENABLED", &cfg.Metrics.Enabled)
	e.boolean("METRICS_LATENCY_HISTOGRAMS", &cfg.Metrics.EnableLatencyHistograms)

	return e.err
}

func loadKeyFiles(cfg *Config) error {
	if cfg.JWT.PublicKeyFile == "" || len(cfg.JWT.PublicKey) > 0 {
		return nil
	}
	data, err := os.ReadFile(cfg.JWT.PublicKeyFile)
	if err != nil {
		return fmt.Errorf("read jwt public key: %w", err)
	}
	cfg.JWT.PublicKey = data
	return nil
}

type envReader struct {
	lookup func(string) (string, bool)
	err    error
}

func (e *envReader) get(name string) (string, bool) {
	if e.err != nil || e.lookup == nil {
		return "", false
	}
	v, ok := e.lookup(EnvPrefix + name)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func (e *envReader) fail(name string, err error) {
	e.err = fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
}

func (e *envReader) str(name string, dst *string) {
	if v, ok := e.get(name); ok {
		*dst = v
	}
}

func (e *envReader) duration(name string, dst *time.Duration) {
	v, ok := e.get(name)
	if !ok || v == "" {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.fail(name, err)
		return
	}
	*dst = d
}

func (e *envReader) integer(name string, dst *int) {
	v, ok := e.get(name)
	if !ok || v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail(name, err)
		return
	}
	*dst = n
}

func (e *envReader) boolean(name string, dst *bool) {
	v, ok := e.get(name)
	if !ok || v == "" {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.fail(name, err)
		return
	}
	*dst = b
}
