package authcore

import (
	"net/http"
	"strings"

	"github.com/MrEthical07/authcore/federated"
	"github.com/MrEthical07/authcore/gateway"
	"github.com/MrEthical07/authcore/internal/audit"
	"github.com/MrEthical07/authcore/internal/flows"
	"github.com/MrEthical07/authcore/internal/rate"
	"github.com/MrEthical07/authcore/internal/stores"
	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/session"
	"github.com/MrEthical07/authcore/tokenstore"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an Engine.
//
// Builder instances are configured during initialization and used once.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	gateway    gateway.Gateway
	httpClient *http.Client
	tokens     tokenstore.Store
	challenges stores.OtpChallengeStore
	provider   federated.TokenProvider
	source     federated.Source
	clock      session.Clock
	logger     Logger
	auditSink  AuditSink

	built bool
}

// New returns a Builder holding DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the configuration. cfg is copied.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithGateway sets the backend gateway. Without it Build dials Config.Backend.BaseURL.
func (b *Builder) WithGateway(g gateway.Gateway) *Builder {
	b.gateway = g
	return b
}

// WithHTTPClient overrides the transport of the HTTP gateway built from Config.Backend.
func (b *Builder) WithHTTPClient(c *http.Client) *Builder {
	b.httpClient = c
	return b
}

// WithTokenStore sets where the bearer token is persisted, overriding
// Config.TokenStore.
func (b *Builder) WithTokenStore(s tokenstore.Store) *Builder {
	b.tokens = s
	return b
}

// WithRedis sets the client used by the redis token store and the redis OTP challenge
// store. The caller keeps ownership and closes it.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithOtpChallengeStore overrides the store selected by Config.Otp.Store.
func (b *Builder) WithOtpChallengeStore(s stores.OtpChallengeStore) *Builder {
	b.challenges = s
	return b
}

// WithTokenProvider sets the source of provider tokens for FederatedLogin.
func (b *Builder) WithTokenProvider(p federated.TokenProvider) *Builder {
	b.provider = p
	return b
}

// WithFederatedSource sets the provider event source, overriding Config.Federated.Source.
func (b *Builder) WithFederatedSource(s federated.Source) *Builder {
	b.source = s
	return b
}

// WithClock replaces the wall clock. Tests use session.ManualClock.
func (b *Builder) WithClock(c session.Clock) *Builder {
	b.clock = c
	return b
}

// WithLogger sets the diagnostic logger.
func (b *Builder) WithLogger(l Logger) *Builder {
	b.logger = l
	return b
}

// WithAuditSink sets the audit sink. Events are only produced when Config.Audit.Enabled.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithMetricsEnabled toggles Config.Metrics.Enabled.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles Config.Metrics.EnableLatencyHistograms.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration, wires the stores, gateway, and listener, and
// starts the engine loop. Call Engine.Start to bootstrap.
//
// Build may return an error when validation fails or a configured backend cannot be
// constructed. Resources opened before the failure are released.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, ErrBuilderUsed
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var closers []func() error
	fail := func(err error) (*Engine, error) {
		for _, c := range closers {
			_ = c()
		}
		return nil, err
	}

	// -------- TOKEN INSPECTION --------
	jm, err := jwt.NewManager(jwt.Config{
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		PrivateKey:    cloneBytes(cfg.JWT.PrivateKey),
		PublicKey:     cloneBytes(cfg.JWT.PublicKey),
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
	})
	if err != nil {
		return nil, err
	}

	// -------- GATEWAY --------
	gw := b.gateway
	if gw == nil {
		if strings.TrimSpace(cfg.Backend.BaseURL) == "" {
			return nil, ErrGatewayRequired
		}
		client, err := gateway.NewHTTPClient(gateway.HTTPConfig{
			BaseURL:   cfg.Backend.BaseURL,
			Timeout:   cfg.Backend.Timeout,
			Client:    b.httpClient,
			Tokens:    jm,
			UserAgent: cfg.Backend.UserAgent,
		})
		if err != nil {
			return nil, err
		}
		gw = client
	}

	// -------- REDIS --------
	rdb := b.redis
	tokensNeedRedis := b.tokens == nil && strings.EqualFold(cfg.TokenStore.Driver, tokenstore.DriverRedis)
	otpNeedsRedis := b.challenges == nil && cfg.Otp.Store == "redis"
	if rdb == nil && (tokensNeedRedis || otpNeedsRedis) {
		if cfg.TokenStore.RedisAddr == "" {
			return nil, errRedisRequired
		}
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.TokenStore.RedisAddr,
			Password: cfg.TokenStore.RedisPassword,
			DB:       cfg.TokenStore.RedisDB,
		})
		closers = append(closers, client.Close)
		rdb = client
	}

	// -------- TOKEN STORE --------
	tokens := b.tokens
	if tokens == nil {
		if strings.EqualFold(cfg.TokenStore.Driver, tokenstore.DriverRedis) {
			tokens = tokenstore.NewRedisStore(rdb, cfg.TokenStore.RedisPrefix, cfg.TokenStore.Key, cfg.TokenStore.RedisTTL)
		} else {
			tokens, err = tokenstore.Open(tokenstore.Options{
				Driver:         cfg.TokenStore.Driver,
				Key:            cfg.TokenStore.Key,
				FilePath:       cfg.TokenStore.FilePath,
				KeyringService: cfg.TokenStore.KeyringService,
			})
			if err != nil {
				return fail(err)
			}
		}
	}

	// -------- OTP CHALLENGES --------
	challenges := b.challenges
	if challenges == nil {
		if cfg.Otp.Store == "redis" {
			challenges = stores.NewRedisOtpChallengeStore(rdb, cfg.Otp.RedisPrefix, cfg.Otp.ChallengeTTL)
		} else {
			challenges = stores.NewMemoryOtpChallengeStore(cfg.Otp.ChallengeTTL)
		}
	}

	logger := b.logger
	if logger == nil {
		logger = NewStdLogger(nil)
	}
	clock := b.clock
	if clock == nil {
		clock = session.SystemClock{}
	}

	// -------- OTP THROTTLE --------
	var counter rate.Counter
	if cfg.Otp.Store == "redis" && rdb != nil {
		counter = rate.NewRedisCounter(rdb, cfg.Otp.RedisPrefix+":rl")
	} else {
		counter = rate.NewMemoryCounter(clock.Now)
	}
	throttle := rate.New(counter, rate.Config{MaxAttempts: cfg.Otp.MaxRequests, Window: cfg.Otp.RequestWindow})

	// -------- FEDERATED SOURCE --------
	source := b.source
	if source == nil {
		switch cfg.Federated.Source {
		case FederatedSourceWebSocket:
			source = &federated.WebSocketSource{
				URL:            cfg.Federated.StreamURL,
				ReconnectDelay: cfg.Federated.ReconnectDelay,
				Warn:           logger.Warnf,
			}
		case FederatedSourceFile:
			source = &federated.FileSource{
				Path:     cfg.Federated.CredentialFile,
				Debounce: cfg.Federated.Debounce,
				Warn:     logger.Warnf,
			}
		}
	}

	e := newEngine(cfg)
	e.logger = logger
	e.clock = clock
	e.metrics = NewMetrics(cfg.Metrics)
	e.audit = audit.NewDispatcher(audit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, b.auditSink)
	e.gateway = gw
	e.tokens = tokens
	e.challenges = challenges
	e.provider = b.provider
	e.source = source
	e.jwt = jm
	e.closers = closers
	e.deps = flows.Deps{
		Gateway:       gw,
		Challenges:    challenges,
		ExpiryOf:      jm.ExpiresAt,
		Now:           clock.Now,
		DefaultTTL:    cfg.Session.DefaultTTL,
		VerifyTimeout: cfg.Bootstrap.VerifyTimeout,
	}
	if b.provider != nil {
		e.deps.ProviderToken = b.provider.ProviderToken
	}
	if throttle != nil {
		e.deps.OtpThrottle = throttle.Allow
	}
	e.init()

	b.built = true
	return e, nil
}
