package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	authcore "github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/gateway"
	"github.com/MrEthical07/authcore/gateway/gatewaytest"
	"github.com/MrEthical07/authcore/session"
	"github.com/MrEthical07/authcore/tokenstore"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const password = "correct-horse"

var errViolation = errors.New("at-most-one-session violated")

// jitterGateway delays every call by up to max.
type jitterGateway struct {
	gateway.Gateway
	max time.Duration
	mu  sync.Mutex
	rnd *rand.Rand
}

func (g *jitterGateway) sleep(ctx context.Context) error {
	if g.max <= 0 {
		return nil
	}
	g.mu.Lock()
	d := time.Duration(g.rnd.Int63n(int64(g.max)))
	g.mu.Unlock()
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *jitterGateway) LoginWithPassword(ctx context.Context, email, pw string, remember bool) (gateway.Grant, error) {
	if err := g.sleep(ctx); err != nil {
		return gateway.Grant{}, err
	}
	return g.Gateway.LoginWithPassword(ctx, email, pw, remember)
}

func (g *jitterGateway) LoginWithOtp(ctx context.Context, email, code string) (gateway.Grant, error) {
	if err := g.sleep(ctx); err != nil {
		return gateway.Grant{}, err
	}
	return g.Gateway.LoginWithOtp(ctx, email, code)
}

func (g *jitterGateway) ExchangeFederatedToken(ctx context.Context, providerToken string) (gateway.Grant, error) {
	if err := g.sleep(ctx); err != nil {
		return gateway.Grant{}, err
	}
	return g.Gateway.ExchangeFederatedToken(ctx, providerToken)
}

// countingStore counts successful saves on the wrapped store.
type countingStore struct {
	tokenstore.Store
	saves atomic.Int64
}

func (s *countingStore) Save(ctx context.Context, token string) error {
	if err := s.Store.Save(ctx, token); err != nil {
		return err
	}
	s.saves.Add(1)
	return nil
}

type roundResult struct {
	committed int
	discarded int
	rejected  int
	saves     int64
	latencies []time.Duration
	err       error
}

type runStats struct {
	rounds     int
	violations int
	committed  int
	discarded  int
	rejected   int
	latencies  []time.Duration
	total      time.Duration
}

func run(ctx context.Context, out io.Writer, opts options) error {
	client, cleanup, err := openRedis(opts.redisAddr, out)
	if err != nil {
		return err
	}
	defer cleanup()

	stats := runStats{}
	start := time.Now()
	for i := 0; i < opts.rounds; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		res := raceRound(ctx, client, opts, i)
		stats.rounds++
		stats.committed += res.committed
		stats.discarded += res.discarded
		stats.rejected += res.rejected
		stats.latencies = append(stats.latencies, res.latencies...)
		if res.err != nil {
			stats.violations++
			fmt.Fprintf(out, "round %d: %v\n", i, res.err)
			continue
		}
		if opts.verbose {
			fmt.Fprintf(out, "round %d: committed=%d discarded=%d rejected=%d saves=%d\n",
				i, res.committed, res.discarded, res.rejected, res.saves)
		}
	}
	stats.total = time.Since(start)

	printStats(out, stats)
	if stats.violations > 0 {
		return fmt.Errorf("%w in %d of %d rounds", errViolation, stats.violations, stats.rounds)
	}
	return nil
}

func openRedis(addr string, out io.Writer) (redis.UniversalClient, func(), error) {
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return nil, nil, fmt.Errorf("start miniredis: %w", err)
		}
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
		fmt.Fprintf(out, "using miniredis at %s\n", mr.Addr())
		return client, func() {
			_ = client.Close()
			mr.Close()
		}, nil
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
	fmt.Fprintf(out, "using redis at %s\n", addr)
	return client, func() { _ = client.Close() }, nil
}

func raceRound(ctx context.Context, client redis.UniversalClient, opts options, round int) roundResult {
	backend := gatewaytest.New(gatewaytest.WithTTL(10 * time.Minute))
	emails := make([]string, opts.concurrency)
	for i := range emails {
		emails[i] = fmt.Sprintf("racer%d@example.com", i)
		backend.AddAccount(gatewaytest.Account{
			Profile: session.UserProfile{
				ID:              fmt.Sprintf("u-%d-%d", round, i),
				Email:           emails[i],
				Role:            session.RolePlayer,
				FirstName:       "Racer",
				ProfileComplete: true,
			},
			Password: password,
			Status:   gatewaytest.StatusActive,
		})
		backend.LinkProvider(fmt.Sprintf("provider-%d", i), emails[i])
	}

	key := fmt.Sprintf("round-%d", round)
	store := &countingStore{Store: tokenstore.NewRedisStore(client, opts.prefix, key, 0)}
	defer func() { _ = store.Clear(context.Background()) }()

	cfg := authcore.DefaultConfig()
	cfg.Otp.Store = "redis"
	cfg.Otp.RedisPrefix = opts.prefix + ":otp:" + key
	cfg.Metrics.Enabled = true

	engine, err := authcore.New().
		WithConfig(cfg).
		WithGateway(&jitterGateway{Gateway: backend, max: opts.jitter, rnd: rand.New(rand.NewSource(int64(round)))}).
		WithTokenStore(store).
		WithRedis(client).
		WithLogger(authcore.NopLogger{}).
		Build()
	if err != nil {
		return roundResult{err: err}
	}
	defer engine.Close()

	if err := engine.Start(ctx); err != nil {
		return roundResult{err: err}
	}
	if err := engine.Wait(ctx); err != nil {
		return roundResult{err: err}
	}

	// Codes are requested up front so every OTP attempt reaches the backend.
	codes := make([]string, len(emails))
	for i, email := range emails {
		if i%3 != 1 {
			continue
		}
		if out := engine.RequestOTP(ctx, email); out.Err != nil {
			return roundResult{err: fmt.Errorf("request otp: %v", out.Err)}
		}
		codes[i] = backend.LastOtp(email)
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		res      roundResult
		startGun = make(chan struct{})
	)
	for i := range emails {
		var attempt authcore.LoginAttempt
		switch i % 3 {
		case 0:
			attempt = authcore.PasswordAttempt{Email: emails[i], Password: password}
		case 1:
			attempt = authcore.OtpAttempt{Email: emails[i], Code: codes[i]}
		default:
			attempt = authcore.FederatedAttempt{ProviderToken: fmt.Sprintf("provider-%d", i)}
		}
		wg.Add(1)
		go func(a authcore.LoginAttempt) {
			defer wg.Done()
			<-startGun
			t0 := time.Now()
			out := engine.Login(ctx, a)
			d := time.Since(t0)

			mu.Lock()
			defer mu.Unlock()
			res.latencies = append(res.latencies, d)
			switch {
			case out.Discarded:
				res.discarded++
			case out.Err != nil:
				res.rejected++
			default:
				res.committed++
			}
		}(attempt)
	}
	close(startGun)
	wg.Wait()

	res.saves = store.saves.Load()
	res.err = checkRound(ctx, engine, store, res)
	return res
}

func checkRound(ctx context.Context, engine *authcore.Engine, store *countingStore, res roundResult) error {
	s := engine.Session()
	if !s.Authenticated() {
		return fmt.Errorf("%w: no session after %d attempts", errViolation, res.committed+res.discarded+res.rejected)
	}
	if res.committed != 1 {
		return fmt.Errorf("%w: %d logins committed", errViolation, res.committed)
	}
	if res.saves != 1 {
		return fmt.Errorf("%w: token saved %d times", errViolation, res.saves)
	}
	stored, err := store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load stored token: %w", err)
	}
	if stored != s.Token {
		return fmt.Errorf("%w: stored token differs from session token", errViolation)
	}

	engine.Logout(ctx)
	if _, err := store.Load(ctx); !errors.Is(err, tokenstore.ErrNotFound) {
		return fmt.Errorf("token survived logout: %v", err)
	}
	return nil
}

func printStats(out io.Writer, s runStats) {
	sort.Slice(s.latencies, func(i, j int) bool { return s.latencies[i] < s.latencies[j] })
	fmt.Fprintln(out, "---- results ----")
	fmt.Fprintf(out, "rounds=%d violations=%d committed=%d discarded=%d rejected=%d total=%s\n",
		s.rounds, s.violations, s.committed, s.discarded, s.rejected, s.total.Round(time.Millisecond))
	fmt.Fprintf(out, "login latency: p50=%s p95=%s p99=%s\n",
		percentile(s.latencies, 50).Round(time.Microsecond),
		percentile(s.latencies, 95).Round(time.Microsecond),
		percentile(s.latencies, 99).Round(time.Microsecond),
	)
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}
