package authcore

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/MrEthical07/authcore/federated"
	"github.com/MrEthical07/authcore/gateway"
	"github.com/MrEthical07/authcore/guard"
	"github.com/MrEthical07/authcore/internal/audit"
	"github.com/MrEthical07/authcore/internal/flows"
	"github.com/MrEthical07/authcore/internal/stores"
	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/session"
	"github.com/MrEthical07/authcore/tokenstore"
)

const actionQueueSize = 64

// Engine owns the session and serializes every change to it on one loop goroutine.
//
// All exported methods are safe for concurrent use. Methods that act on the session
// block until their effect has been applied or discarded, the context ends, or the
// engine is closed.
type Engine struct {
	config  Config
	logger  Logger
	clock   session.Clock
	metrics *Metrics
	audit   *audit.Dispatcher
	policy  guard.Policy

	gateway    gateway.Gateway
	tokens     tokenstore.Store
	challenges stores.OtpChallengeStore
	provider   federated.TokenProvider
	source     federated.Source
	jwt        *jwt.Manager
	deps       flows.Deps
	closers    []func() error

	// owned by the loop goroutine
	machine  *session.Machine
	monitor  *session.Monitor
	inflight map[uint64]func()
	nextWork uint64

	actions  chan func()
	quit     chan struct{}
	loopDone chan struct{}
	baseCtx  context.Context
	cancel   context.CancelFunc
	workers  sync.WaitGroup

	listener  *federated.Listener
	started   atomic.Bool
	closeOnce sync.Once
	ready     chan struct{}
	readyOnce sync.Once

	snapshot atomic.Pointer[Session]
	warning  atomic.Pointer[Warning]

	subMu   sync.Mutex
	subs    map[uint64]chan Session
	nextSub uint64
	closed  bool
}

func newEngine(cfg Config) *Engine {
	e := &Engine{
		config:   cfg,
		inflight: map[uint64]func(){},
		actions:  make(chan func(), actionQueueSize),
		quit:     make(chan struct{}),
		loopDone: make(chan struct{}),
		ready:    make(chan struct{}),
		subs:     map[uint64]chan Session{},
		policy: guard.Policy{
			LoginPath:             cfg.Routes.LoginPath,
			ProfileCompletionPath: cfg.Routes.ProfileCompletionPath,
		},
	}
	e.baseCtx, e.cancel = context.WithCancel(context.Background())
	return e
}

// init wires the machine and monitor. It runs before the loop starts.
func (e *Engine) init() {
	e.machine = session.NewMachine(
		session.WithPersister(e.tokens, e.persistFailed),
		session.WithHook(e.onTransition),
	)
	e.monitor = session.NewMonitor(
		e.clock,
		session.MonitorConfig{
			WarningThreshold: e.config.Session.WarningThreshold,
			TickInterval:     e.config.Session.TickInterval,
		},
		func(f func()) { e.post(f) },
		e.onWarning,
		func() { e.forceLogout(e.baseCtx, "session_expired", expiredError()) },
	)

	initial := e.machine.Current()
	e.snapshot.Store(&initial)
	e.warning.Store(&Warning{})

	go e.run()
}

func (e *Engine) run() {
	defer close(e.loopDone)
	for {
		select {
		case f := <-e.actions:
			e.apply(f)
		case <-e.quit:
			return
		}
	}
}

func (e *Engine) apply(f func()) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Errorf("action panicked: %v", r)
		}
	}()
	f()
}

// post queues f on the loop. It reports false once the engine is closed.
func (e *Engine) post(f func()) bool {
	select {
	case <-e.quit:
		return false
	default:
	}
	select {
	case e.actions <- f:
		return true
	case <-e.quit:
		return false
	}
}

func (e *Engine) spawn(f func()) {
	e.workers.Add(1)
	go func() {
		defer e.workers.Done()
		f()
	}()
}

// submit runs f on the loop and waits for the Outcome it sends.
func (e *Engine) submit(ctx context.Context, f func(reply chan<- Outcome)) Outcome {
	if ctx == nil {
		ctx = context.Background()
	}
	reply := make(chan Outcome, 1)
	queued := false
	select {
	case <-e.quit:
	default:
		select {
		case e.actions <- func() { f(reply) }:
			queued = true
		case <-e.quit:
		case <-ctx.Done():
			return Outcome{Session: e.Session(), Err: session.WrapNetwork(ctx.Err())}
		}
	}
	if !queued {
		return Outcome{Session: e.Session(), Err: session.WrapNetwork(ErrEngineClosed)}
	}
	select {
	case out := <-reply:
		return out
	case <-ctx.Done():
		return Outcome{Session: e.Session(), Err: session.WrapNetwork(ctx.Err())}
	case <-e.quit:
		return Outcome{Session: e.Session(), Err: session.WrapNetwork(ErrEngineClosed)}
	}
}

func respond(reply chan<- Outcome, out Outcome) {
	if reply == nil {
		return
	}
	select {
	case reply <- out:
	default:
	}
}

// track derives a worker context that logout and Close cancel. Loop only.
func (e *Engine) track(parent context.Context) (context.Context, uint64) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	stop := context.AfterFunc(e.baseCtx, cancel)
	e.nextWork++
	id := e.nextWork
	e.inflight[id] = func() {
		stop()
		cancel()
	}
	return ctx, id
}

func (e *Engine) untrack(id uint64) {
	if release, ok := e.inflight[id]; ok {
		release()
		delete(e.inflight, id)
	}
}

func (e *Engine) cancelInflight() {
	for id, release := range e.inflight {
		release()
		delete(e.inflight, id)
	}
}

// commitCtx keeps request values for audit correlation but never cancels a commit.
func commitCtx(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return context.WithoutCancel(ctx)
}

/*
====================================
LIFECYCLE
====================================
*/

// Start replays the stored token and starts the federated listener. It returns once both
// are scheduled; use Wait to block until bootstrapping resolves.
func (e *Engine) Start(ctx context.Context) error {
	if !e.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if e.source != nil {
		e.listener = federated.NewListener(e.source, e.onFederatedEvent, e.logger.Warnf)
		if err := e.listener.Start(e.baseCtx); err != nil {
			return err
		}
	}
	queued := make(chan struct{})
	if !e.post(func() {
		e.spawn(e.bootstrap)
		close(queued)
	}) {
		return ErrEngineClosed
	}
	select {
	case <-queued:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-e.quit:
		return ErrEngineClosed
	}
}

// bootstrap runs on a worker goroutine.
func (e *Engine) bootstrap() {
	ctx := e.baseCtx
	token, err := e.tokens.Load(ctx)
	switch {
	case err == nil && token != "":
	case err == nil, errors.Is(err, tokenstore.ErrNotFound):
		e.post(func() { e.finishBootstrap(nil, nil, false) })
		return
	case errors.Is(err, tokenstore.ErrCorrupt):
		e.logger.Warnf("stored token unreadable, discarding: %v", err)
		e.post(func() {
			e.finishBootstrap(nil, &AuthError{
				Kind:      KindTokenInvalidOrExpired,
				Message:   ErrTokenInvalidOrExpired.Message,
				SubReason: session.SubReasonVerificationFailed,
				Cause:     err,
			}, true)
		})
		return
	default:
		e.metrics.Inc(MetricTokenStoreFailure)
		e.logger.Errorf("token store unavailable at startup: %v", err)
		e.post(func() { e.finishBootstrap(nil, nil, false) })
		return
	}

	res, aerr := flows.RunBootstrap(ctx, token, e.flowDeps(""))
	// an unreachable backend says nothing about the token; keep it for the next start
	rejected := aerr == nil || aerr.Kind != KindNetworkUnavailable
	e.post(func() { e.finishBootstrap(res, aerr, rejected) })
}

func (e *Engine) finishBootstrap(res *flows.LoginResult, aerr *AuthError, hadToken bool) {
	ctx := e.baseCtx
	var err error
	if res != nil {
		_, err = e.machine.Dispatch(ctx, session.BootstrapSucceeded{Token: res.Token, User: res.User, ExpiresAt: res.ExpiresAt})
	} else {
		_, err = e.machine.Dispatch(ctx, session.BootstrapFailed{Err: aerr, HadToken: hadToken})
	}
	s := e.machine.Current()
	switch {
	case errors.Is(err, session.ErrStaleGeneration):
		e.metrics.Inc(MetricStaleResultDiscarded)
		e.logger.Debugf("bootstrap result discarded: session already %s", s.Phase)
		return
	case err != nil:
		e.logger.Warnf("bootstrap result rejected: %v", err)
		_, _ = e.machine.Dispatch(ctx, session.BootstrapFailed{Err: ErrTokenInvalidOrExpired, HadToken: hadToken})
		s = e.machine.Current()
	}

	if s.Authenticated() {
		e.logger.Infof("session restored for user %s", s.User.ID)
		e.emitAudit(ctx, sessionAudit(s, AuditBootstrap, "", true, nil))
		return
	}
	switch {
	case hadToken:
		e.logger.Infof("stored session rejected: %v", aerr)
		e.emitAudit(ctx, sessionAudit(s, AuditBootstrap, "", false, aerr))
	case aerr != nil:
		e.logger.Warnf("stored session not verified, token kept: %v", aerr)
		e.emitAudit(ctx, sessionAudit(s, AuditBootstrap, "", false, aerr))
	default:
		e.logger.Debugf("no stored session")
	}
}

// Wait blocks until bootstrapping has resolved.
func (e *Engine) Wait(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case <-e.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-e.quit:
		return ErrEngineClosed
	}
}

// Close stops the listener, the loop, the monitor, and the audit dispatcher. In-flight
// backend calls are cancelled and their results dropped. Close is idempotent.
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		if e.listener != nil {
			e.listener.Close()
		}
		e.cancel()
		close(e.quit)
		<-e.loopDone
		e.monitor.Disarm()
		e.workers.Wait()
		e.audit.Close()

		e.subMu.Lock()
		e.closed = true
		for id, ch := range e.subs {
			close(ch)
			delete(e.subs, id)
		}
		e.subMu.Unlock()

		for _, c := range e.closers {
			if err := c(); err != nil {
				e.logger.Warnf("close: %v", err)
			}
		}
	})
}

/*
====================================
READ SIDE
====================================
*/

// Session returns the latest committed snapshot.
func (e *Engine) Session() Session {
	return e.snapshot.Load().Clone()
}

// Warning returns the expiry banner state.
func (e *Engine) Warning() Warning {
	return *e.warning.Load()
}

// Decide evaluates route against the current session.
func (e *Engine) Decide(route Route) Decision {
	d := e.policy.Evaluate(e.Session(), route)
	if d.Kind == guard.Redirect {
		e.metrics.Inc(MetricGuardRedirect)
	}
	return d
}

// Policy returns the guard policy built from Config.Routes.
func (e *Engine) Policy() guard.Policy {
	return e.policy
}

// Subscribe returns a channel that receives the latest snapshot after every committed
// transition, starting with the current one. Slow readers only see the newest snapshot.
// The returned func unsubscribes and closes the channel.
func (e *Engine) Subscribe() (<-chan Session, func()) {
	ch := make(chan Session, 1)
	e.subMu.Lock()
	if e.closed {
		e.subMu.Unlock()
		close(ch)
		return ch, func() {}
	}
	e.nextSub++
	id := e.nextSub
	e.subs[id] = ch
	ch <- e.Session()
	e.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			e.subMu.Lock()
			defer e.subMu.Unlock()
			if c, ok := e.subs[id]; ok {
				delete(e.subs, id)
				close(c)
			}
		})
	}
}

func (e *Engine) publish(s Session) {
	e.snapshot.Store(&s)

	e.subMu.Lock()
	defer e.subMu.Unlock()
	for _, ch := range e.subs {
		select {
		case ch <- s.Clone():
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- s.Clone():
		default:
		}
	}
}

// MetricsSnapshot returns a copy of the engine metrics.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	return e.metrics.Snapshot()
}

/*
====================================
COMMIT HOOKS
====================================
*/

func (e *Engine) onTransition(_ context.Context, tr session.Transition) {
	from, to := tr.From, tr.To
	e.publish(to)

	switch {
	case to.Phase == PhaseAuthenticated:
		_, extended := tr.Action.(session.SessionExtended)
		if extended || from.Phase != PhaseAuthenticated || from.ID != to.ID {
			if to.ExpiresAt.IsZero() {
				e.monitor.Disarm()
			} else {
				e.monitor.Arm(to.ExpiresAt)
			}
		}
	case from.Phase == PhaseAuthenticated:
		e.monitor.Disarm()
	}

	if from.Phase == PhaseBootstrapping && to.Phase != PhaseBootstrapping {
		e.readyOnce.Do(func() { close(e.ready) })
	}
}

func (e *Engine) onWarning(w Warning) {
	prev := e.warning.Load()
	e.warning.Store(&w)
	if w.Active && (prev == nil || !prev.Active) {
		e.metrics.Inc(MetricWarningShown)
		e.logger.Debugf("session expires in %ds", w.SecondsRemaining)
	}
}

func (e *Engine) persistFailed(op string, err error) {
	e.metrics.Inc(MetricTokenStoreFailure)
	e.logger.Errorf("token store %s failed: %v", op, err)
}

func expiredError() *AuthError {
	return &AuthError{Kind: KindTokenInvalidOrExpired, Message: "session expired"}
}

func alreadySignedIn() *AuthError {
	return session.Validationf("session", "already signed in")
}

func notSignedIn() *AuthError {
	return session.NewError(KindTokenInvalidOrExpired, "no active session")
}
