package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrInvalidTransition is returned when an action is not allowed from the current phase.
	ErrInvalidTransition = errors.New("invalid session transition")
	// ErrStaleGeneration is returned when a result belongs to a superseded attempt or to a
	// session that has since been logged out.
	ErrStaleGeneration = errors.New("stale session generation")
	// ErrIncompleteIdentity is returned when a success result lacks a token or a valid user.
	ErrIncompleteIdentity = errors.New("identity requires both token and user")
)

// Action is an input to the Machine.
type Action interface {
	Name() string
}

// BootstrapSucceeded commits the identity verified from the stored token.
type BootstrapSucceeded struct {
	Token     string
	User      UserProfile
	ExpiresAt time.Time
}

// BootstrapFailed ends bootstrapping without an identity. HadToken marks that a stored
// token existed and must be cleared.
type BootstrapFailed struct {
	Err      *AuthError
	HadToken bool
}

// LoginStarted opens a new attempt and supersedes any attempt still in flight.
type LoginStarted struct {
	Method string
}

// LoginSucceeded commits the result of the attempt opened at Generation.
type LoginSucceeded struct {
	Generation   uint64
	Token        string
	User         UserProfile
	ExpiresAt    time.Time
	IsNewAccount bool
}

// LoginFailed records the failure of the attempt opened at Generation.
type LoginFailed struct {
	Generation uint64
	Err        *AuthError
}

// LoggedOut resets the session to the empty unauthenticated value. Err, when set, becomes
// LastError in the same commit; a forced logout uses it to carry the cause.
type LoggedOut struct {
	Reason string
	Err    *AuthError
}

// LoginAbandoned withdraws the attempt opened at Generation without recording a failure.
// The engine sends it when the caller that started the attempt has gone away.
type LoginAbandoned struct {
	Generation uint64
}

// ProfileUpdated replaces the user of the authenticated session.
type ProfileUpdated struct {
	Generation uint64
	User       UserProfile
}

// SessionExtended moves the expiry of the authenticated session.
type SessionExtended struct {
	Generation uint64
	ExpiresAt  time.Time
}

// ErrorRecorded sets LastError without changing the phase.
type ErrorRecorded struct {
	Err *AuthError
}

// ErrorDismissed clears LastError.
type ErrorDismissed struct{}

func (BootstrapSucceeded) Name() string { return "bootstrap_succeeded" }
func (BootstrapFailed) Name() string    { return "bootstrap_failed" }
func (LoginStarted) Name() string       { return "login_started" }
func (LoginSucceeded) Name() string     { return "login_succeeded" }
func (LoginFailed) Name() string        { return "login_failed" }
func (LoggedOut) Name() string          { return "logged_out" }
func (LoginAbandoned) Name() string     { return "login_abandoned" }
func (ProfileUpdated) Name() string     { return "profile_updated" }
func (SessionExtended) Name() string    { return "session_extended" }
func (ErrorRecorded) Name() string      { return "error_recorded" }
func (ErrorDismissed) Name() string     { return "error_dismissed" }

// Transition describes one committed change. Path lists every phase the session passed
// through, including the transient PhaseFailed.
type Transition struct {
	From   Session
	To     Session
	Path   []Phase
	Action Action
}

// Hook runs after a transition has been committed.
type Hook func(ctx context.Context, tr Transition)

// Persister is the durable token record written by the commit step.
type Persister interface {
	Save(ctx context.Context, token string) error
	Clear(ctx context.Context) error
}

// MachineOption customizes Machine construction.
type MachineOption func(*Machine)

// WithHook appends a commit hook. Hooks run in registration order.
func WithHook(h Hook) MachineOption {
	return func(m *Machine) {
		if h != nil {
			m.hooks = append(m.hooks, h)
		}
	}
}

// WithPersister makes the machine the writer of the durable token record. onErr
// receives persistence failures; the committed session is never rolled back.
func WithPersister(p Persister, onErr func(op string, err error)) MachineOption {
	return func(m *Machine) {
		m.persister = p
		if onErr != nil {
			m.persistErr = onErr
		}
	}
}

// WithIDGenerator overrides how session IDs are minted.
func WithIDGenerator(gen func() string) MachineOption {
	return func(m *Machine) {
		if gen != nil {
			m.newID = gen
		}
	}
}

// Machine is the single source of truth for the current Session. It is not safe for
// concurrent use; the owner confines it to one goroutine.
type Machine struct {
	current     Session
	generation  uint64
	pending     bool
	transitions map[Phase]map[Phase]struct{}
	hooks       []Hook
	persister   Persister
	persistErr  func(op string, err error)
	newID       func() string
}

// NewMachine returns a machine in PhaseBootstrapping.
func NewMachine(opts ...MachineOption) *Machine {
	m := &Machine{
		current: Session{Phase: PhaseBootstrapping},
		transitions: map[Phase]map[Phase]struct{}{
			PhaseBootstrapping: {
				PhaseBootstrapping:   {},
				PhaseAuthenticating:  {},
				PhaseAuthenticated:   {},
				PhaseUnauthenticated: {},
			},
			PhaseUnauthenticated: {
				PhaseUnauthenticated: {},
				PhaseAuthenticating:  {},
			},
			PhaseAuthenticating: {
				PhaseAuthenticating:  {},
				PhaseAuthenticated:   {},
				PhaseUnauthenticated: {},
			},
			PhaseAuthenticated: {
				PhaseAuthenticated:   {},
				PhaseUnauthenticated: {},
			},
		},
		persistErr: func(string, error) {},
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// Current returns a snapshot of the committed session.
func (m *Machine) Current() Session {
	return m.current.Clone()
}

// Phase returns the committed phase.
func (m *Machine) Phase() Phase {
	return m.current.Phase
}

// Generation returns the current attempt generation.
func (m *Machine) Generation() uint64 {
	return m.generation
}

// Pending reports whether an attempt opened by LoginStarted has not resolved yet.
func (m *Machine) Pending() bool {
	return m.pending
}

// Dispatch applies a to the current session. The new session is visible before any hook
// runs. Rejected actions leave the session untouched and return an error.
func (m *Machine) Dispatch(ctx context.Context, a Action) (Session, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	from := m.current
	next, path, pending, gen, err := m.reduce(a)
	if err != nil {
		return m.Current(), err
	}
	if next == nil {
		return m.Current(), nil
	}
	if !m.canTransition(from.Phase, next.Phase) {
		return m.Current(), ErrInvalidTransition
	}
	if (next.Token != "") != (next.User != nil) {
		return m.Current(), ErrIncompleteIdentity
	}

	m.current = *next
	m.pending = pending
	m.generation = gen

	tr := Transition{
		From:   from.Clone(),
		To:     next.Clone(),
		Path:   path,
		Action: a,
	}
	m.persist(ctx, tr)
	for _, h := range m.hooks {
		h(ctx, tr)
	}
	return m.Current(), nil
}

func (m *Machine) reduce(a Action) (*Session, []Phase, bool, uint64, error) {
	cur := m.current
	gen := m.generation
	pending := m.pending

	switch act := a.(type) {
	case BootstrapSucceeded:
		if cur.Phase != PhaseBootstrapping {
			return nil, nil, pending, gen, ErrStaleGeneration
		}
		next, err := m.authenticated(act.Token, act.User, act.ExpiresAt, gen)
		if err != nil {
			return nil, nil, pending, gen, err
		}
		return next, []Phase{PhaseBootstrapping, PhaseAuthenticated}, false, gen, nil

	case BootstrapFailed:
		if cur.Phase != PhaseBootstrapping {
			return nil, nil, pending, gen, ErrStaleGeneration
		}
		lastErr := act.Err
		if lastErr == nil {
			lastErr = cur.LastError
		}
		if pending {
			next := Session{Phase: PhaseAuthenticating, Generation: gen, LastError: lastErr}
			return &next, []Phase{PhaseBootstrapping, PhaseAuthenticating}, true, gen, nil
		}
		next := Session{Phase: PhaseUnauthenticated, Generation: gen, LastError: lastErr}
		return &next, []Phase{PhaseBootstrapping, PhaseUnauthenticated}, false, gen, nil

	case LoginStarted:
		gen++
		switch cur.Phase {
		case PhaseBootstrapping:
			next := cur
			next.LastError = nil
			next.Generation = gen
			return &next, []Phase{PhaseBootstrapping}, true, gen, nil
		case PhaseUnauthenticated, PhaseAuthenticating:
			next := Session{Phase: PhaseAuthenticating, Generation: gen}
			return &next, []Phase{cur.Phase, PhaseAuthenticating}, true, gen, nil
		default:
			return nil, nil, pending, m.generation, ErrInvalidTransition
		}

	case LoginSucceeded:
		if act.Generation != gen || !pending {
			return nil, nil, pending, gen, ErrStaleGeneration
		}
		if cur.Phase != PhaseBootstrapping && cur.Phase != PhaseAuthenticating {
			return nil, nil, pending, gen, ErrStaleGeneration
		}
		next, err := m.authenticated(act.Token, act.User, act.ExpiresAt, gen)
		if err != nil {
			return nil, nil, pending, gen, err
		}
		return next, []Phase{cur.Phase, PhaseAuthenticated}, false, gen, nil

	case LoginFailed:
		if act.Generation != gen || !pending {
			return nil, nil, pending, gen, ErrStaleGeneration
		}
		switch cur.Phase {
		case PhaseAuthenticating:
			next := Session{Phase: PhaseUnauthenticated, Generation: gen, LastError: act.Err}
			return &next, []Phase{PhaseAuthenticating, PhaseFailed, PhaseUnauthenticated}, false, gen, nil
		case PhaseBootstrapping:
			next := cur
			next.LastError = act.Err
			return &next, []Phase{PhaseBootstrapping}, false, gen, nil
		default:
			return nil, nil, pending, gen, ErrStaleGeneration
		}

	case LoggedOut:
		if cur.Phase == PhaseUnauthenticated && !pending {
			if cur.LastError == act.Err {
				return nil, nil, pending, gen, nil
			}
			next := cur
			next.LastError = act.Err
			return &next, []Phase{PhaseUnauthenticated}, pending, gen, nil
		}
		gen++
		next := Session{Phase: PhaseUnauthenticated, Generation: gen, LastError: act.Err}
		return &next, []Phase{cur.Phase, PhaseUnauthenticated}, false, gen, nil

	case LoginAbandoned:
		if act.Generation != gen || !pending {
			return nil, nil, pending, gen, ErrStaleGeneration
		}
		switch cur.Phase {
		case PhaseAuthenticating:
			next := Session{Phase: PhaseUnauthenticated, Generation: gen}
			return &next, []Phase{PhaseAuthenticating, PhaseUnauthenticated}, false, gen, nil
		case PhaseBootstrapping:
			next := cur
			return &next, []Phase{PhaseBootstrapping}, false, gen, nil
		default:
			return nil, nil, pending, gen, ErrStaleGeneration
		}

	case ProfileUpdated:
		if cur.Phase != PhaseAuthenticated || act.Generation != gen {
			return nil, nil, pending, gen, ErrStaleGeneration
		}
		if !act.User.Role.Valid() || act.User.ID == "" {
			return nil, nil, pending, gen, ErrIncompleteIdentity
		}
		next := cur
		u := act.User
		next.User = &u
		next.LastError = nil
		return &next, []Phase{PhaseAuthenticated}, pending, gen, nil

	case SessionExtended:
		if cur.Phase != PhaseAuthenticated || act.Generation != gen {
			return nil, nil, pending, gen, ErrStaleGeneration
		}
		next := cur
		next.ExpiresAt = act.ExpiresAt
		return &next, []Phase{PhaseAuthenticated}, pending, gen, nil

	case ErrorRecorded:
		if act.Err == nil || cur.Phase == PhaseBootstrapping {
			return nil, nil, pending, gen, nil
		}
		next := cur
		next.LastError = act.Err
		return &next, []Phase{cur.Phase}, pending, gen, nil

	case ErrorDismissed:
		if cur.LastError == nil {
			return nil, nil, pending, gen, nil
		}
		next := cur
		next.LastError = nil
		return &next, []Phase{cur.Phase}, pending, gen, nil

	default:
		return nil, nil, pending, gen, ErrInvalidTransition
	}
}

func (m *Machine) authenticated(token string, user UserProfile, expiresAt time.Time, gen uint64) (*Session, error) {
	if token == "" || user.ID == "" || !user.Role.Valid() {
		return nil, ErrIncompleteIdentity
	}
	u := user
	return &Session{
		ID:         m.newID(),
		Token:      token,
		User:       &u,
		Phase:      PhaseAuthenticated,
		ExpiresAt:  expiresAt,
		Generation: gen,
	}, nil
}

func (m *Machine) canTransition(from, to Phase) bool {
	if allowed, ok := m.transitions[from]; ok {
		_, exists := allowed[to]
		return exists
	}
	return false
}

func (m *Machine) persist(ctx context.Context, tr Transition) {
	if m.persister == nil {
		return
	}
	switch {
	case tr.To.Phase == PhaseAuthenticated && tr.To.Token != tr.From.Token:
		if _, replay := tr.Action.(BootstrapSucceeded); replay {
			return
		}
		if err := m.persister.Save(ctx, tr.To.Token); err != nil {
			m.persistErr("save", err)
		}
	case tr.From.Phase == PhaseAuthenticated && tr.To.Phase != PhaseAuthenticated:
		if err := m.persister.Clear(ctx); err != nil {
			m.persistErr("clear", err)
		}
	default:
		wipe := false
		switch act := tr.Action.(type) {
		case BootstrapFailed:
			wipe = act.HadToken
		case LoggedOut:
			// the stored token was never verified; logging out must not leave it behind
			wipe = tr.From.Phase == PhaseBootstrapping
		}
		if wipe {
			if err := m.persister.Clear(ctx); err != nil {
				m.persistErr("clear", err)
			}
		}
	}
}
