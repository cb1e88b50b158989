package session

import (
	"math"
	"time"
)

// MonitorConfig tunes the expiry schedule.
type MonitorConfig struct {
	// WarningThreshold is how long before expiry the warning becomes active.
	WarningThreshold time.Duration
	// TickInterval is the countdown refresh period once the warning is active.
	TickInterval time.Duration
}

// Monitor tracks the expiry of one authenticated session at a time.
//
// Arm, Disarm and Dismiss must be called from the owner's goroutine. Timer callbacks are
// handed to post, which must run them on that same goroutine. Callbacks belonging to a
// replaced schedule are dropped.
type Monitor struct {
	clock     Clock
	cfg       MonitorConfig
	post      func(func())
	onWarning func(Warning)
	onExpire  func()

	seq       uint64
	expiresAt time.Time
	warned    bool
	warning   Warning
	timers    []Timer
	ticker    Timer
}

// NewMonitor builds a disarmed monitor. A nil post runs callbacks directly.
func NewMonitor(clock Clock, cfg MonitorConfig, post func(func()), onWarning func(Warning), onExpire func()) *Monitor {
	if clock == nil {
		clock = SystemClock{}
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	if cfg.WarningThreshold < 0 {
		cfg.WarningThreshold = 0
	}
	if post == nil {
		post = func(f func()) { f() }
	}
	if onWarning == nil {
		onWarning = func(Warning) {}
	}
	if onExpire == nil {
		onExpire = func() {}
	}
	return &Monitor{
		clock:     clock,
		cfg:       cfg,
		post:      post,
		onWarning: onWarning,
		onExpire:  onExpire,
	}
}

// Arm replaces any previous schedule with one ending at expiresAt.
func (m *Monitor) Arm(expiresAt time.Time) {
	m.stopTimers()
	m.seq++
	m.expiresAt = expiresAt
	m.warned = false
	if m.warning.Active || m.warning.SecondsRemaining != 0 {
		m.warning = Warning{}
		m.onWarning(m.warning)
	}

	seq := m.seq
	remaining := expiresAt.Sub(m.clock.Now())
	warnIn := remaining - m.cfg.WarningThreshold
	if warnIn < 0 {
		warnIn = 0
	}
	if remaining < 0 {
		remaining = 0
	}

	m.timers = append(m.timers,
		m.clock.AfterFunc(warnIn, m.guarded(seq, m.enterWarning)),
		m.clock.AfterFunc(remaining, m.guarded(seq, m.expire)),
	)
}

// Disarm cancels the schedule and clears the warning.
func (m *Monitor) Disarm() {
	m.stopTimers()
	m.seq++
	m.expiresAt = time.Time{}
	m.warned = false
	if m.warning.Active || m.warning.SecondsRemaining != 0 {
		m.warning = Warning{}
		m.onWarning(m.warning)
	}
}

// Dismiss hides the warning. The countdown keeps running and expiry still forces logout.
func (m *Monitor) Dismiss() {
	if !m.warning.Active {
		return
	}
	m.warning.Active = false
	m.onWarning(m.warning)
}

// Armed reports whether an expiry is scheduled.
func (m *Monitor) Armed() bool {
	return !m.expiresAt.IsZero()
}

// ExpiresAt returns the scheduled expiry, zero when disarmed.
func (m *Monitor) ExpiresAt() time.Time {
	return m.expiresAt
}

// Warning returns the current banner state.
func (m *Monitor) Warning() Warning {
	return m.warning
}

func (m *Monitor) guarded(seq uint64, f func(seq uint64)) func() {
	return func() {
		m.post(func() {
			if seq != m.seq {
				return
			}
			f(seq)
		})
	}
}

func (m *Monitor) enterWarning(seq uint64) {
	if m.warned {
		return
	}
	m.warned = true
	m.warning = Warning{Active: true, SecondsRemaining: m.secondsRemaining()}
	m.onWarning(m.warning)
	m.scheduleTick(seq)
}

func (m *Monitor) tick(seq uint64) {
	left := m.secondsRemaining()
	if left == 0 {
		return
	}
	if left != m.warning.SecondsRemaining {
		m.warning.SecondsRemaining = left
		m.onWarning(m.warning)
	}
	m.scheduleTick(seq)
}

func (m *Monitor) scheduleTick(seq uint64) {
	next := m.cfg.TickInterval
	if remaining := m.expiresAt.Sub(m.clock.Now()); remaining < next {
		return
	}
	m.ticker = m.clock.AfterFunc(next, m.guarded(seq, m.tick))
}

func (m *Monitor) expire(uint64) {
	m.stopTimers()
	m.seq++
	m.expiresAt = time.Time{}
	m.warned = false
	m.warning = Warning{}
	m.onWarning(m.warning)
	m.onExpire()
}

func (m *Monitor) secondsRemaining() uint32 {
	remaining := m.expiresAt.Sub(m.clock.Now())
	if remaining <= 0 {
		return 0
	}
	secs := math.Ceil(remaining.Seconds())
	if secs > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(secs)
}

func (m *Monitor) stopTimers() {
	for _, t := range m.timers {
		if t != nil {
			t.Stop()
		}
	}
	m.timers = m.timers[:0]
	if m.ticker != nil {
		m.ticker.Stop()
		m.ticker = nil
	}
}
