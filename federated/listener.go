package federated

import (
	"context"
	"errors"
	"sync"
)

// ErrListenerStarted is returned by Start when the listener is already running.
var ErrListenerStarted = errors.New("federated: listener already started")

// Listener runs one Source and forwards its events to a sink.
type Listener struct {
	source Source
	sink   func(Event)
	warn   func(string, ...any)

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

// NewListener builds a listener. warn may be nil.
func NewListener(source Source, sink func(Event), warn func(string, ...any)) *Listener {
	if warn == nil {
		warn = func(string, ...any) {}
	}
	return &Listener{source: source, sink: sink, warn: warn}
}

// Start runs the source until Close or until ctx ends.
func (l *Listener) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.started {
		return ErrListenerStarted
	}
	l.started = true

	ctx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.done = make(chan struct{})
	events := make(chan Event)

	go func() {
		defer close(l.done)
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.source.Run(ctx, events); err != nil {
				l.warn("federated source stopped: %v", err)
			}
			cancel()
		}()
		for {
			select {
			case <-ctx.Done():
				wg.Wait()
				return
			case ev := <-events:
				l.sink(ev)
			}
		}
	}()
	return nil
}

// Close stops the source and waits for the forwarding goroutine.
func (l *Listener) Close() {
	l.mu.Lock()
	cancel, done := l.cancel, l.done
	l.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}
