package federated

import (
	"context"
	"time"
)

// EventKind distinguishes provider notifications.
type EventKind uint8

const (
	// SignedIn carries a provider token for a signed-in provider account.
	SignedIn EventKind = iota + 1
	// SignedOut reports that the provider session ended.
	SignedOut
)

func (k EventKind) String() string {
	switch k {
	case SignedIn:
		return "signed_in"
	case SignedOut:
		return "signed_out"
	default:
		return "unknown"
	}
}

// Event is one provider notification.
type Event struct {
	Kind          EventKind
	ProviderToken string
	At            time.Time
}

// Source produces events until ctx ends or the source fails. Run must not close out.
type Source interface {
	Run(ctx context.Context, out chan<- Event) error
}

// ChannelSource adapts an in-process channel, e.g. provider SDK callbacks.
type ChannelSource struct {
	events chan Event
}

// NewChannelSource returns a source buffered for size events.
func NewChannelSource(size int) *ChannelSource {
	if size < 0 {
		size = 0
	}
	return &ChannelSource{events: make(chan Event, size)}
}

// SignIn queues a SignedIn event. It blocks while the buffer is full.
func (s *ChannelSource) SignIn(ctx context.Context, providerToken string) error {
	return s.Emit(ctx, Event{Kind: SignedIn, ProviderToken: providerToken, At: time.Now()})
}

// SignOut queues a SignedOut event.
func (s *ChannelSource) SignOut(ctx context.Context) error {
	return s.Emit(ctx, Event{Kind: SignedOut, At: time.Now()})
}

// Emit queues ev.
func (s *ChannelSource) Emit(ctx context.Context, ev Event) error {
	select {
	case s.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *ChannelSource) Run(ctx context.Context, out chan<- Event) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-s.events:
			select {
			case out <- ev:
			case <-ctx.Done():
				return nil
			}
		}
	}
}
