package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestDisabledDispatcherIsNil(t *testing.T) {
	d := NewDispatcher(Config{Enabled: false}, NewChannelSink(1))
	if d != nil {
		t.Fatal("disabled dispatcher must be nil")
	}
	d.Emit(context.Background(), Event{EventType: EventLogout})
	d.Close()
	if d.Dropped() != 0 {
		t.Fatal("nil dispatcher must report zero drops")
	}
}

func TestCloseDrainsQueuedEvents(t *testing.T) {
	sink := NewChannelSink(16)
	d := NewDispatcher(Config{Enabled: true, BufferSize: 16}, sink)
	for i := 0; i < 5; i++ {
		d.Emit(context.Background(), Event{EventType: EventLoginSuccess})
	}
	d.Close()

	if got := len(sink.Events()); got != 5 {
		t.Fatalf("expected 5 delivered events, got %d", got)
	}
	d.Emit(context.Background(), Event{EventType: EventLogout})
	if got := len(sink.Events()); got != 5 {
		t.Fatalf("emit after close must be ignored, got %d", got)
	}
}

type blockingSink struct {
	release chan struct{}
	mu      sync.Mutex
	n       int
}

func (s *blockingSink) Emit(context.Context, Event) {
	<-s.release
	s.mu.Lock()
	s.n++
	s.mu.Unlock()
}

func TestDropIfFullCountsDrops(t *testing.T) {
	sink := &blockingSink{release: make(chan struct{})}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)

	// One event is held by the sink, one fills the buffer, the rest drop.
	for i := 0; i < 10; i++ {
		d.Emit(context.Background(), Event{EventType: EventBootstrap})
	}
	deadline := time.Now().Add(time.Second)
	for d.Dropped() < 8 && time.Now().Before(deadline) {
		d.Emit(context.Background(), Event{EventType: EventBootstrap})
	}
	if d.Dropped() < 8 {
		t.Fatalf("expected drops, got %d", d.Dropped())
	}
	close(sink.release)
	d.Close()
}

func TestBlockingEmitHonoursContext(t *testing.T) {
	sink := &blockingSink{release: make(chan struct{})}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1}, sink)
	defer func() {
		close(sink.release)
		d.Close()
	}()

	d.Emit(context.Background(), Event{EventType: EventLogout})
	d.Emit(context.Background(), Event{EventType: EventLogout})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	done := make(chan struct{})
	go func() {
		d.Emit(ctx, Event{EventType: EventLogout})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("emit did not return after context expiry")
	}
}

func TestJSONWriterSinkWritesLines(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)
	sink.Emit(context.Background(), Event{EventType: EventForcedLogout, SessionID: "s-1", Metadata: map[string]string{"reason": "session_expired"}})
	sink.Emit(context.Background(), Event{EventType: EventLogout})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), buf.String())
	}
	var ev Event
	if err := json.Unmarshal([]byte(lines[0]), &ev); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.EventType != EventForcedLogout || ev.SessionID != "s-1" || ev.Metadata["reason"] != "session_expired" {
		t.Fatalf("unexpected event %+v", ev)
	}
}
