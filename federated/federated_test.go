package federated

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/authcore/session"
	"github.com/gorilla/websocket"
	"golang.org/x/oauth2"
)

type eventRecorder struct {
	mu     sync.Mutex
	events []Event
	signal chan struct{}
}

func newEventRecorder() *eventRecorder {
	return &eventRecorder{signal: make(chan struct{}, 16)}
}

func (r *eventRecorder) sink(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	r.signal <- struct{}{}
}

func (r *eventRecorder) wait(t *testing.T, n int) []Event {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		r.mu.Lock()
		if len(r.events) >= n {
			out := append([]Event(nil), r.events...)
			r.mu.Unlock()
			return out
		}
		r.mu.Unlock()
		select {
		case <-r.signal:
		case <-deadline:
			t.Fatalf("timed out waiting for %d events", n)
		}
	}
}

func TestListenerForwardsChannelEvents(t *testing.T) {
	src := NewChannelSource(4)
	rec := newEventRecorder()
	l := NewListener(src, rec.sink, nil)
	if err := l.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer l.Close()
	if err := l.Start(context.Background()); !errors.Is(err, ErrListenerStarted) {
		t.Fatalf("expected ErrListenerStarted, got %v", err)
	}

	ctx := context.Background()
	if err := src.SignIn(ctx, "provider-token"); err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if err := src.SignOut(ctx); err != nil {
		t.Fatalf("sign out: %v", err)
	}
	events := rec.wait(t, 2)
	if events[0].Kind != SignedIn || events[0].ProviderToken != "provider-token" || events[1].Kind != SignedOut {
		t.Fatalf("unexpected events %+v", events)
	}
}

type stoppingSource struct {
	runs int
	mu   sync.Mutex
}

func (s *stoppingSource) Run(context.Context, chan<- Event) error {
	s.mu.Lock()
	s.runs++
	s.mu.Unlock()
	return errors.New("stream closed")
}

func TestListenerStopsWhenSourceReturns(t *testing.T) {
	src := &stoppingSource{}
	warned := make(chan string, 1)
	l := NewListener(src, func(Event) {}, func(format string, args ...any) {
		select {
		case warned <- format:
		default:
		}
	})
	if err := l.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	select {
	case <-warned:
	case <-time.After(3 * time.Second):
		t.Fatal("expected a warning when the source stops")
	}
	l.Close()

	src.mu.Lock()
	defer src.mu.Unlock()
	if src.runs != 1 {
		t.Fatalf("listener must not restart the source, runs=%d", src.runs)
	}
}

func TestListenerCloseIsIdempotent(t *testing.T) {
	l := NewListener(NewChannelSource(0), func(Event) {}, nil)
	l.Close()
	if err := l.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	l.Close()
	l.Close()
}

func TestWebSocketSourceDecodesFrames(t *testing.T) {
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		frames := []string{
			`{"event":"signed_in","token":"ws-token"}`,
			`not json`,
			`{"event":"refreshed"}`,
			`{"event":"signed_in","token":""}`,
			`{"event":"signed_out"}`,
		}
		for _, f := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				return
			}
		}
		_, _, _ = conn.ReadMessage()
	}))
	defer srv.Close()

	var warnMu sync.Mutex
	var warnings []string
	src := &WebSocketSource{
		URL:            "ws" + strings.TrimPrefix(srv.URL, "http"),
		ReconnectDelay: time.Hour,
		Warn: func(format string, args ...any) {
			warnMu.Lock()
			warnings = append(warnings, format)
			warnMu.Unlock()
		},
	}
	rec := newEventRecorder()
	l := NewListener(src, rec.sink, nil)
	if err := l.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	events := rec.wait(t, 2)
	l.Close()

	if events[0].Kind != SignedIn || events[0].ProviderToken != "ws-token" {
		t.Fatalf("unexpected first event %+v", events[0])
	}
	if events[1].Kind != SignedOut {
		t.Fatalf("unexpected second event %+v", events[1])
	}
	warnMu.Lock()
	defer warnMu.Unlock()
	if len(warnings) < 3 {
		t.Fatalf("expected malformed frames to be reported, got %v", warnings)
	}
}

func TestWebSocketSourceRequiresURL(t *testing.T) {
	if err := (&WebSocketSource{}).Run(context.Background(), make(chan Event)); err == nil {
		t.Fatal("expected missing URL error")
	}
}

func TestFileSourceEmitsOnCredentialChanges(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "credentials")
	src := &FileSource{Path: path, Debounce: 20 * time.Millisecond}
	rec := newEventRecorder()
	l := NewListener(src, rec.sink, nil)
	if err := l.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer l.Close()
	// Give the watcher time to register.
	time.Sleep(50 * time.Millisecond)

	if err := os.WriteFile(path, []byte("file-token\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	events := rec.wait(t, 1)
	if events[0].Kind != SignedIn || events[0].ProviderToken != "file-token" {
		t.Fatalf("unexpected event %+v", events[0])
	}

	if err := os.Remove(path); err != nil {
		t.Fatalf("remove: %v", err)
	}
	events = rec.wait(t, 2)
	if events[1].Kind != SignedOut {
		t.Fatalf("expected sign-out, got %+v", events[1])
	}
}

func TestOAuth2ProviderPrefersIDToken(t *testing.T) {
	base := &oauth2.Token{AccessToken: "access", Expiry: time.Now().Add(time.Hour)}
	withID := base.WithExtra(map[string]any{"id_token": "id-jwt"})

	got, err := NewOAuth2Provider(oauth2.StaticTokenSource(withID)).ProviderToken(context.Background())
	if err != nil || got != "id-jwt" {
		t.Fatalf("expected id token, got %q %v", got, err)
	}
	got, err = NewOAuth2Provider(oauth2.StaticTokenSource(base)).ProviderToken(context.Background())
	if err != nil || got != "access" {
		t.Fatalf("expected access token fallback, got %q %v", got, err)
	}
}

type failingSource struct{ err error }

func (s failingSource) Token() (*oauth2.Token, error) { return nil, s.err }

func TestOAuth2ProviderClassifiesErrors(t *testing.T) {
	denied := &oauth2.RetrieveError{ErrorCode: "access_denied"}
	_, err := NewOAuth2Provider(failingSource{denied}).ProviderToken(context.Background())
	ae, ok := session.AsAuthError(err)
	if !ok || ae.SubReason != session.SubReasonProviderCancelled {
		t.Fatalf("expected provider cancelled, got %v", err)
	}

	_, err = NewOAuth2Provider(failingSource{errors.New("dns")}).ProviderToken(context.Background())
	ae, ok = session.AsAuthError(err)
	if !ok || ae.SubReason != session.SubReasonProviderUnavailable {
		t.Fatalf("expected provider unavailable, got %v", err)
	}
}
