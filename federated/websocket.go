package federated

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocketSource subscribes to a provider change-notification stream. Frames are JSON
// objects of the form {"event":"signed_in","token":"..."} or {"event":"signed_out"}.
// Dropped connections are redialed after ReconnectDelay until the context ends.
type WebSocketSource struct {
	URL            string
	Header         http.Header
	Dialer         *websocket.Dialer
	ReconnectDelay time.Duration
	// Warn receives dial failures and malformed frames. Optional.
	Warn func(string, ...any)
}

type wsFrame struct {
	Event string `json:"event"`
	Token string `json:"token,omitempty"`
}

func (s *WebSocketSource) Run(ctx context.Context, out chan<- Event) error {
	if strings.TrimSpace(s.URL) == "" {
		return errors.New("federated: websocket URL is required")
	}
	dialer := s.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	delay := s.ReconnectDelay
	if delay <= 0 {
		delay = 2 * time.Second
	}
	warn := s.Warn
	if warn == nil {
		warn = func(string, ...any) {}
	}

	for {
		conn, _, err := dialer.DialContext(ctx, s.URL, s.Header)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			warn("federated stream dial failed: %v", err)
		} else {
			s.read(ctx, conn, out, warn)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
	}
}

func (s *WebSocketSource) read(ctx context.Context, conn *websocket.Conn, out chan<- Event, warn func(string, ...any)) {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			conn.Close()
		case <-done:
			conn.Close()
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil && websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				warn("federated stream read failed: %v", err)
			}
			return
		}

		var frame wsFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			warn("federated stream frame ignored: %v", err)
			continue
		}
		ev, ok := frame.event()
		if !ok {
			warn("federated stream event %q ignored", frame.Event)
			continue
		}
		select {
		case out <- ev:
		case <-ctx.Done():
			return
		}
	}
}

func (f wsFrame) event() (Event, bool) {
	switch f.Event {
	case "signed_in":
		if strings.TrimSpace(f.Token) == "" {
			return Event{}, false
		}
		return Event{Kind: SignedIn, ProviderToken: f.Token, At: time.Now()}, true
	case "signed_out":
		return Event{Kind: SignedOut, At: time.Now()}, true
	default:
		return Event{}, false
	}
}
