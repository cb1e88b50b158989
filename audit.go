package authcore

import (
	"context"
	"io"

	"github.com/MrEthical07/authcore/internal/audit"
)

type (
	// AuditEvent is one audit record.
	AuditEvent = audit.Event
	// AuditSink receives audit events from the dispatcher goroutine.
	AuditSink = audit.Sink
	// NoOpSink drops every event.
	NoOpSink = audit.NoOpSink
	// ChannelSink buffers events in a channel.
	ChannelSink = audit.ChannelSink
	// JSONWriterSink writes one JSON object per line.
	JSONWriterSink = audit.JSONWriterSink
)

// Audit event types.
const (
	AuditLoginSuccess     = audit.EventLoginSuccess
	AuditLoginFailure     = audit.EventLoginFailure
	AuditLogout           = audit.EventLogout
	AuditForcedLogout     = audit.EventForcedLogout
	AuditBootstrap        = audit.EventBootstrap
	AuditOtpRequested     = audit.EventOtpRequested
	AuditFederatedIgnored = audit.EventFederatedIgnored
	AuditSessionExtended  = audit.EventSessionExtended
	AuditProfileUpdated   = audit.EventProfileUpdated
)

// NewChannelSink returns a sink buffering up to buffer events.
func NewChannelSink(buffer int) *ChannelSink {
	return audit.NewChannelSink(buffer)
}

// NewJSONWriterSink returns a sink writing JSON lines to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return audit.NewJSONWriterSink(w)
}

func (e *Engine) emitAudit(ctx context.Context, ev AuditEvent) {
	if e.audit == nil {
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = e.clock.Now()
	}
	if ev.CorrelationID == "" {
		ev.CorrelationID = correlationIDFromContext(ctx)
	}
	e.audit.Emit(ctx, ev)
}

func sessionAudit(s Session, eventType, method string, success bool, err *AuthError) AuditEvent {
	ev := AuditEvent{
		EventType: eventType,
		SessionID: s.ID,
		Method:    method,
		Success:   success,
	}
	if s.User != nil {
		ev.UserID = s.User.ID
	}
	if err != nil {
		ev.Error = err.Code()
		if err.SubReason != "" {
			ev.Metadata = map[string]string{"sub_reason": err.SubReason}
		}
	}
	return ev
}

// AuditDropped returns how many audit events were dropped for backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}
