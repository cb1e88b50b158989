package authcore

import "context"

type correlationIDContextKey struct{}

// WithCorrelationID attaches an identifier that is copied into audit events produced by
// calls made with ctx.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDContextKey{}, id)
}

func correlationIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	id, _ := ctx.Value(correlationIDContextKey{}).(string)
	return id
}
