package ctxutil

import "context"

type actorKey struct{}

// WithActor records the authenticated caller identity for audit trails.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// GetActor returns the caller identity, or "" when the request was not
// authenticated.
func GetActor(ctx context.Context) string {
	if actor, ok := ctx.Value(actorKey{}).(string); ok {
		return actor
	}
	return ""
}
