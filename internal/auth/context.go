package auth

import "context"

type actorKey struct{}

// WithActor stores the authenticated caller identity in ctx.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFromContext returns the caller identity, or "" for anonymous calls.
func ActorFromContext(ctx context.Context) string {
	actor, _ := ctx.Value(actorKey{}).(string)
	return actor
}
