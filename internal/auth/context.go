// Package auth carries the caller identity resolved by the upstream
// authentication layer. The store consumes the actor as an opaque string for
// change attribution and performs no authentication itself.
package auth

import "context"

type contextKey string

const actorKey contextKey = "actor"

// AnonymousActor is attributed when the upstream layer supplied no identity.
const AnonymousActor = "anonymous"

// ContextWithActor returns a new context that carries the resolved caller
// identity.
func ContextWithActor(ctx context.Context, actor string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, actorKey, actor)
}

// ActorFromContext retrieves the caller identity from the context, if any.
func ActorFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	actor, ok := ctx.Value(actorKey).(string)
	if !ok || actor == "" {
		return "", false
	}
	return actor, true
}

// ActorOrAnonymous returns the resolved identity or AnonymousActor when the
// context carries none.
func ActorOrAnonymous(ctx context.Context) string {
	if actor, ok := ActorFromContext(ctx); ok {
		return actor
	}
	return AnonymousActor
}
