package shared

import "context"

type actorContextKey struct{}

// ContextWithActor stores the acting user id in context. The id is supplied
// by the upstream identity service; no authorization logic lives here.
func ContextWithActor(ctx context.Context, actorID int64) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actorID)
}

// ActorFromContext extracts the acting user id from context, zero when absent.
func ActorFromContext(ctx context.Context) int64 {
	id, _ := ctx.Value(actorContextKey{}).(int64)
	return id
}
