package subscription

import "context"

// Actor identifies who triggered a lifecycle operation. It is attached to the
// audit trail; an empty UserID marks system actions.
type Actor struct {
	UserID string
	IP     string
}

type actorCtxKey struct{}

// WithActor returns a context carrying the acting user.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorCtxKey{}, actor)
}

// ActorFromContext returns the acting user, if any.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorCtxKey{}).(Actor)
	return actor, ok
}
