// Package ctxutil carries request-scoped values across layers.
// It has no internal dependencies so it can be imported from anywhere.
package ctxutil

import (
	"context"
	"strings"
)

type actorKey struct{}

// WithActorID returns a context carrying the user on whose behalf the call runs.
// Blank ids are ignored.
func WithActorID(ctx context.Context, actorID string) context.Context {
	actorID = strings.TrimSpace(actorID)
	if actorID == "" {
		return ctx
	}
	return context.WithValue(ctx, actorKey{}, actorID)
}

// ActorFromContext returns the actor id, or "" when none was set.
func ActorFromContext(ctx context.Context) string {
	actor, _ := ctx.Value(actorKey{}).(string)
	return actor
}
