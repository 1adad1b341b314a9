// Package context provides request-scoped values extraction.
package context

import (
	"context"

	"marketplace/internal/core/security"
)

type actorKey struct{}

// WithActor stores the authenticated actor in ctx.
func WithActor(ctx context.Context, actor security.Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// GetActor returns the actor from ctx.
func GetActor(ctx context.Context) (security.Actor, bool) {
	a, ok := ctx.Value(actorKey{}).(security.Actor)
	return a, ok
}
