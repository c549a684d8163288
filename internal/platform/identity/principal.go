// Package identity supplies the authenticated principal to the core. The
// identity provider itself is external; this package only validates what it
// issued and carries the result through request contexts.
package identity

import "context"

// Principal is an authenticated caller: who they are and the single role
// they act under. An absent principal means the request is unauthenticated.
type Principal struct {
	ID   string `json:"id"`
	Role string `json:"role"`
}

// System is the principal attributed to background maintenance work such as
// the consent expiry sweep and session watcher.
var System = Principal{ID: "system", Role: "system"}

type contextKey struct{}

// WithPrincipal returns a context carrying the principal.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, contextKey{}, p)
}

// FromContext extracts the principal, reporting whether one is present.
func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(contextKey{}).(Principal)
	return p, ok
}
