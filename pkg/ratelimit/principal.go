package ratelimit

import "context"

// Principal identifies the caller for admission accounting
type Principal struct {
	UserID string
	IP     string
}

type principalKey struct{}

// ContextWithPrincipal attaches the caller identity to the context so
// components deep in the pipeline can admit calls under the right buckets.
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the attached principal, or the zero value
// which admits under the global bucket only.
func PrincipalFromContext(ctx context.Context) Principal {
	p, _ := ctx.Value(principalKey{}).(Principal)
	return p
}
