package domain

import "context"

type ctxKey string

const principalCtxKey ctxKey = "principal"

// ContextWithPrincipal returns a new context carrying the principal.
func ContextWithPrincipal(ctx context.Context, principal string) context.Context {
	return context.WithValue(ctx, principalCtxKey, principal)
}

// PrincipalFromContext extracts the principal from the context.
// Returns empty string if not set.
func PrincipalFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(principalCtxKey).(string); ok {
		return v
	}
	return ""
}
