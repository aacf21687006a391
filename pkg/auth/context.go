package auth

import "context"

type contextKey string

// ContextKeyPrincipal is the context key for the acting principal.
const ContextKeyPrincipal contextKey = "principal"

// WithPrincipal adds the acting principal to the context.
func WithPrincipal(ctx context.Context, principal string) context.Context {
	return context.WithValue(ctx, ContextKeyPrincipal, principal)
}

// PrincipalFromContext retrieves the acting principal from the context.
func PrincipalFromContext(ctx context.Context) (string, bool) {
	p, ok := ctx.Value(ContextKeyPrincipal).(string)
	return p, ok && p != ""
}
