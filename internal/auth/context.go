package auth

import "context"

type authContextKey struct{}

// WithContext attaches the resolved authorization context to a request context.
func WithContext(ctx context.Context, ac *Context) context.Context {
	if ac == nil {
		return ctx
	}
	return context.WithValue(ctx, authContextKey{}, ac)
}

// FromContext extracts the authorization context, if a guard attached one.
func FromContext(ctx context.Context) (*Context, bool) {
	if ctx == nil {
		return nil, false
	}
	ac, ok := ctx.Value(authContextKey{}).(*Context)
	if !ok || ac == nil {
		return nil, false
	}
	return ac, true
}
