package middleware

import (
	"context"

	pkgAuth "github.com/angelmondragon/orderdesk-backend/pkg/auth"
)

type contextKey string

const ctxCaller contextKey = "caller"

// CallerFromContext returns the authenticated caller, or the zero Caller for
// anonymous requests.
func CallerFromContext(ctx context.Context) pkgAuth.Caller {
	if ctx == nil {
		return pkgAuth.Caller{}
	}
	if v, ok := ctx.Value(ctxCaller).(pkgAuth.Caller); ok {
		return v
	}
	return pkgAuth.Caller{}
}

// WithCaller injects the caller into the context.
func WithCaller(ctx context.Context, caller pkgAuth.Caller) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxCaller, caller)
}
