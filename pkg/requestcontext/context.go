// Package requestcontext provides HTTP-independent context accessors for
// request-scoped values.
//
// Middleware and feed adapters set values; services only read them. Keeping
// this package free of net/http lets domain packages import it without pulling
// transport code along.
//
// Usage in services (read values):
//
//	accountID := requestcontext.AccountID(ctx)
//
// Usage in middleware (set values):
//
//	ctx = requestcontext.WithAccountID(ctx, accountID)
//	ctx = requestcontext.WithRequestID(ctx, requestID)
package requestcontext

import "context"

// Context key types (unexported for encapsulation).
type (
	accountIDKey struct{}
	requestIDKey struct{}
)

// WithAccountID stores the authenticated account id.
func WithAccountID(ctx context.Context, accountID string) context.Context {
	return context.WithValue(ctx, accountIDKey{}, accountID)
}

// AccountID returns the authenticated account id, or "" when unauthenticated.
func AccountID(ctx context.Context) string {
	v, _ := ctx.Value(accountIDKey{}).(string)
	return v
}

// WithRequestID stores the request correlation id.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// RequestID returns the request correlation id, or "" when absent.
func RequestID(ctx context.Context) string {
	v, _ := ctx.Value(requestIDKey{}).(string)
	return v
}
