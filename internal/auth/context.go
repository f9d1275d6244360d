// ABOUTME: Request-scoped identity of the authenticated chat user
// ABOUTME: The HTTP middleware stores a Caller; handlers read it back

package auth

import "context"

// Caller is the user a verified token resolved to.
type Caller struct {
	UserID string
	Name   string
}

type callerKey struct{}

// WithCaller attaches the caller to ctx.
func WithCaller(ctx context.Context, c *Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, c)
}

// CallerFrom returns the caller stored in ctx, or nil for unauthenticated requests.
func CallerFrom(ctx context.Context) *Caller {
	c, _ := ctx.Value(callerKey{}).(*Caller)
	return c
}

// MustCaller is CallerFrom for handlers mounted behind HTTPAuthMiddleware.
// A missing caller is a wiring bug and panics.
func MustCaller(ctx context.Context) *Caller {
	c := CallerFrom(ctx)
	if c == nil {
		panic("auth: no caller in context; handler is not behind HTTPAuthMiddleware")
	}
	return c
}
