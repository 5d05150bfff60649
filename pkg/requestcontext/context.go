// Package requestcontext provides HTTP-independent context accessors for
// request-scoped values.
//
// Middleware sets the authenticated caller and the request time; services read
// them without importing net/http. The request time doubles as the engine's
// trusted time source: every precondition in one operation sees the same
// instant, and tests inject fixed times with WithTime.
package requestcontext

import (
	"context"
	"time"

	id "capcall/pkg/domain"
)

type (
	callerKey      struct{}
	requestIDKey   struct{}
	requestTimeKey struct{}
)

// Exported context keys for tests that need raw context.WithValue.
var (
	ContextKeyCaller      = callerKey{}
	ContextKeyRequestID   = requestIDKey{}
	ContextKeyRequestTime = requestTimeKey{}
)

// Caller retrieves the authenticated party from the context.
// Returns the zero value if not set.
func Caller(ctx context.Context) id.PartyID {
	if p, ok := ctx.Value(ContextKeyCaller).(id.PartyID); ok {
		return p
	}
	return id.PartyID{}
}

// WithCaller injects the authenticated party into the context.
func WithCaller(ctx context.Context, party id.PartyID) context.Context {
	return context.WithValue(ctx, ContextKeyCaller, party)
}

// RequestID retrieves the request ID from the context.
func RequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return reqID
	}
	return ""
}

// WithRequestID injects a request ID into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// Now retrieves the request-scoped time from context.
// Falls back to time.Now() for non-HTTP contexts (workers, CLI).
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(ContextKeyRequestTime).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a specific time into a context. Used by the request-time
// middleware and by service tests that drive the fundraising window.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, ContextKeyRequestTime, t)
}
