package shared

import (
	"context"
	"crypto/rand"
	"encoding/hex"
)

// ContextKey is the key type for values this package stores in a context.
type ContextKey string

const (
	// OwnerIDContextKey is the context key for the authenticated owner ID,
	// set by the owner middleware.
	OwnerIDContextKey ContextKey = "ownerID"

	// TraceIDKey is the key for the trace ID in the request context.
	TraceIDKey ContextKey = "traceID"
)

// traceIDLength is the number of random bytes in a trace ID.
const traceIDLength = 16

// SetTraceID adds a fresh trace ID to the context for correlating logs and
// error responses.
func SetTraceID(ctx context.Context) context.Context {
	b := make([]byte, traceIDLength)
	// rand.Read never fails on supported platforms.
	_, _ = rand.Read(b)
	return context.WithValue(ctx, TraceIDKey, hex.EncodeToString(b))
}

// GetTraceID retrieves the trace ID from the context, or "" if unset.
func GetTraceID(ctx context.Context) string {
	traceID, ok := ctx.Value(TraceIDKey).(string)
	if !ok {
		return ""
	}
	return traceID
}
