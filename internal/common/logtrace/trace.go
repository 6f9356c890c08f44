package logtrace

import (
	"context"

	"github.com/rs/zerolog"
)

type ctxKey int

const sessionIDKey ctxKey = iota

// WithSessionID returns a context carrying the upload session id.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionIDKey, id)
}

// SessionIDFromContext extracts the upload session id from the context.
// Returns an empty string if the context is nil or carries no id.
func SessionIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, ok := ctx.Value(sessionIDKey).(string)
	if !ok {
		return ""
	}
	return id
}

// Ctx returns l with the session id of ctx attached, if there is one.
func Ctx(ctx context.Context, l zerolog.Logger) zerolog.Logger {
	if id := SessionIDFromContext(ctx); id != "" {
		return l.With().Str("upload_session", id).Logger()
	}
	return l
}
