package shared

import "context"

type sessionContextKey struct{}

// ContextWithSession attaches the request session to the context. The app
// middleware calls this once per request before handlers run.
func ContextWithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, sess)
}

// SessionFromContext returns the request session, nil when the request never
// passed through the session middleware.
func SessionFromContext(ctx context.Context) *Session {
	sess, _ := ctx.Value(sessionContextKey{}).(*Session)
	return sess
}
