package shared

import (
	"context"
	"strconv"
)

type sessionContextKey struct{}

type accountContextKey struct{}

// ContextWithSession stores the session in context.
func ContextWithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, sess)
}

// SessionFromContext extracts the session from context.
func SessionFromContext(ctx context.Context) *Session {
	sess, _ := ctx.Value(sessionContextKey{}).(*Session)
	return sess
}

// ContextWithAccount stores the authenticated account id in context.
func ContextWithAccount(ctx context.Context, accountID int64) context.Context {
	return context.WithValue(ctx, accountContextKey{}, accountID)
}

// AccountFromContext returns the authenticated account id, or 0 when the
// request carries no authenticated session.
func AccountFromContext(ctx context.Context) int64 {
	id, _ := ctx.Value(accountContextKey{}).(int64)
	return id
}

// AccountFromSession parses the account id stored on a session.
func AccountFromSession(sess *Session) int64 {
	if sess == nil || sess.User() == "" {
		return 0
	}
	id, err := strconv.ParseInt(sess.User(), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
