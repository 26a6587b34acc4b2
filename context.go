package streamlock

import "context"

type contextKey string

const callerKey contextKey = "streamlock:caller"

// WithCaller returns a context carrying the authenticated caller account.
// Every mutating operation reads its identity from the context; a context
// without a caller is rejected with ErrNoCaller.
func WithCaller(ctx context.Context, account string) context.Context {
	return context.WithValue(ctx, callerKey, account)
}

// CallerFromContext extracts the caller account set by WithCaller.
func CallerFromContext(ctx context.Context) (string, bool) {
	account, ok := ctx.Value(callerKey).(string)
	if !ok || account == "" {
		return "", false
	}
	return account, true
}
