package auth

import (
	"context"

	"github.com/matheus3301/smartcart/internal/model"
)

type ctxKey struct{}

// WithUser returns a context carrying the authenticated user id.
func WithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, userID)
}

// UserFrom returns the user id stored by WithUser.
func UserFrom(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ctxKey{}).(string)
	return id, ok && id != ""
}

// RequireUser is UserFrom reporting model.ErrNotAuthenticated when absent.
func RequireUser(ctx context.Context) (string, error) {
	id, ok := UserFrom(ctx)
	if !ok {
		return "", model.ErrNotAuthenticated
	}
	return id, nil
}
