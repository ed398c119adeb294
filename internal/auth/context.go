package auth

import (
	"context"

	"github.com/opencore-ai/opencore/pkg/models"
)

type contextKey struct{}

// WithUser stores the authenticated user on the context.
func WithUser(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, contextKey{}, user)
}

// UserFrom returns the request's user, falling back to LocalUser.
func UserFrom(ctx context.Context) *models.User {
	if user, ok := ctx.Value(contextKey{}).(*models.User); ok && user != nil {
		return user
	}
	return LocalUser
}
