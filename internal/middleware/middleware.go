package middleware

import (
	"context"
	"errors"
	"net/http"

	"laikostar/internal/logging"
)

type contextKey string

const UserContextKey contextKey = "username"

var ErrNoUser = errors.New("user not found in context")

func WithUser(ctx context.Context, username string) context.Context {
	return context.WithValue(ctx, UserContextKey, username)
}

func UserFromContext(ctx context.Context) string {
	username, _ := ctx.Value(UserContextKey).(string)
	return username
}

func ExtractUserFromContext(r *http.Request) (string, error) {
	username := UserFromContext(r.Context())
	if username == "" {
		logging.Logg.Error("User not found in context")
		return "", ErrNoUser
	}
	return username, nil
}
