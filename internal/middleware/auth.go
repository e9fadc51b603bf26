// Package middleware holds the authentication and logging layers shared by
// the REST router and the Connect handlers.
package middleware

import (
	"context"
	"net/http"

	"connectrpc.com/connect"

	"github.com/mmynk/equalsplit/internal/apperr"
	"github.com/mmynk/equalsplit/internal/auth"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	// UserIDKey is the context key for storing the authenticated user ID.
	UserIDKey contextKey = "user_id"
	// EmailKey is the context key for storing the authenticated user's email.
	EmailKey contextKey = "email"
	// NameKey is the context key for the display name carried by the token.
	NameKey contextKey = "name"
)

// GetUserID extracts the user ID from the context.
// Returns empty string if not found.
func GetUserID(ctx context.Context) string {
	userID, _ := ctx.Value(UserIDKey).(string)
	return userID
}

// GetEmail extracts the user email from the context.
// Returns empty string if not found.
func GetEmail(ctx context.Context) string {
	email, _ := ctx.Value(EmailKey).(string)
	return email
}

// GetName extracts the display name from the context.
func GetName(ctx context.Context) string {
	name, _ := ctx.Value(NameKey).(string)
	return name
}

// WithIdentity stores id in ctx for the Get helpers.
func WithIdentity(ctx context.Context, id *auth.Identity) context.Context {
	ctx = context.WithValue(ctx, UserIDKey, id.UserID)
	ctx = context.WithValue(ctx, EmailKey, id.Email)
	return context.WithValue(ctx, NameKey, id.Name)
}

// authenticate validates the Authorization header value. The returned error
// is always apperr.ErrUnauthenticated with the reason as detail.
func authenticate(jwtManager *auth.JWTManager, header string) (*auth.Identity, error) {
	token, err := auth.ParseBearer(header)
	if err != nil {
		return nil, apperr.Newf(apperr.ErrUnauthenticated, "%v", err)
	}
	id, err := jwtManager.Validate(token)
	if err != nil {
		return nil, apperr.Newf(apperr.ErrUnauthenticated, "%v", err)
	}
	return id, nil
}

// RequireAuth returns a Connect interceptor that validates the bearer token
// and adds the caller's identity to the request context.
func RequireAuth(jwtManager *auth.JWTManager) connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			id, err := authenticate(jwtManager, req.Header().Get("Authorization"))
			if err != nil {
				return nil, connect.NewError(connect.CodeUnauthenticated, err)
			}
			return next(WithIdentity(ctx, id), req)
		}
	}
}

// Authenticate is the net/http equivalent of RequireAuth. Requests without
// a valid token are handed to onError and never reach next.
func Authenticate(jwtManager *auth.JWTManager, onError func(http.ResponseWriter, *http.Request, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := authenticate(jwtManager, r.Header.Get("Authorization"))
			if err != nil {
				onError(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}
