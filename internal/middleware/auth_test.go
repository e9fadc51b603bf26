package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/equalsplit/internal/apperr"
	"github.com/mmynk/equalsplit/internal/auth"
)

const testSecret = "test-secret-at-least-16"

func TestAuthenticate(t *testing.T) {
	manager := auth.NewJWTManager(testSecret, time.Hour)
	token, err := manager.Generate(auth.Identity{UserID: "alice", Email: "alice@example.com", Name: "Alice"})
	require.NoError(t, err)

	var gotErr error
	onError := func(w http.ResponseWriter, _ *http.Request, err error) {
		gotErr = err
		w.WriteHeader(http.StatusUnauthorized)
	}

	var seen context.Context
	handler := Authenticate(manager, onError)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Context()
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{name: "valid token", header: "Bearer " + token, want: http.StatusNoContent},
		{name: "lower-case scheme", header: "bearer " + token, want: http.StatusNoContent},
		{name: "missing header", header: "", want: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic " + token, want: http.StatusUnauthorized},
		{name: "garbage token", header: "Bearer abc.def.ghi", want: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotErr, seen = nil, nil
			req := httptest.NewRequest(http.MethodGet, "/api/groups", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.want, rec.Code)
			if tt.want != http.StatusNoContent {
				assert.True(t, errors.Is(gotErr, apperr.ErrUnauthenticated))
				assert.Nil(t, seen)
				return
			}
			require.NotNil(t, seen)
			assert.Equal(t, "alice", GetUserID(seen))
			assert.Equal(t, "alice@example.com", GetEmail(seen))
			assert.Equal(t, "Alice", GetName(seen))
		})
	}
}

func TestAuthenticate_RejectsOtherSecret(t *testing.T) {
	issuer := auth.NewJWTManager("another-secret-value-123", time.Hour)
	token, err := issuer.Generate(auth.Identity{UserID: "mallory"})
	require.NoError(t, err)

	_, err = authenticate(auth.NewJWTManager(testSecret, time.Hour), "Bearer "+token)
	assert.ErrorIs(t, err, apperr.ErrUnauthenticated)
}

func TestGetters_EmptyContext(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, GetUserID(ctx))
	assert.Empty(t, GetEmail(ctx))
	assert.Empty(t, GetName(ctx))
}
