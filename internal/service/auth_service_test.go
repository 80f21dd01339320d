package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newAuthServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/auth/check-login", r.URL.Path)
		require.Equal(t, "sid=abc", r.Header.Get("Cookie"))
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestCheckLogin(t *testing.T) {
	srv := newAuthServer(t, http.StatusOK, `{"authenticated":true,"user":{"id":"u-1","name":"Ada","email":"ada@example.com"}}`)
	svc := NewAuthService(srv.URL, time.Second, zerolog.Nop())

	user, err := svc.CheckLogin(context.Background(), "sid=abc")
	require.NoError(t, err)
	require.Equal(t, "u-1", user.ID)
	require.Equal(t, "Ada", user.Name)
}

func TestCheckLoginRejects(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{name: "unauthorized", status: http.StatusUnauthorized, body: `{"message":"login required"}`},
		{name: "not authenticated", status: http.StatusOK, body: `{"authenticated":false}`},
		{name: "no user", status: http.StatusOK, body: `{"authenticated":true}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newAuthServer(t, tt.status, tt.body)
			svc := NewAuthService(srv.URL, time.Second, zerolog.Nop())

			_, err := svc.CheckLogin(context.Background(), "sid=abc")
			require.ErrorIs(t, err, ErrUnauthenticated)
		})
	}
}

func TestCheckLoginWithoutCookie(t *testing.T) {
	svc := NewAuthService("http://127.0.0.1:1", time.Second, zerolog.Nop())
	_, err := svc.CheckLogin(context.Background(), "")
	require.ErrorIs(t, err, ErrUnauthenticated)
}

func TestCheckLoginServerError(t *testing.T) {
	srv := newAuthServer(t, http.StatusInternalServerError, `{"message":"boom"}`)
	svc := NewAuthService(srv.URL, time.Second, zerolog.Nop())

	_, err := svc.CheckLogin(context.Background(), "sid=abc")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, "boom", apiErr.Message)
}
