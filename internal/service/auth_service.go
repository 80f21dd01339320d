package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/tara/internal/model"
)

// ErrUnauthenticated is returned when the auth API does not recognize the session cookie.
var ErrUnauthenticated = errors.New("not authenticated")

// AuthService asks the external auth API who owns a session cookie.
type AuthService struct {
	baseURL string
	client  *http.Client
	log     zerolog.Logger
}

// NewAuthService creates a new AuthService.
func NewAuthService(baseURL string, timeout time.Duration, log zerolog.Logger) *AuthService {
	return &AuthService{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		log:     log.With().Str("component", "auth_service").Logger(),
	}
}

type checkLoginResponse struct {
	Authenticated bool        `json:"authenticated"`
	User          *model.User `json:"user"`
}

// CheckLogin forwards cookie to GET /auth/check-login and returns the user.
func (s *AuthService) CheckLogin(ctx context.Context, cookie string) (*model.User, error) {
	if cookie == "" {
		return nil, ErrUnauthenticated
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/auth/check-login", nil)
	if err != nil {
		return nil, fmt.Errorf("build check-login request: %w", err)
	}
	req.Header.Set("Cookie", cookie)
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("check login: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("read check-login response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, ErrUnauthenticated
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, decodeAPIError(resp.StatusCode, raw)
	}

	var body checkLoginResponse
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("decode check-login response: %w", err)
	}
	if !body.Authenticated || body.User == nil || body.User.ID == "" {
		return nil, ErrUnauthenticated
	}
	return body.User, nil
}
