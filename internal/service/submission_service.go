package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/tara/internal/model"
)

// maxResponseBody caps how much of an external API response is read.
const maxResponseBody = 1 << 20

// APIError is a non-2xx answer from an external API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

// Retryable reports whether the same request may succeed later.
func (e *APIError) Retryable() bool {
	return e.Status >= 500 || e.Status == http.StatusTooManyRequests || e.Status == http.StatusRequestTimeout
}

// SubmissionService posts results to the Results API.
type SubmissionService struct {
	baseURL string
	token   string
	client  *http.Client
	log     zerolog.Logger
}

// NewSubmissionService creates a new SubmissionService.
func NewSubmissionService(baseURL, token string, timeout time.Duration, log zerolog.Logger) *SubmissionService {
	return &SubmissionService{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: timeout},
		log:     log.With().Str("component", "submission_service").Logger(),
	}
}

// Submit posts payload with the service token.
func (s *SubmissionService) Submit(ctx context.Context, payload *model.ResultPayload) (*model.ResultReceipt, error) {
	return s.post(ctx, payload, "")
}

// ForCookie returns a submitter that authenticates as the user owning cookie.
func (s *SubmissionService) ForCookie(cookie string) *CookieSubmitter {
	return &CookieSubmitter{svc: s, cookie: cookie}
}

// CookieSubmitter submits on behalf of one signed-in user.
type CookieSubmitter struct {
	svc    *SubmissionService
	cookie string
}

func (c *CookieSubmitter) Submit(ctx context.Context, payload *model.ResultPayload) (*model.ResultReceipt, error) {
	return c.svc.post(ctx, payload, c.cookie)
}

func (s *SubmissionService) post(ctx context.Context, payload *model.ResultPayload, cookie string) (*model.ResultReceipt, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/test-results/submit", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build submit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if cookie != "" {
		req.Header.Set("Cookie", cookie)
	}
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("submit result: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("read submit response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, decodeAPIError(resp.StatusCode, raw)
	}

	var receipt model.ResultReceipt
	if err := json.Unmarshal(raw, &receipt); err != nil {
		return nil, fmt.Errorf("decode submit response: %w", err)
	}

	s.log.Info().
		Str("result_id", receipt.ID).
		Str("session_id", payload.SessionID).
		Float64("score", receipt.Score).
		Msg("Result accepted")
	return &receipt, nil
}

func decodeAPIError(status int, raw []byte) *APIError {
	var body struct {
		Message string `json:"message"`
	}
	_ = json.Unmarshal(raw, &body)
	if body.Message == "" {
		body.Message = http.StatusText(status)
	}
	return &APIError{Status: status, Message: body.Message}
}
