// Package apiclient is a typed client for the quiz HTTP API. The terminal
// client drives a whole attempt through it.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/stemsi/quizmaster-backend/internal/model"
	"github.com/stemsi/quizmaster-backend/internal/quiz"
	"github.com/stemsi/quizmaster-backend/internal/report"
	"github.com/stemsi/quizmaster-backend/internal/response"
)

var (
	// ErrUpstream is returned for 5xx responses.
	ErrUpstream = errors.New("apiclient: server error")
	// ErrNoToken means a protected call was made before Start.
	ErrNoToken = errors.New("apiclient: no token, call Start first")
)

// APIError is a decoded error envelope.
type APIError struct {
	Status  int
	Code    response.ErrCode
	Message string
	Details string
}

func (e *APIError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Client talks to one server. It is safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client

	mu    sync.RWMutex
	token string
}

// New returns a client for baseURL, e.g. http://localhost:5000.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 40 * time.Second}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

// Token returns the credential issued by Start.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// SetToken installs a credential obtained elsewhere.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// ─── Entry ──────────────────────────────────────────────────────────

// Start exchanges an email for a token and remembers it.
func (c *Client) Start(ctx context.Context, email string) (model.StartResponse, error) {
	var out model.StartResponse
	if err := c.do(ctx, http.MethodPost, "/api/start", model.StartRequest{Email: email}, &out, false); err != nil {
		return out, err
	}
	c.SetToken(out.Token)
	return out, nil
}

// Explain implements report.Explainer over POST /api/explain.
func (c *Client) Explain(ctx context.Context, question, correctAnswer string) (string, error) {
	var out model.ExplainResponse
	err := c.do(ctx, http.MethodPost, "/api/explain", model.ExplainRequest{Question: question, CorrectAnswer: correctAnswer}, &out, true)
	return out.Explanation, err
}

// SubmitResults calls POST /api/submit.
func (c *Client) SubmitResults(ctx context.Context) (string, error) {
	var out model.MessageResponse
	err := c.do(ctx, http.MethodPost, "/api/submit", struct{}{}, &out, true)
	return out.Message, err
}

// ─── Session ────────────────────────────────────────────────────────

func (c *Client) StartSession(ctx context.Context) (model.SessionView, error) {
	return c.view(ctx, http.MethodPost, "/api/quiz/session", nil)
}

func (c *Client) Session(ctx context.Context) (model.SessionView, error) {
	return c.view(ctx, http.MethodGet, "/api/quiz/session", nil)
}

func (c *Client) Retry(ctx context.Context) (model.SessionView, error) {
	return c.view(ctx, http.MethodPost, "/api/quiz/session/retry", nil)
}

func (c *Client) GoTo(ctx context.Context, index int) (model.SessionView, error) {
	return c.view(ctx, http.MethodPost, "/api/quiz/session/goto", model.GotoRequest{Index: &index})
}

func (c *Client) Next(ctx context.Context) (model.SessionView, error) {
	return c.view(ctx, http.MethodPost, "/api/quiz/session/next", nil)
}

func (c *Client) Prev(ctx context.Context) (model.SessionView, error) {
	return c.view(ctx, http.MethodPost, "/api/quiz/session/prev", nil)
}

// Answer toggles option on the current question.
func (c *Client) Answer(ctx context.Context, option string) (model.SessionView, error) {
	return c.view(ctx, http.MethodPost, "/api/quiz/session/answer", model.AnswerRequest{Option: option})
}

func (c *Client) ToggleReview(ctx context.Context) (model.SessionView, error) {
	return c.view(ctx, http.MethodPost, "/api/quiz/session/review", nil)
}

func (c *Client) Summary(ctx context.Context) (quiz.SubmitSummary, error) {
	var out quiz.SubmitSummary
	err := c.do(ctx, http.MethodGet, "/api/quiz/session/summary", nil, &out, true)
	return out, err
}

// Finish submits the attempt.
func (c *Client) Finish(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/quiz/session/submit", nil, nil, true)
}

// ─── Report ─────────────────────────────────────────────────────────

func (c *Client) Report(ctx context.Context) (report.Report, error) {
	var out report.Report
	err := c.do(ctx, http.MethodGet, "/api/quiz/report", nil, &out, true)
	return out, err
}

func (c *Client) Attempts(ctx context.Context) ([]model.Attempt, error) {
	var out []model.Attempt
	err := c.do(ctx, http.MethodGet, "/api/quiz/attempts", nil, &out, true)
	return out, err
}

// ─── Transport ──────────────────────────────────────────────────────

func (c *Client) view(ctx context.Context, method, path string, body any) (model.SessionView, error) {
	var out model.SessionView
	err := c.do(ctx, method, path, body, &out, true)
	return out, err
}

type envelope struct {
	Data  json.RawMessage     `json:"data"`
	Error *response.ErrorBody `json:"error"`
}

func (c *Client) do(ctx context.Context, method, path string, body, out any, auth bool) error {
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth {
		token := c.Token()
		if token == "" {
			return ErrNoToken
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	var env envelope
	decodeErr := json.NewDecoder(resp.Body).Decode(&env)

	if resp.StatusCode >= 400 {
		apiErr := &APIError{Status: resp.StatusCode, Message: resp.Status}
		if decodeErr == nil && env.Error != nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
			apiErr.Details = env.Error.Details
		}
		switch {
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return fmt.Errorf("%w: %w", report.ErrUnauthorized, apiErr)
		case resp.StatusCode >= 500:
			return fmt.Errorf("%w: %w", ErrUpstream, apiErr)
		default:
			return apiErr
		}
	}
	if decodeErr != nil {
		return fmt.Errorf("decode %s: %w", path, decodeErr)
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	return json.Unmarshal(env.Data, out)
}
