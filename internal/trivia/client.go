package trivia

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/stemsi/quizmaster-backend/internal/quiz"
)

// Response codes of the trivia API.
const (
	codeSuccess     = 0
	codeNoResults   = 1
	codeInvalidArg  = 2
	codeRateLimited = 5
)

var (
	ErrNoResults   = errors.New("trivia: not enough questions available")
	ErrInvalidArgs = errors.New("trivia: invalid request parameters")
	ErrRateLimited = errors.New("trivia: rate limited")
	ErrUpstream    = errors.New("trivia: upstream failure")
)

type apiQuestion struct {
	Question         string   `json:"question"`
	CorrectAnswer    string   `json:"correct_answer"`
	IncorrectAnswers []string `json:"incorrect_answers"`
}

type apiResponse struct {
	ResponseCode int           `json:"response_code"`
	Results      []apiQuestion `json:"results"`
}

// Client fetches multiple-choice batches from an Open Trivia DB compatible
// endpoint.
type Client struct {
	baseURL  string
	http     *http.Client
	retries  uint64
	interval time.Duration
	log      zerolog.Logger
}

// Options tunes a Client. Zero values take defaults.
type Options struct {
	HTTPClient *http.Client
	Retries    int
	Interval   time.Duration
}

// NewClient returns a client for baseURL, e.g. https://opentdb.com/api.php.
func NewClient(baseURL string, opts Options, log zerolog.Logger) *Client {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.Interval <= 0 {
		opts.Interval = 1500 * time.Millisecond
	}
	return &Client{
		baseURL:  baseURL,
		http:     opts.HTTPClient,
		retries:  uint64(opts.Retries),
		interval: opts.Interval,
		log:      log.With().Str("component", "trivia_client").Logger(),
	}
}

// FetchBatch implements quiz.Provider. Transient failures (network errors,
// 5xx, rate limiting) are retried with backoff; anything else fails at once.
func (c *Client) FetchBatch(ctx context.Context, amount int) ([]quiz.RawQuestion, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.interval
	b.MaxElapsedTime = 0

	var out []quiz.RawQuestion
	attempt := 0
	op := func() error {
		attempt++
		qs, err := c.fetchOnce(ctx, amount)
		if err != nil {
			if !retryable(err) {
				return backoff.Permanent(err)
			}
			c.log.Warn().Err(err).Int("attempt", attempt).Msg("Trivia fetch failed, retrying")
			return err
		}
		out = qs
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(b, c.retries), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) fetchOnce(ctx context.Context, amount int) ([]quiz.RawQuestion, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse trivia url: %w", err)
	}
	q := u.Query()
	q.Set("amount", strconv.Itoa(amount))
	q.Set("type", "multiple")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, ErrRateLimited
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: status %d", ErrUpstream, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("trivia: unexpected status %d", resp.StatusCode)
	}

	var body apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode trivia response: %w", err)
	}

	switch body.ResponseCode {
	case codeSuccess:
	case codeNoResults:
		return nil, ErrNoResults
	case codeInvalidArg:
		return nil, ErrInvalidArgs
	case codeRateLimited:
		return nil, ErrRateLimited
	default:
		return nil, fmt.Errorf("trivia: response code %d", body.ResponseCode)
	}

	out := make([]quiz.RawQuestion, 0, len(body.Results))
	for _, r := range body.Results {
		out = append(out, quiz.RawQuestion{
			Text:      r.Question,
			Correct:   r.CorrectAnswer,
			Incorrect: r.IncorrectAnswers,
		})
	}
	return out, nil
}

func retryable(err error) bool {
	return errors.Is(err, ErrUpstream) || errors.Is(err, ErrRateLimited)
}
