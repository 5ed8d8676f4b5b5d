package service

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/quizmaster-backend/internal/config"
	"golang.org/x/crypto/blake2b"
)

// ErrGeneration wraps any failure of the text-generation backend.
var ErrGeneration = errors.New("explanation generation failed")

// Generator turns a prompt into prose.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// ExplainService builds the tutoring prompt, caches answers in Redis and
// caps concurrent generator calls.
type ExplainService struct {
	gen      Generator
	rdb      *redis.Client
	ttl      time.Duration
	wait     time.Duration
	rateChan chan struct{} // Token bucket
	log      zerolog.Logger
}

// NewExplainService creates a new ExplainService. rdb may be nil to disable
// caching.
func NewExplainService(cfg *config.Config, gen Generator, rdb *redis.Client, log zerolog.Logger) *ExplainService {
	n := cfg.GeminiConcurrentReqs
	if n <= 0 {
		n = 1
	}
	rateChan := make(chan struct{}, n)
	for i := 0; i < n; i++ {
		rateChan <- struct{}{}
	}
	return &ExplainService{
		gen:      gen,
		rdb:      rdb,
		ttl:      cfg.ExplanationCacheTTL,
		wait:     cfg.ExplanationReqTimeout,
		rateChan: rateChan,
		log:      log.With().Str("component", "explain_service").Logger(),
	}
}

// BuildPrompt is the fixed tutoring prompt.
func BuildPrompt(question, correctAnswer string) string {
	return fmt.Sprintf(`Act as a helpful tutor. Explain in 2 sentences why "%s" is the correct answer to: "%s".`, correctAnswer, question)
}

// Explain returns a short explanation of why correctAnswer answers question.
func (s *ExplainService) Explain(ctx context.Context, question, correctAnswer string) (string, error) {
	key := config.CacheKey.ExplanationKey(digest(question, correctAnswer))

	if s.rdb != nil {
		cached, err := s.rdb.Get(ctx, key).Result()
		switch {
		case err == nil && cached != "":
			return cached, nil
		case err != nil && !errors.Is(err, redis.Nil):
			s.log.Warn().Err(err).Msg("Explanation cache read failed")
		}
	}

	if err := s.acquireRate(ctx); err != nil {
		return "", fmt.Errorf("%w: %v", ErrGeneration, err)
	}
	defer s.releaseRate()

	genCtx := ctx
	if s.wait > 0 {
		var cancel context.CancelFunc
		genCtx, cancel = context.WithTimeout(ctx, s.wait)
		defer cancel()
	}

	text, err := s.gen.Generate(genCtx, BuildPrompt(question, correctAnswer))
	if err != nil {
		s.log.Error().Err(err).Msg("Explanation generation failed")
		return "", fmt.Errorf("%w: %v", ErrGeneration, err)
	}

	if s.rdb != nil {
		if err := s.rdb.Set(ctx, key, text, s.ttl).Err(); err != nil {
			s.log.Warn().Err(err).Msg("Explanation cache write failed")
		}
	}
	return text, nil
}

// acquireRate blocks until a generation slot is available.
func (s *ExplainService) acquireRate(ctx context.Context) error {
	select {
	case <-s.rateChan:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *ExplainService) releaseRate() {
	s.rateChan <- struct{}{}
}

func digest(question, correctAnswer string) string {
	h, _ := blake2b.New256(nil)
	h.Write([]byte(question))
	h.Write([]byte{0})
	h.Write([]byte(correctAnswer))
	return hex.EncodeToString(h.Sum(nil))
}
