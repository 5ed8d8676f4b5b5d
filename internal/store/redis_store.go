package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stemsi/quizmaster-backend/internal/config"
	"github.com/stemsi/quizmaster-backend/internal/quiz"
)

// RedisStore persists one scope's quiz state as independent Redis keys, one
// per field, plus the completed flag.
type RedisStore struct {
	rdb   *redis.Client
	scope string
	ttl   time.Duration
}

// NewRedisStore binds a store to scope. A zero ttl keeps keys forever.
func NewRedisStore(rdb *redis.Client, scope string, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, scope: scope, ttl: ttl}
}

func (s *RedisStore) key(field string) string {
	switch field {
	case fieldQuestions:
		return config.CacheKey.QuizQuestionsKey(s.scope)
	case fieldAnswers:
		return config.CacheKey.QuizAnswersKey(s.scope)
	case fieldVisited:
		return config.CacheKey.QuizVisitedKey(s.scope)
	case fieldReviewed:
		return config.CacheKey.QuizReviewedKey(s.scope)
	case fieldTimeLeft:
		return config.CacheKey.QuizTimeLeftKey(s.scope)
	default:
		return config.CacheKey.QuizCurrentKey(s.scope)
	}
}

func (s *RedisStore) sessionKeys() []string {
	keys := make([]string, len(Fields))
	for i, f := range Fields {
		keys[i] = s.key(f)
	}
	return keys
}

func (s *RedisStore) Load(ctx context.Context) (*quiz.State, error) {
	values, err := s.rdb.MGet(ctx, s.sessionKeys()...).Result()
	if err != nil {
		return nil, fmt.Errorf("load quiz state: %w", err)
	}

	fields := make(map[string][]byte, len(Fields))
	for i, v := range values {
		str, ok := v.(string)
		if !ok {
			continue
		}
		fields[Fields[i]] = []byte(str)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return decodeFields(fields)
}

func (s *RedisStore) Save(ctx context.Context, st *quiz.State) error {
	encoded, err := encodeFields(st)
	if err != nil {
		return err
	}
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for field, raw := range encoded {
			pipe.Set(ctx, s.key(field), raw, s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save quiz state: %w", err)
	}
	return nil
}

func (s *RedisStore) SaveTimeRemaining(ctx context.Context, seconds int) error {
	return s.rdb.Set(ctx, s.key(fieldTimeLeft), strconv.Itoa(seconds), s.ttl).Err()
}

func (s *RedisStore) Completed(ctx context.Context) (bool, error) {
	val, err := s.rdb.Get(ctx, config.CacheKey.QuizCompletedKey(s.scope)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read completed flag: %w", err)
	}
	return val == "true", nil
}

func (s *RedisStore) MarkCompleted(ctx context.Context) error {
	return s.rdb.Set(ctx, config.CacheKey.QuizCompletedKey(s.scope), "true", s.ttl).Err()
}

// Clear removes the per-session keys and keeps the completed flag.
func (s *RedisStore) Clear(ctx context.Context) error {
	return s.rdb.Del(ctx, s.sessionKeys()...).Err()
}

// Reset removes every key of the scope, the completed flag included. A new
// credential starts from a clean slate.
func (s *RedisStore) Reset(ctx context.Context) error {
	keys := append(s.sessionKeys(), config.CacheKey.QuizCompletedKey(s.scope))
	return s.rdb.Del(ctx, keys...).Err()
}
