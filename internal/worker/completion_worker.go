package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/quizmaster-backend/internal/config"
	"github.com/stemsi/quizmaster-backend/internal/model"
	"github.com/stemsi/quizmaster-backend/internal/quiz"
	"github.com/stemsi/quizmaster-backend/internal/report"
)

// CompletionPollTimeout bounds each BLPop so shutdown is noticed promptly.
const CompletionPollTimeout = time.Second

// AttemptWriter persists one finalized attempt.
type AttemptWriter interface {
	Record(ctx context.Context, a *model.Attempt) error
}

// CompletionWorker consumes persist_completions_queue and writes attempts to
// PostgreSQL. Finalization never waits on the database.
type CompletionWorker struct {
	writer     AttemptWriter
	rdb        *redis.Client
	log        zerolog.Logger
	retryDelay time.Duration
}

// NewCompletionWorker creates a new CompletionWorker.
func NewCompletionWorker(writer AttemptWriter, rdb *redis.Client, log zerolog.Logger) *CompletionWorker {
	return &CompletionWorker{
		writer:     writer,
		rdb:        rdb,
		log:        log.With().Str("component", "completion_worker").Logger(),
		retryDelay: 5 * time.Second,
	}
}

type completionPayload struct {
	AttemptID  string    `json:"attempt_id"`
	UserID     string    `json:"user_id"`
	Reason     string    `json:"reason"`
	Score      int       `json:"score"`
	Attempted  int       `json:"attempted"`
	Total      int       `json:"total"`
	FinishedAt time.Time `json:"finished_at"`
}

// RecordCompletion scores the result and queues it for persistence.
func (w *CompletionWorker) RecordCompletion(ctx context.Context, userID string, r quiz.Result) error {
	rep := report.Build(r)
	raw, err := json.Marshal(completionPayload{
		AttemptID:  uuid.NewString(),
		UserID:     userID,
		Reason:     string(r.Reason),
		Score:      rep.Score,
		Attempted:  rep.Attempted,
		Total:      rep.Total,
		FinishedAt: r.FinishedAt,
	})
	if err != nil {
		return err
	}
	return w.rdb.RPush(ctx, config.WorkerKey.PersistCompletionsQueue, raw).Err()
}

// Start begins the infinite worker loop. Call in a goroutine.
func (w *CompletionWorker) Start(ctx context.Context) {
	w.log.Info().Msg("Worker started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopping...")
			// Drain remaining items before exit.
			w.drain(context.Background())
			w.log.Info().Msg("Worker stopped")
			return
		default:
			w.processNext(ctx)
		}
	}
}

func (w *CompletionWorker) processNext(ctx context.Context) {
	result, err := w.rdb.BLPop(ctx, CompletionPollTimeout, config.WorkerKey.PersistCompletionsQueue).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
			w.log.Error().Err(err).Msg("BLPop error")
		}
		return
	}
	if len(result) < 2 {
		return
	}

	if err := w.persist(ctx, result[1]); err != nil {
		w.log.Error().Err(err).Msg("Persist error, requeueing")
		// Push back to queue for retry.
		w.rdb.RPush(context.WithoutCancel(ctx), config.WorkerKey.PersistCompletionsQueue, result[1])
		select {
		case <-ctx.Done():
		case <-time.After(w.retryDelay):
		}
	}
}

func (w *CompletionWorker) persist(ctx context.Context, raw string) error {
	var p completionPayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		// Unparseable entries are dropped, never retried.
		w.log.Error().Err(err).Msg("Unmarshal error")
		return nil
	}
	attemptID, err := uuid.Parse(p.AttemptID)
	if err != nil {
		w.log.Error().Err(err).Msg("Invalid attempt id")
		return nil
	}
	userID, err := uuid.Parse(p.UserID)
	if err != nil {
		w.log.Error().Err(err).Str("user_id", p.UserID).Msg("Invalid user id")
		return nil
	}

	if err := w.writer.Record(ctx, &model.Attempt{
		ID:         attemptID,
		UserID:     userID,
		Reason:     p.Reason,
		Score:      p.Score,
		Attempted:  p.Attempted,
		Total:      p.Total,
		FinishedAt: p.FinishedAt,
	}); err != nil {
		return fmt.Errorf("record attempt %s: %w", p.AttemptID, err)
	}

	w.log.Info().
		Str("user_id", p.UserID).
		Str("reason", p.Reason).
		Int("score", p.Score).
		Int("total", p.Total).
		Msg("Attempt persisted")
	return nil
}

// drain processes all remaining items in the queue before shutdown.
func (w *CompletionWorker) drain(ctx context.Context) {
	drained := 0
	for {
		raw, err := w.rdb.LPop(ctx, config.WorkerKey.PersistCompletionsQueue).Result()
		if err != nil {
			break
		}
		if err := w.persist(ctx, raw); err != nil {
			w.log.Error().Err(err).Msg("Drain persist error")
			w.rdb.RPush(ctx, config.WorkerKey.PersistCompletionsQueue, raw)
			break
		}
		drained++
	}

	if drained > 0 {
		w.log.Info().Int("count", drained).Msg("Drained remaining items")
	}
}
