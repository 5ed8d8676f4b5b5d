package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/quizmaster-backend/internal/model"
)

// AttemptRepository handles finalized quiz attempts.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

// Record inserts the attempt and flips users.quiz_completed in one transaction.
// Replaying the same attempt ID is a no-op.
func (r *AttemptRepository) Record(ctx context.Context, a *model.Attempt) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO quiz_attempts (id, user_id, reason, score, attempted, total, finished_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 ON CONFLICT (id) DO NOTHING`,
			a.ID, a.UserID, a.Reason, a.Score, a.Attempted, a.Total, a.FinishedAt,
		)
		if err != nil {
			return fmt.Errorf("insert attempt: %w", err)
		}

		tag, err := tx.Exec(ctx,
			`UPDATE users SET quiz_completed = TRUE, updated_at = NOW() WHERE id = $1`, a.UserID)
		if err != nil {
			return fmt.Errorf("update quiz_completed: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrUserNotFound
		}
		return nil
	})
}

// ListByUser returns the user's attempts, newest first.
func (r *AttemptRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]model.Attempt, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, reason, score, attempted, total, finished_at
		 FROM quiz_attempts WHERE user_id = $1
		 ORDER BY finished_at DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attempts []model.Attempt
	for rows.Next() {
		var a model.Attempt
		if err := rows.Scan(&a.ID, &a.UserID, &a.Reason, &a.Score, &a.Attempted, &a.Total, &a.FinishedAt); err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}
