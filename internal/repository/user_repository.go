package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/quizmaster-backend/internal/model"
)

var ErrUserNotFound = errors.New("user not found")

// UserRepository handles user data access.
type UserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

// FindOrCreateByEmail returns the user for email, inserting it on first use.
// Concurrent first uses of the same email converge on one row.
func (r *UserRepository) FindOrCreateByEmail(ctx context.Context, email string) (*model.User, error) {
	u := &model.User{}
	err := r.pool.QueryRow(ctx,
		`INSERT INTO users (id, email) VALUES ($1, $2)
		 ON CONFLICT (email) DO UPDATE SET updated_at = users.updated_at
		 RETURNING id, email, quiz_completed, created_at, updated_at`,
		uuid.New(), email,
	).Scan(&u.ID, &u.Email, &u.QuizCompleted, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("upsert user: %w", err)
	}
	return u, nil
}
