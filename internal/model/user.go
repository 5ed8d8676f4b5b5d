package model

import (
	"time"

	"github.com/google/uuid"
)

// User is the single persisted record: one row per distinct email.
type User struct {
	ID            uuid.UUID `json:"id"`
	Email         string    `json:"email"`
	QuizCompleted bool      `json:"quiz_completed"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// StartRequest is the payload for POST /api/start.
type StartRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// StartResponse is returned on a successful start.
type StartResponse struct {
	Token string `json:"token"`
	Email string `json:"email"`
}

// ExplainRequest is the payload for POST /api/explain.
type ExplainRequest struct {
	Question      string `json:"question" binding:"required"`
	CorrectAnswer string `json:"correctAnswer" binding:"required"`
}

// ExplainResponse carries the generated explanation.
type ExplainResponse struct {
	Explanation string `json:"explanation"`
}

// MessageResponse is a plain acknowledgement.
type MessageResponse struct {
	Message string `json:"message"`
}

// Attempt is one finalized quiz, written by the completion worker.
type Attempt struct {
	ID         uuid.UUID `json:"id"`
	UserID     uuid.UUID `json:"user_id"`
	Reason     string    `json:"reason"`
	Score      int       `json:"score"`
	Attempted  int       `json:"attempted"`
	Total      int       `json:"total"`
	FinishedAt time.Time `json:"finished_at"`
}
