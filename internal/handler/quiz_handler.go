package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/quizmaster-backend/internal/middleware"
	"github.com/stemsi/quizmaster-backend/internal/model"
	"github.com/stemsi/quizmaster-backend/internal/quiz"
	"github.com/stemsi/quizmaster-backend/internal/report"
	"github.com/stemsi/quizmaster-backend/internal/response"
	"github.com/stemsi/quizmaster-backend/internal/service"
	"github.com/stemsi/quizmaster-backend/internal/validator"
)

// AttemptLister reads the persisted attempt history of a user.
type AttemptLister interface {
	ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]model.Attempt, error)
}

// historyLimit caps GET /api/quiz/attempts.
const historyLimit = 20

// QuizHandler exposes the hosted quiz session and its report.
type QuizHandler struct {
	quizService *service.QuizService
	attempts    AttemptLister
	log         zerolog.Logger
}

// NewQuizHandler creates a new QuizHandler. attempts may be nil, in which
// case the history endpoint returns an empty list.
func NewQuizHandler(quizService *service.QuizService, attempts AttemptLister, log zerolog.Logger) *QuizHandler {
	return &QuizHandler{
		quizService: quizService,
		attempts:    attempts,
		log:         log.With().Str("component", "quiz_handler").Logger(),
	}
}

// StartSession godoc
// POST /api/quiz/session
// Entry guard, then rehydrate or fetch the batch and start the countdown.
func (h *QuizHandler) StartSession(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	view, err := h.quizService.Start(c.Request.Context(), claims.UserID, middleware.GetToken(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, view)
}

// GetSession godoc
// GET /api/quiz/session
func (h *QuizHandler) GetSession(c *gin.Context) {
	h.respondView(c, func(userID string) (model.SessionView, error) {
		return h.quizService.View(userID)
	})
}

// RetryFetch godoc
// POST /api/quiz/session/retry
func (h *QuizHandler) RetryFetch(c *gin.Context) {
	h.respondView(c, func(userID string) (model.SessionView, error) {
		return h.quizService.Retry(c.Request.Context(), userID)
	})
}

// GoTo godoc
// POST /api/quiz/session/goto
func (h *QuizHandler) GoTo(c *gin.Context) {
	var req model.GotoRequest
	if first, fields := validator.Bind(c, &req); fields != nil {
		response.FailValidation(c, first, fields)
		return
	}
	h.respondView(c, func(userID string) (model.SessionView, error) {
		return h.quizService.GoTo(c.Request.Context(), userID, *req.Index)
	})
}

// Next godoc
// POST /api/quiz/session/next
func (h *QuizHandler) Next(c *gin.Context) {
	h.respondView(c, func(userID string) (model.SessionView, error) {
		return h.quizService.Next(c.Request.Context(), userID)
	})
}

// Prev godoc
// POST /api/quiz/session/prev
func (h *QuizHandler) Prev(c *gin.Context) {
	h.respondView(c, func(userID string) (model.SessionView, error) {
		return h.quizService.Prev(c.Request.Context(), userID)
	})
}

// Answer godoc
// POST /api/quiz/session/answer
// Toggles the option on the current question.
func (h *QuizHandler) Answer(c *gin.Context) {
	var req model.AnswerRequest
	if first, fields := validator.Bind(c, &req); fields != nil {
		response.FailValidation(c, first, fields)
		return
	}
	h.respondView(c, func(userID string) (model.SessionView, error) {
		return h.quizService.Answer(c.Request.Context(), userID, req.Option)
	})
}

// ToggleReview godoc
// POST /api/quiz/session/review
func (h *QuizHandler) ToggleReview(c *gin.Context) {
	h.respondView(c, func(userID string) (model.SessionView, error) {
		return h.quizService.ToggleReview(c.Request.Context(), userID)
	})
}

// Summary godoc
// GET /api/quiz/session/summary
// Figures for the submit confirmation dialog.
func (h *QuizHandler) Summary(c *gin.Context) {
	claims := middleware.GetClaims(c)
	sum, err := h.quizService.Summary(claims.UserID)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, sum)
}

// Submit godoc
// POST /api/quiz/session/submit
// Finalizes the attempt after the user confirmed.
func (h *QuizHandler) Submit(c *gin.Context) {
	claims := middleware.GetClaims(c)
	res, err := h.quizService.Submit(c.Request.Context(), claims.UserID)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{
		"reason":    res.Reason,
		"attempted": len(res.Answers),
		"total":     len(res.Questions),
	})
}

// GetReport godoc
// GET /api/quiz/report
func (h *QuizHandler) GetReport(c *gin.Context) {
	claims := middleware.GetClaims(c)
	rep, err := h.quizService.Report(c.Request.Context(), claims.UserID)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, rep)
}

// ExplainRow godoc
// POST /api/quiz/report/explain
// Opens the sidebar for a row; the explanation arrives asynchronously.
func (h *QuizHandler) ExplainRow(c *gin.Context) {
	var req model.ExplainRowRequest
	if first, fields := validator.Bind(c, &req); fields != nil {
		response.FailValidation(c, first, fields)
		return
	}
	claims := middleware.GetClaims(c)
	sb, err := h.quizService.Explain(c.Request.Context(), claims.UserID, *req.Index)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusAccepted, sb)
}

// GetSidebar godoc
// GET /api/quiz/report/sidebar
func (h *QuizHandler) GetSidebar(c *gin.Context) {
	claims := middleware.GetClaims(c)
	sb, err := h.quizService.Sidebar(claims.UserID)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, sb)
}

// CloseSidebar godoc
// POST /api/quiz/report/sidebar/close
func (h *QuizHandler) CloseSidebar(c *gin.Context) {
	claims := middleware.GetClaims(c)
	sb, err := h.quizService.CloseSidebar(claims.UserID)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, sb)
}

// ListAttempts godoc
// GET /api/quiz/attempts
func (h *QuizHandler) ListAttempts(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if h.attempts == nil {
		response.Success(c, http.StatusOK, []model.Attempt{})
		return
	}
	id, err := uuid.Parse(claims.UserID)
	if err != nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenInvalid)
		return
	}
	attempts, err := h.attempts.ListByUser(c.Request.Context(), id, historyLimit)
	if err != nil {
		h.log.Error().Err(err).Msg("List attempts failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	if attempts == nil {
		attempts = []model.Attempt{}
	}
	response.Success(c, http.StatusOK, attempts)
}

func (h *QuizHandler) respondView(c *gin.Context, fn func(userID string) (model.SessionView, error)) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	view, err := fn(claims.UserID)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, view)
}

// fail maps engine, service and report errors onto the envelope.
func (h *QuizHandler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, quiz.ErrNoCredential):
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
	case errors.Is(err, quiz.ErrCompleted):
		response.Fail(c, http.StatusConflict, response.ErrQuizCompleted)
	case errors.Is(err, quiz.ErrNotReady):
		response.Fail(c, http.StatusConflict, response.ErrQuizNotReady)
	case errors.Is(err, quiz.ErrIndexOutOfRange), errors.Is(err, report.ErrRowOutOfRange):
		response.Fail(c, http.StatusBadRequest, response.ErrQuestionOutOfRange)
	case errors.Is(err, quiz.ErrUnknownOption):
		response.Fail(c, http.StatusBadRequest, response.ErrUnknownOption)
	case errors.Is(err, service.ErrNoSession), errors.Is(err, quiz.ErrClosed):
		response.Fail(c, http.StatusNotFound, response.ErrQuizNotStarted)
	case errors.Is(err, report.ErrNoResult):
		response.Fail(c, http.StatusNotFound, response.ErrReportNotFound)
	case errors.Is(err, quiz.ErrFetchFailed):
		response.FailWithDetails(c, http.StatusBadGateway, response.ErrQuestionsUnavailable, err.Error())
	default:
		h.log.Error().Err(err).Msg("Quiz request failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}
