package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/quizmaster-backend/internal/middleware"
	"github.com/stemsi/quizmaster-backend/internal/model"
	"github.com/stemsi/quizmaster-backend/internal/response"
	"github.com/stemsi/quizmaster-backend/internal/service"
	"github.com/stemsi/quizmaster-backend/internal/validator"
)

// ScopeResetter wipes a user's quiz state when a new credential is issued.
type ScopeResetter interface {
	Reset(ctx context.Context, userID string) error
}

// AuthHandler handles the start and submit endpoints.
type AuthHandler struct {
	authService *service.AuthService
	quiz        ScopeResetter
	log         zerolog.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(authService *service.AuthService, quiz ScopeResetter, log zerolog.Logger) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		quiz:        quiz,
		log:         log.With().Str("component", "auth_handler").Logger(),
	}
}

// Start godoc
// POST /api/start
// Validates the email, records the user on first use and issues a 30 minute token.
func (h *AuthHandler) Start(c *gin.Context) {
	var req model.StartRequest
	if first, fields := validator.Bind(c, &req); fields != nil {
		response.FailValidation(c, first, fields)
		return
	}

	token, user, err := h.authService.Start(c.Request.Context(), req.Email)
	if err != nil {
		h.log.Error().Err(err).Msg("Start failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	if h.quiz != nil {
		if err := h.quiz.Reset(c.Request.Context(), user.ID.String()); err != nil {
			h.log.Warn().Err(err).Str("user_id", user.ID.String()).Msg("Quiz scope reset failed")
		}
	}

	h.log.Info().Str("user_id", user.ID.String()).Msg("Token issued")
	response.Success(c, http.StatusOK, model.StartResponse{Token: token, Email: user.Email})
}

// Submit godoc
// POST /api/submit
// Acknowledges a finished attempt. Results are logged, not stored.
func (h *AuthHandler) Submit(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	h.log.Info().Str("email", claims.Email).Msg("Saving results")
	response.Success(c, http.StatusOK, model.MessageResponse{Message: "Results saved successfully"})
}
