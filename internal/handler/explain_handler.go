package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/quizmaster-backend/internal/model"
	"github.com/stemsi/quizmaster-backend/internal/response"
	"github.com/stemsi/quizmaster-backend/internal/validator"
)

// Explainer is the explanation backend behind POST /api/explain.
type Explainer interface {
	Explain(ctx context.Context, question, correctAnswer string) (string, error)
}

// ExplainHandler proxies explanation requests to the text generator.
type ExplainHandler struct {
	explainer Explainer
	log       zerolog.Logger
}

// NewExplainHandler creates a new ExplainHandler.
func NewExplainHandler(explainer Explainer, log zerolog.Logger) *ExplainHandler {
	return &ExplainHandler{
		explainer: explainer,
		log:       log.With().Str("component", "explain_handler").Logger(),
	}
}

// Explain godoc
// POST /api/explain
// Returns a two sentence explanation of why the answer is correct.
func (h *ExplainHandler) Explain(c *gin.Context) {
	var req model.ExplainRequest
	if first, fields := validator.Bind(c, &req); fields != nil {
		response.FailValidation(c, first, fields)
		return
	}

	text, err := h.explainer.Explain(c.Request.Context(), req.Question, req.CorrectAnswer)
	if err != nil {
		h.log.Error().Err(err).Msg("Explanation failed")
		response.FailWithDetails(c, http.StatusInternalServerError, response.ErrAIUnavailable, err.Error())
		return
	}

	response.Success(c, http.StatusOK, model.ExplainResponse{Explanation: text})
}
