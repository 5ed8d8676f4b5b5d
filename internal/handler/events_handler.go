package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/quizmaster-backend/internal/config"
	"github.com/stemsi/quizmaster-backend/internal/middleware"
	"github.com/stemsi/quizmaster-backend/internal/model"
	"github.com/stemsi/quizmaster-backend/internal/response"
	ws "github.com/stemsi/quizmaster-backend/internal/websocket"
)

const keepAliveInterval = 30 * time.Second

// SessionViewer reads the current view of a hosted session.
type SessionViewer interface {
	View(userID string) (model.SessionView, error)
}

// EventsHandler is the Server-Sent Events fallback of the quiz stream for
// clients that cannot open a WebSocket.
type EventsHandler struct {
	rdb    *redis.Client
	viewer SessionViewer
	log    zerolog.Logger
}

// NewEventsHandler creates a new EventsHandler.
func NewEventsHandler(rdb *redis.Client, viewer SessionViewer, log zerolog.Logger) *EventsHandler {
	return &EventsHandler{
		rdb:    rdb,
		viewer: viewer,
		log:    log.With().Str("component", "events_handler").Logger(),
	}
}

// QuizEventsSSE godoc
// GET /api/quiz/events
func (h *EventsHandler) QuizEventsSSE(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	reqCtx := c.Request.Context()

	pubsub := h.rdb.Subscribe(reqCtx, config.CacheKey.QuizEventsChannel(claims.UserID))
	defer pubsub.Close()
	if _, err := pubsub.Receive(reqCtx); err != nil {
		h.log.Error().Err(err).Msg("Subscribe failed")
		response.Fail(c, http.StatusServiceUnavailable, response.ErrInternal)
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)

	// Initial snapshot so the header clock renders before the next tick.
	if view, err := h.viewer.View(claims.UserID); err == nil {
		if payload, err := json.Marshal(ws.NewTickEvent(view.TimeRemaining)); err == nil {
			writeSSE(c, payload)
		}
	}

	ch := pubsub.Channel()
	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	pingPayload, _ := json.Marshal(ws.PongResponse{Event: ws.EventPong})

	for {
		select {
		case <-reqCtx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			writeSSE(c, []byte(msg.Payload))
		case <-keepAlive.C:
			writeSSE(c, pingPayload)
		}
	}
}

func writeSSE(c *gin.Context, payload []byte) {
	c.Writer.Write([]byte("data: "))
	c.Writer.Write(payload)
	c.Writer.Write([]byte("\n\n"))
	c.Writer.Flush()
}
