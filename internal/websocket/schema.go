package websocket

import "github.com/stemsi/quizmaster-backend/internal/quiz"

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionPing Action = "ping"
)

// RequestEnvelope is used to peek at the action before full parsing.
type RequestEnvelope struct {
	Action Action `json:"action"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventTick      Event = "tick"
	EventNotice    Event = "notice"
	EventFinalized Event = "finalized"
	EventError     Event = "error"
	EventPong      Event = "pong"
)

// TickEvent is published once per second while the countdown runs.
type TickEvent struct {
	Event     Event  `json:"event"`
	Remaining int    `json:"remaining"`
	Clock     string `json:"clock"`
	Urgent    bool   `json:"urgent"`
}

// NoticeEvent carries the halfway and final-minute toasts.
type NoticeEvent struct {
	Event     Event           `json:"event"`
	Kind      quiz.NoticeKind `json:"kind"`
	Message   string          `json:"message"`
	Remaining int             `json:"remaining"`
	Urgent    bool            `json:"urgent"`
}

// FinalizedEvent tells the client to move to the report.
type FinalizedEvent struct {
	Event     Event       `json:"event"`
	Reason    quiz.Reason `json:"reason"`
	Attempted int         `json:"attempted"`
	Total     int         `json:"total"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}

// NewTickEvent renders remaining seconds for the header clock.
func NewTickEvent(remaining int) TickEvent {
	return TickEvent{
		Event:     EventTick,
		Remaining: remaining,
		Clock:     quiz.FormatClock(remaining),
		Urgent:    quiz.Urgent(remaining),
	}
}

func NewNoticeEvent(n quiz.Notice) NoticeEvent {
	return NoticeEvent{Event: EventNotice, Kind: n.Kind, Message: n.Message, Remaining: n.Remaining, Urgent: n.Urgent}
}

func NewFinalizedEvent(r quiz.Result) FinalizedEvent {
	attempted := 0
	for _, a := range r.Answers {
		if a != "" {
			attempted++
		}
	}
	return FinalizedEvent{Event: EventFinalized, Reason: r.Reason, Attempted: attempted, Total: len(r.Questions)}
}
