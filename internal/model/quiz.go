package model

import (
	"github.com/stemsi/quizmaster-backend/internal/quiz"
	"github.com/stemsi/quizmaster-backend/internal/report"
)

// GotoRequest moves to a question.
type GotoRequest struct {
	Index *int `json:"index" binding:"required,min=0"`
}

// AnswerRequest toggles an option on the current question.
type AnswerRequest struct {
	Option string `json:"option" binding:"required"`
}

// ExplainRowRequest opens the sidebar for a report row.
type ExplainRowRequest struct {
	Index *int `json:"index" binding:"required,min=0"`
}

// QuestionView is the current question card.
type QuestionView struct {
	Index    int      `json:"index"`
	Text     string   `json:"text"`
	Options  []string `json:"options"`
	Selected string   `json:"selected,omitempty"`
	Reviewed bool     `json:"reviewed"`
	IsFirst  bool     `json:"is_first"`
	IsLast   bool     `json:"is_last"`
}

// SessionView is everything the quiz screen renders.
type SessionView struct {
	Phase         quiz.Phase     `json:"phase"`
	Question      *QuestionView  `json:"question,omitempty"`
	Answers       map[int]string `json:"answers"`
	Visited       []int          `json:"visited"`
	Reviewed      []int          `json:"reviewed"`
	TimeRemaining int            `json:"time_remaining"`
	Clock         string         `json:"clock"`
	Urgent        bool           `json:"urgent"`
	Attempted     int            `json:"attempted"`
	Total         int            `json:"total"`
	Progress      float64        `json:"progress"`
	Tiles         []quiz.Tile    `json:"tiles"`
}

// NewSessionView renders st. Question and option text is decoded for display.
func NewSessionView(st quiz.State, phase quiz.Phase, total int) SessionView {
	answers := make(map[int]string, len(st.Answers))
	for i, a := range st.Answers {
		answers[i] = report.Normalize(a)
	}
	view := SessionView{
		Phase:         phase,
		Answers:       answers,
		Visited:       st.Visited.Sorted(),
		Reviewed:      st.Reviewed.Sorted(),
		TimeRemaining: st.TimeRemaining,
		Clock:         quiz.FormatClock(st.TimeRemaining),
		Urgent:        quiz.Urgent(st.TimeRemaining),
		Attempted:     st.Attempted(),
		Total:         total,
		Progress:      st.Progress(total),
		Tiles:         st.Tiles(),
	}
	if idx := st.CurrentIndex; idx < len(st.Questions) {
		q := st.Questions[idx]
		options := make([]string, len(q.Options))
		for i, o := range q.Options {
			options[i] = report.Normalize(o)
		}
		view.Question = &QuestionView{
			Index:    idx,
			Text:     report.Normalize(q.Text),
			Options:  options,
			Selected: report.Normalize(st.Answers[idx]),
			Reviewed: st.Reviewed.Has(idx),
			IsFirst:  idx == 0,
			IsLast:   idx == len(st.Questions)-1,
		}
	}
	return view
}
