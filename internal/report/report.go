package report

import (
	"github.com/stemsi/quizmaster-backend/internal/quiz"
)

const (
	// NotAttempted is shown in place of an answer the user never gave.
	NotAttempted = "Not Attempted"
	// FallbackExplanation replaces any failed explanation request.
	FallbackExplanation = "AI service is currently busy. Please try again in a moment."
)

// Row is one line of the report table.
type Row struct {
	Index         int    `json:"index"`
	Question      string `json:"question"`
	YourAnswer    string `json:"your_answer"`
	CorrectAnswer string `json:"correct_answer"`
	Attempted     bool   `json:"attempted"`
	Correct       bool   `json:"correct"`
}

// Report is the scored view of a finalized session.
type Report struct {
	Rows      []Row       `json:"rows"`
	Score     int         `json:"score"`
	Total     int         `json:"total"`
	Attempted int         `json:"attempted"`
	Reason    quiz.Reason `json:"reason"`
}

// Normalize is quiz.Normalize, kept here for the report and view layers.
func Normalize(s string) string {
	return quiz.Normalize(s)
}

// Build scores res. An answer is correct when it equals the correct option
// after normalization.
func Build(res quiz.Result) Report {
	rep := Report{
		Rows:   make([]Row, len(res.Questions)),
		Total:  len(res.Questions),
		Reason: res.Reason,
	}
	for i, q := range res.Questions {
		row := Row{
			Index:         i,
			Question:      Normalize(q.Text),
			CorrectAnswer: Normalize(q.CorrectOption),
			YourAnswer:    NotAttempted,
		}
		if ans, ok := res.Answers[i]; ok && ans != "" {
			row.Attempted = true
			row.YourAnswer = Normalize(ans)
			row.Correct = row.YourAnswer == row.CorrectAnswer
			rep.Attempted++
		}
		if row.Correct {
			rep.Score++
		}
		rep.Rows[i] = row
	}
	return rep
}
