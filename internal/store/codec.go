package store

import (
	"encoding/json"
	"fmt"

	"github.com/stemsi/quizmaster-backend/internal/quiz"
)

// Per-session field names. The completed flag lives outside this set.
const (
	fieldQuestions = "questions"
	fieldAnswers   = "answers"
	fieldVisited   = "visited"
	fieldReviewed  = "reviewed"
	fieldTimeLeft  = "time_left"
	fieldCurrent   = "current"
)

// Fields lists the per-session field names in a stable order.
var Fields = []string{fieldQuestions, fieldAnswers, fieldVisited, fieldReviewed, fieldTimeLeft, fieldCurrent}

func encodeFields(st *quiz.State) (map[string][]byte, error) {
	values := map[string]any{
		fieldQuestions: st.Questions,
		fieldAnswers:   st.Answers,
		fieldVisited:   st.Visited,
		fieldReviewed:  st.Reviewed,
		fieldTimeLeft:  st.TimeRemaining,
		fieldCurrent:   st.CurrentIndex,
	}
	out := make(map[string][]byte, len(values))
	for name, v := range values {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", name, err)
		}
		out[name] = raw
	}
	return out, nil
}

// decodeFields rebuilds a state from whichever fields are present; absent
// fields take their fresh-session defaults.
func decodeFields(fields map[string][]byte) (*quiz.State, error) {
	st := quiz.NewState(quiz.DefaultDuration)

	targets := map[string]any{
		fieldQuestions: &st.Questions,
		fieldAnswers:   &st.Answers,
		fieldVisited:   &st.Visited,
		fieldReviewed:  &st.Reviewed,
		fieldTimeLeft:  &st.TimeRemaining,
		fieldCurrent:   &st.CurrentIndex,
	}
	for name, dst := range targets {
		raw, ok := fields[name]
		if !ok || len(raw) == 0 {
			continue
		}
		if err := json.Unmarshal(raw, dst); err != nil {
			return nil, fmt.Errorf("decode %s: %w", name, err)
		}
	}
	return &st, nil
}
