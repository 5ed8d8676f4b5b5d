package quiz

import (
	"encoding/json"
	"html"
	"slices"
	"strings"
	"time"
)

const (
	// BatchSize is the number of questions fetched for one session.
	BatchSize = 15
	// DefaultDuration is the countdown start in seconds (30 minutes).
	DefaultDuration = 1800
	// HalfwayMark and FinalMinuteMark are the exact remaining-second values
	// that raise a notice.
	HalfwayMark     = 900
	FinalMinuteMark = 60
)

// Normalize decodes HTML entities and trims whitespace so provider text can be
// displayed and compared as plain text.
func Normalize(s string) string {
	return strings.TrimSpace(html.UnescapeString(s))
}

// Question is one multiple-choice item. Text and options may carry HTML
// entities exactly as the provider returned them.
type Question struct {
	Text          string   `json:"question"`
	Options       []string `json:"options"`
	CorrectOption string   `json:"correct"`
}

// RawQuestion is a provider item before its options are merged and shuffled.
type RawQuestion struct {
	Text      string
	Correct   string
	Incorrect []string
}

// IndexSet is a set of question indices. It encodes as a sorted JSON array.
type IndexSet map[int]struct{}

// NewIndexSet returns a set holding the given indices.
func NewIndexSet(indices ...int) IndexSet {
	s := make(IndexSet, len(indices))
	for _, i := range indices {
		s[i] = struct{}{}
	}
	return s
}

func (s IndexSet) Has(i int) bool {
	_, ok := s[i]
	return ok
}

func (s IndexSet) Add(i int) { s[i] = struct{}{} }

func (s IndexSet) Remove(i int) { delete(s, i) }

// Sorted returns the members in ascending order.
func (s IndexSet) Sorted() []int {
	out := make([]int, 0, len(s))
	for i := range s {
		out = append(out, i)
	}
	slices.Sort(out)
	return out
}

func (s IndexSet) Clone() IndexSet {
	out := make(IndexSet, len(s))
	for i := range s {
		out[i] = struct{}{}
	}
	return out
}

func (s IndexSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

func (s *IndexSet) UnmarshalJSON(data []byte) error {
	var indices []int
	if err := json.Unmarshal(data, &indices); err != nil {
		return err
	}
	*s = NewIndexSet(indices...)
	return nil
}

// State is the mutable aggregate for one quiz attempt.
type State struct {
	Questions     []Question     `json:"questions"`
	Answers       map[int]string `json:"answers"`
	Visited       IndexSet       `json:"visited"`
	Reviewed      IndexSet       `json:"reviewed"`
	CurrentIndex  int            `json:"current_index"`
	TimeRemaining int            `json:"time_remaining"`
	Completed     bool           `json:"completed"`
}

// NewState returns a fresh attempt positioned on the first question.
func NewState(duration int) State {
	return State{
		Answers:       make(map[int]string),
		Visited:       NewIndexSet(0),
		Reviewed:      NewIndexSet(),
		TimeRemaining: duration,
	}
}

// Clone returns a deep copy.
func (s State) Clone() State {
	out := s
	out.Questions = cloneQuestions(s.Questions)
	out.Answers = make(map[int]string, len(s.Answers))
	for k, v := range s.Answers {
		out.Answers[k] = v
	}
	out.Visited = s.Visited.Clone()
	out.Reviewed = s.Reviewed.Clone()
	return out
}

// Attempted is the number of questions holding an answer.
func (s State) Attempted() int {
	n := 0
	for _, v := range s.Answers {
		if v != "" {
			n++
		}
	}
	return n
}

// normalize repairs a rehydrated state so the engine invariants hold.
func (s *State) normalize() {
	if s.Answers == nil {
		s.Answers = make(map[int]string)
	}
	if s.Visited == nil {
		s.Visited = NewIndexSet()
	}
	if s.Reviewed == nil {
		s.Reviewed = NewIndexSet()
	}
	for k := range s.Answers {
		if len(s.Questions) > 0 && (k < 0 || k >= len(s.Questions)) {
			delete(s.Answers, k)
		}
	}
	if s.CurrentIndex < 0 || (len(s.Questions) > 0 && s.CurrentIndex >= len(s.Questions)) {
		s.CurrentIndex = 0
	}
	s.Visited.Add(0)
	s.Visited.Add(s.CurrentIndex)
	if s.TimeRemaining < 0 {
		s.TimeRemaining = 0
	}
}

func cloneQuestions(in []Question) []Question {
	if in == nil {
		return nil
	}
	out := make([]Question, len(in))
	for i, q := range in {
		out[i] = q
		out[i].Options = slices.Clone(q.Options)
	}
	return out
}

// Reason records why a session was finalized.
type Reason string

const (
	ReasonManual  Reason = "manual"
	ReasonTimeout Reason = "timeout"
)

// Result is the terminal snapshot handed to the report.
type Result struct {
	Questions  []Question     `json:"questions"`
	Answers    map[int]string `json:"answers"`
	Reason     Reason         `json:"reason"`
	FinishedAt time.Time      `json:"finished_at"`
}
