package report

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/quizmaster-backend/internal/quiz"
)

var (
	// ErrNoResult means no finalized session was handed off; the caller should
	// send the user back to the entry screen.
	ErrNoResult = errors.New("report: no result to show")
	// ErrUnauthorized is returned by an Explainer when the credential was
	// rejected, so the sidebar can ask for a new one.
	ErrUnauthorized = errors.New("report: credential rejected")
	// ErrRowOutOfRange means the requested row does not exist.
	ErrRowOutOfRange = errors.New("report: row out of range")
)

// Explainer produces a short tutoring explanation for a question.
type Explainer interface {
	Explain(ctx context.Context, question, correctAnswer string) (string, error)
}

// Cleaner removes persisted session data once the report has taken over.
type Cleaner interface {
	Clear(ctx context.Context) error
}

// Sidebar is the explanation panel.
type Sidebar struct {
	Visible        bool   `json:"visible"`
	Loading        bool   `json:"loading"`
	Question       string `json:"question,omitempty"`
	CorrectAnswer  string `json:"correct_answer,omitempty"`
	Explanation    string `json:"explanation,omitempty"`
	ReauthRequired bool   `json:"reauth_required,omitempty"`
	Seq            uint64 `json:"seq"`
}

// Assembler owns the report of one finalized session and its sidebar.
type Assembler struct {
	mu        sync.Mutex
	handoff   *quiz.Handoff
	cleaner   Cleaner
	explainer Explainer
	timeout   time.Duration
	log       zerolog.Logger

	report  *Report
	sidebar Sidebar
	wg      sync.WaitGroup
}

// NewAssembler wires an assembler. A zero timeout defaults to 30 seconds.
func NewAssembler(handoff *quiz.Handoff, cleaner Cleaner, explainer Explainer, timeout time.Duration, log zerolog.Logger) *Assembler {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Assembler{
		handoff:   handoff,
		cleaner:   cleaner,
		explainer: explainer,
		timeout:   timeout,
		log:       log.With().Str("component", "report").Logger(),
	}
}

// Open builds the report from the handed-off result. Once built, later calls
// return the same report; the handoff itself is only consumed once.
func (a *Assembler) Open(ctx context.Context) (Report, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.report == nil {
		res, ok := a.handoff.Take()
		if !ok {
			return Report{}, ErrNoResult
		}
		rep := Build(res)
		a.report = &rep
		a.log.Info().
			Int("score", rep.Score).
			Int("total", rep.Total).
			Str("reason", string(rep.Reason)).
			Msg("Report assembled")
	}

	if a.cleaner != nil {
		if err := a.cleaner.Clear(ctx); err != nil {
			a.log.Warn().Err(err).Msg("Clear persisted session failed")
		}
	}
	return *a.report, nil
}

// Explain opens the sidebar for row idx and requests an explanation in the
// background. Only the latest request may update the sidebar.
func (a *Assembler) Explain(ctx context.Context, idx int) (Sidebar, error) {
	a.mu.Lock()
	if a.report == nil {
		a.mu.Unlock()
		return Sidebar{}, ErrNoResult
	}
	if idx < 0 || idx >= len(a.report.Rows) {
		a.mu.Unlock()
		return Sidebar{}, ErrRowOutOfRange
	}
	row := a.report.Rows[idx]
	a.sidebar = Sidebar{
		Visible:       true,
		Loading:       true,
		Question:      row.Question,
		CorrectAnswer: row.CorrectAnswer,
		Seq:           a.sidebar.Seq + 1,
	}
	seq := a.sidebar.Seq
	snapshot := a.sidebar
	a.mu.Unlock()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		reqCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.timeout)
		defer cancel()

		text, err := a.explainer.Explain(reqCtx, row.Question, row.CorrectAnswer)
		a.apply(seq, text, err)
	}()
	return snapshot, nil
}

func (a *Assembler) apply(seq uint64, text string, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if seq != a.sidebar.Seq || !a.sidebar.Visible {
		a.log.Debug().Uint64("seq", seq).Msg("Dropping stale explanation")
		return
	}
	a.sidebar.Loading = false
	if err != nil {
		a.log.Warn().Err(err).Msg("Explanation request failed")
		a.sidebar.Explanation = FallbackExplanation
		a.sidebar.ReauthRequired = errors.Is(err, ErrUnauthorized)
		return
	}
	a.sidebar.Explanation = text
}

// Sidebar returns the current panel.
func (a *Assembler) Sidebar() Sidebar {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sidebar
}

// CloseSidebar hides the panel; a pending response is discarded.
func (a *Assembler) CloseSidebar() Sidebar {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sidebar = Sidebar{Seq: a.sidebar.Seq + 1}
	return a.sidebar
}

// Wait blocks until outstanding explanation requests have finished.
func (a *Assembler) Wait() {
	a.wg.Wait()
}
