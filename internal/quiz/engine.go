package quiz

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Engine errors.
var (
	ErrNoCredential    = errors.New("quiz: no credential")
	ErrCompleted       = errors.New("quiz: session already completed")
	ErrNotReady        = errors.New("quiz: questions not loaded")
	ErrIndexOutOfRange = errors.New("quiz: question index out of range")
	ErrUnknownOption   = errors.New("quiz: option does not belong to the question")
	ErrEmptyBatch      = errors.New("quiz: provider returned no questions")
	ErrFetchFailed     = errors.New("quiz: question fetch failed")
	ErrClosed          = errors.New("quiz: engine closed")
)

// Phase is the engine's lifecycle position.
type Phase string

const (
	PhaseNotStarted  Phase = "NOT_STARTED"
	PhaseLoading     Phase = "LOADING"
	PhaseFetchFailed Phase = "FETCH_FAILED"
	PhaseInProgress  Phase = "IN_PROGRESS"
	PhaseCompleted   Phase = "COMPLETED"
)

// Config tunes an Engine. Zero values fall back to the package defaults.
type Config struct {
	Duration  int
	BatchSize int
	Observer  Observer
	Rand      *rand.Rand
	Now       func() time.Time
}

// Engine drives one quiz attempt. All mutations are serialized by a single
// mutex; the lock is never held across a provider call.
type Engine struct {
	mu       sync.Mutex
	store    Store
	provider Provider
	handoff  *Handoff
	observer Observer
	rng      *rand.Rand
	now      func() time.Time
	log      zerolog.Logger

	duration  int
	batchSize int

	state    State
	phase    Phase
	fetching bool
	closed   bool
	fired    map[NoticeKind]bool
}

// NewEngine creates an engine bound to a store scope.
func NewEngine(store Store, provider Provider, handoff *Handoff, log zerolog.Logger, cfg Config) *Engine {
	if cfg.Duration <= 0 {
		cfg.Duration = DefaultDuration
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = BatchSize
	}
	if cfg.Observer == nil {
		cfg.Observer = nopObserver{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Engine{
		store:     store,
		provider:  provider,
		handoff:   handoff,
		observer:  cfg.Observer,
		rng:       cfg.Rand,
		now:       cfg.Now,
		log:       log.With().Str("component", "quiz_engine").Logger(),
		duration:  cfg.Duration,
		batchSize: cfg.BatchSize,
		state:     NewState(cfg.Duration),
		phase:     PhaseNotStarted,
		fired:     make(map[NoticeKind]bool),
	}
}

// OnSessionStart runs the entry guard and rehydrates persisted state.
// A nil error with Phase() == PhaseLoading means FetchQuestions must run next.
// ErrNoCredential and ErrCompleted mean the caller must send the user back to
// the entry screen; nothing else has happened in that case.
func (e *Engine) OnSessionStart(ctx context.Context, token string) error {
	if token == "" {
		return ErrNoCredential
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	switch e.phase {
	case PhaseCompleted:
		e.mu.Unlock()
		return ErrCompleted
	case PhaseLoading, PhaseFetchFailed, PhaseInProgress:
		e.mu.Unlock()
		return nil
	}

	completed, err := e.store.Completed(ctx)
	if err != nil {
		e.mu.Unlock()
		return fmt.Errorf("read completed flag: %w", err)
	}
	if completed {
		e.phase = PhaseCompleted
		e.state.Completed = true
		e.mu.Unlock()
		return ErrCompleted
	}

	saved, err := e.store.Load(ctx)
	if err != nil {
		e.log.Warn().Err(err).Msg("Discarding unreadable persisted state")
		saved = nil
	}

	if saved != nil {
		saved.normalize()
		saved.Completed = false
		e.state = *saved
	}

	if len(e.state.Questions) == 0 {
		e.phase = PhaseLoading
		e.mu.Unlock()
		return nil
	}

	e.phase = PhaseInProgress
	e.log.Info().
		Int("time_remaining", e.state.TimeRemaining).
		Int("attempted", e.state.Attempted()).
		Msg("Session rehydrated")

	if e.state.TimeRemaining <= 0 {
		res := e.finalizeLocked(ctx, ReasonTimeout)
		e.mu.Unlock()
		e.observer.Finalized(ctx, res)
		return nil
	}
	e.mu.Unlock()
	return nil
}

// FetchQuestions loads the batch from the provider. It is a no-op unless the
// engine is loading (or a previous fetch failed) and no fetch is outstanding.
func (e *Engine) FetchQuestions(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	if e.fetching || (e.phase != PhaseLoading && e.phase != PhaseFetchFailed) {
		e.mu.Unlock()
		return nil
	}
	e.fetching = true
	e.phase = PhaseLoading
	e.mu.Unlock()

	raw, err := e.provider.FetchBatch(ctx, e.batchSize)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.fetching = false

	if e.closed {
		// Torn down while the request was outstanding; the batch is dropped.
		return ErrClosed
	}
	if e.phase == PhaseCompleted {
		// The countdown expired while the request was outstanding.
		return ErrCompleted
	}
	if err == nil && len(raw) == 0 {
		err = ErrEmptyBatch
	}
	if err != nil {
		e.phase = PhaseFetchFailed
		e.log.Error().Err(err).Msg("Question fetch failed")
		return fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}

	e.state.Questions = e.buildQuestions(raw)
	e.state.normalize()
	e.phase = PhaseInProgress
	e.persistLocked(ctx)

	e.log.Info().Int("questions", len(e.state.Questions)).Msg("Question batch loaded")
	return nil
}

func (e *Engine) buildQuestions(raw []RawQuestion) []Question {
	out := make([]Question, 0, len(raw))
	for _, r := range raw {
		options := append(slices.Clone(r.Incorrect), r.Correct)
		swap := func(i, j int) { options[i], options[j] = options[j], options[i] }
		if e.rng != nil {
			e.rng.Shuffle(len(options), swap)
		} else {
			rand.Shuffle(len(options), swap)
		}
		out = append(out, Question{
			Text:          r.Text,
			Options:       options,
			CorrectOption: r.Correct,
		})
	}
	return out
}

// GoTo makes index the current question and marks it visited.
func (e *Engine) GoTo(ctx context.Context, index int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.goToLocked(ctx, index)
}

// Next and Prev are the navigation affordances of the question card. Prev is
// invalid on the first question and Next on the last one, where the card
// offers submission instead.
func (e *Engine) Next(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.goToLocked(ctx, e.state.CurrentIndex+1)
}

func (e *Engine) Prev(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.goToLocked(ctx, e.state.CurrentIndex-1)
}

func (e *Engine) goToLocked(ctx context.Context, index int) error {
	if err := e.mutableLocked(); err != nil {
		return err
	}
	if index < 0 || index >= len(e.state.Questions) {
		return ErrIndexOutOfRange
	}
	e.state.CurrentIndex = index
	e.state.Visited.Add(index)
	e.persistLocked(ctx)
	return nil
}

// SelectOption toggles option as the answer of the current question.
// Selecting the stored answer again clears it. The option may be given as
// displayed (entities decoded); it is matched back to the stored text.
func (e *Engine) SelectOption(ctx context.Context, option string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.mutableLocked(); err != nil {
		return err
	}
	idx := e.state.CurrentIndex
	option, ok := matchOption(e.state.Questions[idx].Options, option)
	if !ok {
		return ErrUnknownOption
	}
	if e.state.Answers[idx] == option {
		delete(e.state.Answers, idx)
	} else {
		e.state.Answers[idx] = option
	}
	e.persistLocked(ctx)
	return nil
}

// ToggleReview flips the review mark of the current question.
func (e *Engine) ToggleReview(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.mutableLocked(); err != nil {
		return err
	}
	idx := e.state.CurrentIndex
	if e.state.Reviewed.Has(idx) {
		e.state.Reviewed.Remove(idx)
	} else {
		e.state.Reviewed.Add(idx)
	}
	e.persistLocked(ctx)
	return nil
}

// OnTick advances the countdown by one second. When the countdown would
// reach zero the session is finalized without confirmation. After
// finalization it returns ErrCompleted.
func (e *Engine) OnTick(ctx context.Context) (int, error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return 0, ErrClosed
	}
	switch e.phase {
	case PhaseCompleted:
		e.mu.Unlock()
		return 0, ErrCompleted
	case PhaseNotStarted:
		remaining := e.state.TimeRemaining
		e.mu.Unlock()
		return remaining, nil
	}

	next := e.state.TimeRemaining - 1
	if next <= 0 {
		e.state.TimeRemaining = 0
		res := e.finalizeLocked(ctx, ReasonTimeout)
		e.mu.Unlock()
		e.observer.Finalized(ctx, res)
		return 0, nil
	}

	e.state.TimeRemaining = next
	if err := e.store.SaveTimeRemaining(ctx, next); err != nil {
		e.log.Warn().Err(err).Msg("Persist time remaining failed")
	}

	var notice *Notice
	switch next {
	case HalfwayMark:
		notice = e.fireLocked(NoticeHalfway, next, "15 minutes remaining! Halfway mark.", false)
	case FinalMinuteMark:
		notice = e.fireLocked(NoticeFinalMinute, next, "Only 1 minute left!", true)
	}
	e.mu.Unlock()

	if notice != nil {
		e.observer.Notice(ctx, *notice)
	}
	return next, nil
}

func (e *Engine) fireLocked(kind NoticeKind, remaining int, msg string, urgent bool) *Notice {
	if e.fired[kind] {
		return nil
	}
	e.fired[kind] = true
	e.log.Info().Str("notice", string(kind)).Int("time_remaining", remaining).Msg("Timer notice")
	return &Notice{Kind: kind, Remaining: remaining, Message: msg, Urgent: urgent}
}

// SubmitSummary is what the confirmation step displays.
type SubmitSummary struct {
	Attempted int `json:"attempted"`
	Total     int `json:"total"`
	Reviewed  int `json:"reviewed,omitempty"`
}

// Summary returns the confirmation figures for a manual submit.
func (e *Engine) Summary() SubmitSummary {
	e.mu.Lock()
	defer e.mu.Unlock()
	return SubmitSummary{
		Attempted: e.state.Attempted(),
		Total:     e.batchSize,
		Reviewed:  len(e.state.Reviewed),
	}
}

// Submit finalizes after the user confirmed.
func (e *Engine) Submit(ctx context.Context) (Result, error) {
	e.mu.Lock()
	if err := e.mutableLocked(); err != nil {
		e.mu.Unlock()
		return Result{}, err
	}
	res := e.finalizeLocked(ctx, ReasonManual)
	e.mu.Unlock()
	e.observer.Finalized(ctx, res)
	return res, nil
}

// OnTeardown flushes the full state and closes the engine. Every later call
// that would touch the store returns ErrClosed. Repeated calls are no-ops.
func (e *Engine) OnTeardown(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	if e.phase == PhaseInProgress {
		e.persistLocked(ctx)
	}
	e.closed = true
}

func (e *Engine) finalizeLocked(ctx context.Context, reason Reason) Result {
	e.state.Completed = true
	e.phase = PhaseCompleted

	res := Result{
		Questions:  cloneQuestions(e.state.Questions),
		Answers:    make(map[int]string, len(e.state.Answers)),
		Reason:     reason,
		FinishedAt: e.now(),
	}
	for k, v := range e.state.Answers {
		res.Answers[k] = v
	}

	if err := e.store.MarkCompleted(ctx); err != nil {
		e.log.Error().Err(err).Msg("Persist completed flag failed")
	}
	if err := e.store.Clear(ctx); err != nil {
		e.log.Error().Err(err).Msg("Clear persisted session failed")
	}
	e.handoff.Put(res)

	e.log.Info().
		Str("reason", string(reason)).
		Int("attempted", len(res.Answers)).
		Msg("Session finalized")
	return res
}

func (e *Engine) mutableLocked() error {
	if e.closed {
		return ErrClosed
	}
	switch e.phase {
	case PhaseCompleted:
		return ErrCompleted
	case PhaseInProgress:
		return nil
	default:
		return ErrNotReady
	}
}

func (e *Engine) persistLocked(ctx context.Context) {
	if e.closed {
		return
	}
	snapshot := e.state.Clone()
	if err := e.store.Save(ctx, &snapshot); err != nil {
		e.log.Warn().Err(err).Msg("Persist session state failed")
	}
}

func matchOption(options []string, option string) (string, bool) {
	if slices.Contains(options, option) {
		return option, true
	}
	want := Normalize(option)
	for _, raw := range options {
		if Normalize(raw) == want {
			return raw, true
		}
	}
	return "", false
}

// Phase returns the lifecycle position.
func (e *Engine) Phase() Phase {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.phase
}

// CurrentIndex returns the displayed question index.
func (e *Engine) CurrentIndex() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.CurrentIndex
}

// Snapshot returns a copy of the state and the phase it was read in.
func (e *Engine) Snapshot() (State, Phase) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Clone(), e.phase
}
