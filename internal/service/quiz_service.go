package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/quizmaster-backend/internal/config"
	"github.com/stemsi/quizmaster-backend/internal/model"
	"github.com/stemsi/quizmaster-backend/internal/quiz"
	"github.com/stemsi/quizmaster-backend/internal/report"
	"github.com/stemsi/quizmaster-backend/internal/store"
	ws "github.com/stemsi/quizmaster-backend/internal/websocket"
)

// ErrNoSession means the user has no hosted quiz session in this process.
var ErrNoSession = errors.New("no active quiz session")

// SessionStore is a quiz.Store that can also be wiped completely.
type SessionStore interface {
	quiz.Store
	Reset(ctx context.Context) error
}

// StoreFactory opens the store scope of one user.
type StoreFactory func(userID string) SessionStore

// CompletionRecorder persists a finalized attempt outside the session store.
type CompletionRecorder interface {
	RecordCompletion(ctx context.Context, userID string, r quiz.Result) error
}

// HostedSession bundles everything the server keeps for one user's attempt.
type HostedSession struct {
	UserID  string
	Engine  *quiz.Engine
	Handoff *quiz.Handoff
	Store   SessionStore
	Report  *report.Assembler

	// Guarded by QuizService.mu.
	clockOnce sync.Once
	cancel    context.CancelFunc
	done      chan struct{}
	lastSeen  time.Time
	evicted   bool
}

// QuizService hosts one quiz engine per authenticated user and drives its
// countdown. Engine side effects are fanned out on the user's Redis channel.
type QuizService struct {
	cfg       *config.Config
	rdb       *redis.Client
	provider  quiz.Provider
	explainer report.Explainer
	stores    StoreFactory
	recorder  CompletionRecorder
	log       zerolog.Logger

	tick time.Duration
	now  func() time.Time

	mu       sync.Mutex
	sessions map[string]*HostedSession
	clocks   sync.WaitGroup
}

// QuizServiceOptions carries optional collaborators.
type QuizServiceOptions struct {
	Stores       StoreFactory
	Recorder     CompletionRecorder
	TickInterval time.Duration
}

// NewQuizService creates a new QuizService. Without a StoreFactory the
// Redis store is used.
func NewQuizService(cfg *config.Config, rdb *redis.Client, provider quiz.Provider, explainer report.Explainer, opts QuizServiceOptions, log zerolog.Logger) *QuizService {
	if opts.Stores == nil {
		opts.Stores = func(userID string) SessionStore {
			return store.NewRedisStore(rdb, userID, cfg.QuizStateTTL)
		}
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = time.Second
	}
	return &QuizService{
		cfg:       cfg,
		rdb:       rdb,
		provider:  provider,
		explainer: explainer,
		stores:    opts.Stores,
		recorder:  opts.Recorder,
		log:       log.With().Str("component", "quiz_service").Logger(),
		tick:      opts.TickInterval,
		now:       time.Now,
		sessions:  make(map[string]*HostedSession),
	}
}

// ────────────────────────────────────────────────────────────────────────────
// Lifecycle
// ────────────────────────────────────────────────────────────────────────────

// Reset drops the hosted session and wipes the user's store scope, completed
// flag included. Called whenever a new credential is issued.
func (s *QuizService) Reset(ctx context.Context, userID string) error {
	s.mu.Lock()
	hs := s.sessions[userID]
	if hs != nil {
		hs.evicted = true
		delete(s.sessions, userID)
	}
	s.mu.Unlock()

	if hs != nil {
		s.teardown(ctx, hs)
	}
	if err := s.stores(userID).Reset(ctx); err != nil {
		return fmt.Errorf("reset quiz scope: %w", err)
	}
	s.log.Info().Str("user_id", userID).Msg("Quiz scope reset")
	return nil
}

// Start runs the entry guard, rehydrates or fetches the question batch and
// starts the countdown. It returns quiz.ErrNoCredential or quiz.ErrCompleted
// when the user must go back to the entry screen, and ErrNoSession when the
// session was evicted or reset while starting.
func (s *QuizService) Start(ctx context.Context, userID, token string) (model.SessionView, error) {
	if token == "" {
		return model.SessionView{}, quiz.ErrNoCredential
	}
	hs := s.acquire(userID)

	if err := hs.Engine.OnSessionStart(ctx, token); err != nil {
		return model.SessionView{}, err
	}
	if hs.Engine.Phase() != quiz.PhaseCompleted && !s.startClock(hs) {
		return model.SessionView{}, ErrNoSession
	}
	if err := hs.Engine.FetchQuestions(ctx); err != nil {
		return s.view(hs), err
	}
	return s.view(hs), nil
}

// Retry re-requests the question batch after a failed fetch.
func (s *QuizService) Retry(ctx context.Context, userID string) (model.SessionView, error) {
	hs, err := s.session(userID)
	if err != nil {
		return model.SessionView{}, err
	}
	if err := hs.Engine.FetchQuestions(ctx); err != nil {
		return s.view(hs), err
	}
	return s.view(hs), nil
}

// Shutdown stops every countdown; each engine flushes its state first.
func (s *QuizService) Shutdown() {
	s.mu.Lock()
	hosted := make([]*HostedSession, 0, len(s.sessions))
	for _, hs := range s.sessions {
		hs.evicted = true
		hosted = append(hosted, hs)
	}
	s.mu.Unlock()

	for _, hs := range hosted {
		s.teardown(context.Background(), hs)
	}
	s.clocks.Wait()
}

// Reap evicts sessions not touched for idle, finalized ones included.
// Evicting stops the countdown after persisting; a later Start rehydrates
// from the store. A report nobody opened is dropped with the session.
func (s *QuizService) Reap(idle time.Duration) int {
	cutoff := s.now().Add(-idle)

	s.mu.Lock()
	var evicted []*HostedSession
	for id, hs := range s.sessions {
		if hs.lastSeen.Before(cutoff) {
			hs.evicted = true
			evicted = append(evicted, hs)
			delete(s.sessions, id)
		}
	}
	s.mu.Unlock()

	for _, hs := range evicted {
		s.teardown(context.Background(), hs)
		if hs.Handoff.Pending() {
			s.log.Info().Str("user_id", hs.UserID).Msg("Evicted session with an unopened report")
		}
	}
	return len(evicted)
}

// Active returns the number of hosted sessions.
func (s *QuizService) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// ────────────────────────────────────────────────────────────────────────────
// Quiz screen
// ────────────────────────────────────────────────────────────────────────────

// View returns the rendered quiz screen.
func (s *QuizService) View(userID string) (model.SessionView, error) {
	hs, err := s.session(userID)
	if err != nil {
		return model.SessionView{}, err
	}
	return s.view(hs), nil
}

func (s *QuizService) GoTo(ctx context.Context, userID string, index int) (model.SessionView, error) {
	return s.mutate(userID, func(e *quiz.Engine) error { return e.GoTo(ctx, index) })
}

func (s *QuizService) Next(ctx context.Context, userID string) (model.SessionView, error) {
	return s.mutate(userID, func(e *quiz.Engine) error { return e.Next(ctx) })
}

func (s *QuizService) Prev(ctx context.Context, userID string) (model.SessionView, error) {
	return s.mutate(userID, func(e *quiz.Engine) error { return e.Prev(ctx) })
}

// Answer toggles option on the current question.
func (s *QuizService) Answer(ctx context.Context, userID, option string) (model.SessionView, error) {
	return s.mutate(userID, func(e *quiz.Engine) error { return e.SelectOption(ctx, option) })
}

func (s *QuizService) ToggleReview(ctx context.Context, userID string) (model.SessionView, error) {
	return s.mutate(userID, func(e *quiz.Engine) error { return e.ToggleReview(ctx) })
}

// Summary returns the submit confirmation figures.
func (s *QuizService) Summary(userID string) (quiz.SubmitSummary, error) {
	hs, err := s.session(userID)
	if err != nil {
		return quiz.SubmitSummary{}, err
	}
	return hs.Engine.Summary(), nil
}

// Submit finalizes after the user confirmed.
func (s *QuizService) Submit(ctx context.Context, userID string) (quiz.Result, error) {
	hs, err := s.session(userID)
	if err != nil {
		return quiz.Result{}, err
	}
	return hs.Engine.Submit(ctx)
}

// ────────────────────────────────────────────────────────────────────────────
// Report
// ────────────────────────────────────────────────────────────────────────────

// Report opens the report of the finalized session.
func (s *QuizService) Report(ctx context.Context, userID string) (report.Report, error) {
	hs, err := s.session(userID)
	if err != nil {
		return report.Report{}, report.ErrNoResult
	}
	return hs.Report.Open(ctx)
}

// Explain opens the sidebar for a report row.
func (s *QuizService) Explain(ctx context.Context, userID string, index int) (report.Sidebar, error) {
	hs, err := s.session(userID)
	if err != nil {
		return report.Sidebar{}, report.ErrNoResult
	}
	return hs.Report.Explain(ctx, index)
}

func (s *QuizService) Sidebar(userID string) (report.Sidebar, error) {
	hs, err := s.session(userID)
	if err != nil {
		return report.Sidebar{}, report.ErrNoResult
	}
	return hs.Report.Sidebar(), nil
}

func (s *QuizService) CloseSidebar(userID string) (report.Sidebar, error) {
	hs, err := s.session(userID)
	if err != nil {
		return report.Sidebar{}, report.ErrNoResult
	}
	return hs.Report.CloseSidebar(), nil
}

// ────────────────────────────────────────────────────────────────────────────
// Internal helpers
// ────────────────────────────────────────────────────────────────────────────

func (s *QuizService) acquire(userID string) *HostedSession {
	s.mu.Lock()
	defer s.mu.Unlock()

	if hs, ok := s.sessions[userID]; ok {
		hs.lastSeen = s.now()
		return hs
	}

	st := s.stores(userID)
	handoff := quiz.NewHandoff()
	hs := &HostedSession{
		UserID:   userID,
		Handoff:  handoff,
		Store:    st,
		lastSeen: s.now(),
	}
	hs.Engine = quiz.NewEngine(st, s.provider, handoff, s.log.With().Str("user_id", userID).Logger(), quiz.Config{
		Duration: s.cfg.QuizDuration,
		Observer: &sessionObserver{svc: s, userID: userID},
	})
	hs.Report = report.NewAssembler(handoff, st, s.explainer, s.cfg.ExplanationReqTimeout, s.log)
	s.sessions[userID] = hs
	return hs
}

func (s *QuizService) session(userID string) (*HostedSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	hs, ok := s.sessions[userID]
	if !ok {
		return nil, ErrNoSession
	}
	hs.lastSeen = s.now()
	return hs, nil
}

func (s *QuizService) mutate(userID string, fn func(e *quiz.Engine) error) (model.SessionView, error) {
	hs, err := s.session(userID)
	if err != nil {
		return model.SessionView{}, err
	}
	if err := fn(hs.Engine); err != nil {
		return s.view(hs), err
	}
	return s.view(hs), nil
}

func (s *QuizService) view(hs *HostedSession) model.SessionView {
	st, phase := hs.Engine.Snapshot()
	return model.NewSessionView(st, phase, quiz.BatchSize)
}

// startClock starts the countdown once. It reports false when the session
// was already evicted.
func (s *QuizService) startClock(hs *HostedSession) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if hs.evicted {
		return false
	}
	hs.clockOnce.Do(func() {
		ctx, cancel := context.WithCancel(context.Background())
		hs.cancel = cancel
		hs.done = make(chan struct{})
		s.clocks.Add(1)
		go func() {
			defer s.clocks.Done()
			defer close(hs.done)
			quiz.RunClock(ctx, hs.Engine, s.tick, func(remaining int) {
				s.publish(ctx, hs.UserID, ws.NewTickEvent(remaining))
			})
		}()
	})
	return true
}

// teardown cancels the countdown of an evicted session, waits for its final
// flush and closes the engine.
func (s *QuizService) teardown(ctx context.Context, hs *HostedSession) {
	s.mu.Lock()
	cancel, done := hs.cancel, hs.done
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	hs.Engine.OnTeardown(context.WithoutCancel(ctx))
}

func (s *QuizService) publish(ctx context.Context, userID string, event any) {
	if s.rdb == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	if err := s.rdb.Publish(ctx, config.CacheKey.QuizEventsChannel(userID), payload).Err(); err != nil {
		s.log.Debug().Err(err).Str("user_id", userID).Msg("Publish quiz event failed")
	}
}

// sessionObserver forwards engine side effects of one user.
type sessionObserver struct {
	svc    *QuizService
	userID string
}

func (o *sessionObserver) Notice(ctx context.Context, n quiz.Notice) {
	o.svc.publish(ctx, o.userID, ws.NewNoticeEvent(n))
}

func (o *sessionObserver) Finalized(ctx context.Context, r quiz.Result) {
	ctx = context.WithoutCancel(ctx)
	o.svc.publish(ctx, o.userID, ws.NewFinalizedEvent(r))

	if o.svc.recorder == nil {
		return
	}
	if err := o.svc.recorder.RecordCompletion(ctx, o.userID, r); err != nil {
		o.svc.log.Warn().Err(err).Str("user_id", o.userID).Msg("Record completion failed")
	}
}
