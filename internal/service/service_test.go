package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/quizmaster-backend/internal/config"
	"github.com/stemsi/quizmaster-backend/internal/model"
	"github.com/stemsi/quizmaster-backend/internal/quiz"
	"github.com/stemsi/quizmaster-backend/internal/report"
	"github.com/stemsi/quizmaster-backend/internal/store"
)

func testConfig() *config.Config {
	return &config.Config{
		JWTSecret:             "test-secret",
		JWTExpiry:             30 * time.Minute,
		GeminiConcurrentReqs:  2,
		ExplanationCacheTTL:   time.Hour,
		ExplanationReqTimeout: time.Second,
		QuizDuration:          quiz.DefaultDuration,
		QuizStateTTL:          time.Hour,
	}
}

func newRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb, mr
}

// ─── AuthService ────────────────────────────────────────────────────

type memoryUsers struct {
	mu    sync.Mutex
	users map[string]*model.User
}

func (m *memoryUsers) FindOrCreateByEmail(_ context.Context, email string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.users == nil {
		m.users = make(map[string]*model.User)
	}
	if u, ok := m.users[email]; ok {
		return u, nil
	}
	u := &model.User{ID: uuid.New(), Email: email}
	m.users[email] = u
	return u, nil
}

func TestAuthServiceStartReusesUserPerEmail(t *testing.T) {
	users := &memoryUsers{}
	svc := NewAuthService(testConfig(), users)

	tok1, u1, err := svc.Start(context.Background(), "a@b.com")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	_, u2, _ := svc.Start(context.Background(), " a@b.com ")
	if u1.ID != u2.ID {
		t.Fatalf("expected one user per email")
	}

	claims, err := svc.ValidateToken(tok1)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.UserID != u1.ID.String() || claims.Email != "a@b.com" {
		t.Fatalf("unexpected claims %+v", claims)
	}
	if got := claims.ExpiresAt.Sub(claims.IssuedAt.Time); got != 30*time.Minute {
		t.Fatalf("expected 30m validity, got %s", got)
	}
}

func TestAuthServiceRejectsExpiredAndForeignTokens(t *testing.T) {
	svc := NewAuthService(testConfig(), &memoryUsers{})
	tok, _, _ := svc.Start(context.Background(), "late@b.com")

	svc.now = func() time.Time { return time.Now().Add(31 * time.Minute) }
	if _, err := svc.ValidateToken(tok); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}

	other := NewAuthService(&config.Config{JWTSecret: "other", JWTExpiry: time.Minute}, &memoryUsers{})
	foreign, _, _ := other.Start(context.Background(), "x@y.com")
	svc.now = time.Now
	if _, err := svc.ValidateToken(foreign); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
	if _, err := svc.ValidateToken("garbage"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

// ─── ExplainService ─────────────────────────────────────────────────

type fakeGenerator struct {
	calls   atomic.Int32
	active  atomic.Int32
	peak    atomic.Int32
	err     error
	prompts chan string
	delay   time.Duration
}

func (g *fakeGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	g.calls.Add(1)
	n := g.active.Add(1)
	defer g.active.Add(-1)
	for {
		p := g.peak.Load()
		if n <= p || g.peak.CompareAndSwap(p, n) {
			break
		}
	}
	if g.prompts != nil {
		g.prompts <- prompt
	}
	time.Sleep(g.delay)
	if g.err != nil {
		return "", g.err
	}
	return "Generated: " + prompt, nil
}

func TestExplainServiceBuildsPromptAndCaches(t *testing.T) {
	rdb, _ := newRedis(t)
	gen := &fakeGenerator{prompts: make(chan string, 1)}
	svc := NewExplainService(testConfig(), gen, rdb, zerolog.Nop())

	text, err := svc.Explain(context.Background(), "Capital of France?", "Paris")
	if err != nil {
		t.Fatalf("explain: %v", err)
	}
	want := `Act as a helpful tutor. Explain in 2 sentences why "Paris" is the correct answer to: "Capital of France?".`
	if got := <-gen.prompts; got != want {
		t.Fatalf("unexpected prompt %q", got)
	}

	gen.prompts = nil
	again, _ := svc.Explain(context.Background(), "Capital of France?", "Paris")
	if again != text || gen.calls.Load() != 1 {
		t.Fatalf("expected cache hit, calls=%d", gen.calls.Load())
	}
}

func TestExplainServiceWrapsGeneratorFailure(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("quota exceeded")}
	svc := NewExplainService(testConfig(), gen, nil, zerolog.Nop())

	_, err := svc.Explain(context.Background(), "q", "a")
	if !errors.Is(err, ErrGeneration) {
		t.Fatalf("expected ErrGeneration, got %v", err)
	}
}

func TestExplainServiceCapsConcurrency(t *testing.T) {
	gen := &fakeGenerator{delay: 20 * time.Millisecond}
	svc := NewExplainService(testConfig(), gen, nil, zerolog.Nop())

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = svc.Explain(context.Background(), fmt.Sprintf("q%d", i), "a")
		}(i)
	}
	wg.Wait()
	if peak := gen.peak.Load(); peak > 2 {
		t.Fatalf("expected at most 2 concurrent calls, got %d", peak)
	}
}

// ─── QuizService ────────────────────────────────────────────────────

type stubProvider struct{ calls atomic.Int32 }

func (p *stubProvider) FetchBatch(_ context.Context, amount int) ([]quiz.RawQuestion, error) {
	p.calls.Add(1)
	out := make([]quiz.RawQuestion, amount)
	for i := range out {
		out[i] = quiz.RawQuestion{
			Text:      fmt.Sprintf("Q%d &amp; friends", i),
			Correct:   fmt.Sprintf("Tom &amp; Jerry %d", i),
			Incorrect: []string{"x", "y", "z"},
		}
	}
	return out, nil
}

type staticExplainer struct{}

func (staticExplainer) Explain(_ context.Context, q, a string) (string, error) {
	return "because " + a, nil
}

type recordedCompletion struct {
	mu      sync.Mutex
	ids     []string
	reasons []quiz.Reason
}

func (r *recordedCompletion) RecordCompletion(_ context.Context, userID string, res quiz.Result) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, userID)
	r.reasons = append(r.reasons, res.Reason)
	return nil
}

func newQuizService(t *testing.T) (*QuizService, map[string]*store.MemoryStore, *recordedCompletion) {
	t.Helper()
	stores := map[string]*store.MemoryStore{}
	var mu sync.Mutex
	rec := &recordedCompletion{}
	svc := NewQuizService(testConfig(), nil, &stubProvider{}, staticExplainer{}, QuizServiceOptions{
		Stores: func(userID string) SessionStore {
			mu.Lock()
			defer mu.Unlock()
			if st, ok := stores[userID]; ok {
				return st
			}
			st := store.NewMemoryStore()
			stores[userID] = st
			return st
		},
		Recorder:     rec,
		TickInterval: time.Hour,
	}, zerolog.Nop())
	t.Cleanup(svc.Shutdown)
	return svc, stores, rec
}

func TestQuizServiceFullAttempt(t *testing.T) {
	ctx := context.Background()
	svc, stores, rec := newQuizService(t)
	userID := uuid.New().String()

	view, err := svc.Start(ctx, userID, "token")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if view.Phase != quiz.PhaseInProgress || view.Question == nil || view.Total != 15 {
		t.Fatalf("unexpected view %+v", view)
	}
	if view.Clock != "30:00" || view.Urgent {
		t.Fatalf("unexpected clock %q urgent=%v", view.Clock, view.Urgent)
	}

	// Options are displayed decoded and accepted back in that form.
	view, err = svc.Answer(ctx, userID, "Tom & Jerry 0")
	if err != nil {
		t.Fatalf("answer: %v", err)
	}
	if view.Question.Selected != "Tom & Jerry 0" || view.Attempted != 1 {
		t.Fatalf("answer not recorded: %+v", view.Question)
	}
	if _, err := svc.GoTo(ctx, userID, 3); err != nil {
		t.Fatalf("goto: %v", err)
	}
	view, _ = svc.ToggleReview(ctx, userID)
	if view.Tiles[3].Status != quiz.TileVisited || !view.Tiles[3].Reviewed || view.Tiles[0].Status != quiz.TileAnswered {
		t.Fatalf("unexpected tiles %+v", view.Tiles[:4])
	}

	sum, _ := svc.Summary(userID)
	if sum.Attempted != 1 || sum.Reviewed != 1 {
		t.Fatalf("unexpected summary %+v", sum)
	}
	if _, err := svc.Submit(ctx, userID); err != nil {
		t.Fatalf("submit: %v", err)
	}

	rep, err := svc.Report(ctx, userID)
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if rep.Score != 1 || rep.Attempted != 1 || rep.Rows[1].YourAnswer != report.NotAttempted {
		t.Fatalf("unexpected report %+v", rep)
	}

	if _, err := svc.Explain(ctx, userID, 0); err != nil {
		t.Fatalf("explain: %v", err)
	}
	hs, _ := svc.session(userID)
	hs.Report.Wait()
	sb, _ := svc.Sidebar(userID)
	if sb.Explanation != "because Tom & Jerry 0" {
		t.Fatalf("unexpected sidebar %+v", sb)
	}

	if _, err := svc.Start(ctx, userID, "token"); !errors.Is(err, quiz.ErrCompleted) {
		t.Fatalf("expected ErrCompleted on re-entry, got %v", err)
	}
	done, _ := stores[userID].Completed(ctx)
	if !done {
		t.Fatalf("completed flag not stored")
	}
	if len(rec.ids) != 1 || rec.ids[0] != userID || rec.reasons[0] != quiz.ReasonManual {
		t.Fatalf("completion not recorded: %v %v", rec.ids, rec.reasons)
	}

	// A new credential wipes the scope and allows a fresh attempt.
	if err := svc.Reset(ctx, userID); err != nil {
		t.Fatalf("reset: %v", err)
	}
	view, err = svc.Start(ctx, userID, "token")
	if err != nil || view.Attempted != 0 || view.Phase != quiz.PhaseInProgress {
		t.Fatalf("fresh attempt failed: view=%+v err=%v", view, err)
	}
}

func TestQuizServiceRequiresSessionAndCredential(t *testing.T) {
	svc, _, _ := newQuizService(t)

	if _, err := svc.Start(context.Background(), "u1", ""); !errors.Is(err, quiz.ErrNoCredential) {
		t.Fatalf("expected ErrNoCredential, got %v", err)
	}
	if svc.Active() != 0 {
		t.Fatalf("guard must not host a session")
	}
	if _, err := svc.View("u1"); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
	if _, err := svc.Report(context.Background(), "u1"); !errors.Is(err, report.ErrNoResult) {
		t.Fatalf("expected ErrNoResult, got %v", err)
	}
}

func TestQuizServiceReapPersistsAndRehydrates(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newQuizService(t)

	_, _ = svc.Start(ctx, "u1", "token")
	_, _ = svc.GoTo(ctx, "u1", 7)

	svc.now = func() time.Time { return time.Now().Add(time.Hour) }
	if n := svc.Reap(30 * time.Minute); n != 1 {
		t.Fatalf("expected one eviction, got %d", n)
	}
	svc.now = time.Now

	view, err := svc.Start(ctx, "u1", "token")
	if err != nil {
		t.Fatalf("rehydrate: %v", err)
	}
	if view.Question.Index != 7 {
		t.Fatalf("expected rehydrated position 7, got %d", view.Question.Index)
	}
}

func TestQuizServicePublishesEvents(t *testing.T) {
	ctx := context.Background()
	rdb, _ := newRedis(t)
	cfg := testConfig()
	cfg.QuizDuration = 2

	svc := NewQuizService(cfg, rdb, &stubProvider{}, staticExplainer{}, QuizServiceOptions{
		Stores:       func(string) SessionStore { return store.NewMemoryStore() },
		TickInterval: 10 * time.Millisecond,
	}, zerolog.Nop())
	t.Cleanup(svc.Shutdown)

	sub := rdb.Subscribe(ctx, config.CacheKey.QuizEventsChannel("u1"))
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if _, err := svc.Start(ctx, "u1", "token"); err != nil {
		t.Fatalf("start: %v", err)
	}

	var got []string
	timeout := time.After(2 * time.Second)
	for len(got) < 2 {
		select {
		case msg := <-sub.Channel():
			got = append(got, msg.Payload)
		case <-timeout:
			t.Fatalf("timed out, got %v", got)
		}
	}
	if got[0] != `{"event":"tick","remaining":1,"clock":"0:01","urgent":true}` {
		t.Fatalf("unexpected tick %s", got[0])
	}
	if got[1] != `{"event":"finalized","reason":"timeout","attempted":0,"total":15}` {
		t.Fatalf("unexpected finalized %s", got[1])
	}
}

// gatedStore holds the first Completed call until release is closed.
type gatedStore struct {
	*store.MemoryStore
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (g *gatedStore) Completed(ctx context.Context) (bool, error) {
	g.once.Do(func() {
		close(g.entered)
		<-g.release
	})
	return g.MemoryStore.Completed(ctx)
}

func TestQuizServiceResetDuringStartLeavesNoOrphan(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.QuizDuration = 2
	gated := &gatedStore{
		MemoryStore: store.NewMemoryStore(),
		entered:     make(chan struct{}),
		release:     make(chan struct{}),
	}
	rec := &recordedCompletion{}
	svc := NewQuizService(cfg, nil, &stubProvider{}, staticExplainer{}, QuizServiceOptions{
		Stores:       func(string) SessionStore { return gated },
		Recorder:     rec,
		TickInterval: 5 * time.Millisecond,
	}, zerolog.Nop())
	t.Cleanup(svc.Shutdown)

	started := make(chan error, 1)
	go func() {
		_, err := svc.Start(ctx, "u1", "token")
		started <- err
	}()
	<-gated.entered

	reset := make(chan error, 1)
	go func() { reset <- svc.Reset(ctx, "u1") }()
	for svc.Active() != 0 {
		time.Sleep(time.Millisecond)
	}
	close(gated.release)

	if err := <-started; !errors.Is(err, ErrNoSession) {
		t.Fatalf("start interrupted by a reset must fail, got %v", err)
	}
	if err := <-reset; err != nil {
		t.Fatalf("reset: %v", err)
	}
	if _, err := svc.View("u1"); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected no hosted session, got %v", err)
	}

	// A leftover countdown of 2s at 5ms per tick would have expired by now.
	time.Sleep(50 * time.Millisecond)
	for _, field := range store.Fields {
		if gated.Has(field) {
			t.Fatalf("field %q written after reset", field)
		}
	}
	if done, _ := gated.Completed(ctx); done {
		t.Fatal("completed flag written after reset")
	}
	rec.mu.Lock()
	recorded := len(rec.ids)
	rec.mu.Unlock()
	if recorded != 0 {
		t.Fatalf("no attempt may be recorded, got %d", recorded)
	}

	// The scope is usable again.
	view, err := svc.Start(ctx, "u1", "token")
	if err != nil || view.Phase != quiz.PhaseInProgress {
		t.Fatalf("fresh start failed: view=%+v err=%v", view, err)
	}
}

func TestQuizServiceStartAfterShutdownIsRefused(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newQuizService(t)
	if _, err := svc.Start(ctx, "u1", "token"); err != nil {
		t.Fatalf("start: %v", err)
	}
	svc.Shutdown()

	if _, err := svc.Start(ctx, "u1", "token"); !errors.Is(err, quiz.ErrClosed) {
		t.Fatalf("expected ErrClosed after shutdown, got %v", err)
	}
	if _, err := svc.GoTo(ctx, "u1", 1); !errors.Is(err, quiz.ErrClosed) {
		t.Fatalf("expected ErrClosed after shutdown, got %v", err)
	}
}

func TestQuizServiceReapDropsUnopenedReport(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newQuizService(t)

	if _, err := svc.Start(ctx, "u1", "token"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := svc.Submit(ctx, "u1"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	hs, _ := svc.session("u1")
	if !hs.Handoff.Pending() {
		t.Fatal("finalized result must wait in the handoff")
	}

	svc.now = func() time.Time { return time.Now().Add(time.Hour) }
	if n := svc.Reap(30 * time.Minute); n != 1 {
		t.Fatalf("finalized sessions are reaped too, got %d evictions", n)
	}
	svc.now = time.Now

	if _, err := svc.Report(ctx, "u1"); !errors.Is(err, report.ErrNoResult) {
		t.Fatalf("expected ErrNoResult after eviction, got %v", err)
	}
	if _, err := svc.Start(ctx, "u1", "token"); !errors.Is(err, quiz.ErrCompleted) {
		t.Fatalf("completed flag must survive eviction, got %v", err)
	}
}
