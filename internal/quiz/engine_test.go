package quiz_test

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"reflect"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/quizmaster-backend/internal/quiz"
	"github.com/stemsi/quizmaster-backend/internal/store"
)

type fakeProvider struct {
	mu    sync.Mutex
	calls int
	errs  []error
	gate  chan struct{}
}

func (p *fakeProvider) FetchBatch(ctx context.Context, amount int) ([]quiz.RawQuestion, error) {
	p.mu.Lock()
	p.calls++
	var err error
	if len(p.errs) > 0 {
		err, p.errs = p.errs[0], p.errs[1:]
	}
	gate := p.gate
	p.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	return rawBatch(amount), nil
}

func (p *fakeProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func rawBatch(n int) []quiz.RawQuestion {
	out := make([]quiz.RawQuestion, n)
	for i := range out {
		out[i] = quiz.RawQuestion{
			Text:      fmt.Sprintf("Question %d?", i),
			Correct:   fmt.Sprintf("right-%d", i),
			Incorrect: []string{fmt.Sprintf("wrong-%d-a", i), fmt.Sprintf("wrong-%d-b", i), fmt.Sprintf("wrong-%d-c", i)},
		}
	}
	return out
}

type recorder struct {
	mu        sync.Mutex
	notices   []quiz.Notice
	finalized []quiz.Result
}

func (r *recorder) Notice(_ context.Context, n quiz.Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, n)
}

func (r *recorder) Finalized(_ context.Context, res quiz.Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finalized = append(r.finalized, res)
}

type harness struct {
	engine   *quiz.Engine
	store    *store.MemoryStore
	provider *fakeProvider
	handoff  *quiz.Handoff
	rec      *recorder
}

func newHarness(t *testing.T, st *store.MemoryStore, duration int) *harness {
	t.Helper()
	if st == nil {
		st = store.NewMemoryStore()
	}
	h := &harness{
		store:    st,
		provider: &fakeProvider{},
		handoff:  quiz.NewHandoff(),
		rec:      &recorder{},
	}
	h.engine = quiz.NewEngine(h.store, h.provider, h.handoff, zerolog.Nop(), quiz.Config{
		Duration: duration,
		Observer: h.rec,
		Rand:     rand.New(rand.NewPCG(1, 2)),
	})
	return h
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	if err := h.engine.OnSessionStart(ctx, "token"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := h.engine.FetchQuestions(ctx); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if got := h.engine.Phase(); got != quiz.PhaseInProgress {
		t.Fatalf("expected in progress, got %s", got)
	}
}

func (h *harness) option(t *testing.T, index, pick int) string {
	t.Helper()
	st, _ := h.engine.Snapshot()
	return st.Questions[index].Options[pick]
}

func TestEntryGuardRequiresCredential(t *testing.T) {
	h := newHarness(t, nil, 0)

	err := h.engine.OnSessionStart(context.Background(), "")
	if !errors.Is(err, quiz.ErrNoCredential) {
		t.Fatalf("expected ErrNoCredential, got %v", err)
	}
	if h.engine.Phase() != quiz.PhaseNotStarted {
		t.Fatalf("guard must not change phase, got %s", h.engine.Phase())
	}
	if h.provider.Calls() != 0 {
		t.Fatalf("guard must not fetch")
	}
}

func TestBatchBuildsShuffledQuestions(t *testing.T) {
	h := newHarness(t, nil, 0)
	h.start(t)

	st, _ := h.engine.Snapshot()
	if len(st.Questions) != quiz.BatchSize {
		t.Fatalf("expected %d questions, got %d", quiz.BatchSize, len(st.Questions))
	}
	positions := map[int]bool{}
	for i, q := range st.Questions {
		if len(q.Options) != 4 {
			t.Fatalf("question %d: expected 4 options, got %d", i, len(q.Options))
		}
		pos := slices.Index(q.Options, q.CorrectOption)
		if pos < 0 {
			t.Fatalf("question %d: correct option missing from %v", i, q.Options)
		}
		positions[pos] = true
	}
	if len(positions) < 2 {
		t.Fatalf("correct option always at the same position: %v", positions)
	}
	if !st.Visited.Has(0) || st.CurrentIndex != 0 || st.TimeRemaining != quiz.DefaultDuration {
		t.Fatalf("unexpected fresh state: %+v", st)
	}
}

func TestSelectOptionTwiceClearsAnswer(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil, 0)
	h.start(t)

	for idx := 0; idx < 4; idx++ {
		if err := h.engine.GoTo(ctx, idx); err != nil {
			t.Fatalf("goto: %v", err)
		}
		opt := h.option(t, idx, idx%4)
		if err := h.engine.SelectOption(ctx, opt); err != nil {
			t.Fatalf("select: %v", err)
		}
		if err := h.engine.SelectOption(ctx, opt); err != nil {
			t.Fatalf("select again: %v", err)
		}
		st, _ := h.engine.Snapshot()
		if _, ok := st.Answers[idx]; ok {
			t.Fatalf("index %d: double toggle must leave no answer, got %q", idx, st.Answers[idx])
		}
	}
}

func TestSelectOptionOverwritesDifferentOption(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil, 0)
	h.start(t)

	first, second := h.option(t, 0, 0), h.option(t, 0, 1)
	_ = h.engine.SelectOption(ctx, first)
	_ = h.engine.SelectOption(ctx, second)

	st, _ := h.engine.Snapshot()
	if st.Answers[0] != second {
		t.Fatalf("expected %q, got %q", second, st.Answers[0])
	}
	if err := h.engine.SelectOption(ctx, "not an option"); !errors.Is(err, quiz.ErrUnknownOption) {
		t.Fatalf("expected ErrUnknownOption, got %v", err)
	}
}

func TestVisitedEqualsNavigatedIndicesPlusZero(t *testing.T) {
	ctx := context.Background()
	sequences := [][]int{
		{},
		{3, 7, 3, 14, 1},
		{14, 13, 12},
		{0, 0, 0},
	}
	for _, seq := range sequences {
		h := newHarness(t, nil, 0)
		h.start(t)

		want := quiz.NewIndexSet(0)
		for _, idx := range seq {
			if err := h.engine.GoTo(ctx, idx); err != nil {
				t.Fatalf("goto %d: %v", idx, err)
			}
			want.Add(idx)
		}
		st, _ := h.engine.Snapshot()
		if !reflect.DeepEqual(st.Visited.Sorted(), want.Sorted()) {
			t.Fatalf("seq %v: visited %v, want %v", seq, st.Visited.Sorted(), want.Sorted())
		}
	}
}

func TestNavigationBounds(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil, 0)
	h.start(t)

	if err := h.engine.Prev(ctx); !errors.Is(err, quiz.ErrIndexOutOfRange) {
		t.Fatalf("prev at 0: expected ErrIndexOutOfRange, got %v", err)
	}
	_ = h.engine.GoTo(ctx, 14)
	if err := h.engine.Next(ctx); !errors.Is(err, quiz.ErrIndexOutOfRange) {
		t.Fatalf("next at 14: expected ErrIndexOutOfRange, got %v", err)
	}
	if err := h.engine.Prev(ctx); err != nil || h.engine.CurrentIndex() != 13 {
		t.Fatalf("prev from 14: err=%v index=%d", err, h.engine.CurrentIndex())
	}
}

func TestReviewIsIndependentOfAnswers(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil, 0)
	h.start(t)

	_ = h.engine.ToggleReview(ctx)
	st, _ := h.engine.Snapshot()
	if !st.Reviewed.Has(0) || len(st.Answers) != 0 {
		t.Fatalf("review must not answer: %+v", st)
	}
	_ = h.engine.SelectOption(ctx, h.option(t, 0, 2))
	_ = h.engine.ToggleReview(ctx)
	st, _ = h.engine.Snapshot()
	if st.Reviewed.Has(0) || st.Answers[0] == "" {
		t.Fatalf("unreview must keep answer: %+v", st)
	}
}

func TestNoticesFireOnceAtExactMarks(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil, 905)
	h.start(t)

	for {
		remaining, err := h.engine.OnTick(ctx)
		if err != nil {
			t.Fatalf("tick: %v", err)
		}
		if remaining == 30 {
			break
		}
	}

	if len(h.rec.notices) != 2 {
		t.Fatalf("expected 2 notices, got %+v", h.rec.notices)
	}
	if h.rec.notices[0].Kind != quiz.NoticeHalfway || h.rec.notices[0].Remaining != quiz.HalfwayMark {
		t.Fatalf("unexpected first notice %+v", h.rec.notices[0])
	}
	if h.rec.notices[1].Kind != quiz.NoticeFinalMinute || !h.rec.notices[1].Urgent {
		t.Fatalf("unexpected second notice %+v", h.rec.notices[1])
	}
}

func TestCountdownFinalizesExactlyOnce(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil, 3)
	h.start(t)

	var seen []int
	for i := 0; i < 6; i++ {
		remaining, err := h.engine.OnTick(ctx)
		if err != nil && !errors.Is(err, quiz.ErrCompleted) {
			t.Fatalf("tick: %v", err)
		}
		if remaining < 0 {
			t.Fatalf("negative countdown %d", remaining)
		}
		if err == nil {
			seen = append(seen, remaining)
		}
	}

	if !reflect.DeepEqual(seen, []int{2, 1, 0}) {
		t.Fatalf("unexpected countdown %v", seen)
	}
	if len(h.rec.finalized) != 1 {
		t.Fatalf("expected one finalization, got %d", len(h.rec.finalized))
	}
	if h.rec.finalized[0].Reason != quiz.ReasonTimeout {
		t.Fatalf("expected timeout reason, got %s", h.rec.finalized[0].Reason)
	}
}

func TestTimeoutFinalizesWithExistingAnswers(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil, 10)
	h.start(t)

	for idx := 0; idx < 5; idx++ {
		_ = h.engine.GoTo(ctx, idx)
		_ = h.engine.SelectOption(ctx, h.option(t, idx, 0))
	}
	for h.engine.Phase() != quiz.PhaseCompleted {
		if _, err := h.engine.OnTick(ctx); err != nil {
			t.Fatalf("tick: %v", err)
		}
	}

	done, _ := h.store.Completed(ctx)
	if !done {
		t.Fatalf("completed flag not persisted")
	}
	if saved, _ := h.store.Load(ctx); saved != nil {
		t.Fatalf("per-session fields must be cleared, got %+v", saved)
	}
	res, ok := h.handoff.Take()
	if !ok || len(res.Answers) != 5 || len(res.Questions) != quiz.BatchSize {
		t.Fatalf("unexpected handoff ok=%v result=%+v", ok, res)
	}
}

func TestManualSubmitHandsOffResult(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil, 0)
	h.start(t)

	for idx := 0; idx < 3; idx++ {
		_ = h.engine.GoTo(ctx, idx)
		_ = h.engine.SelectOption(ctx, h.option(t, idx, idx))
	}
	_ = h.engine.ToggleReview(ctx)

	sum := h.engine.Summary()
	if sum.Attempted != 3 || sum.Total != 15 || sum.Reviewed != 1 {
		t.Fatalf("unexpected summary %+v", sum)
	}

	res, err := h.engine.Submit(ctx)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.Reason != quiz.ReasonManual || len(res.Answers) != 3 {
		t.Fatalf("unexpected result %+v", res)
	}
	taken, ok := h.handoff.Take()
	if !ok || !reflect.DeepEqual(taken.Answers, res.Answers) {
		t.Fatalf("handoff mismatch: %+v", taken)
	}
	if _, ok := h.handoff.Take(); ok {
		t.Fatalf("handoff must be single-consume")
	}
}

func TestCompletionIsOneWay(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil, 0)
	h.start(t)
	_ = h.engine.SelectOption(ctx, h.option(t, 0, 1))
	if _, err := h.engine.Submit(ctx); err != nil {
		t.Fatalf("submit: %v", err)
	}
	before, _ := h.engine.Snapshot()

	mutations := map[string]func() error{
		"goto":   func() error { return h.engine.GoTo(ctx, 4) },
		"select": func() error { return h.engine.SelectOption(ctx, before.Questions[0].Options[0]) },
		"review": func() error { return h.engine.ToggleReview(ctx) },
		"tick":   func() error { _, err := h.engine.OnTick(ctx); return err },
		"submit": func() error { _, err := h.engine.Submit(ctx); return err },
	}
	for name, fn := range mutations {
		if err := fn(); !errors.Is(err, quiz.ErrCompleted) {
			t.Fatalf("%s: expected ErrCompleted, got %v", name, err)
		}
	}
	after, _ := h.engine.Snapshot()
	if !reflect.DeepEqual(before, after) {
		t.Fatalf("state changed after completion")
	}

	// A reload against the same store goes back to the entry screen.
	reload := newHarness(t, h.store, 0)
	if err := reload.engine.OnSessionStart(ctx, "token"); !errors.Is(err, quiz.ErrCompleted) {
		t.Fatalf("expected ErrCompleted on rehydrate, got %v", err)
	}
	if reload.provider.Calls() != 0 {
		t.Fatalf("completed session must not fetch")
	}
}

func TestRehydrateRestoresIdenticalState(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil, 0)
	h.start(t)

	_ = h.engine.GoTo(ctx, 5)
	_ = h.engine.SelectOption(ctx, h.option(t, 5, 3))
	_ = h.engine.ToggleReview(ctx)
	_ = h.engine.GoTo(ctx, 9)
	for i := 0; i < 42; i++ {
		_, _ = h.engine.OnTick(ctx)
	}
	want, _ := h.engine.Snapshot()

	reload := newHarness(t, h.store, 0)
	if err := reload.engine.OnSessionStart(ctx, "token"); err != nil {
		t.Fatalf("rehydrate: %v", err)
	}
	if err := reload.engine.FetchQuestions(ctx); err != nil {
		t.Fatalf("fetch after rehydrate: %v", err)
	}
	got, phase := reload.engine.Snapshot()
	if phase != quiz.PhaseInProgress {
		t.Fatalf("expected in progress, got %s", phase)
	}
	if reload.provider.Calls() != 0 {
		t.Fatalf("rehydrated session must not fetch")
	}
	if !reflect.DeepEqual(want, got) {
		t.Fatalf("rehydrated state differs:\nwant %+v\ngot  %+v", want, got)
	}
	if got.TimeRemaining != quiz.DefaultDuration-42 {
		t.Fatalf("expected partially elapsed timer, got %d", got.TimeRemaining)
	}
}

func TestRehydrateWithExpiredTimerFinalizes(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	expired := quiz.NewState(0)
	expired.Questions = []quiz.Question{{Text: "q", Options: []string{"a", "b", "c", "d"}, CorrectOption: "a"}}
	if err := st.Save(ctx, &expired); err != nil {
		t.Fatalf("seed: %v", err)
	}

	h := newHarness(t, st, 0)
	if err := h.engine.OnSessionStart(ctx, "token"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if h.engine.Phase() != quiz.PhaseCompleted || len(h.rec.finalized) != 1 {
		t.Fatalf("expected immediate finalization, phase=%s", h.engine.Phase())
	}
}

func TestFetchGuardAllowsOneOutstandingRequest(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil, 0)
	h.provider.gate = make(chan struct{})

	if err := h.engine.OnSessionStart(ctx, "token"); err != nil {
		t.Fatalf("start: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = h.engine.FetchQuestions(ctx)
		}()
	}

	deadline := time.Now().Add(2 * time.Second)
	for h.provider.Calls() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	// The countdown keeps running while the request is outstanding.
	if remaining, err := h.engine.OnTick(ctx); err != nil || remaining != quiz.DefaultDuration-1 {
		t.Fatalf("tick during fetch: remaining=%d err=%v", remaining, err)
	}
	close(h.provider.gate)
	wg.Wait()

	if calls := h.provider.Calls(); calls != 1 {
		t.Fatalf("expected exactly one fetch, got %d", calls)
	}
	if h.engine.Phase() != quiz.PhaseInProgress {
		t.Fatalf("expected in progress, got %s", h.engine.Phase())
	}
}

func TestFetchFailureAllowsExplicitRetry(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil, 0)
	h.provider.errs = []error{errors.New("upstream down")}

	_ = h.engine.OnSessionStart(ctx, "token")
	if err := h.engine.FetchQuestions(ctx); err == nil {
		t.Fatalf("expected fetch error")
	}
	if h.engine.Phase() != quiz.PhaseFetchFailed {
		t.Fatalf("expected fetch failed, got %s", h.engine.Phase())
	}
	if err := h.engine.GoTo(ctx, 1); !errors.Is(err, quiz.ErrNotReady) {
		t.Fatalf("expected ErrNotReady, got %v", err)
	}

	if err := h.engine.FetchQuestions(ctx); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if h.engine.Phase() != quiz.PhaseInProgress || h.provider.Calls() != 2 {
		t.Fatalf("retry did not load: phase=%s calls=%d", h.engine.Phase(), h.provider.Calls())
	}
}

func TestRunClockStopsAfterFinalization(t *testing.T) {
	h := newHarness(t, nil, 3)
	h.start(t)

	var mu sync.Mutex
	var ticks []int
	done := make(chan struct{})
	go func() {
		quiz.RunClock(context.Background(), h.engine, time.Millisecond, func(r int) {
			mu.Lock()
			ticks = append(ticks, r)
			mu.Unlock()
		})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("clock did not stop")
	}
	mu.Lock()
	defer mu.Unlock()
	if !reflect.DeepEqual(ticks, []int{2, 1, 0}) {
		t.Fatalf("unexpected ticks %v", ticks)
	}
	if len(h.rec.finalized) != 1 {
		t.Fatalf("expected one finalization, got %d", len(h.rec.finalized))
	}
}

func TestEngineClosedAfterTeardown(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil, quiz.DefaultDuration)
	h.start(t)
	if err := h.engine.GoTo(ctx, 4); err != nil {
		t.Fatalf("goto: %v", err)
	}

	h.engine.OnTeardown(ctx)
	h.engine.OnTeardown(ctx)
	saved, _ := h.store.Load(ctx)
	if saved == nil || saved.CurrentIndex != 4 {
		t.Fatalf("teardown must flush the state, got %+v", saved)
	}
	_ = h.store.Reset(ctx)

	calls := map[string]func() error{
		"start":  func() error { return h.engine.OnSessionStart(ctx, "token") },
		"fetch":  func() error { return h.engine.FetchQuestions(ctx) },
		"goto":   func() error { return h.engine.GoTo(ctx, 1) },
		"select": func() error { return h.engine.SelectOption(ctx, "right-4") },
		"review": func() error { return h.engine.ToggleReview(ctx) },
		"tick":   func() error { _, err := h.engine.OnTick(ctx); return err },
		"submit": func() error { _, err := h.engine.Submit(ctx); return err },
	}
	for name, fn := range calls {
		if err := fn(); !errors.Is(err, quiz.ErrClosed) {
			t.Fatalf("%s: expected ErrClosed, got %v", name, err)
		}
	}
	for _, field := range store.Fields {
		if h.store.Has(field) {
			t.Fatalf("closed engine wrote %q", field)
		}
	}
	if done, _ := h.store.Completed(ctx); done || h.handoff.Pending() {
		t.Fatal("closed engine must not finalize")
	}
}

func TestEngineTeardownDuringFetchDropsBatch(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil, quiz.DefaultDuration)
	h.provider.gate = make(chan struct{})
	if err := h.engine.OnSessionStart(ctx, "token"); err != nil {
		t.Fatalf("start: %v", err)
	}

	fetched := make(chan error, 1)
	go func() { fetched <- h.engine.FetchQuestions(ctx) }()
	for h.provider.Calls() == 0 {
		time.Sleep(time.Millisecond)
	}
	h.engine.OnTeardown(ctx)
	close(h.provider.gate)

	if err := <-fetched; !errors.Is(err, quiz.ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if h.store.Has("questions") {
		t.Fatal("batch persisted after teardown")
	}
}

func TestRunClockStopsOnClosedEngine(t *testing.T) {
	h := newHarness(t, nil, quiz.DefaultDuration)
	h.start(t)
	h.engine.OnTeardown(context.Background())

	done := make(chan struct{})
	go func() {
		quiz.RunClock(context.Background(), h.engine, time.Millisecond, nil)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("clock kept running on a closed engine")
	}
}

type batchProvider []quiz.RawQuestion

func (p batchProvider) FetchBatch(context.Context, int) ([]quiz.RawQuestion, error) {
	return p, nil
}

func TestSelectOptionMatchesDecodedText(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	e := quiz.NewEngine(st, batchProvider{{
		Text:      "Who chases whom?",
		Correct:   "Tom &amp; Jerry",
		Incorrect: []string{"Bugs &amp; Daffy", "Itchy", "Scratchy"},
	}}, quiz.NewHandoff(), zerolog.Nop(), quiz.Config{BatchSize: 1})
	if err := e.OnSessionStart(ctx, "token"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := e.FetchQuestions(ctx); err != nil {
		t.Fatalf("fetch: %v", err)
	}

	if err := e.SelectOption(ctx, " Tom & Jerry"); err != nil {
		t.Fatalf("select decoded option: %v", err)
	}
	snap, _ := e.Snapshot()
	if snap.Answers[0] != "Tom &amp; Jerry" {
		t.Fatalf("answer must be stored as provided, got %q", snap.Answers[0])
	}
	if err := e.SelectOption(ctx, "Tom &amp; Jerry"); err != nil {
		t.Fatalf("select raw option: %v", err)
	}
	if snap, _ := e.Snapshot(); len(snap.Answers) != 0 {
		t.Fatalf("second selection must clear, got %v", snap.Answers)
	}
	if err := e.SelectOption(ctx, "Tom and Jerry"); !errors.Is(err, quiz.ErrUnknownOption) {
		t.Fatalf("expected ErrUnknownOption, got %v", err)
	}
}

func TestFinalizeClearsPersistedFields(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil, quiz.DefaultDuration)
	h.start(t)
	if _, err := h.engine.OnTick(ctx); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if !h.store.Has("time_left") {
		t.Fatal("tick must persist the countdown")
	}
	if _, err := h.engine.Submit(ctx); err != nil {
		t.Fatalf("submit: %v", err)
	}
	for _, field := range store.Fields {
		if h.store.Has(field) {
			t.Fatalf("field %q survived finalization", field)
		}
	}
}
