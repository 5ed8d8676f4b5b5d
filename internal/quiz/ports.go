package quiz

import "context"

// Store persists the in-progress state of one session scope. Every field is
// written independently; Clear removes everything except the completed flag.
type Store interface {
	// Load returns the persisted state, or nil when nothing is stored.
	Load(ctx context.Context) (*State, error)
	Save(ctx context.Context, s *State) error
	SaveTimeRemaining(ctx context.Context, seconds int) error
	Completed(ctx context.Context) (bool, error)
	MarkCompleted(ctx context.Context) error
	Clear(ctx context.Context) error
}

// Provider supplies a batch of raw questions.
type Provider interface {
	FetchBatch(ctx context.Context, amount int) ([]RawQuestion, error)
}

// NoticeKind identifies a timer notice.
type NoticeKind string

const (
	NoticeHalfway     NoticeKind = "halfway"
	NoticeFinalMinute NoticeKind = "final_minute"
)

// Notice is raised once per session when the countdown hits a mark.
type Notice struct {
	Kind      NoticeKind `json:"kind"`
	Remaining int        `json:"remaining"`
	Message   string     `json:"message"`
	Urgent    bool       `json:"urgent"`
}

// Observer receives engine side effects. Calls happen outside the engine
// lock, so implementations may read the engine.
type Observer interface {
	Notice(ctx context.Context, n Notice)
	Finalized(ctx context.Context, r Result)
}

type nopObserver struct{}

func (nopObserver) Notice(context.Context, Notice)    {}
func (nopObserver) Finalized(context.Context, Result) {}
