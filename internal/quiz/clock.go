package quiz

import (
	"context"
	"errors"
	"time"
)

// RunClock is the driving loop for an engine's countdown. It calls OnTick
// once per interval until the session is finalized or ctx is cancelled, and
// reports every new remaining value to onTick (which may be nil). Call in a
// goroutine, after OnSessionStart succeeded.
func RunClock(ctx context.Context, e *Engine, interval time.Duration, onTick func(remaining int)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.OnTeardown(context.WithoutCancel(ctx))
			return
		case <-ticker.C:
			remaining, err := e.OnTick(ctx)
			if errors.Is(err, ErrCompleted) || errors.Is(err, ErrClosed) {
				return
			}
			if onTick != nil {
				onTick(remaining)
			}
			if remaining == 0 && e.Phase() == PhaseCompleted {
				return
			}
		}
	}
}
