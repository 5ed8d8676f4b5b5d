package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Reaper evicts hosted sessions idle for longer than the given duration.
type Reaper interface {
	Reap(idle time.Duration) int
	Active() int
}

// SessionReaper periodically evicts idle hosted quiz sessions. Their state
// stays in Redis and is rehydrated on the next start.
type SessionReaper struct {
	reaper   Reaper
	idle     time.Duration
	interval time.Duration
	log      zerolog.Logger
}

// NewSessionReaper creates a new SessionReaper.
func NewSessionReaper(reaper Reaper, idle, interval time.Duration, log zerolog.Logger) *SessionReaper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &SessionReaper{
		reaper:   reaper,
		idle:     idle,
		interval: interval,
		log:      log.With().Str("component", "session_reaper").Logger(),
	}
}

// Start runs until ctx is cancelled. Call in a goroutine.
func (w *SessionReaper) Start(ctx context.Context) {
	w.log.Info().Dur("idle", w.idle).Msg("Worker started")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopped")
			return
		case <-ticker.C:
			if n := w.reaper.Reap(w.idle); n > 0 {
				w.log.Info().Int("evicted", n).Int("active", w.reaper.Active()).Msg("Idle sessions evicted")
			}
		}
	}
}
