package quiz

import "sync"

// Handoff carries the terminal Result from the engine to the report. The
// value can be taken exactly once.
type Handoff struct {
	mu     sync.Mutex
	result *Result
}

// NewHandoff returns an empty handoff.
func NewHandoff() *Handoff {
	return &Handoff{}
}

// Put stores r, replacing any value that was never taken.
func (h *Handoff) Put(r Result) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.result = &r
}

// Take returns the stored result and empties the handoff.
func (h *Handoff) Take() (Result, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.result == nil {
		return Result{}, false
	}
	r := *h.result
	h.result = nil
	return r, true
}

// Pending reports whether a result is waiting to be taken.
func (h *Handoff) Pending() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.result != nil
}
