package jobs

import (
	"context"
	"sync"
)

// Handle refers to an enqueued job.
type Handle struct {
	ID   string // uuid, assigned at enqueue
	Name string // empty for one-shot jobs

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu   sync.Mutex
	runs int
	last Result
}

// Done is closed when the job will not run again.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Runs returns how many times the job has executed.
func (h *Handle) Runs() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.runs
}

// LastResult returns the result of the most recent run, or nil before the
// first one.
func (h *Handle) LastResult() Result {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.last
}

func (h *Handle) record(res Result) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.runs++
	h.last = res
}

func (h *Handle) label() string {
	if h.Name == "" {
		return "once"
	}
	return h.Name
}
