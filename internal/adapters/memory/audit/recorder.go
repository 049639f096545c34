package audit

import (
	"context"
	"sync"

	"github.com/jasonsutter87/veilforms-api/internal/ports/out/audit"
)

// Recorder keeps audit events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []audit.Event
}

func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) Record(ctx context.Context, e audit.Event) {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *Recorder) Events() []audit.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]audit.Event(nil), r.events...)
}

// Types returns the recorded event types in order.
func (r *Recorder) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}
