package memory

import (
	"context"
	"sync"

	"github.com/aretw0/sagaflow/pkg/domain"
)

// Recorder is an EventSink that keeps every envelope in memory.
type Recorder struct {
	mu        sync.Mutex
	envelopes []domain.Envelope
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Publish records the envelope.
func (r *Recorder) Publish(ctx context.Context, env domain.Envelope) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.envelopes = append(r.envelopes, env)
	return nil
}

// Envelopes returns everything recorded so far.
func (r *Recorder) Envelopes() []domain.Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Envelope, len(r.envelopes))
	copy(out, r.envelopes)
	return out
}

// Types returns the event types recorded for one saga, in publication order.
func (r *Recorder) Types(sagaID string) []domain.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.EventType
	for _, env := range r.envelopes {
		if env.SagaID == sagaID {
			out = append(out, env.Event.Type)
		}
	}
	return out
}

// Reset drops all recorded envelopes.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.envelopes = nil
}
