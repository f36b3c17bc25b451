package http

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/aretw0/sagaflow/pkg/domain"
	"github.com/aretw0/sagaflow/pkg/ports"
)

// allSagas is the subscription key receiving every saga's events.
const allSagas = "*"

var _ ports.EventSink = (*StreamManager)(nil)

// StreamManager fans saga events out to server-sent event subscribers.
// Register it as an event sink on the orchestrator.
type StreamManager struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan<- domain.Envelope]struct{}
	logger      *slog.Logger
}

func NewStreamManager(logger *slog.Logger) *StreamManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &StreamManager{
		subscribers: make(map[string]map[chan<- domain.Envelope]struct{}),
		logger:      logger,
	}
}

// Subscribe registers a buffered channel for sagaID ("*" for every saga).
// The returned function unsubscribes and closes the channel.
func (sm *StreamManager) Subscribe(sagaID string) (<-chan domain.Envelope, func()) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ch := make(chan domain.Envelope, 16)
	if _, ok := sm.subscribers[sagaID]; !ok {
		sm.subscribers[sagaID] = make(map[chan<- domain.Envelope]struct{})
	}
	sm.subscribers[sagaID][ch] = struct{}{}

	return ch, func() {
		sm.mu.Lock()
		defer sm.mu.Unlock()
		if subs, ok := sm.subscribers[sagaID]; ok {
			if _, ok := subs[ch]; !ok {
				return
			}
			delete(subs, ch)
			close(ch)
			if len(subs) == 0 {
				delete(sm.subscribers, sagaID)
			}
		}
	}
}

// Publish implements ports.EventSink. Slow subscribers miss events rather than block.
func (sm *StreamManager) Publish(ctx context.Context, env domain.Envelope) error {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	for _, key := range []string{env.SagaID, allSagas} {
		for ch := range sm.subscribers[key] {
			select {
			case ch <- env:
			default:
				sm.logger.WarnContext(ctx, "SSE: client buffer full, dropping event",
					"saga_id", env.SagaID,
					"sequence", env.Sequence,
				)
			}
		}
	}
	return nil
}

// serve streams envelopes for key until the client disconnects.
func (sm *StreamManager) serve(w http.ResponseWriter, r *http.Request, key string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	ch, cancel := sm.Subscribe(key)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			sm.logger.Debug("SSE client disconnected", "key", key)
			return
		case env, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(env)
			if err != nil {
				sm.logger.Error("SSE: encode event", "err", err)
				continue
			}
			fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", env.ID, env.Event.Type, data)
			flusher.Flush()
		}
	}
}
