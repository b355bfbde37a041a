package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/seqguard/seqguard/internal/action"
	"github.com/seqguard/seqguard/internal/logger"
)

// heartbeatInterval keeps idle streams alive through proxies that cut
// quiet connections.
const heartbeatInterval = 30 * time.Second

const subscriberBuffer = 64

// SSEBroadcaster streams detections to subscribed HTTP clients. It sits
// on the sink bus, so detections reach the stream as they fire instead
// of being polled out of storage.
type SSEBroadcaster struct {
	mu     sync.Mutex
	subs   map[uint64]chan SSEEvent
	lastID uint64
	closed bool

	stop chan struct{}
	wg   sync.WaitGroup
}

// NewSSEBroadcaster creates an SSE broadcaster with no subscribers.
func NewSSEBroadcaster() *SSEBroadcaster {
	return &SSEBroadcaster{
		subs: make(map[uint64]chan SSEEvent),
		stop: make(chan struct{}),
	}
}

// Report implements the detection sink contract.
func (b *SSEBroadcaster) Report(det *action.Detection) {
	b.publish(SSEEvent{
		Type: SSEDetection,
		Data: toDetectionResponse(det),
	})
}

// SessionClosed announces an explicit session close to stream clients.
func (b *SSEBroadcaster) SessionClosed(sessionID string) {
	b.publish(SSEEvent{
		Type: SSESessionClose,
		Data: map[string]string{"session_id": sessionID},
	})
}

// Start launches the heartbeat loop.
func (b *SSEBroadcaster) Start(ctx context.Context) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.heartbeat(ctx)
	}()
}

// Stop ends the heartbeat loop and disconnects every subscriber. New
// subscriptions after Stop are refused.
func (b *SSEBroadcaster) Stop() {
	close(b.stop)
	b.wg.Wait()

	b.mu.Lock()
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
	b.mu.Unlock()
}

func (b *SSEBroadcaster) heartbeat(ctx context.Context) {
	tick := time.NewTicker(heartbeatInterval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-b.stop:
			return
		case <-tick.C:
			b.publish(SSEEvent{
				Type: SSEHeartbeat,
				Data: map[string]any{
					"time":        time.Now().UTC(),
					"subscribers": b.subscriberCount(),
				},
			})
		}
	}
}

// publish delivers an event to every subscriber without blocking. A
// subscriber whose buffer is full misses the event.
func (b *SSEBroadcaster) publish(ev SSEEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			logger.Debug().
				Uint64("subscriber", id).
				Str("event", ev.Type).
				Msg("SSE subscriber backed up, dropping event")
		}
	}
}

func (b *SSEBroadcaster) attach() (uint64, chan SSEEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return 0, nil
	}
	b.lastID++
	ch := make(chan SSEEvent, subscriberBuffer)
	b.subs[b.lastID] = ch
	return b.lastID, ch
}

func (b *SSEBroadcaster) detach(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(ch)
	}
}

func (b *SSEBroadcaster) subscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// ServeHTTP holds the connection open and relays events until the
// client disconnects or the broadcaster stops.
func (b *SSEBroadcaster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	id, ch := b.attach()
	if ch == nil {
		http.Error(w, "stream shutting down", http.StatusServiceUnavailable)
		return
	}
	defer b.detach(id)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	if err := writeSSEEvent(w, SSEEvent{
		Type: "connected",
		Data: map[string]any{"subscriber": id, "time": time.Now().UTC()},
	}); err != nil {
		return
	}
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, open := <-ch:
			if !open {
				return
			}
			if err := writeSSEEvent(w, ev); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeSSEEvent(w http.ResponseWriter, ev SSEEvent) error {
	payload, err := json.Marshal(ev.Data)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, payload)
	return err
}
