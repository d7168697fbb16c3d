// Package events is a fire-and-forget publish/subscribe hub for UI
// collaborators. Listeners may be absent; publishing never blocks.
package events

import (
	"sync"
	"time"
)

type Type string

const (
	ServerStatusChanged Type = "serverStatusChanged"
	ServerDiscovered    Type = "serverDiscovered"
	ServerUnavailable   Type = "serverUnavailable"
	ScanProgress        Type = "scanProgress"
	VideoFound          Type = "videoFound"
	DownloadQueued      Type = "downloadQueued"
)

type Event struct {
	Type Type           `json:"type"`
	At   time.Time      `json:"at"`
	Data map[string]any `json:"data,omitempty"`
}

const subscriberBuffer = 16

type Hub struct {
	mu   sync.Mutex
	subs map[chan Event]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[chan Event]struct{})}
}

// Subscribe registers a listener. The returned cancel func must be called
// to release the subscription.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if _, ok := h.subs[ch]; ok {
			delete(h.subs, ch)
			close(ch)
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers to every subscriber without blocking; a slow subscriber
// with a full buffer just misses the event.
func (h *Hub) Publish(t Type, data map[string]any) {
	ev := Event{Type: t, At: time.Now().UTC(), Data: data}
	h.mu.Lock()
	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	h.mu.Unlock()
}

func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
