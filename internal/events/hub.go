package events

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type Type string

const (
	TypeCallStatus     Type = "call.status"
	TypeCallScheduled  Type = "call.scheduled"
	TypeCallbackFailed Type = "callback.failed"
)

// Event is pushed to every dashboard session of the owning account.
type Event struct {
	Type      Type      `json:"type"`
	AccountID string    `json:"account_id"`
	CallID    string    `json:"call_id,omitempty"`
	Status    string    `json:"status,omitempty"`
	Outcome   string    `json:"outcome,omitempty"`
	Message   string    `json:"message,omitempty"`
	Payload   any       `json:"payload,omitempty"`
	At        time.Time `json:"at"`
}

// Publisher is what the lifecycle code depends on.
type Publisher interface {
	Publish(ctx context.Context, e Event)
}

// Hub fans events out to per-account subscribers. Publish never blocks:
// a subscriber whose buffer is full misses the event.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[*subscriber]struct{}
	buffer int
	log    *slog.Logger
}

type subscriber struct {
	ch chan Event
}

func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{subs: map[string]map[*subscriber]struct{}{}, buffer: 32, log: log}
}

// Subscribe registers a listener for accountID. The returned cancel func
// unregisters it and closes the channel.
func (h *Hub) Subscribe(accountID string) (<-chan Event, func()) {
	s := &subscriber{ch: make(chan Event, h.buffer)}

	h.mu.Lock()
	if h.subs[accountID] == nil {
		h.subs[accountID] = map[*subscriber]struct{}{}
	}
	h.subs[accountID][s] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return s.ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[accountID], s)
			if len(h.subs[accountID]) == 0 {
				delete(h.subs, accountID)
			}
			h.mu.Unlock()
			close(s.ch)
		})
	}
}

func (h *Hub) Publish(ctx context.Context, e Event) {
	if e.AccountID == "" {
		return
	}
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.subs[e.AccountID] {
		select {
		case s.ch <- e:
		default:
			h.log.Warn("event dropped for slow subscriber", "account_id", e.AccountID, "type", e.Type, "call_id", e.CallID)
		}
	}
}

// Subscribers returns the number of live listeners for accountID.
func (h *Hub) Subscribers(accountID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[accountID])
}
