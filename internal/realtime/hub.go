package realtime

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Snapshot is one observed state of a user's entitlement record, pushed to
// live subscribers whenever the record changes.
type Snapshot struct {
	UserID    uuid.UUID `json:"user_id"`
	IsPremium bool      `json:"is_premium"`
	UpdatedAt time.Time `json:"updated_at"`
}

const subscriberBuffer = 8

// Hub fans entitlement snapshots out to per-user subscribers. Publishes
// never block: a subscriber that cannot keep up loses intermediate
// snapshots, which is safe because each snapshot carries the full record
// state rather than a delta.
type Hub struct {
	mu   sync.RWMutex
	subs map[uuid.UUID]map[chan Snapshot]struct{}
}

func NewHub() *Hub {
	return &Hub{
		subs: make(map[uuid.UUID]map[chan Snapshot]struct{}),
	}
}

// Subscribe registers a listener for one user's record. The returned cancel
// function unregisters the listener and closes the channel; it is safe to
// call more than once.
func (h *Hub) Subscribe(userID uuid.UUID) (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, subscriberBuffer)

	h.mu.Lock()
	if h.subs[userID] == nil {
		h.subs[userID] = make(map[chan Snapshot]struct{})
	}
	h.subs[userID][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			if set, ok := h.subs[userID]; ok {
				delete(set, ch)
				if len(set) == 0 {
					delete(h.subs, userID)
				}
			}
			h.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Publish delivers a snapshot to every subscriber of snap.UserID.
func (h *Hub) Publish(snap Snapshot) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.subs[snap.UserID] {
		select {
		case ch <- snap:
		default:
			slog.Warn("entitlement snapshot dropped, subscriber not keeping up", "user_id", snap.UserID)
		}
	}
}

// SubscriberCount reports active subscriptions for one user.
func (h *Hub) SubscriberCount(userID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[userID])
}
