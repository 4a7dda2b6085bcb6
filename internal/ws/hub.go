package ws

import (
	"encoding/json"
	"log"
	"sync"

	"chat-realtime/internal/models"
	"chat-realtime/internal/observability"
	"chat-realtime/internal/rooms"
)

// Hub is the connection registry: at most one live handle per user.
// Registering a user who is already connected silently replaces the previous
// handle without closing it; the replaced session's own teardown releases
// its transport.
type Hub struct {
	registry *rooms.Registry
	mu       sync.RWMutex
	clients  map[int]*client
}

// NewHub creates an empty hub bound to the room registry.
func NewHub(registry *rooms.Registry) *Hub {
	return &Hub{
		registry: registry,
		clients:  make(map[int]*client),
	}
}

func (h *Hub) register(userID int, cl *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[userID] = cl
}

// unregister removes the user's entry only when it still maps to the given
// handle, so a stale session cannot evict a fresh reconnect. Reports whether
// the entry was removed.
func (h *Hub) unregister(userID int, cl *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if current, ok := h.clients[userID]; ok && current == cl {
		delete(h.clients, userID)
		return true
	}
	return false
}

// ConnectionCount reports the number of registered connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// IsConnected reports whether the user has a live handle.
func (h *Hub) IsConnected(userID int) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[userID]
	return ok
}

// Deliver fans the event out to every member of the room except
// excludeUserID (0 delivers to everyone). The member and handle sets are
// snapshotted under their locks and the event is serialized once; the writes
// happen outside all locks so a stalled recipient cannot block registry
// mutations. A failed send is logged and counted, never raised.
func (h *Hub) Deliver(roomID string, event models.Event, excludeUserID int) models.DeliveryOutcome {
	members := h.registry.MembersOf(roomID)

	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("marshal event %s failed: %v", event.Type, err)
		return models.DeliveryOutcome{}
	}

	recipients := make(map[int]*client, len(members))
	h.mu.RLock()
	for _, userID := range members {
		if excludeUserID != 0 && userID == excludeUserID {
			continue
		}
		if cl, ok := h.clients[userID]; ok {
			recipients[userID] = cl
		} else {
			recipients[userID] = nil
		}
	}
	h.mu.RUnlock()

	var outcome models.DeliveryOutcome
	for userID, cl := range recipients {
		if cl == nil {
			outcome.Offline++
			continue
		}
		if err := cl.write(payload); err != nil {
			log.Printf("deliver %s to user %d in room %s failed: %v", event.Type, userID, roomID, err)
			outcome.Failed++
			continue
		}
		outcome.Delivered++
	}

	observability.IncDelivery("delivered", outcome.Delivered)
	observability.IncDelivery("failed", outcome.Failed)
	observability.IncDelivery("offline", outcome.Offline)
	return outcome
}
