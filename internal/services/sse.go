package services

import (
	"sync"

	"github.com/fuseproject/fuse/backend/internal/models"
)

// InboxHub fans stored notifications out to the streaming connections of
// their receivers.
type InboxHub struct {
	mu      sync.RWMutex
	clients map[uint]map[string]chan models.Notification
}

func NewInboxHub() *InboxHub {
	return &InboxHub{clients: make(map[uint]map[string]chan models.Notification)}
}

// Subscribe registers a connection of userID.
func (h *InboxHub) Subscribe(userID uint, clientID string) <-chan models.Notification {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan models.Notification, 32)
	if h.clients[userID] == nil {
		h.clients[userID] = make(map[string]chan models.Notification)
	}
	h.clients[userID][clientID] = ch
	return ch
}

func (h *InboxHub) Unsubscribe(userID uint, clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conns := h.clients[userID]
	if ch, ok := conns[clientID]; ok {
		close(ch)
		delete(conns, clientID)
	}
	if len(conns) == 0 {
		delete(h.clients, userID)
	}
}

// Publish never blocks; a connection with a full buffer misses the event
// and catches up through the inbox listing.
func (h *InboxHub) Publish(n models.Notification) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, ch := range h.clients[n.ReceiverID] {
		select {
		case ch <- n:
		default:
		}
	}
}

func (h *InboxHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := 0
	for _, conns := range h.clients {
		n += len(conns)
	}
	return n
}
