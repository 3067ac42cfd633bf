// Package notify fans out refresh signals to review sessions. The hub
// replaces any process-wide broadcast: publishers and subscribers are
// wired explicitly per campaign.
package notify

import "sync"

// Hub routes refresh signals by campaign id. Publishing never blocks; a
// subscriber that has not drained its channel simply coalesces signals.
type Hub struct {
	mu   sync.Mutex
	subs map[string]map[chan struct{}]bool
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[chan struct{}]bool)}
}

// Subscribe registers a listener for one campaign. The returned cancel
// function removes the subscription and closes the channel.
func (h *Hub) Subscribe(campaignID string) (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	h.mu.Lock()
	if h.subs[campaignID] == nil {
		h.subs[campaignID] = make(map[chan struct{}]bool)
	}
	h.subs[campaignID][ch] = true
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if set, ok := h.subs[campaignID]; ok && set[ch] {
			delete(set, ch)
			if len(set) == 0 {
				delete(h.subs, campaignID)
			}
			close(ch)
		}
	}
	return ch, cancel
}

// Publish signals every subscriber of a campaign without blocking.
func (h *Hub) Publish(campaignID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[campaignID] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
