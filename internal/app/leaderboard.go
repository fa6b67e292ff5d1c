package app

import (
	"sync"

	"contest-service/internal/domain"
)

// leaderboardHub fans leaderboard snapshots out to per-contest subscribers.
type leaderboardHub struct {
	mu          sync.Mutex
	subscribers map[string]map[chan domain.Leaderboard]struct{}
}

func newLeaderboardHub() *leaderboardHub {
	return &leaderboardHub{
		subscribers: make(map[string]map[chan domain.Leaderboard]struct{}),
	}
}

func (h *leaderboardHub) subscribe(contestID string) (chan domain.Leaderboard, func()) {
	ch := make(chan domain.Leaderboard, 8)

	h.mu.Lock()
	subs, ok := h.subscribers[contestID]
	if !ok {
		subs = make(map[chan domain.Leaderboard]struct{})
		h.subscribers[contestID] = subs
	}
	subs[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		subs, ok := h.subscribers[contestID]
		if !ok {
			return
		}
		if _, ok := subs[ch]; ok {
			delete(subs, ch)
			close(ch)
		}
		if len(subs) == 0 {
			delete(h.subscribers, contestID)
		}
	}
	return ch, cancel
}

func (h *leaderboardHub) broadcast(contestID string, lb domain.Leaderboard) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subscribers[contestID] {
		select {
		case ch <- lb:
		default:
			// Drop the stale snapshot so a slow client never blocks the rest.
			select {
			case <-ch:
			default:
			}
			ch <- lb
		}
	}
}
