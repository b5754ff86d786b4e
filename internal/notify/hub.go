// Package notify fans engine events out to everything joined to a competition.
package notify

import (
	"sync"

	"trivia-live-service/internal/domain"
)

const subscriberBuffer = 16

// Hub is an in-process app.Notifier. Slow subscribers lose their oldest
// buffered events instead of blocking the engine.
type Hub struct {
	mu          sync.Mutex
	subscribers map[string]map[chan domain.Event]struct{}
}

func NewHub() *Hub {
	return &Hub{subscribers: make(map[string]map[chan domain.Event]struct{})}
}

// Subscribe returns a channel of events for one competition. The caller must
// invoke cancel to release it; cancel closes the channel.
func (h *Hub) Subscribe(competitionID string) (<-chan domain.Event, func()) {
	ch := make(chan domain.Event, subscriberBuffer)

	h.mu.Lock()
	subs, ok := h.subscribers[competitionID]
	if !ok {
		subs = make(map[chan domain.Event]struct{})
		h.subscribers[competitionID] = subs
	}
	subs[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		subs := h.subscribers[competitionID]
		if _, ok := subs[ch]; !ok {
			return
		}
		delete(subs, ch)
		close(ch)
		if len(subs) == 0 {
			delete(h.subscribers, competitionID)
		}
	}
	return ch, cancel
}

// Subscribers counts the listeners of a competition.
func (h *Hub) Subscribers(competitionID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers[competitionID])
}

func (h *Hub) StateChanged(competitionID string, state domain.GameState) {
	h.broadcast(domain.Event{Type: domain.EventState, CompetitionID: competitionID, State: &state})
}

func (h *Hub) TimerTick(competitionID string, remaining int) {
	h.broadcast(domain.Event{Type: domain.EventTimer, CompetitionID: competitionID, TimeRemaining: &remaining})
}

func (h *Hub) ScoresChanged(competitionID string, teams []domain.Team) {
	h.broadcast(domain.Event{Type: domain.EventScores, CompetitionID: competitionID, Teams: teams})
}

func (h *Hub) broadcast(ev domain.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subscribers[ev.CompetitionID] {
		select {
		case ch <- ev:
		default:
			// drop the oldest event so the newest state always gets through
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- ev:
			default:
			}
		}
	}
}
