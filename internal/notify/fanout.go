package notify

import "trivia-live-service/internal/domain"

// Notifier mirrors app.Notifier so this package does not import the engine.
type Notifier interface {
	StateChanged(competitionID string, state domain.GameState)
	TimerTick(competitionID string, remaining int)
	ScoresChanged(competitionID string, teams []domain.Team)
}

// Fanout forwards every event to each of its notifiers in order.
type Fanout []Notifier

func (f Fanout) StateChanged(competitionID string, state domain.GameState) {
	for _, n := range f {
		n.StateChanged(competitionID, state.Clone())
	}
}

func (f Fanout) TimerTick(competitionID string, remaining int) {
	for _, n := range f {
		n.TimerTick(competitionID, remaining)
	}
}

func (f Fanout) ScoresChanged(competitionID string, teams []domain.Team) {
	for _, n := range f {
		copied := make([]domain.Team, len(teams))
		for i, t := range teams {
			copied[i] = t.Clone()
		}
		n.ScoresChanged(competitionID, copied)
	}
}
