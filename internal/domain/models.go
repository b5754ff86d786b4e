package domain

import "time"

// DefaultTimeLimitSeconds applies when a question carries no positive time limit.
const DefaultTimeLimitSeconds = 30

// RoundType is descriptive only; the engine treats every round the same way.
type RoundType string

const (
	RoundStandard  RoundType = "STANDARD"
	RoundCrossword RoundType = "CROSSWORD"
	RoundSpeedRun  RoundType = "SPEED_RUN"
)

// GradingMode selects automatic grading or a host decision.
type GradingMode string

const (
	GradingAuto   GradingMode = "AUTO"
	GradingManual GradingMode = "MANUAL"
)

// Competition identifies one live session.
type Competition struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
	Pin  string `json:"pin" yaml:"pin"`
}

// Round groups questions inside a competition.
type Round struct {
	ID            string    `json:"id"`
	CompetitionID string    `json:"competitionId"`
	OrderIndex    int       `json:"orderIndex"`
	Type          RoundType `json:"type"`
	Title         string    `json:"title"`
}

// Team is a player group in a competition. Score is derived from the ledger.
type Team struct {
	ID                string  `json:"id"`
	CompetitionID     string  `json:"competitionId"`
	Name              string  `json:"name"`
	Color             string  `json:"color"`
	Score             int     `json:"score"`
	LastAnswer        *string `json:"lastAnswer"`
	LastAnswerCorrect *bool   `json:"lastAnswerCorrect"`
}

// Clone copies the team including its answer status.
func (t Team) Clone() Team {
	if t.LastAnswer != nil {
		v := *t.LastAnswer
		t.LastAnswer = &v
	}
	if t.LastAnswerCorrect != nil {
		v := *t.LastAnswerCorrect
		t.LastAnswerCorrect = &v
	}
	return t
}

// ResetAnswer clears the per-question answer status.
func (t *Team) ResetAnswer() {
	t.LastAnswer = nil
	t.LastAnswerCorrect = nil
}

// Answer is one append-only ledger row. IsCorrect nil marks a pending manual grade.
type Answer struct {
	ID            string    `json:"id"`
	CompetitionID string    `json:"competitionId"`
	TeamID        string    `json:"teamId"`
	QuestionID    string    `json:"questionId"`
	RoundID       string    `json:"roundId"`
	Content       string    `json:"content"`
	IsCorrect     *bool     `json:"isCorrect"`
	ScoreAwarded  int       `json:"scoreAwarded"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Pending reports whether the answer still waits for a host decision.
func (a Answer) Pending() bool {
	return a.IsCorrect == nil
}

// AnswerInput carries the fields needed to append a ledger row.
type AnswerInput struct {
	CompetitionID string
	TeamID        string
	QuestionID    string
	RoundID       string
	Content       string
	IsCorrect     *bool
	Score         int
}

// GameState is the live state of one competition and the unit of persistence.
type GameState struct {
	Phase           Phase     `json:"phase"`
	CurrentQuestion *Question `json:"currentQuestion"`
	TimeRemaining   int       `json:"timeRemaining"`
	TimerPaused     bool      `json:"timerPaused"`
	RevealStep      int       `json:"revealStep"`
	Teams           []Team    `json:"teams"`
}

// NewGameState returns the state of a competition nobody has touched yet.
func NewGameState() GameState {
	return GameState{Phase: PhaseWaiting, Teams: []Team{}}
}

// Clone returns a deep copy safe to hand outside the owning lock.
func (s GameState) Clone() GameState {
	out := s
	if s.CurrentQuestion != nil {
		q := s.CurrentQuestion.Clone()
		out.CurrentQuestion = &q
	}
	out.Teams = cloneTeams(s.Teams)
	return out
}

func cloneTeams(teams []Team) []Team {
	out := make([]Team, len(teams))
	for i, t := range teams {
		out[i] = t.Clone()
	}
	return out
}

// Team returns a pointer to the live team with the given id.
func (s *GameState) Team(teamID string) *Team {
	for i := range s.Teams {
		if s.Teams[i].ID == teamID {
			return &s.Teams[i]
		}
	}
	return nil
}

// TeamByName returns a pointer to the live team with the given name.
func (s *GameState) TeamByName(name string) *Team {
	for i := range s.Teams {
		if s.Teams[i].Name == name {
			return &s.Teams[i]
		}
	}
	return nil
}

// ResetAnswers clears every team's per-question status.
func (s *GameState) ResetAnswers() {
	for i := range s.Teams {
		s.Teams[i].ResetAnswer()
	}
}

// AnsweredCount counts live teams holding an answer for the current question.
func (s *GameState) AnsweredCount() int {
	n := 0
	for _, t := range s.Teams {
		if t.LastAnswer != nil {
			n++
		}
	}
	return n
}

// TeamsSnapshot copies the team list for score-only events.
func (s *GameState) TeamsSnapshot() []Team {
	return cloneTeams(s.Teams)
}

// Event types emitted to listeners of a competition.
const (
	EventState  = "state"
	EventTimer  = "timer"
	EventScores = "scores"
)

// Event is the payload fanned out to everything joined to a competition.
type Event struct {
	Type          string     `json:"type"`
	CompetitionID string     `json:"competitionId"`
	State         *GameState `json:"state,omitempty"`
	TimeRemaining *int       `json:"timeRemaining,omitempty"`
	Teams         []Team     `json:"teams,omitempty"`
}
