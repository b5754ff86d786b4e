package domain

// Phase is the coarse stage of the round/question lifecycle.
type Phase string

const (
	PhaseWaiting         Phase = "WAITING"
	PhaseWelcome         Phase = "WELCOME"
	PhaseRoundStart      Phase = "ROUND_START"
	PhaseQuestionPreview Phase = "QUESTION_PREVIEW"
	PhaseQuestionActive  Phase = "QUESTION_ACTIVE"
	PhaseGrading         Phase = "GRADING"
	PhaseRevealAnswer    Phase = "REVEAL_ANSWER"
	PhaseRoundEnd        Phase = "ROUND_END"
	PhaseLeaderboard     Phase = "LEADERBOARD"
)

var phases = map[Phase]struct{}{
	PhaseWaiting:         {},
	PhaseWelcome:         {},
	PhaseRoundStart:      {},
	PhaseQuestionPreview: {},
	PhaseQuestionActive:  {},
	PhaseGrading:         {},
	PhaseRevealAnswer:    {},
	PhaseRoundEnd:        {},
	PhaseLeaderboard:     {},
}

func (p Phase) String() string {
	return string(p)
}

// Valid reports whether p is one of the known phases.
func (p Phase) Valid() bool {
	_, ok := phases[p]
	return ok
}

// HasQuestion reports whether a current question must be set while in p.
func (p Phase) HasQuestion() bool {
	switch p {
	case PhaseQuestionPreview, PhaseQuestionActive, PhaseGrading, PhaseRevealAnswer:
		return true
	}
	return false
}

// ParsePhase converts a wire value into a Phase.
func ParsePhase(raw string) (Phase, error) {
	p := Phase(raw)
	if !p.Valid() {
		return "", ErrInvalidPhase
	}
	return p, nil
}
