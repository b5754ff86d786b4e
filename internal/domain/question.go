package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// QuestionType tags the shape of a question's content.
type QuestionType string

const (
	TypeMultipleChoice QuestionType = "MULTIPLE_CHOICE"
	TypeClosed         QuestionType = "CLOSED"
	TypeOpenWord       QuestionType = "OPEN_WORD"
	TypeCrossword      QuestionType = "CROSSWORD"
	TypeFillBlanks     QuestionType = "FILL_BLANKS"
	TypeMatching       QuestionType = "MATCHING"
	TypeChronology     QuestionType = "CHRONOLOGY"
)

// Content is the type-specific payload of a question. Implementations are
// immutable once loaded.
type Content interface {
	Type() QuestionType
}

// MultipleChoiceContent lists the options and the correct one(s).
// CorrectIndices wins over CorrectIndex when both are set.
type MultipleChoiceContent struct {
	Options        []string `json:"options"`
	CorrectIndex   *int     `json:"correctIndex,omitempty"`
	CorrectIndices []int    `json:"correctIndices,omitempty"`
}

func (MultipleChoiceContent) Type() QuestionType { return TypeMultipleChoice }

// Correct returns the configured correct indices.
func (c MultipleChoiceContent) Correct() []int {
	if len(c.CorrectIndices) > 0 {
		return c.CorrectIndices
	}
	if c.CorrectIndex != nil {
		return []int{*c.CorrectIndex}
	}
	return nil
}

// ClosedContent accepts any of a list of answers.
type ClosedContent struct {
	Answers []string `json:"answers"`
}

func (ClosedContent) Type() QuestionType { return TypeClosed }

// OpenWordContent has one canonical answer.
type OpenWordContent struct {
	Answer string `json:"answer"`
}

func (OpenWordContent) Type() QuestionType { return TypeOpenWord }

// CrosswordContent holds the solution grid; empty cells are blanks.
type CrosswordContent struct {
	Grid [][]string `json:"grid"`
}

func (CrosswordContent) Type() QuestionType { return TypeCrossword }

// FillBlanksContent holds the accepted values of every blank, in order.
type FillBlanksContent struct {
	Text   string     `json:"text,omitempty"`
	Blanks [][]string `json:"blanks"`
}

func (FillBlanksContent) Type() QuestionType { return TypeFillBlanks }

// MatchPair is one left/right association.
type MatchPair struct {
	Left  string `json:"left"`
	Right string `json:"right"`
}

// MatchingContent holds the expected pairs.
type MatchingContent struct {
	Pairs []MatchPair `json:"pairs"`
}

func (MatchingContent) Type() QuestionType { return TypeMatching }

// ChronologyContent lists items oldest first.
type ChronologyContent struct {
	Items []string `json:"items"`
}

func (ChronologyContent) Type() QuestionType { return TypeChronology }

// Question is loaded on demand by id and never mutated by the engine.
type Question struct {
	ID               string
	RoundID          string
	Text             string
	Type             QuestionType
	Points           int
	TimeLimitSeconds int
	Grading          GradingMode
	Content          Content
}

// TimeLimit returns the configured time limit or the default.
func (q Question) TimeLimit() int {
	if q.TimeLimitSeconds > 0 {
		return q.TimeLimitSeconds
	}
	return DefaultTimeLimitSeconds
}

// OptionCount returns the number of options of a multiple-choice question.
func (q Question) OptionCount() int {
	if c, ok := q.Content.(MultipleChoiceContent); ok {
		return len(c.Options)
	}
	return 0
}

// Clone copies the question. Content is shared because it is immutable.
func (q Question) Clone() Question {
	return q
}

type questionJSON struct {
	ID               string          `json:"id"`
	RoundID          string          `json:"roundId"`
	Text             string          `json:"text"`
	Type             QuestionType    `json:"type"`
	Points           int             `json:"points"`
	TimeLimitSeconds int             `json:"timeLimitSeconds"`
	Grading          GradingMode     `json:"grading"`
	Content          json.RawMessage `json:"content,omitempty"`
}

func (q Question) MarshalJSON() ([]byte, error) {
	raw := questionJSON{
		ID:               q.ID,
		RoundID:          q.RoundID,
		Text:             q.Text,
		Type:             q.Type,
		Points:           q.Points,
		TimeLimitSeconds: q.TimeLimitSeconds,
		Grading:          q.Grading,
	}
	if q.Content != nil {
		content, err := json.Marshal(q.Content)
		if err != nil {
			return nil, fmt.Errorf("marshal content: %w", err)
		}
		raw.Content = content
	}
	return json.Marshal(raw)
}

func (q *Question) UnmarshalJSON(data []byte) error {
	var raw questionJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	content, err := DecodeContent(raw.Type, raw.Content)
	if err != nil {
		return err
	}
	grading := raw.Grading
	if grading == "" {
		grading = GradingAuto
	}
	*q = Question{
		ID:               raw.ID,
		RoundID:          raw.RoundID,
		Text:             raw.Text,
		Type:             raw.Type,
		Points:           raw.Points,
		TimeLimitSeconds: raw.TimeLimitSeconds,
		Grading:          grading,
		Content:          content,
	}
	return nil
}

// DecodeContent parses a raw content payload according to its type tag.
func DecodeContent(t QuestionType, raw json.RawMessage) (Content, error) {
	var content Content
	switch t {
	case TypeMultipleChoice:
		content = &MultipleChoiceContent{}
	case TypeClosed:
		content = &ClosedContent{}
	case TypeOpenWord:
		content = &OpenWordContent{}
	case TypeCrossword:
		content = &CrosswordContent{}
	case TypeFillBlanks:
		content = &FillBlanksContent{}
	case TypeMatching:
		content = &MatchingContent{}
	case TypeChronology:
		content = &ChronologyContent{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownContentType, t)
	}
	if len(bytes.TrimSpace(raw)) > 0 && !bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		if err := json.Unmarshal(raw, content); err != nil {
			return nil, fmt.Errorf("decode %s content: %w", t, err)
		}
	}
	return deref(content), nil
}

func deref(c Content) Content {
	switch v := c.(type) {
	case *MultipleChoiceContent:
		return *v
	case *ClosedContent:
		return *v
	case *OpenWordContent:
		return *v
	case *CrosswordContent:
		return *v
	case *FillBlanksContent:
		return *v
	case *MatchingContent:
		return *v
	case *ChronologyContent:
		return *v
	}
	return c
}
