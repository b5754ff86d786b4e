// Package grading decides whether a submitted answer is correct. Grading is
// pure: no I/O and no shared state.
package grading

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"trivia-live-service/internal/domain"
)

var errMalformed = errors.New("malformed submission")

// Result is the outcome of grading one submission. Pending marks answers that
// wait for a host decision; Correct and Score are meaningless in that case.
type Result struct {
	Pending bool
	Correct bool
	Score   int
}

// Grade evaluates a submission against a question. It never fails: malformed
// content or submissions grade as incorrect.
func Grade(q domain.Question, submission json.RawMessage) (res Result) {
	if q.Grading == domain.GradingManual {
		return Result{Pending: true}
	}
	defer func() {
		if r := recover(); r != nil {
			res = Result{}
		}
	}()

	correct, err := check(q.Content, submission)
	if err != nil || !correct {
		return Result{}
	}
	return Result{Correct: true, Score: max(q.Points, 0)}
}

func check(content domain.Content, submission json.RawMessage) (bool, error) {
	switch c := content.(type) {
	case domain.MultipleChoiceContent:
		return checkMultipleChoice(c, submission)
	case domain.ClosedContent:
		var text string
		if err := json.Unmarshal(submission, &text); err != nil {
			return false, err
		}
		return slices.ContainsFunc(c.Answers, func(a string) bool { return same(a, text) }), nil
	case domain.OpenWordContent:
		var text string
		if err := json.Unmarshal(submission, &text); err != nil {
			return false, err
		}
		return strings.TrimSpace(c.Answer) != "" && same(c.Answer, text), nil
	case domain.CrosswordContent:
		var grid [][]string
		if err := json.Unmarshal(submission, &grid); err != nil {
			return false, err
		}
		return checkCrossword(c.Grid, grid), nil
	case domain.FillBlanksContent:
		var parts []string
		if err := json.Unmarshal(submission, &parts); err != nil {
			return false, err
		}
		return checkFillBlanks(c.Blanks, parts), nil
	case domain.MatchingContent:
		var pairs map[string]string
		if err := json.Unmarshal(submission, &pairs); err != nil {
			return false, err
		}
		return checkMatching(c.Pairs, pairs), nil
	case domain.ChronologyContent:
		var order []string
		if err := json.Unmarshal(submission, &order); err != nil {
			return false, err
		}
		return len(c.Items) > 0 && slices.EqualFunc(c.Items, order, same), nil
	case nil:
		return false, errMalformed
	default:
		return false, fmt.Errorf("%w: %T", domain.ErrUnknownContentType, content)
	}
}

func checkMultipleChoice(c domain.MultipleChoiceContent, submission json.RawMessage) (bool, error) {
	want := c.Correct()
	if len(want) == 0 {
		return false, errMalformed
	}

	var got []int
	var single int
	if err := json.Unmarshal(submission, &single); err == nil {
		got = []int{single}
	} else if err := json.Unmarshal(submission, &got); err != nil {
		return false, err
	}
	return slices.Equal(normalizeIndices(want), normalizeIndices(got)), nil
}

func normalizeIndices(in []int) []int {
	out := slices.Clone(in)
	slices.Sort(out)
	return slices.Compact(out)
}

// checkCrossword requires every non-blank solution cell to match. Shape
// mismatches are incorrect.
func checkCrossword(solution, submitted [][]string) bool {
	if len(solution) == 0 || len(solution) != len(submitted) {
		return false
	}
	for r := range solution {
		if len(solution[r]) != len(submitted[r]) {
			return false
		}
		for col, cell := range solution[r] {
			if strings.TrimSpace(cell) == "" {
				continue
			}
			if !same(cell, submitted[r][col]) {
				return false
			}
		}
	}
	return true
}

func checkFillBlanks(blanks [][]string, parts []string) bool {
	if len(blanks) == 0 || len(blanks) != len(parts) {
		return false
	}
	for i, accepted := range blanks {
		if !slices.ContainsFunc(accepted, func(a string) bool { return same(a, parts[i]) }) {
			return false
		}
	}
	return true
}

func checkMatching(want []domain.MatchPair, got map[string]string) bool {
	if len(want) == 0 {
		return false
	}
	submitted := make(map[string]string, len(got))
	for left, right := range got {
		submitted[normalize(left)] = right
	}
	for _, pair := range want {
		right, ok := submitted[normalize(pair.Left)]
		if !ok || !same(pair.Right, right) {
			return false
		}
	}
	return true
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func same(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
