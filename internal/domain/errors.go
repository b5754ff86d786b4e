package domain

import "errors"

var (
	// ErrAnswerNotFound indicates a ledger row id could not be loaded.
	ErrAnswerNotFound = errors.New("answer not found")
	// ErrDuplicateAnswer is returned by the ledger when a team already answered a question.
	ErrDuplicateAnswer = errors.New("answer already recorded for team and question")
	// ErrInvalidPhase is returned when a phase name is not part of the state machine.
	ErrInvalidPhase = errors.New("invalid phase")
	// ErrUnknownContentType is returned when question content carries an unsupported type tag.
	ErrUnknownContentType = errors.New("unknown question content type")
	// ErrUnauthorized is returned when a host command carries the wrong secret.
	ErrUnauthorized = errors.New("unauthorized")
)
