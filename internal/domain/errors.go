package domain

import "errors"

var (
	// ErrSessionNotFound is returned when a session id is unknown.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionFull is returned when the roster already holds MaxPlayers.
	ErrSessionFull = errors.New("session is full (30 players max)")
	// ErrNotReady is returned when start preconditions are not met.
	ErrNotReady = errors.New("cannot start: need >=3 players, questions and a bonus question")
	// ErrNoQuestions is returned when an empty question set is pushed.
	ErrNoQuestions = errors.New("question set is empty")
	// ErrDuplicateAnswer indicates a second submission for the same
	// (player, question) pair; callers treat it as an idempotent rejection.
	ErrDuplicateAnswer = errors.New("answer already submitted")
	// ErrQuestionSetNotFound indicates the catalog has no such set.
	ErrQuestionSetNotFound = errors.New("question set not found")
)
