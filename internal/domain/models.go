package domain

import (
	"encoding/json"
	"sort"
	"strings"
	"time"
)

// Session capacity and start preconditions.
const (
	MaxPlayers = 30
	MinPlayers = 3
)

// State is the externally visible mode of a session.
type State string

const (
	StateLobby      State = "lobby"
	StatePlaying    State = "playing"
	StateReveal     State = "reveal"
	StateScoreboard State = "scoreboard"
	StateTiebreak   State = "tiebreak"
	StateFinished   State = "finished"
)

// Player is a member of a session roster. The ID is derived from the
// username and stable for the lifetime of the session.
type Player struct {
	ID             string `json:"id"`
	Username       string `json:"username"`
	Score          int    `json:"score"`
	IsTiedFinalist bool   `json:"isTiedFinalist"`
}

// Question is a multiple-choice question with exactly one correct option.
type Question struct {
	ID           string   `json:"id"`
	Text         string   `json:"text"`
	Options      []string `json:"options"`
	CorrectIndex int      `json:"correctIndex"`
	ImageURL     string   `json:"imageUrl,omitempty"`
}

// QuestionSet is a prepared collection of questions plus the bonus
// question used for the tiebreak round, loadable from the catalog.
type QuestionSet struct {
	ID            string     `json:"id"`
	Questions     []Question `json:"questions"`
	BonusQuestion Question   `json:"bonusQuestion"`
}

// Session is the aggregate root for one run of the game.
type Session struct {
	ID                 string     `json:"id"`
	State              State      `json:"state"`
	Players            []Player   `json:"players"`
	Questions          []Question `json:"questions"`
	BonusQuestion      *Question  `json:"bonusQuestion,omitempty"`
	CurrentQuestionIdx int        `json:"currentQuestionIdx"`
	QuestionDeadlineTS *float64   `json:"questionDeadlineTs,omitempty"`
	CreatedAt          time.Time  `json:"createdAt"`
}

// NewSession returns a fresh lobby session.
func NewSession(id string, now time.Time) *Session {
	return &Session{
		ID:                 id,
		State:              StateLobby,
		CurrentQuestionIdx: -1,
		CreatedAt:          now,
	}
}

// Answer is an append-only fact: one player's submission for one question.
// At most one answer exists per (session, player, question).
type Answer struct {
	SessionID   string  `json:"sessionId"`
	PlayerID    string  `json:"playerId"`
	QuestionID  string  `json:"questionId"`
	OptionIndex int     `json:"optionIndex"`
	IsCorrect   bool    `json:"isCorrect"`
	Timestamp   float64 `json:"timestamp"`
}

// Event is an immutable, sequence-numbered state change record. Seq is
// strictly increasing per session; clients replay events in seq order.
type Event struct {
	SessionID string          `json:"sessionId"`
	Seq       int64           `json:"seq"`
	Timestamp float64         `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// SortLeaderboard returns players ordered by score descending, then
// username ascending case-insensitive. The same comparator drives both
// the public scoreboard and tiebreak-finalist detection.
func SortLeaderboard(players []Player) []Player {
	out := make([]Player, len(players))
	copy(out, players)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return strings.ToLower(out[i].Username) < strings.ToLower(out[j].Username)
	})
	return out
}
