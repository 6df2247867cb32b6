package domain

// Event payload kinds. Every state transition becomes visible to clients
// as exactly one of these.
const (
	EventPlayersUpdate = "players_update"
	EventQuestion      = "question"
	EventReveal        = "reveal"
	EventScoreboard    = "scoreboard"
	EventTiebreakStart = "tiebreak_start"
	EventGameOver      = "game_over"
	EventSessionReset  = "session_reset"
)

// EventKind is embedded in every payload so clients can switch on it.
type EventKind struct {
	Type string `json:"type"`
}

// PlayersUpdatePayload carries the full roster after any roster or score change.
type PlayersUpdatePayload struct {
	EventKind
	Players []Player `json:"players"`
}

func NewPlayersUpdate(players []Player) PlayersUpdatePayload {
	if players == nil {
		players = []Player{}
	}
	return PlayersUpdatePayload{EventKind{EventPlayersUpdate}, players}
}

// QuestionPayload opens a question window.
type QuestionPayload struct {
	EventKind
	IsBonus        bool     `json:"isBonus"`
	Question       Question `json:"question"`
	QuestionIndex  int      `json:"questionIndex"`
	TotalQuestions int      `json:"totalQuestions"`
	DeadlineTS     float64  `json:"deadlineTs"`
}

func NewQuestion(q Question, isBonus bool, index, total int, deadline float64) QuestionPayload {
	return QuestionPayload{EventKind{EventQuestion}, isBonus, q, index, total, deadline}
}

// RevealPayload publishes the correct option and the per-player awards
// for the question that just closed.
type RevealPayload struct {
	EventKind
	QuestionID   string         `json:"questionId"`
	CorrectIndex int            `json:"correctIndex"`
	Awards       map[string]int `json:"awards"`
}

func NewReveal(questionID string, correctIndex int, awards map[string]int) RevealPayload {
	return RevealPayload{EventKind{EventReveal}, questionID, correctIndex, awards}
}

// ScoreboardPayload carries the sorted leaderboard shown between questions.
type ScoreboardPayload struct {
	EventKind
	DurationSecs int      `json:"durationSecs"`
	Leaderboard  []Player `json:"leaderboard"`
}

func NewScoreboard(durationSecs int, leaderboard []Player) ScoreboardPayload {
	return ScoreboardPayload{EventKind{EventScoreboard}, durationSecs, leaderboard}
}

// TiebreakStartPayload lists the players admitted to the bonus round.
type TiebreakStartPayload struct {
	EventKind
	FinalistIDs []string `json:"finalistIds"`
}

func NewTiebreakStart(finalistIDs []string) TiebreakStartPayload {
	return TiebreakStartPayload{EventKind{EventTiebreakStart}, finalistIDs}
}

// GameOverPayload carries the final leaderboard.
type GameOverPayload struct {
	EventKind
	Leaderboard []Player `json:"leaderboard"`
}

func NewGameOver(leaderboard []Player) GameOverPayload {
	return GameOverPayload{EventKind{EventGameOver}, leaderboard}
}

// SessionResetPayload tells long-lived subscribers to discard derived state.
type SessionResetPayload struct {
	EventKind
}

func NewSessionReset() SessionResetPayload {
	return SessionResetPayload{EventKind{EventSessionReset}}
}
