package game

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"trivia-service/internal/domain"
	"trivia-service/internal/eventlog"
)

// SessionStore persists whole Session documents with upsert semantics.
// GetSession returns (nil, nil) for an unknown id.
type SessionStore interface {
	GetSession(ctx context.Context, id string) (*domain.Session, error)
	PutSession(ctx context.Context, s *domain.Session) error
}

// AnswerStore persists answer facts. InsertAnswer enforces the
// one-answer-per-(session, player, question) invariant atomically and
// returns domain.ErrDuplicateAnswer on a repeat submission.
type AnswerStore interface {
	InsertAnswer(ctx context.Context, a domain.Answer) error
	AnswersForQuestion(ctx context.Context, sessionID, questionID string) ([]domain.Answer, error)
	DeleteAnswers(ctx context.Context, sessionID string) error
}

// Config carries the engine collaborators and timing knobs.
type Config struct {
	Sessions SessionStore
	Answers  AnswerStore
	Events   *eventlog.Log
	Clock    clockwork.Clock

	QuestionWindow  time.Duration
	ScoreboardPause time.Duration
}

const (
	defaultQuestionWindow  = 30 * time.Second
	defaultScoreboardPause = 5 * time.Second
)

// Engine is the game facade: it owns the per-session state machine and
// spawns one phase sequence per started game. All session mutations happen
// behind that session's lock; answer submission and event appends stay off
// the lock on purpose.
type Engine struct {
	sessions SessionStore
	answers  AnswerStore
	events   *eventlog.Log
	clock    clockwork.Clock

	questionWindow  time.Duration
	scoreboardPause time.Duration

	mu     sync.Mutex
	locks  map[string]*sync.Mutex
	epochs map[string]uint64
}

func NewEngine(c Config) *Engine {
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.QuestionWindow <= 0 {
		c.QuestionWindow = defaultQuestionWindow
	}
	if c.ScoreboardPause <= 0 {
		c.ScoreboardPause = defaultScoreboardPause
	}
	return &Engine{
		sessions:        c.Sessions,
		answers:         c.Answers,
		events:          c.Events,
		clock:           c.Clock,
		questionWindow:  c.QuestionWindow,
		scoreboardPause: c.ScoreboardPause,
		locks:           make(map[string]*sync.Mutex),
		epochs:          make(map[string]uint64),
	}
}

// lock returns the session's mutex, creating it on first use.
func (e *Engine) lock(sessionID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[sessionID]
	if !ok {
		l = &sync.Mutex{}
		e.locks[sessionID] = l
	}
	return l
}

// bumpEpoch invalidates every in-flight phase sequence for the session and
// returns the token the next sequence must carry.
func (e *Engine) bumpEpoch(sessionID string) uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.epochs[sessionID]++
	return e.epochs[sessionID]
}

func (e *Engine) epochValid(sessionID string, epoch uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.epochs[sessionID] == epoch
}

func (e *Engine) nowTS() float64 {
	return float64(e.clock.Now().UnixNano()) / 1e9
}

// CreateOrGet returns the session for id, creating a fresh lobby (and
// resetting its event log) when the id is new.
func (e *Engine) CreateOrGet(ctx context.Context, id string) (*domain.Session, bool, error) {
	l := e.lock(id)
	l.Lock()
	defer l.Unlock()

	s, err := e.sessions.GetSession(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if s != nil {
		return s, false, nil
	}

	s = domain.NewSession(id, e.clock.Now())
	if err := e.sessions.PutSession(ctx, s); err != nil {
		return nil, false, err
	}
	if err := e.events.Reset(ctx, id); err != nil {
		return nil, false, err
	}
	return s, true, nil
}

// Get returns the session or domain.ErrSessionNotFound.
func (e *Engine) Get(ctx context.Context, id string) (*domain.Session, error) {
	s, err := e.sessions.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, domain.ErrSessionNotFound
	}
	return s, nil
}

// Join adds a player to the roster and publishes the updated roster.
// The session is created implicitly when missing.
func (e *Engine) Join(ctx context.Context, sessionID, username string) (*domain.Player, error) {
	l := e.lock(sessionID)
	l.Lock()
	defer l.Unlock()

	s, err := e.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if s == nil {
		s = domain.NewSession(sessionID, e.clock.Now())
	}

	if len(s.Players) >= domain.MaxPlayers {
		return nil, domain.ErrSessionFull
	}

	p := domain.Player{
		ID:       e.playerID(s, username),
		Username: username,
	}
	s.Players = append(s.Players, p)
	if err := e.sessions.PutSession(ctx, s); err != nil {
		return nil, err
	}

	e.publishPlayers(ctx, sessionID, s.Players)
	return &p, nil
}

// playerID derives a roster-unique id from the username: lower-cased,
// spaces to hyphens, with a numeric suffix on collision. The first
// candidate suffix is the roster size + 1; the loop keeps counting until
// the id is genuinely unused, so repeated rejoins cannot collide.
func (e *Engine) playerID(s *domain.Session, username string) string {
	taken := make(map[string]struct{}, len(s.Players))
	for _, p := range s.Players {
		taken[p.ID] = struct{}{}
	}

	base := strings.ReplaceAll(strings.ToLower(username), " ", "-")
	if _, ok := taken[base]; !ok {
		return base
	}
	for n := len(s.Players) + 1; ; n++ {
		candidate := fmt.Sprintf("%s-%d", base, n)
		if _, ok := taken[candidate]; !ok {
			return candidate
		}
	}
}

// SetQuestions replaces the question set and bonus question wholesale.
func (e *Engine) SetQuestions(ctx context.Context, sessionID string, questions []domain.Question, bonus domain.Question) error {
	if len(questions) == 0 {
		return domain.ErrNoQuestions
	}

	l := e.lock(sessionID)
	l.Lock()
	defer l.Unlock()

	s, err := e.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if s == nil {
		s = domain.NewSession(sessionID, e.clock.Now())
	}
	s.Questions = questions
	s.BonusQuestion = &bonus
	return e.sessions.PutSession(ctx, s)
}

// Start begins a fresh game on the session: scores are zeroed, prior
// answers and the event log are cleared, and the first question cycle is
// scheduled. Start returns once the cycle is scheduled, not when the game
// finishes.
func (e *Engine) Start(ctx context.Context, sessionID string) error {
	l := e.lock(sessionID)
	l.Lock()
	defer l.Unlock()

	s, err := e.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if s == nil || len(s.Players) < domain.MinPlayers || len(s.Questions) == 0 || s.BonusQuestion == nil {
		return domain.ErrNotReady
	}

	for i := range s.Players {
		s.Players[i].Score = 0
		s.Players[i].IsTiedFinalist = false
	}
	s.State = domain.StatePlaying
	s.CurrentQuestionIdx = 0
	s.QuestionDeadlineTS = nil

	if err := e.answers.DeleteAnswers(ctx, sessionID); err != nil {
		return err
	}
	if err := e.events.Reset(ctx, sessionID); err != nil {
		return err
	}
	if err := e.sessions.PutSession(ctx, s); err != nil {
		return err
	}

	// Broadcast the zeroed roster before the first question goes out.
	e.publishPlayers(ctx, sessionID, s.Players)

	epoch := e.bumpEpoch(sessionID)
	go e.runQuestion(context.Background(), sessionID, epoch, false)
	return nil
}

// Reset forces the session back to an empty lobby and invalidates any
// in-flight phase sequence.
func (e *Engine) Reset(ctx context.Context, sessionID string) error {
	l := e.lock(sessionID)
	l.Lock()
	defer l.Unlock()

	s, err := e.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if s == nil {
		s = domain.NewSession(sessionID, e.clock.Now())
	}

	if err := e.answers.DeleteAnswers(ctx, sessionID); err != nil {
		return err
	}

	s.State = domain.StateLobby
	s.CurrentQuestionIdx = -1
	s.QuestionDeadlineTS = nil
	s.Players = nil

	if err := e.sessions.PutSession(ctx, s); err != nil {
		return err
	}

	e.bumpEpoch(sessionID)

	if err := e.events.Reset(ctx, sessionID); err != nil {
		return err
	}
	e.publishPlayers(ctx, sessionID, nil)
	return nil
}

// SubmitAnswer records a player's answer for the active question and
// reports whether it was accepted and correct. Rejections return
// (false, nil); no points are revealed at submission time. This path
// deliberately skips the session lock: answers accumulate freely during
// the window and are only read back in bulk once it closes.
func (e *Engine) SubmitAnswer(ctx context.Context, sessionID, playerID, questionID string, optionIndex int) (bool, error) {
	s, err := e.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return false, err
	}
	if s == nil || (s.State != domain.StatePlaying && s.State != domain.StateTiebreak) {
		return false, nil
	}

	if s.QuestionDeadlineTS != nil && e.nowTS() > *s.QuestionDeadlineTS {
		return false, nil
	}

	q := e.activeQuestion(s)
	if q == nil || q.ID != questionID {
		return false, nil
	}

	if s.State == domain.StateTiebreak && !isFinalist(s, playerID) {
		return false, nil
	}

	isCorrect := optionIndex == q.CorrectIndex
	err = e.answers.InsertAnswer(ctx, domain.Answer{
		SessionID:   sessionID,
		PlayerID:    playerID,
		QuestionID:  questionID,
		OptionIndex: optionIndex,
		IsCorrect:   isCorrect,
		Timestamp:   e.nowTS(),
	})
	if err == domain.ErrDuplicateAnswer {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return isCorrect, nil
}

func (e *Engine) activeQuestion(s *domain.Session) *domain.Question {
	if s.State == domain.StateTiebreak {
		return s.BonusQuestion
	}
	if s.CurrentQuestionIdx < 0 || s.CurrentQuestionIdx >= len(s.Questions) {
		return nil
	}
	return &s.Questions[s.CurrentQuestionIdx]
}

func isFinalist(s *domain.Session, playerID string) bool {
	for _, p := range s.Players {
		if p.ID == playerID && p.IsTiedFinalist {
			return true
		}
	}
	return false
}

func (e *Engine) publishPlayers(ctx context.Context, sessionID string, players []domain.Player) {
	if _, err := e.events.Append(ctx, sessionID, domain.NewPlayersUpdate(players)); err != nil {
		log.Error().Err(err).Str("session_id", sessionID).Msg("publish roster")
	}
}
