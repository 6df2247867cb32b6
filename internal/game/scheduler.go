package game

import (
	"context"

	"github.com/rs/zerolog/log"

	"trivia-service/internal/domain"
)

// The phase scheduler runs one question cycle at a time per session:
// question window, reveal and scoring, scoreboard pause, then either the
// next cycle, the tiebreak round, or game over. The epoch token captured
// at scheduling time is re-checked after every timed wait and before every
// store write, so a Start or Reset issued mid-cycle silently retires the
// stale sequence instead of letting it append events over the new state.

func (e *Engine) runQuestion(ctx context.Context, sessionID string, epoch uint64, isBonus bool) {
	if !e.epochValid(sessionID, epoch) {
		return
	}

	s, err := e.sessions.GetSession(ctx, sessionID)
	if err != nil || s == nil {
		if err != nil {
			log.Error().Err(err).Str("session_id", sessionID).Msg("scheduler: load session")
		}
		return
	}

	q := e.activeQuestionForCycle(s, isBonus)
	if q == nil {
		log.Warn().Str("session_id", sessionID).Bool("bonus", isBonus).Msg("scheduler: no active question")
		return
	}

	deadline := e.nowTS() + e.questionWindow.Seconds()
	s.QuestionDeadlineTS = &deadline
	if isBonus {
		s.State = domain.StateTiebreak
	} else {
		s.State = domain.StatePlaying
	}
	if err := e.sessions.PutSession(ctx, s); err != nil {
		log.Error().Err(err).Str("session_id", sessionID).Msg("scheduler: persist question phase")
		return
	}

	payload := domain.NewQuestion(*q, isBonus, s.CurrentQuestionIdx, len(s.Questions), deadline)
	if _, err := e.events.Append(ctx, sessionID, payload); err != nil {
		log.Error().Err(err).Str("session_id", sessionID).Msg("scheduler: emit question")
	}

	// Answers are collected while we sleep; submitAnswer runs lock-free
	// against this sequence.
	select {
	case <-e.clock.After(e.questionWindow):
	case <-ctx.Done():
		return
	}
	if !e.epochValid(sessionID, epoch) {
		return
	}

	e.revealAndScore(ctx, sessionID, *q, epoch)

	select {
	case <-e.clock.After(e.scoreboardPause):
	case <-ctx.Done():
		return
	}

	l := e.lock(sessionID)
	l.Lock()
	defer l.Unlock()
	if !e.epochValid(sessionID, epoch) {
		return
	}

	if isBonus {
		// The bonus round ends the game no matter the outcome.
		e.finish(ctx, sessionID, epoch)
		return
	}

	s, err = e.sessions.GetSession(ctx, sessionID)
	if err != nil || s == nil {
		return
	}
	if s.CurrentQuestionIdx+1 < len(s.Questions) {
		s.CurrentQuestionIdx++
		if err := e.sessions.PutSession(ctx, s); err != nil {
			log.Error().Err(err).Str("session_id", sessionID).Msg("scheduler: advance question index")
			return
		}
		go e.runQuestion(ctx, sessionID, epoch, false)
		return
	}
	e.maybeTiebreakOrFinish(ctx, sessionID, epoch)
}

func (e *Engine) activeQuestionForCycle(s *domain.Session, isBonus bool) *domain.Question {
	if isBonus {
		return s.BonusQuestion
	}
	if s.CurrentQuestionIdx < 0 || s.CurrentQuestionIdx >= len(s.Questions) {
		return nil
	}
	return &s.Questions[s.CurrentQuestionIdx]
}

// revealAndScore closes the question window: it scores every recorded
// answer, applies awards, and emits the reveal and scoreboard events.
func (e *Engine) revealAndScore(ctx context.Context, sessionID string, q domain.Question, epoch uint64) {
	answers, err := e.answers.AnswersForQuestion(ctx, sessionID, q.ID)
	if err != nil {
		log.Error().Err(err).Str("session_id", sessionID).Str("question_id", q.ID).Msg("scheduler: load answers")
		return
	}
	awards := Awards(answers)

	s, err := e.sessions.GetSession(ctx, sessionID)
	if err != nil || s == nil {
		return
	}
	if !e.epochValid(sessionID, epoch) {
		return
	}

	for i := range s.Players {
		if pts, ok := awards[s.Players[i].ID]; ok {
			s.Players[i].Score += pts
		}
	}

	// Persist the reveal state so late joiners pick it up from the session
	// document as well as the event stream.
	s.State = domain.StateReveal
	s.QuestionDeadlineTS = nil
	if err := e.sessions.PutSession(ctx, s); err != nil {
		log.Error().Err(err).Str("session_id", sessionID).Msg("scheduler: persist reveal")
		return
	}
	if _, err := e.events.Append(ctx, sessionID, domain.NewReveal(q.ID, q.CorrectIndex, awards)); err != nil {
		log.Error().Err(err).Str("session_id", sessionID).Msg("scheduler: emit reveal")
	}

	leaderboard := domain.SortLeaderboard(s.Players)
	s.State = domain.StateScoreboard
	if err := e.sessions.PutSession(ctx, s); err != nil {
		log.Error().Err(err).Str("session_id", sessionID).Msg("scheduler: persist scoreboard")
		return
	}
	if _, err := e.events.Append(ctx, sessionID, domain.NewScoreboard(int(e.scoreboardPause.Seconds()), leaderboard)); err != nil {
		log.Error().Err(err).Str("session_id", sessionID).Msg("scheduler: emit scoreboard")
	}
	e.publishPlayers(ctx, sessionID, s.Players)
}

// maybeTiebreakOrFinish runs after the last regular question. Callers hold
// the session lock. An exact tie for the top score sends the tied players
// into the bonus round; anything else ends the game.
func (e *Engine) maybeTiebreakOrFinish(ctx context.Context, sessionID string, epoch uint64) {
	s, err := e.sessions.GetSession(ctx, sessionID)
	if err != nil || s == nil {
		return
	}

	ranked := domain.SortLeaderboard(s.Players)
	if len(ranked) == 0 {
		e.finish(ctx, sessionID, epoch)
		return
	}

	topScore := ranked[0].Score
	finalists := make([]string, 0, len(ranked))
	for _, p := range ranked {
		if p.Score == topScore {
			finalists = append(finalists, p.ID)
		}
	}
	if len(finalists) <= 1 {
		e.finish(ctx, sessionID, epoch)
		return
	}

	for i := range s.Players {
		s.Players[i].IsTiedFinalist = s.Players[i].Score == topScore
	}
	s.State = domain.StateTiebreak
	if err := e.sessions.PutSession(ctx, s); err != nil {
		log.Error().Err(err).Str("session_id", sessionID).Msg("scheduler: persist tiebreak")
		return
	}

	e.publishPlayers(ctx, sessionID, s.Players)
	if _, err := e.events.Append(ctx, sessionID, domain.NewTiebreakStart(finalists)); err != nil {
		log.Error().Err(err).Str("session_id", sessionID).Msg("scheduler: emit tiebreak start")
	}

	go e.runQuestion(ctx, sessionID, epoch, true)
}

// finish ends the game. Callers hold the session lock; the epoch check
// retires a sequence whose session was reset after its last timer fired.
func (e *Engine) finish(ctx context.Context, sessionID string, epoch uint64) {
	if !e.epochValid(sessionID, epoch) {
		return
	}
	s, err := e.sessions.GetSession(ctx, sessionID)
	if err != nil || s == nil {
		return
	}

	s.State = domain.StateFinished
	for i := range s.Players {
		s.Players[i].IsTiedFinalist = false
	}
	if err := e.sessions.PutSession(ctx, s); err != nil {
		log.Error().Err(err).Str("session_id", sessionID).Msg("scheduler: persist finish")
		return
	}

	e.publishPlayers(ctx, sessionID, s.Players)
	if _, err := e.events.Append(ctx, sessionID, domain.NewGameOver(domain.SortLeaderboard(s.Players))); err != nil {
		log.Error().Err(err).Str("session_id", sessionID).Msg("scheduler: emit game over")
	}
}
