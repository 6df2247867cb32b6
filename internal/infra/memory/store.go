package memory

import (
	"context"
	"sort"
	"sync"

	"trivia-service/internal/domain"
)

// Store is the in-memory document store backing sessions, answers, event
// counters and events. It mirrors the key-addressed vocabulary the engine
// needs (point lookup, conditional upsert, increment-and-fetch, predicate
// delete) with typed methods, and hands out copies so callers can mutate
// freely before upserting.
type Store struct {
	mu         sync.RWMutex
	sessions   map[string]*domain.Session
	answers    map[string][]domain.Answer
	answerKeys map[string]map[string]struct{}
	counters   map[string]int64
	events     map[string][]domain.Event
}

func NewStore() *Store {
	return &Store{
		sessions:   make(map[string]*domain.Session),
		answers:    make(map[string][]domain.Answer),
		answerKeys: make(map[string]map[string]struct{}),
		counters:   make(map[string]int64),
		events:     make(map[string][]domain.Event),
	}
}

func (s *Store) GetSession(_ context.Context, id string) (*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.sessions[id]
	if !ok {
		return nil, nil
	}
	return cloneSession(doc), nil
}

func (s *Store) PutSession(_ context.Context, doc *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[doc.ID] = cloneSession(doc)
	return nil
}

func answerKey(a domain.Answer) string {
	return a.PlayerID + "\x00" + a.QuestionID
}

func (s *Store) InsertAnswer(_ context.Context, a domain.Answer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := s.answerKeys[a.SessionID]
	if keys == nil {
		keys = make(map[string]struct{})
		s.answerKeys[a.SessionID] = keys
	}
	k := answerKey(a)
	if _, exists := keys[k]; exists {
		return domain.ErrDuplicateAnswer
	}
	keys[k] = struct{}{}
	s.answers[a.SessionID] = append(s.answers[a.SessionID], a)
	return nil
}

func (s *Store) AnswersForQuestion(_ context.Context, sessionID, questionID string) ([]domain.Answer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Answer
	for _, a := range s.answers[sessionID] {
		if a.QuestionID == questionID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *Store) DeleteAnswers(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.answers, sessionID)
	delete(s.answerKeys, sessionID)
	return nil
}

func (s *Store) NextSeq(_ context.Context, sessionID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[sessionID]++
	return s.counters[sessionID], nil
}

func (s *Store) CurrentSeq(_ context.Context, sessionID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.counters[sessionID], nil
}

func (s *Store) SeedCounter(_ context.Context, sessionID string, seq int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[sessionID] = seq
	return nil
}

func (s *Store) AppendEvent(_ context.Context, ev domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[ev.SessionID] = append(s.events[ev.SessionID], ev)
	return nil
}

func (s *Store) EventsAfter(_ context.Context, sessionID string, after int64, limit int) ([]domain.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Event
	for _, ev := range s.events[sessionID] {
		if ev.Seq > after {
			out = append(out, ev)
		}
	}
	// Appends can land slightly out of seq order when writers race between
	// taking a sequence number and storing the record.
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) DeleteEvents(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.events, sessionID)
	return nil
}

func cloneSession(s *domain.Session) *domain.Session {
	out := *s
	if s.Players != nil {
		out.Players = append([]domain.Player(nil), s.Players...)
	}
	if s.Questions != nil {
		out.Questions = append([]domain.Question(nil), s.Questions...)
	}
	if s.BonusQuestion != nil {
		bq := *s.BonusQuestion
		out.BonusQuestion = &bq
	}
	if s.QuestionDeadlineTS != nil {
		d := *s.QuestionDeadlineTS
		out.QuestionDeadlineTS = &d
	}
	return &out
}
