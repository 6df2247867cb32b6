package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"trivia-service/internal/domain"
)

// Store is a Redis-backed document store.
// Layout:
//   - session docs:   SET  session:{id} -> JSON
//   - answers:        HSETNX answers:{sessionID}:{questionID} {playerID} JSON
//   - event counters: INCR events:{sessionID}:seq
//   - events:         ZADD events:{sessionID} score=seq member=JSON
//
// The counter INCR gives the atomic increment-and-fetch the event log
// relies on; HSETNX gives the one-answer-per-player invariant without a
// read-then-write race.
type Store struct {
	client *redis.Client
}

func NewStore(client *redis.Client) *Store {
	return &Store{client: client}
}

func (s *Store) sessionKey(id string) string { return "session:" + id }
func (s *Store) answersKey(sessionID, questionID string) string {
	return "answers:" + sessionID + ":" + questionID
}
func (s *Store) counterKey(sessionID string) string { return "events:" + sessionID + ":seq" }
func (s *Store) eventsKey(sessionID string) string  { return "events:" + sessionID }

func (s *Store) GetSession(ctx context.Context, id string) (*domain.Session, error) {
	raw, err := s.client.Get(ctx, s.sessionKey(id)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	var doc domain.Session
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return &doc, nil
}

func (s *Store) PutSession(ctx context.Context, doc *domain.Session) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := s.client.Set(ctx, s.sessionKey(doc.ID), raw, 0).Err(); err != nil {
		return fmt.Errorf("put session: %w", err)
	}
	return nil
}

func (s *Store) InsertAnswer(ctx context.Context, a domain.Answer) error {
	raw, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal answer: %w", err)
	}
	ok, err := s.client.HSetNX(ctx, s.answersKey(a.SessionID, a.QuestionID), a.PlayerID, raw).Result()
	if err != nil {
		return fmt.Errorf("insert answer: %w", err)
	}
	if !ok {
		return domain.ErrDuplicateAnswer
	}
	return nil
}

func (s *Store) AnswersForQuestion(ctx context.Context, sessionID, questionID string) ([]domain.Answer, error) {
	fields, err := s.client.HGetAll(ctx, s.answersKey(sessionID, questionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("load answers: %w", err)
	}
	out := make([]domain.Answer, 0, len(fields))
	for _, raw := range fields {
		var a domain.Answer
		if err := json.Unmarshal([]byte(raw), &a); err != nil {
			return nil, fmt.Errorf("unmarshal answer: %w", err)
		}
		out = append(out, a)
	}
	return out, nil
}

func (s *Store) DeleteAnswers(ctx context.Context, sessionID string) error {
	// SCAN instead of KEYS: answer hashes for other sessions may number in
	// the thousands and a blocking keyspace walk would stall every client.
	iter := s.client.Scan(ctx, 0, "answers:"+sessionID+":*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan answer keys: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("delete answers: %w", err)
	}
	return nil
}

func (s *Store) NextSeq(ctx context.Context, sessionID string) (int64, error) {
	seq, err := s.client.Incr(ctx, s.counterKey(sessionID)).Result()
	if err != nil {
		return 0, fmt.Errorf("incr counter: %w", err)
	}
	return seq, nil
}

func (s *Store) CurrentSeq(ctx context.Context, sessionID string) (int64, error) {
	seq, err := s.client.Get(ctx, s.counterKey(sessionID)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read counter: %w", err)
	}
	return seq, nil
}

func (s *Store) SeedCounter(ctx context.Context, sessionID string, seq int64) error {
	if err := s.client.Set(ctx, s.counterKey(sessionID), seq, 0).Err(); err != nil {
		return fmt.Errorf("seed counter: %w", err)
	}
	return nil
}

func (s *Store) AppendEvent(ctx context.Context, ev domain.Event) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	err = s.client.ZAdd(ctx, s.eventsKey(ev.SessionID), redis.Z{
		Score:  float64(ev.Seq),
		Member: raw,
	}).Err()
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

func (s *Store) EventsAfter(ctx context.Context, sessionID string, after int64, limit int) ([]domain.Event, error) {
	rng := &redis.ZRangeBy{
		Min: fmt.Sprintf("(%d", after),
		Max: "+inf",
	}
	if limit > 0 {
		rng.Count = int64(limit)
	}
	members, err := s.client.ZRangeByScore(ctx, s.eventsKey(sessionID), rng).Result()
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	out := make([]domain.Event, 0, len(members))
	for _, raw := range members {
		var ev domain.Event
		if err := json.Unmarshal([]byte(raw), &ev); err != nil {
			return nil, fmt.Errorf("unmarshal event: %w", err)
		}
		out = append(out, ev)
	}
	return out, nil
}

func (s *Store) DeleteEvents(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, s.eventsKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("delete events: %w", err)
	}
	return nil
}
