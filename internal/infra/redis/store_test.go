package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"trivia-service/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewStore(client)
}

func TestSessionRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	missing, err := store.GetSession(ctx, "nope")
	if err != nil || missing != nil {
		t.Fatalf("expected (nil, nil) for unknown session, got %v %v", missing, err)
	}

	s := domain.NewSession("s1", time.Now())
	s.Players = []domain.Player{{ID: "alice", Username: "Alice", Score: 15}}
	s.Questions = []domain.Question{{ID: "q1", Text: "?", Options: []string{"a", "b"}, CorrectIndex: 1}}
	if err := store.PutSession(ctx, s); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := store.GetSession(ctx, "s1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.State != domain.StateLobby || len(got.Players) != 1 || got.Players[0].Score != 15 {
		t.Fatalf("session did not round-trip: %+v", got)
	}
	if len(got.Questions) != 1 || got.Questions[0].CorrectIndex != 1 {
		t.Fatalf("questions did not round-trip: %+v", got.Questions)
	}
}

func TestInsertAnswerIsAtomic(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	a := domain.Answer{SessionID: "s1", PlayerID: "alice", QuestionID: "q1", OptionIndex: 1, IsCorrect: true, Timestamp: 12.5}
	if err := store.InsertAnswer(ctx, a); err != nil {
		t.Fatalf("insert: %v", err)
	}
	a.OptionIndex = 0
	if err := store.InsertAnswer(ctx, a); err != domain.ErrDuplicateAnswer {
		t.Fatalf("expected ErrDuplicateAnswer, got %v", err)
	}

	if err := store.InsertAnswer(ctx, domain.Answer{SessionID: "s1", PlayerID: "bob", QuestionID: "q1"}); err != nil {
		t.Fatalf("insert other player: %v", err)
	}

	answers, err := store.AnswersForQuestion(ctx, "s1", "q1")
	if err != nil {
		t.Fatalf("answers: %v", err)
	}
	if len(answers) != 2 {
		t.Fatalf("expected 2 answers, got %d", len(answers))
	}
	for _, got := range answers {
		if got.PlayerID == "alice" && (got.OptionIndex != 1 || !got.IsCorrect || got.Timestamp != 12.5) {
			t.Fatalf("first write must win: %+v", got)
		}
	}

	if err := store.DeleteAnswers(ctx, "s1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	answers, _ = store.AnswersForQuestion(ctx, "s1", "q1")
	if len(answers) != 0 {
		t.Fatalf("expected no answers after delete, got %d", len(answers))
	}
}

func TestDeleteAnswersScopedToSession(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	for q := 0; q < 25; q++ {
		a := domain.Answer{SessionID: "s1", PlayerID: "alice", QuestionID: fmt.Sprintf("q%d", q)}
		if err := store.InsertAnswer(ctx, a); err != nil {
			t.Fatalf("insert s1 q%d: %v", q, err)
		}
	}
	if err := store.InsertAnswer(ctx, domain.Answer{SessionID: "s2", PlayerID: "bob", QuestionID: "q0"}); err != nil {
		t.Fatalf("insert s2: %v", err)
	}

	if err := store.DeleteAnswers(ctx, "s1"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	for q := 0; q < 25; q++ {
		answers, err := store.AnswersForQuestion(ctx, "s1", fmt.Sprintf("q%d", q))
		if err != nil {
			t.Fatalf("answers q%d: %v", q, err)
		}
		if len(answers) != 0 {
			t.Fatalf("expected q%d cleared, got %d answers", q, len(answers))
		}
	}
	answers, err := store.AnswersForQuestion(ctx, "s2", "q0")
	if err != nil || len(answers) != 1 {
		t.Fatalf("other session's answers must survive, got %d (%v)", len(answers), err)
	}
}

func TestCounterIncrementAndSeed(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	if cur, err := store.CurrentSeq(ctx, "s1"); err != nil || cur != 0 {
		t.Fatalf("expected 0 for fresh counter, got %d (%v)", cur, err)
	}
	for want := int64(1); want <= 3; want++ {
		got, err := store.NextSeq(ctx, "s1")
		if err != nil || got != want {
			t.Fatalf("expected %d, got %d (%v)", want, got, err)
		}
	}
	if err := store.SeedCounter(ctx, "s1", 7); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if got, _ := store.NextSeq(ctx, "s1"); got != 8 {
		t.Fatalf("expected 8 after seeding to 7, got %d", got)
	}
}

func TestEventsOrderedBySeq(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	for _, seq := range []int64{3, 1, 2} {
		ev := domain.Event{SessionID: "s1", Seq: seq, Timestamp: float64(seq), Payload: []byte(`{"type":"note"}`)}
		if err := store.AppendEvent(ctx, ev); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	events, err := store.EventsAfter(ctx, "s1", 0, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(events) != 3 || events[0].Seq != 1 || events[2].Seq != 3 {
		t.Fatalf("expected seqs [1 2 3], got %+v", events)
	}

	events, err = store.EventsAfter(ctx, "s1", 1, 1)
	if err != nil {
		t.Fatalf("list after/limit: %v", err)
	}
	if len(events) != 1 || events[0].Seq != 2 {
		t.Fatalf("expected [2], got %+v", events)
	}

	if err := store.DeleteEvents(ctx, "s1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	events, _ = store.EventsAfter(ctx, "s1", 0, 0)
	if len(events) != 0 {
		t.Fatalf("expected empty log, got %d", len(events))
	}
}
