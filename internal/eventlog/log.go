package eventlog

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jonboulle/clockwork"

	"trivia-service/internal/domain"
)

// Store abstracts the document collections backing the log: a per-session
// counter supporting atomic increment-and-fetch, and the event records.
type Store interface {
	// NextSeq atomically increments the session counter and returns the
	// updated value.
	NextSeq(ctx context.Context, sessionID string) (int64, error)
	// CurrentSeq reads the counter without incrementing; 0 if absent.
	CurrentSeq(ctx context.Context, sessionID string) (int64, error)
	// SeedCounter writes the counter to an explicit value, creating it
	// if missing.
	SeedCounter(ctx context.Context, sessionID string, seq int64) error
	AppendEvent(ctx context.Context, ev domain.Event) error
	// EventsAfter returns events with seq > after in ascending seq order.
	// A limit <= 0 means no cap.
	EventsAfter(ctx context.Context, sessionID string, after int64, limit int) ([]domain.Event, error)
	DeleteEvents(ctx context.Context, sessionID string) error
}

// Log is the per-session append-only event log. Sequence numbers come from
// the store's atomic counter, not the session lock, so the scheduler and
// transport may append independently without ever colliding.
type Log struct {
	store Store
	clock clockwork.Clock
	bus   *Bus
}

func New(store Store, clock clockwork.Clock) *Log {
	return &Log{store: store, clock: clock, bus: NewBus()}
}

// Bus exposes the in-process fan-out for live subscribers.
func (l *Log) Bus() *Bus {
	return l.bus
}

// Append marshals payload, stamps it with the next sequence number and the
// current time, persists it, and fans it out to live subscribers.
func (l *Log) Append(ctx context.Context, sessionID string, payload any) (int64, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("marshal event payload: %w", err)
	}

	seq, err := l.store.NextSeq(ctx, sessionID)
	if err != nil {
		return 0, fmt.Errorf("next seq: %w", err)
	}
	if seq == 0 {
		// The increment claimed success but the provider did not echo the
		// updated value. Re-read, and as a last resort rebuild the counter
		// from the highest stored event instead of propagating the failure.
		seq, err = l.healCounter(ctx, sessionID)
		if err != nil {
			return 0, err
		}
	}

	ev := domain.Event{
		SessionID: sessionID,
		Seq:       seq,
		Timestamp: float64(l.clock.Now().UnixNano()) / 1e9,
		Payload:   raw,
	}
	if err := l.store.AppendEvent(ctx, ev); err != nil {
		return 0, fmt.Errorf("append event: %w", err)
	}

	l.bus.Publish(sessionID, ev)
	return seq, nil
}

func (l *Log) healCounter(ctx context.Context, sessionID string) (int64, error) {
	seq, err := l.store.CurrentSeq(ctx, sessionID)
	if err != nil {
		return 0, fmt.Errorf("re-read counter: %w", err)
	}
	if seq > 0 {
		return seq, nil
	}

	events, err := l.store.EventsAfter(ctx, sessionID, 0, 0)
	if err != nil {
		return 0, fmt.Errorf("scan events for counter baseline: %w", err)
	}
	if len(events) > 0 {
		seq = events[len(events)-1].Seq
	}
	seq++
	if err := l.store.SeedCounter(ctx, sessionID, seq); err != nil {
		return 0, fmt.Errorf("seed counter: %w", err)
	}
	return seq, nil
}

// List returns events with seq > after in ascending order, capped at limit.
func (l *Log) List(ctx context.Context, sessionID string, after int64, limit int) ([]domain.Event, error) {
	return l.store.EventsAfter(ctx, sessionID, after, limit)
}

// Reset deletes the session's events, rebaselines the counter, and appends
// a session_reset marker so subscribers drop previously derived state.
func (l *Log) Reset(ctx context.Context, sessionID string) error {
	if err := l.store.DeleteEvents(ctx, sessionID); err != nil {
		return fmt.Errorf("delete events: %w", err)
	}
	if err := l.store.SeedCounter(ctx, sessionID, 0); err != nil {
		return fmt.Errorf("rebaseline counter: %w", err)
	}
	if _, err := l.Append(ctx, sessionID, domain.NewSessionReset()); err != nil {
		return err
	}
	return nil
}
