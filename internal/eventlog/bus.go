package eventlog

import (
	"sync"

	"trivia-service/internal/domain"
)

const subscriberBuffer = 64

// Bus fans appended events out to in-process subscribers (the websocket
// relay). Publishing never blocks: a full subscriber drops its oldest
// pending event, since clients can always re-sync from the log.
type Bus struct {
	mu   sync.Mutex
	subs map[string]map[chan domain.Event]struct{}
}

func NewBus() *Bus {
	return &Bus{subs: make(map[string]map[chan domain.Event]struct{})}
}

// Subscribe returns a channel of events for one session. The caller must
// invoke the returned cancel function to avoid leaks.
func (b *Bus) Subscribe(sessionID string) (<-chan domain.Event, func()) {
	ch := make(chan domain.Event, subscriberBuffer)

	b.mu.Lock()
	if b.subs[sessionID] == nil {
		b.subs[sessionID] = make(map[chan domain.Event]struct{})
	}
	b.subs[sessionID][ch] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if set, ok := b.subs[sessionID]; ok {
			if _, ok := set[ch]; ok {
				delete(set, ch)
				close(ch)
			}
			if len(set) == 0 {
				delete(b.subs, sessionID)
			}
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers ev to every subscriber of the session.
func (b *Bus) Publish(sessionID string, ev domain.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for ch := range b.subs[sessionID] {
		select {
		case ch <- ev:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- ev
		}
	}
}
