package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"trivia-service/internal/domain"
)

// QuestionSetLoader fetches question sets from a backing store (e.g. Postgres).
type QuestionSetLoader interface {
	LoadQuestionSet(ctx context.Context, setID string) (domain.QuestionSet, error)
}

// Catalog keeps loaded question sets in memory for a TTL so repeated game
// setups against the same set skip the backing store. Concurrent misses
// for one set collapse into a single load.
type Catalog struct {
	loader QuestionSetLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand

	mu    sync.RWMutex
	cache map[string]catalogEntry
}

type catalogEntry struct {
	set       domain.QuestionSet
	expiresAt time.Time
}

func NewCatalog(loader QuestionSetLoader, ttl time.Duration) *Catalog {
	return &Catalog{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]catalogEntry),
	}
}

func (c *Catalog) GetQuestionSet(ctx context.Context, setID string) (domain.QuestionSet, error) {
	if set, ok := c.lookup(setID); ok {
		return set, nil
	}

	result, err, _ := c.sf.Do(setID, func() (interface{}, error) {
		// A concurrent load may have landed while we queued for the flight.
		if set, ok := c.lookup(setID); ok {
			return set, nil
		}

		set, err := c.loader.LoadQuestionSet(ctx, setID)
		if err != nil {
			return domain.QuestionSet{}, err
		}

		c.mu.Lock()
		c.cache[setID] = catalogEntry{
			set:       set,
			expiresAt: c.clock().Add(c.ttlWithJitter()),
		}
		c.mu.Unlock()
		return set, nil
	})
	if err != nil {
		return domain.QuestionSet{}, err
	}
	return result.(domain.QuestionSet), nil
}

func (c *Catalog) lookup(setID string) (domain.QuestionSet, bool) {
	now := c.clock()
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.cache[setID]
	if !ok || !entry.expiresAt.After(now) {
		return domain.QuestionSet{}, false
	}
	return entry.set, true
}

// ttlWithJitter stretches the TTL by up to 10% per entry, staggering
// refreshes of sets that were cached in the same burst.
func (c *Catalog) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}

// StaticLoader serves question sets from a fixed map. The server falls back
// to it for demo content when no Postgres catalog is configured.
type StaticLoader struct {
	sets map[string]domain.QuestionSet
}

func NewStaticLoader(sets map[string]domain.QuestionSet) *StaticLoader {
	return &StaticLoader{sets: sets}
}

func (l *StaticLoader) LoadQuestionSet(_ context.Context, setID string) (domain.QuestionSet, error) {
	if set, ok := l.sets[setID]; ok {
		return set, nil
	}
	return domain.QuestionSet{}, domain.ErrQuestionSetNotFound
}
