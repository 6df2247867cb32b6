package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"trivia-service/internal/domain"
)

// QuestionSetLoader fetches question sets from a backing store (e.g. Postgres).
type QuestionSetLoader interface {
	LoadQuestionSet(ctx context.Context, setID string) (domain.QuestionSet, error)
}

// Catalog caches question sets in Redis (JSON per set) and falls back to a
// loader on cache miss. Stored as: SET catalog:{setID} {json} EX ttl.
type Catalog struct {
	client *redis.Client
	loader QuestionSetLoader
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewCatalog(client *redis.Client, loader QuestionSetLoader, ttl time.Duration) *Catalog {
	return &Catalog{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *Catalog) GetQuestionSet(ctx context.Context, setID string) (domain.QuestionSet, error) {
	key := c.key(setID)

	raw, err := c.client.Get(ctx, key).Result()
	if err == nil {
		var set domain.QuestionSet
		if err := json.Unmarshal([]byte(raw), &set); err == nil {
			return set, nil
		}
	}

	result, err, _ := c.sf.Do(setID, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		raw, err := c.client.Get(ctx, key).Result()
		if err == nil {
			var set domain.QuestionSet
			if err := json.Unmarshal([]byte(raw), &set); err == nil {
				return set, nil
			}
		}

		set, err := c.loader.LoadQuestionSet(ctx, setID)
		if err != nil {
			return domain.QuestionSet{}, err
		}

		data, err := json.Marshal(set)
		if err != nil {
			return domain.QuestionSet{}, fmt.Errorf("marshal question set: %w", err)
		}
		_ = c.client.Set(ctx, key, data, c.ttlWithJitter()).Err()

		return set, nil
	})
	if err != nil {
		return domain.QuestionSet{}, err
	}
	return result.(domain.QuestionSet), nil
}

func (c *Catalog) key(setID string) string {
	return "catalog:" + setID
}

func (c *Catalog) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
