// Package linkcache puts a Redis read-through cache in front of the
// post → message lookup. Link records are never updated, so a cached hit
// stays correct for as long as the key lives.
package linkcache

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	. "github.com/lovelive-bluebird/bluebird/utils/log"
)

const (
	keyPrefix  = "bluebird:link:"
	DefaultTTL = 7 * 24 * time.Hour
)

// Lookup is the uncached source of truth, usually *store.Store.
type Lookup interface {
	GetRepublishedID(ctx context.Context, tweetId string) (int64, bool, error)
}

type Cache struct {
	inner  *redis.Client
	lookup Lookup
	ttl    time.Duration
}

func New(client *redis.Client, lookup Lookup, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{inner: client, lookup: lookup, ttl: ttl}
}

// NewFromEnv connects using REDIS_HOST, REDIS_PORT and REDIS_PASSWD.
func NewFromEnv(ctx context.Context, lookup Lookup) (*Cache, error) {
	return Connect(ctx, fmt.Sprintf("%s:%s", os.Getenv("REDIS_HOST"), os.Getenv("REDIS_PORT")), os.Getenv("REDIS_PASSWD"), lookup)
}

// Connect returns an error when Redis cannot be pinged.
func Connect(ctx context.Context, addr string, password string, lookup Lookup) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0, // use default DB
	})
	if _, err := client.Ping(ctx).Result(); err != nil {
		client.Close()
		return nil, errors.Wrap(err, "ping redis")
	}
	return New(client, lookup, DefaultTTL), nil
}

func Key(tweetId string) string {
	return keyPrefix + tweetId
}

// GetRepublishedID serves from Redis when possible. Misses are not cached,
// the parent may be published later. Redis failures fall through to the
// lookup.
func (c *Cache) GetRepublishedID(ctx context.Context, tweetId string) (int64, bool, error) {
	val, err := c.inner.Get(ctx, Key(tweetId)).Result()
	switch {
	case err == nil:
		if id, convErr := strconv.ParseInt(val, 10, 64); convErr == nil {
			return id, true, nil
		}
		Log.WithField("tweet_id", tweetId).Warn("discarding malformed cached link")
	case err != redis.Nil:
		Log.WithFields(logrus.Fields{"tweet_id": tweetId}).WithError(err).Warn("link cache read failed")
	}

	id, found, err := c.lookup.GetRepublishedID(ctx, tweetId)
	if err != nil || !found {
		return id, found, err
	}
	c.Remember(ctx, tweetId, id)
	return id, true, nil
}

// Remember stores a freshly published link so that replies arriving later
// skip the database.
func (c *Cache) Remember(ctx context.Context, tweetId string, messageId int64) {
	if err := c.inner.Set(ctx, Key(tweetId), strconv.FormatInt(messageId, 10), c.ttl).Err(); err != nil {
		Log.WithFields(logrus.Fields{"tweet_id": tweetId}).WithError(err).Warn("link cache write failed")
	}
}

func (c *Cache) Close() error {
	return c.inner.Close()
}
