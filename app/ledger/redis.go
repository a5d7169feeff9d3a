package ledger

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "usage"

// RedisStore shares usage records across instances. Each device is a hash
// {date, count} that expires at the next local midnight.
type RedisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(deviceID string) string {
	return s.prefix + ":" + deviceID
}

func (s *RedisStore) Get(ctx context.Context, deviceID string) (Record, bool, error) {
	vals, err := s.client.HGetAll(ctx, s.key(deviceID)).Result()
	if err != nil {
		return Record{}, false, err
	}
	if len(vals) == 0 {
		return Record{}, false, nil
	}
	count, err := strconv.Atoi(vals["count"])
	if err != nil {
		// unreadable bucket, start over
		return Record{}, false, nil
	}
	return Record{Date: vals["date"], Count: count}, true, nil
}

func (s *RedisStore) Put(ctx context.Context, deviceID string, rec Record, expireAt time.Time) error {
	key := s.key(deviceID)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, "date", rec.Date, "count", rec.Count)
		pipe.ExpireAt(ctx, key, expireAt)
		return nil
	})
	return err
}

func (s *RedisStore) Increment(ctx context.Context, deviceID string, expireAt time.Time) (int, error) {
	key := s.key(deviceID)
	var incr *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.HIncrBy(ctx, key, "count", 1)
		pipe.ExpireAt(ctx, key, expireAt)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return int(incr.Val()), nil
}
