// Package ratelimit is the per-policy notification throttle: a fixed
// clock-hour bucket counter backed by Redis, adapted from the teacher's
// RedisStreamer (same client, same connect-and-ping-at-construction shape,
// repurposed from XAdd log streaming into INCR+EXPIRE counting).
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Counter tracks how many notifications a policy has sent in the current
// UTC clock hour.
type Counter struct {
	client *redis.Client
}

// New connects to addr and verifies it with a Ping, matching the teacher's
// NewRedisStreamer construction.
func New(addr, password string) (*Counter, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return &Counter{client: client}, nil
}

// bucketKey buckets by policy id and the current UTC clock hour. Increment
// sets the key's TTL on its first increment, so a bucket expires an hour
// after that.
func bucketKey(policyID int64, now time.Time) string {
	return fmt.Sprintf("notify:throttle:%d:%s", policyID, now.UTC().Format("2006010215"))
}

// Increment records one notification send for policyID and returns the
// count within the current hour bucket, including this one.
func (c *Counter) Increment(ctx context.Context, policyID int64) (int64, error) {
	key := bucketKey(policyID, time.Now())
	count, err := c.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if count == 1 {
		c.client.Expire(ctx, key, time.Hour)
	}
	return count, nil
}

// Allow reports whether sending one more notification for policyID would
// stay within maxPerHour. A nil maxPerHour means unlimited.
func (c *Counter) Allow(ctx context.Context, policyID int64, maxPerHour *int) (bool, error) {
	if maxPerHour == nil {
		return true, nil
	}
	key := bucketKey(policyID, time.Now())
	current, err := c.client.Get(ctx, key).Int64()
	if err != nil && err != redis.Nil {
		return false, err
	}
	return current < int64(*maxPerHour), nil
}

// Close releases the Redis client.
func (c *Counter) Close() error { return c.client.Close() }
