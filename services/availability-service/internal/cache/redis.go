// Package cache keeps short-lived generated slot responses in Redis. Entries are keyed by a
// per-mentor version that every write to the mentor's availability or busy state bumps, so
// invalidation is a single INCR and old entries simply expire.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const DefaultTTL = 30 * time.Second

type SlotCache struct {
	rdb    *redis.Client
	ttl    time.Duration
	prefix string
}

func NewSlotCache(rdb *redis.Client, ttl time.Duration, prefix string) *SlotCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "slots"
	}
	return &SlotCache{rdb: rdb, ttl: ttl, prefix: prefix}
}

func (c *SlotCache) versionKey(mentorID string) string {
	return c.prefix + ":ver:" + mentorID
}

// Version returns the mentor's current version, 0 when it was never bumped.
func (c *SlotCache) Version(ctx context.Context, mentorID string) (int64, error) {
	v, err := c.rdb.Get(ctx, c.versionKey(mentorID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return v, err
}

// Bump invalidates every cached response of the mentor.
func (c *SlotCache) Bump(ctx context.Context, mentorID string) error {
	return c.rdb.Incr(ctx, c.versionKey(mentorID)).Err()
}

func (c *SlotCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := c.rdb.Get(ctx, c.prefix+":"+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (c *SlotCache) Set(ctx context.Context, key string, value []byte) error {
	return c.rdb.Set(ctx, c.prefix+":"+key, value, c.ttl).Err()
}

// Key identifies one generation request. now is truncated to the minute so repeated requests
// within a minute share an entry; callers still drop slots that started since.
type Key struct {
	MentorID           string
	Version            int64
	DurationMinutes    int
	HorizonDays        int
	ViewerTimezone     string
	IncludeUnavailable bool
	Now                time.Time
}

func (k Key) String() string {
	return fmt.Sprintf("%s:v%d:d%d:h%d:%s:u%t:%d",
		k.MentorID, k.Version, k.DurationMinutes, k.HorizonDays, k.ViewerTimezone, k.IncludeUnavailable,
		k.Now.UTC().Truncate(time.Minute).Unix())
}

// ReadyCheck pings Redis for /readyz.
func ReadyCheck(rdb *redis.Client) func(context.Context) error {
	return func(ctx context.Context) error {
		if rdb == nil {
			return errors.New("redis not configured")
		}
		return rdb.Ping(ctx).Err()
	}
}
