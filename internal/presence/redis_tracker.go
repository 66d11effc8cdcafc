package presence

import (
	"context"
	"fmt"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const redisOpTimeout = 2 * time.Second

// RedisTracker keeps presence in redis with native key TTLs, so several chat
// server instances share one view of who is online.
type RedisTracker struct {
	cli *redis.Client
}

// NewRedisTracker connects using a redis URL (redis://host:port/db).
func NewRedisTracker(url string) (*RedisTracker, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	return &RedisTracker{cli: redis.NewClient(opt)}, nil
}

// NewRedisTrackerFromClient wraps an existing client. Used in tests.
func NewRedisTrackerFromClient(cli *redis.Client) *RedisTracker {
	return &RedisTracker{cli: cli}
}

func onlineKey(userID uint64) string {
	return fmt.Sprintf("presence:online:%d", userID)
}

// The lastseen key has no TTL: it remembers the final heartbeat after the
// online key lapses.
func lastSeenKey(userID uint64) string {
	return fmt.Sprintf("presence:lastseen:%d", userID)
}

func typingRedisKey(userID uint64, conversationID string) string {
	return fmt.Sprintf("presence:typing:%d:%s", userID, conversationID)
}

func opContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), redisOpTimeout)
}

func (t *RedisTracker) SetOnline(userID uint64) error {
	ctx, cancel := opContext()
	defer cancel()

	now := time.Now().Unix()
	pipe := t.cli.Pipeline()
	pipe.Set(ctx, onlineKey(userID), now, OnlineTTL)
	pipe.Set(ctx, lastSeenKey(userID), now, 0)
	_, err := pipe.Exec(ctx)
	return err
}

func (t *RedisTracker) SetOffline(userID uint64) error {
	ctx, cancel := opContext()
	defer cancel()

	pipe := t.cli.Pipeline()
	pipe.Del(ctx, onlineKey(userID))
	pipe.Set(ctx, lastSeenKey(userID), time.Now().Unix(), 0)
	_, err := pipe.Exec(ctx)
	return err
}

func (t *RedisTracker) SetTyping(userID uint64, conversationID string, typing bool) error {
	ctx, cancel := opContext()
	defer cancel()

	key := typingRedisKey(userID, conversationID)
	if typing {
		return t.cli.Set(ctx, key, time.Now().Unix(), TypingTTL).Err()
	}
	return t.cli.Del(ctx, key).Err()
}

func (t *RedisTracker) IsOnline(userID uint64) (bool, error) {
	ctx, cancel := opContext()
	defer cancel()

	n, err := t.cli.Exists(ctx, onlineKey(userID)).Result()
	return n > 0, err
}

func (t *RedisTracker) IsTyping(userID uint64, conversationID string) (bool, error) {
	ctx, cancel := opContext()
	defer cancel()

	n, err := t.cli.Exists(ctx, typingRedisKey(userID, conversationID)).Result()
	return n > 0, err
}

func (t *RedisTracker) LastSeen(userID uint64) (*time.Time, error) {
	ctx, cancel := opContext()
	defer cancel()

	raw, err := t.cli.Get(ctx, lastSeenKey(userID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	unix, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, err
	}
	seen := time.Unix(unix, 0)
	return &seen, nil
}

func (t *RedisTracker) Close() error {
	return t.cli.Close()
}
