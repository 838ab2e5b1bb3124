package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/scttfrdmn/toolplan/toolplan"
)

// DefaultKeyPrefix prefixes every Redis key written by RedisLog.
const DefaultKeyPrefix = "toolplan:history"

// RedisLog keeps conversation logs in Redis so they survive restarts and
// are shared between assistant processes.
//
// Each session is a list at "{prefix}:{session}:messages" holding one
// JSON-encoded message per element, oldest first. Appends use RPUSH, the
// list is trimmed to the retention limit, and the key's TTL is refreshed
// on every append.
type RedisLog struct {
	client      redis.UniversalClient
	keyPrefix   string
	ttl         time.Duration
	maxMessages int
}

// RedisOption configures a RedisLog.
type RedisOption func(*RedisLog)

// WithTTL expires idle sessions after ttl (0 = never).
func WithTTL(ttl time.Duration) RedisOption {
	return func(l *RedisLog) { l.ttl = ttl }
}

// WithKeyPrefix sets the key prefix.
func WithKeyPrefix(prefix string) RedisOption {
	return func(l *RedisLog) { l.keyPrefix = prefix }
}

// WithMaxMessages sets the per-session retention limit.
func WithMaxMessages(n int) RedisOption {
	return func(l *RedisLog) { l.maxMessages = n }
}

// NewRedisLog connects to the Redis server at redisURL
// (e.g. "redis://localhost:6379/0").
func NewRedisLog(redisURL string, opts ...RedisOption) (*RedisLog, error) {
	ropts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid Redis URL: %w", err)
	}
	return NewRedisLogWithClient(redis.NewClient(ropts), opts...), nil
}

// NewRedisLogWithClient wraps an existing client.
func NewRedisLogWithClient(client redis.UniversalClient, opts ...RedisOption) *RedisLog {
	l := &RedisLog{
		client:      client,
		keyPrefix:   DefaultKeyPrefix,
		maxMessages: DefaultMaxMessages,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.maxMessages <= 0 {
		l.maxMessages = DefaultMaxMessages
	}
	return l
}

// Ping checks the connection.
func (l *RedisLog) Ping(ctx context.Context) error {
	if err := l.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// Close closes the underlying client.
func (l *RedisLog) Close() error {
	return l.client.Close()
}

func (l *RedisLog) sessionKey(sessionID string) string {
	return fmt.Sprintf("%s:%s:messages", l.keyPrefix, sessionID)
}

// Append adds msg to the end of the session's list.
func (l *RedisLog) Append(ctx context.Context, sessionID string, msg *toolplan.Message) error {
	if err := validate(sessionID, msg); err != nil {
		return err
	}

	value, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to serialize message: %w", err)
	}

	key := l.sessionKey(sessionID)
	pipe := l.client.TxPipeline()
	pipe.RPush(ctx, key, value)
	pipe.LTrim(ctx, key, int64(-l.maxMessages), -1)
	if l.ttl > 0 {
		pipe.Expire(ctx, key, l.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}
	return nil
}

// Recent returns up to limit of the newest messages, oldest first.
// Elements that do not decode are skipped.
func (l *RedisLog) Recent(ctx context.Context, sessionID string, limit int) ([]toolplan.Message, error) {
	start := int64(0)
	if limit > 0 {
		start = int64(-limit)
	}
	values, err := l.client.LRange(ctx, l.sessionKey(sessionID), start, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read messages: %w", err)
	}

	msgs := make([]toolplan.Message, 0, len(values))
	for _, v := range values {
		var msg toolplan.Message
		if err := json.Unmarshal([]byte(v), &msg); err != nil {
			continue
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

// Clear deletes the session's list.
func (l *RedisLog) Clear(ctx context.Context, sessionID string) error {
	if err := l.client.Del(ctx, l.sessionKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}
