package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Redis stream defaults.
const (
	DefaultRedisStream = "fallwatch:events"
	DefaultRedisMaxLen = 1000
)

// RedisStream appends payloads to a capped Redis stream with XADD.
type RedisStream struct {
	client *redis.Client
	stream string
	maxLen int64
	now    func() time.Time
}

// NewRedisStream creates the sink. maxLen <= 0 uses the default cap.
func NewRedisStream(client *redis.Client, stream string, maxLen int64) *RedisStream {
	if stream == "" {
		stream = DefaultRedisStream
	}
	if maxLen <= 0 {
		maxLen = DefaultRedisMaxLen
	}
	return &RedisStream{client: client, stream: stream, maxLen: maxLen, now: time.Now}
}

// SendAlert implements Notifier.
func (r *RedisStream) SendAlert(ctx context.Context, a Alert) error {
	body, err := alertPayload(a)
	if err != nil {
		return fmt.Errorf("%w: redis: encode alert: %v", ErrNotification, err)
	}
	return r.add(ctx, "fall_alert", body, a.Time)
}

// SendMessage implements Notifier.
func (r *RedisStream) SendMessage(ctx context.Context, text string) error {
	now := r.now()
	body, err := messagePayload(text, now)
	if err != nil {
		return fmt.Errorf("%w: redis: encode message: %v", ErrNotification, err)
	}
	return r.add(ctx, "message", body, now)
}

func (r *RedisStream) add(ctx context.Context, kind string, body []byte, at time.Time) error {
	err := r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: r.stream,
		MaxLen: r.maxLen,
		Approx: true,
		Values: map[string]interface{}{
			"kind":      kind,
			"data":      string(body),
			"timestamp": at.Unix(),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("%w: redis xadd %s: %v", ErrNotification, r.stream, err)
	}
	return nil
}
