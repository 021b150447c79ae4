package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultStream = "oooz.events"

// Redis appends events to a stream with XADD.
type Redis struct {
	rdb    redis.UniversalClient
	stream string
	owned  bool
}

// NewRedis connects to url.
func NewRedis(url, stream string) (*Redis, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("events: redis: %w", err)
	}
	r := NewRedisWithClient(redis.NewClient(opt), stream)
	r.owned = true
	return r, nil
}

// NewRedisWithClient publishes through an existing client, which the caller
// keeps ownership of.
func NewRedisWithClient(rdb redis.UniversalClient, stream string) *Redis {
	if stream == "" {
		stream = defaultStream
	}
	return &Redis{rdb: rdb, stream: stream}
}

func (r *Redis) Publish(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		return err
	}
	_, err = r.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: r.stream,
		Values: map[string]interface{}{
			"id":      ev.ID,
			"kind":    ev.Kind,
			"time":    ev.Time.Format(time.RFC3339Nano),
			"subject": ev.Subject,
			"data":    string(data),
		},
	}).Result()
	return err
}

func (r *Redis) Close() error {
	if !r.owned {
		return nil
	}
	return r.rdb.Close()
}
