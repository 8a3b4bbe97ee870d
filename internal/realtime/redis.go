package realtime

import (
	"context"
	"strings"

	"github.com/redis/go-redis/v9"
)

// ChannelPrefix namespaces per-user Redis channels.
const ChannelPrefix = "worldfriends:user:"

// RedisPublisher publishes each event once per recipient on that user's
// channel.
type RedisPublisher struct {
	client *redis.Client
}

// NewRedisPublisher wraps client.
func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{client: client}
}

// Publish implements Publisher. All recipients are sent in one pipeline.
func (p *RedisPublisher) Publish(ctx context.Context, ev Event) error {
	payload, err := encode(ev)
	if err != nil {
		return err
	}
	ids := unique(ev.UserIDs)
	if len(ids) == 0 {
		return nil
	}
	_, err = p.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, uid := range ids {
			pipe.Publish(ctx, ChannelPrefix+uid, payload)
		}
		return nil
	})
	return err
}

// Relay subscribes to every user channel and delivers received payloads to
// hub until ctx is cancelled.
func Relay(ctx context.Context, client *redis.Client, hub *Hub) error {
	sub := client.PSubscribe(ctx, ChannelPrefix+"*")
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			uid := strings.TrimPrefix(msg.Channel, ChannelPrefix)
			hub.Deliver(uid, []byte(msg.Payload))
		}
	}
}
