package task

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const redisPublishTimeout = 2 * time.Second

// redisStateChange is the wire shape published on the Redis channel —
// a flattened projection of StateChange, since State itself carries
// values (time.Time, maps) that marshal fine but that remote observers
// only need in summary form.
type redisStateChange struct {
	TaskID string `json:"task_id"`
	VTID   string `json:"vtid"`
	From   Status `json:"from"`
	To     Status `json:"to"`
}

// RedisBroadcaster publishes every state transition to a Redis Pub/Sub
// channel, so that multiple taskforge instances sharing one Redis
// deployment observe each other's task lifecycle (spec §6 "Redis ...
// optional Pub/Sub backing for the state-change subscription hook").
// Each publish runs synchronously inside the store's subscriber call,
// so the transitioning goroutine waits on Redis for at most
// redisPublishTimeout; publish failures are logged and swallowed.
type RedisBroadcaster struct {
	client  *redis.Client
	channel string
	log     *logrus.Logger
}

// NewRedisBroadcaster constructs a broadcaster against addr (e.g.
// "localhost:6379"). channel is the Pub/Sub channel name; callers
// typically use one channel per deployment/tenant.
func NewRedisBroadcaster(addr, channel string, log *logrus.Logger) *RedisBroadcaster {
	if log == nil {
		log = logrus.New()
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	return &RedisBroadcaster{client: client, channel: channel, log: log}
}

// Subscriber adapts the broadcaster to the Store's Subscriber contract.
func (b *RedisBroadcaster) Subscriber() Subscriber {
	return func(change StateChange) {
		b.publish(change)
	}
}

func (b *RedisBroadcaster) publish(change StateChange) {
	payload, err := json.Marshal(redisStateChange{
		TaskID: change.TaskID,
		VTID:   change.VTID,
		From:   change.From,
		To:     change.To,
	})
	if err != nil {
		b.log.WithError(err).Warn("task: redis broadcast: marshal state change")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), redisPublishTimeout)
	defer cancel()
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		b.log.WithError(err).Warn("task: redis broadcast: publish")
	}
}

// Close releases the underlying Redis connection pool.
func (b *RedisBroadcaster) Close() error {
	return b.client.Close()
}

// Listen subscribes to the broadcaster's channel and invokes handler
// for every decodable message until ctx is cancelled. It is the
// counterpart used by a second taskforge instance (or an external
// dashboard) observing the shared channel; the orchestrator itself
// never calls it.
func (b *RedisBroadcaster) Listen(ctx context.Context, handler func(taskID, vtid string, from, to Status)) error {
	sub := b.client.Subscribe(ctx, b.channel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return fmt.Errorf("task: redis broadcast: channel %s closed", b.channel)
			}
			var change redisStateChange
			if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
				b.log.WithError(err).Warn("task: redis broadcast: unmarshal state change")
				continue
			}
			handler(change.TaskID, change.VTID, change.From, change.To)
		}
	}
}
