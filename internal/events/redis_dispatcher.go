package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/xid"
	"go.uber.org/zap"
)

// RedisDispatcher publishes locally and relays every event over a Redis
// pub/sub channel so other instances can refresh their subscribers.
type RedisDispatcher struct {
	local   Dispatcher
	client  *redis.Client
	channel string
	origin  string
	logger  *zap.Logger
}

// NewRedisDispatcher wraps local with a Redis relay on channel.
func NewRedisDispatcher(local Dispatcher, client *redis.Client, channel string, logger *zap.Logger) *RedisDispatcher {
	return &RedisDispatcher{
		local:   local,
		client:  client,
		channel: channel,
		origin:  xid.New().String(),
		logger:  logger,
	}
}

// Publish delivers to local handlers first, then relays. A relay failure is
// returned but does not undo local delivery.
func (d *RedisDispatcher) Publish(ctx context.Context, event Event) error {
	event.Origin = d.origin
	localErr := d.local.Publish(ctx, event)

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := d.client.Publish(ctx, d.channel, data).Err(); err != nil {
		return fmt.Errorf("relay event: %w", err)
	}
	return localErr
}

// Subscribe registers a local handler.
func (d *RedisDispatcher) Subscribe(eventType EventType, handler EventHandler) {
	d.local.Subscribe(eventType, handler)
}

// Run receives events from other instances until ctx is done.
func (d *RedisDispatcher) Run(ctx context.Context) {
	sub := d.client.Subscribe(ctx, d.channel)
	defer sub.Close()

	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			d.relay(ctx, msg.Payload)
		}
	}
}

func (d *RedisDispatcher) relay(ctx context.Context, payload string) {
	var event Event
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		d.logger.Warn("dropping malformed relayed event", zap.Error(err))
		return
	}
	if event.Origin == d.origin {
		return
	}
	event.Relayed = true
	if err := d.local.Publish(ctx, event); err != nil {
		d.logger.Warn("relayed event handler failed",
			zap.String("event_type", string(event.Type)),
			zap.String("ticket_id", event.TicketID),
			zap.Error(err))
	}
}
