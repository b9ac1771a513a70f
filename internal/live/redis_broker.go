package live

import (
	"context"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const channelPrefix = "inquiry:ticket:"

// RedisBroker relays updates through Redis pub/sub so viewers attached
// to any replica see them.
type RedisBroker struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisBroker builds a broker over client.
func NewRedisBroker(client *redis.Client, logger *zap.Logger) *RedisBroker {
	return &RedisBroker{client: client, logger: logger}
}

func (b *RedisBroker) Publish(ctx context.Context, u Update) error {
	payload, err := encodeUpdate(u)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, channelPrefix+u.TicketID, payload).Err()
}

func (b *RedisBroker) Listen(ctx context.Context, deliver func(Update)) error {
	pubsub := b.client.PSubscribe(ctx, channelPrefix+"*")
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			u, err := decodeUpdate([]byte(msg.Payload))
			if err != nil {
				b.logger.Warn("discarding undecodable live update",
					zap.String("channel", msg.Channel), zap.Error(err))
				continue
			}
			if u.TicketID == "" {
				u.TicketID = strings.TrimPrefix(msg.Channel, channelPrefix)
			}
			deliver(u)
		}
	}
}
