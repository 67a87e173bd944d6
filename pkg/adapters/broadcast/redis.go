package broadcast

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/user/framegrab/pkg/ports"
	"github.com/user/framegrab/pkg/transport"
)

// Default channel names.
const (
	DefaultAckChannel     = "framegrab:acks"
	DefaultMessageChannel = "framegrab:messages"
)

// Redis carries acknowledgements and page messages over Redis pub/sub, so
// the page and the background worker can live in different processes.
type Redis struct {
	client         *redis.Client
	ackChannel     string
	messageChannel string
	logger         ports.Logger
}

var (
	_ transport.AckBus = (*Redis)(nil)
	_ transport.Poster = (*Redis)(nil)
)

// NewRedis wraps client using channels prefixed by prefix. An empty prefix
// selects the default channel names.
func NewRedis(client *redis.Client, prefix string, logger ports.Logger) *Redis {
	r := &Redis{
		client:         client,
		ackChannel:     DefaultAckChannel,
		messageChannel: DefaultMessageChannel,
		logger:         logger.WithComponent("redis-bus"),
	}
	if prefix != "" {
		r.ackChannel = prefix + ":acks"
		r.messageChannel = prefix + ":messages"
	}
	return r
}

// Subscribe implements transport.AckSource. It returns once Redis has
// confirmed the subscription, so no token published afterwards is missed.
func (r *Redis) Subscribe(ctx context.Context) (<-chan string, error) {
	ps, err := r.subscribe(ctx, r.ackChannel)
	if err != nil {
		return nil, err
	}

	out := make(chan string, DefaultBufferSize)
	go func() {
		defer close(out)
		defer ps.Close()
		in := ps.Channel()
		for {
			select {
			case msg, ok := <-in:
				if !ok {
					return
				}
				select {
				case out <- msg.Payload:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Publish implements transport.AckPublisher.
func (r *Redis) Publish(ctx context.Context, token string) error {
	if err := r.client.Publish(ctx, r.ackChannel, token).Err(); err != nil {
		return fmt.Errorf("publish ack: %w", err)
	}
	return nil
}

// Post implements transport.Poster by publishing msg as JSON.
func (r *Redis) Post(ctx context.Context, msg transport.Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	n, err := r.client.Publish(ctx, r.messageChannel, payload).Result()
	if err != nil {
		return fmt.Errorf("publish message: %w", err)
	}
	if n == 0 {
		// Nobody is listening; the page will see an ack timeout.
		r.logger.Warn("No worker listening on %s", r.messageChannel)
	}
	return nil
}

// Listen feeds page messages to handle until ctx is done. Handler errors
// are logged and the message is left unacknowledged.
func (r *Redis) Listen(ctx context.Context, handle func(context.Context, transport.Message) error) error {
	ps, err := r.subscribe(ctx, r.messageChannel)
	if err != nil {
		return err
	}
	defer ps.Close()

	in := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case raw, ok := <-in:
			if !ok {
				return nil
			}
			var msg transport.Message
			if err := json.Unmarshal([]byte(raw.Payload), &msg); err != nil {
				r.logger.Warn("Discarding malformed message: %v", err)
				continue
			}
			if err := handle(ctx, msg); err != nil {
				r.logger.Warn("%s %s failed: %v", msg.Action, msg.ID, err)
			}
		}
	}
}

func (r *Redis) subscribe(ctx context.Context, channel string) (*redis.PubSub, error) {
	ps := r.client.Subscribe(ctx, channel)
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}
	return ps, nil
}
