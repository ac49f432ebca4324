package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/anonto42/bazaar/backend/internal/models"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const channelPrefix = "chat:conversation:"

// ChannelFor returns the Redis pub/sub channel carrying a conversation's messages.
func ChannelFor(conversationID uint) string {
	return channelPrefix + strconv.FormatUint(uint64(conversationID), 10)
}

// RedisBroker publishes appended messages through Redis so that subscribers
// connected to any process receive them. Each process runs one pattern
// subscription and feeds its local Hub.
type RedisBroker struct {
	client *redis.Client
	hub    *Hub
	ready  chan struct{}
}

// NewRedisBroker creates a RedisBroker delivering into hub.
func NewRedisBroker(client *redis.Client, hub *Hub) *RedisBroker {
	return &RedisBroker{client: client, hub: hub, ready: make(chan struct{})}
}

// NewRedisClient parses url and checks the server is reachable.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}
	c := redis.NewClient(opt)
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return c, nil
}

// Publish sends msg through Redis. When Redis cannot take it, msg is
// delivered to this process's subscribers only and the error is returned.
func (b *RedisBroker) Publish(ctx context.Context, msg *models.Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		b.hub.Deliver(msg)
		return fmt.Errorf("redis broker: encode message %d: %w", msg.ID, err)
	}
	if err := b.client.Publish(ctx, ChannelFor(msg.ConversationID), payload).Err(); err != nil {
		b.hub.Deliver(msg)
		return fmt.Errorf("redis broker: publish, delivered locally only: %w", err)
	}
	return nil
}

func (b *RedisBroker) Subscribe(ctx context.Context, conversationID uint) *Subscription {
	return b.hub.Subscribe(ctx, conversationID)
}

// Ready is closed once the pattern subscription is active.
func (b *RedisBroker) Ready() <-chan struct{} {
	return b.ready
}

// Run relays Redis messages into the local hub until ctx is cancelled.
func (b *RedisBroker) Run(ctx context.Context) error {
	ps := b.client.PSubscribe(ctx, channelPrefix+"*")
	defer ps.Close()

	if _, err := ps.Receive(ctx); err != nil {
		return fmt.Errorf("redis broker: subscribe: %w", err)
	}
	close(b.ready)
	log.Info().Str("pattern", channelPrefix+"*").Msg("redis broker subscribed")

	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			b.relay(m)
		}
	}
}

func (b *RedisBroker) relay(m *redis.Message) {
	var msg models.Message
	if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
		log.Warn().Err(err).Str("channel", m.Channel).Msg("dropping undecodable chat payload")
		return
	}
	if want := ChannelFor(msg.ConversationID); want != m.Channel {
		log.Warn().Str("channel", m.Channel).Uint("conversation_id", msg.ConversationID).Msg("chat payload on unexpected channel")
		return
	}
	b.hub.Deliver(&msg)
}

var _ Broker = (*RedisBroker)(nil)
