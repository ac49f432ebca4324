package realtime

import (
	"context"
	"sync"

	"github.com/anonto42/bazaar/backend/internal/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// DefaultBuffer is the per-subscriber backlog used when none is configured.
const DefaultBuffer = 64

// Broker fans appended messages out to the subscribers of their conversation.
type Broker interface {
	Publish(ctx context.Context, msg *models.Message) error
	Subscribe(ctx context.Context, conversationID uint) *Subscription
}

// Hub is the in-process Broker. Publish never blocks: a subscriber whose
// buffer is full is dropped with ErrSubscriberTooSlow.
type Hub struct {
	mu     sync.RWMutex
	rooms  map[uint]map[string]*Subscription // conversationID -> subscriptionID -> subscription
	buffer int
}

// NewHub constructs a Hub whose subscribers buffer up to buffer messages.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Hub{
		rooms:  make(map[uint]map[string]*Subscription),
		buffer: buffer,
	}
}

// Subscribe starts a live-only subscription. It ends when ctx is done or Close is called.
func (h *Hub) Subscribe(ctx context.Context, conversationID uint) *Subscription {
	sub := &Subscription{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		hub:            h,
		ch:             make(chan *models.Message, h.buffer),
	}

	h.mu.Lock()
	room := h.rooms[conversationID]
	if room == nil {
		room = make(map[string]*Subscription)
		h.rooms[conversationID] = room
	}
	room[sub.ID] = sub
	h.mu.Unlock()

	stop := context.AfterFunc(ctx, sub.Close)
	sub.mu.Lock()
	closed := sub.closed
	if !closed {
		sub.stop = stop
	}
	sub.mu.Unlock()
	if closed {
		stop()
	}
	return sub
}

// Publish delivers msg to every current subscriber of its conversation.
// Receivers must treat msg as read-only.
func (h *Hub) Publish(_ context.Context, msg *models.Message) error {
	h.Deliver(msg)
	return nil
}

// Deliver is Publish without the error return; it reports how many
// subscribers accepted the message.
func (h *Hub) Deliver(msg *models.Message) int {
	var slow []*Subscription
	delivered := 0

	h.mu.RLock()
	for _, sub := range h.rooms[msg.ConversationID] {
		select {
		case sub.ch <- msg:
			delivered++
		default:
			slow = append(slow, sub)
		}
	}
	h.mu.RUnlock()

	for _, sub := range slow {
		log.Warn().
			Uint("conversation_id", msg.ConversationID).
			Str("subscription_id", sub.ID).
			Msg("dropping slow subscriber")
		sub.closeWith(models.ErrSubscriberTooSlow)
	}
	return delivered
}

// Subscribers returns the number of live subscriptions on a conversation.
func (h *Hub) Subscribers(conversationID uint) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[conversationID])
}

// Close ends every subscription.
func (h *Hub) Close() {
	h.mu.RLock()
	var all []*Subscription
	for _, room := range h.rooms {
		for _, sub := range room {
			all = append(all, sub)
		}
	}
	h.mu.RUnlock()

	for _, sub := range all {
		sub.Close()
	}
}

// remove unregisters sub and closes its channel. Sends happen under the read
// lock, so no send can race the close.
func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	if room := h.rooms[sub.ConversationID]; room != nil {
		delete(room, sub.ID)
		if len(room) == 0 {
			delete(h.rooms, sub.ConversationID)
		}
	}
	close(sub.ch)
	h.mu.Unlock()
}

// Subscription is one listener on a conversation.
type Subscription struct {
	ID             string
	ConversationID uint

	hub  *Hub
	ch   chan *models.Message
	once sync.Once

	mu     sync.Mutex
	err    error
	closed bool
	stop   func() bool
}

// Messages is closed when the subscription ends; check Err afterwards.
func (s *Subscription) Messages() <-chan *models.Message {
	return s.ch
}

// Close ends the subscription. It is safe to call more than once.
func (s *Subscription) Close() {
	s.closeWith(nil)
}

// Err reports why the subscription ended: nil for Close or context
// cancellation, ErrSubscriberTooSlow when the publisher dropped it.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Subscription) closeWith(err error) {
	s.once.Do(func() {
		s.mu.Lock()
		s.err = err
		s.closed = true
		stop := s.stop
		s.mu.Unlock()
		if stop != nil {
			stop()
		}
		s.hub.remove(s)
	})
}

var _ Broker = (*Hub)(nil)
