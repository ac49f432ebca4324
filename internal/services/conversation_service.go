package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anonto42/bazaar/backend/internal/identity"
	"github.com/anonto42/bazaar/backend/internal/models"
	"github.com/anonto42/bazaar/backend/internal/realtime"
	"github.com/anonto42/bazaar/backend/internal/repositories"
	"github.com/rs/zerolog/log"
)

// ConversationPage is one page of a user's inbox.
type ConversationPage struct {
	Conversations []ConversationView `json:"conversations"`
	Total         int64              `json:"total"`
	Page          int                `json:"page"`
	Limit         int                `json:"limit"`
}

// ConversationService owns conversation pairing, the message log and live delivery.
type ConversationService struct {
	conversations repositories.ConversationRepository
	messages      repositories.MessageRepository
	identity      identity.Resolver
	broker        realtime.Broker
	enricher      *Enricher
	notifier      MessageNotifier
	now           func() time.Time
}

// ConversationOption customises a ConversationService.
type ConversationOption func(*ConversationService)

// WithNotifier sets the hook that turns appended messages into notifications.
func WithNotifier(n MessageNotifier) ConversationOption {
	return func(s *ConversationService) { s.notifier = n }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) ConversationOption {
	return func(s *ConversationService) { s.now = now }
}

// NewConversationService creates a new ConversationService
func NewConversationService(
	conversations repositories.ConversationRepository,
	messages repositories.MessageRepository,
	resolver identity.Resolver,
	broker realtime.Broker,
	enricher *Enricher,
	opts ...ConversationOption,
) *ConversationService {
	s := &ConversationService{
		conversations: conversations,
		messages:      messages,
		identity:      resolver,
		broker:        broker,
		enricher:      enricher,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// timestamp is the store's precision (microseconds) in UTC, so values read
// back compare equal to the ones written.
func (s *ConversationService) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

// GetOrCreateConversation returns the single conversation between buyerID and
// vendorID, creating it on first use. serviceRef is only recorded on creation.
func (s *ConversationService) GetOrCreateConversation(ctx context.Context, buyerID, vendorID uint, serviceRef *uint) (*models.Conversation, error) {
	ok, err := s.identity.BuyerExists(ctx, buyerID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: buyer %d", models.ErrParticipantNotFound, buyerID)
	}
	ok, err = s.identity.VendorExists(ctx, vendorID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: vendor %d", models.ErrParticipantNotFound, vendorID)
	}

	ownerID, err := s.identity.ResolveUserIDForVendor(ctx, vendorID)
	if err != nil {
		return nil, err
	}
	if ownerID == buyerID {
		return nil, fmt.Errorf("%w: cannot open a conversation with your own shop", models.ErrInvalidInput)
	}

	ts := s.timestamp()
	conv, created, err := s.conversations.FindOrCreate(ctx, &models.Conversation{
		BuyerID:   buyerID,
		VendorID:  vendorID,
		ServiceID: serviceRef,
		CreatedAt: ts,
		UpdatedAt: ts,
	})
	if err != nil {
		return nil, err
	}
	if created {
		log.Info().Uint("conversation_id", conv.ID).Uint("buyer_id", buyerID).Uint("vendor_id", vendorID).Msg("conversation created")
	}
	return conv, nil
}

// SendMessage appends content to the conversation, publishes it to live
// subscribers and hands it to the notifier. Publishing and notifying happen
// after the append is durable and never fail it.
func (s *ConversationService) SendMessage(ctx context.Context, conversationID uint, sender models.Participant, content string) (*models.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("%w: message content is empty", models.ErrInvalidInput)
	}

	conv, err := s.conversations.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.Has(sender) {
		return nil, models.ErrNotAParticipant
	}

	msg := &models.Message{
		ConversationID: conv.ID,
		SenderRole:     sender.Role,
		SenderID:       sender.ID,
		Content:        content,
		CreatedAt:      s.timestamp(),
	}
	if err := s.messages.Append(ctx, msg); err != nil {
		return nil, err
	}
	conv.UpdatedAt = msg.CreatedAt

	// the message is committed; a cancelled request must not skip fan-out
	bg := context.WithoutCancel(ctx)
	if err := s.broker.Publish(bg, msg); err != nil {
		log.Warn().Err(err).Uint("conversation_id", conv.ID).Uint("message_id", msg.ID).Msg("message stored but not published")
	}
	if s.notifier != nil {
		s.notifier.MessageAppended(bg, conv, msg)
	}
	return msg, nil
}

// ListMessages returns the conversation's messages in order, starting after
// afterID when it is non-zero.
func (s *ConversationService) ListMessages(ctx context.Context, conversationID, afterID uint) (*models.MessagePage, error) {
	if _, err := s.conversations.GetByID(ctx, conversationID); err != nil {
		return nil, err
	}
	msgs, err := s.messages.ListAfter(ctx, conversationID, afterID)
	if err != nil {
		return nil, err
	}
	page := &models.MessagePage{Messages: msgs, HighWater: afterID}
	if len(msgs) > 0 {
		page.HighWater = msgs[len(msgs)-1].ID
	}
	return page, nil
}

// MarkMessagesRead marks every message the reader received as read and
// returns how many changed.
func (s *ConversationService) MarkMessagesRead(ctx context.Context, conversationID uint, reader models.Participant) (int64, error) {
	conv, err := s.conversations.GetByID(ctx, conversationID)
	if err != nil {
		return 0, err
	}
	if !conv.Has(reader) {
		return 0, models.ErrNotAParticipant
	}
	return s.messages.MarkReadExcept(ctx, conversationID, reader)
}

// ResolveParticipant maps an authenticated user onto their side of the conversation.
func (s *ConversationService) ResolveParticipant(ctx context.Context, conversationID, userID uint) (models.Participant, error) {
	conv, err := s.conversations.GetByID(ctx, conversationID)
	if err != nil {
		return models.Participant{}, err
	}
	if conv.BuyerID == userID {
		return conv.Buyer(), nil
	}
	vendorID, err := s.identity.ResolveVendorIDForUser(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrParticipantNotFound) {
			return models.Participant{}, models.ErrNotAParticipant
		}
		return models.Participant{}, err
	}
	if vendorID != conv.VendorID {
		return models.Participant{}, models.ErrNotAParticipant
	}
	return conv.Vendor(), nil
}

// ListConversationsForUser lists the inbox of userID acting as role, most
// recently active first. Admins see every conversation.
func (s *ConversationService) ListConversationsForUser(ctx context.Context, userID uint, role models.Role, page, limit int) (*ConversationPage, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	filter := repositories.ConversationFilter{Offset: (page - 1) * limit, Limit: limit}

	switch role {
	case models.RoleBuyer:
		filter.BuyerID = userID
	case models.RoleVendor:
		vendorID, err := s.identity.ResolveVendorIDForUser(ctx, userID)
		if err != nil {
			return nil, err
		}
		filter.VendorID = vendorID
	case models.RoleAdmin:
	default:
		return nil, fmt.Errorf("%w: unknown role %q", models.ErrInvalidInput, role)
	}

	convs, total, err := s.conversations.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	return &ConversationPage{
		Conversations: s.enricher.EnrichConversations(ctx, role, convs),
		Total:         total,
		Page:          page,
		Limit:         limit,
	}, nil
}

// Subscribe opens a live-only stream of messages appended to the conversation.
func (s *ConversationService) Subscribe(ctx context.Context, conversationID uint) *realtime.Subscription {
	return s.broker.Subscribe(ctx, conversationID)
}
