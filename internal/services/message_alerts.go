package services

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/anonto42/bazaar/backend/internal/identity"
	"github.com/anonto42/bazaar/backend/internal/models"
	"github.com/rs/zerolog/log"
)

const previewLength = 140

// MessageNotifier is told about every appended message. Implementations must
// not block the sender for long and must swallow their own failures.
type MessageNotifier interface {
	MessageAppended(ctx context.Context, conv *models.Conversation, msg *models.Message)
}

// MessageAlert carries what is needed to notify the recipient of a message.
type MessageAlert struct {
	ConversationID uint        `json:"conversation_id"`
	MessageID      uint        `json:"message_id"`
	BuyerID        uint        `json:"buyer_id"`
	VendorID       uint        `json:"vendor_id"`
	SenderRole     models.Role `json:"sender_role"`
	SenderID       uint        `json:"sender_id"`
	Preview        string      `json:"preview"`
}

// NewMessageAlert builds the alert for msg appended to conv.
func NewMessageAlert(conv *models.Conversation, msg *models.Message) MessageAlert {
	return MessageAlert{
		ConversationID: conv.ID,
		MessageID:      msg.ID,
		BuyerID:        conv.BuyerID,
		VendorID:       conv.VendorID,
		SenderRole:     msg.SenderRole,
		SenderID:       msg.SenderID,
		Preview:        preview(msg.Content),
	}
}

// MessageAlerts turns message alerts into "message" notifications for the
// participant who did not send the message.
type MessageAlerts struct {
	notifications *NotificationService
	identity      identity.Resolver
}

// NewMessageAlerts creates a MessageAlerts
func NewMessageAlerts(notifications *NotificationService, resolver identity.Resolver) *MessageAlerts {
	return &MessageAlerts{notifications: notifications, identity: resolver}
}

// Notify creates the recipient's notification for alert.
func (a *MessageAlerts) Notify(ctx context.Context, alert MessageAlert) (*models.Notification, error) {
	recipientID := alert.BuyerID
	actorKind := models.ProfileVendor
	if alert.SenderRole == models.RoleBuyer {
		ownerID, err := a.identity.ResolveUserIDForVendor(ctx, alert.VendorID)
		if err != nil {
			return nil, fmt.Errorf("resolve owner of vendor %d: %w", alert.VendorID, err)
		}
		recipientID = ownerID
		actorKind = models.ProfileUser
	}

	link := fmt.Sprintf("/conversations/%d", alert.ConversationID)
	actorID := alert.SenderID
	return a.notifications.CreateNotification(ctx, models.CreateNotificationRequest{
		UserID:    recipientID,
		Type:      models.NotificationMessage,
		Title:     "New message",
		Body:      alert.Preview,
		Link:      &link,
		ActorKind: string(actorKind),
		ActorID:   &actorID,
	})
}

// DirectNotifier runs MessageAlerts in the sender's goroutine. Used when no
// task queue is configured.
type DirectNotifier struct {
	alerts  *MessageAlerts
	timeout time.Duration
}

// NewDirectNotifier creates a DirectNotifier
func NewDirectNotifier(alerts *MessageAlerts) *DirectNotifier {
	return &DirectNotifier{alerts: alerts, timeout: 5 * time.Second}
}

func (n *DirectNotifier) MessageAppended(ctx context.Context, conv *models.Conversation, msg *models.Message) {
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()
	if _, err := n.alerts.Notify(ctx, NewMessageAlert(conv, msg)); err != nil {
		log.Error().Err(err).Uint("conversation_id", conv.ID).Uint("message_id", msg.ID).Msg("failed to create message notification")
	}
}

func preview(content string) string {
	if utf8.RuneCountInString(content) <= previewLength {
		return content
	}
	runes := []rune(content)
	return string(runes[:previewLength-1]) + "…"
}

var _ MessageNotifier = (*DirectNotifier)(nil)
