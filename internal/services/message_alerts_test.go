package services

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/anonto42/bazaar/backend/internal/identity"
	"github.com/anonto42/bazaar/backend/internal/models"
	"github.com/anonto42/bazaar/backend/internal/realtime"
	"github.com/anonto42/bazaar/backend/internal/repositories"
	"github.com/anonto42/bazaar/backend/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageAlertPreviewIsTruncated(t *testing.T) {
	long := strings.Repeat("é", 300)
	alert := NewMessageAlert(&models.Conversation{ID: 1}, &models.Message{ID: 2, Content: long})

	assert.Equal(t, previewLength, utf8.RuneCountInString(alert.Preview))
	assert.True(t, strings.HasSuffix(alert.Preview, "…"))

	short := NewMessageAlert(&models.Conversation{ID: 1}, &models.Message{ID: 2, Content: "hi"})
	assert.Equal(t, "hi", short.Preview)
}

func TestMessageAlertsNotifyCounterpart(t *testing.T) {
	db := testutil.NewDB(t)
	buyer := testutil.CreateUser(t, db, "alice")
	owner := testutil.CreateUser(t, db, "bob")
	shop := testutil.CreateVendor(t, db, owner.ID, "Bob's Bakery")

	notifications := NewNotificationService(repositories.NewPostgresNotificationRepository(db), 0)
	alerts := NewMessageAlerts(notifications, identity.NewDirectory(repositories.NewPostgresUserRepository(db), nil))
	conv := &models.Conversation{ID: 9, BuyerID: buyer.ID, VendorID: shop.ID}
	ctx := context.Background()

	toVendor, err := alerts.Notify(ctx, NewMessageAlert(conv, &models.Message{ID: 1, SenderRole: models.RoleBuyer, SenderID: buyer.ID, Content: "hello"}))
	require.NoError(t, err)
	assert.Equal(t, owner.ID, toVendor.UserID)
	assert.Equal(t, models.NotificationMessage, toVendor.Type)
	assert.Equal(t, "user", toVendor.ActorKind)
	assert.Equal(t, buyer.ID, *toVendor.ActorID)
	assert.Equal(t, "/conversations/9", *toVendor.Link)
	assert.Equal(t, "hello", toVendor.Body)

	toBuyer, err := alerts.Notify(ctx, NewMessageAlert(conv, &models.Message{ID: 2, SenderRole: models.RoleVendor, SenderID: shop.ID, Content: "hi there"}))
	require.NoError(t, err)
	assert.Equal(t, buyer.ID, toBuyer.UserID)
	assert.Equal(t, "vendor", toBuyer.ActorKind)
	assert.Equal(t, shop.ID, *toBuyer.ActorID)
}

func TestMessageAlertsUnknownVendor(t *testing.T) {
	db := testutil.NewDB(t)
	notifications := NewNotificationService(repositories.NewPostgresNotificationRepository(db), 0)
	alerts := NewMessageAlerts(notifications, identity.NewDirectory(repositories.NewPostgresUserRepository(db), nil))

	_, err := alerts.Notify(context.Background(), MessageAlert{ConversationID: 1, BuyerID: 1, VendorID: 77, SenderRole: models.RoleBuyer, SenderID: 1})
	assert.ErrorIs(t, err, models.ErrParticipantNotFound)
}

func TestDirectNotifierCreatesNotificationOnSend(t *testing.T) {
	db := testutil.NewDB(t)
	buyer := testutil.CreateUser(t, db, "alice")
	owner := testutil.CreateUser(t, db, "bob")
	shop := testutil.CreateVendor(t, db, owner.ID, "Bob's Bakery")

	directory := identity.NewDirectory(repositories.NewPostgresUserRepository(db), nil)
	notifications := NewNotificationService(repositories.NewPostgresNotificationRepository(db), 0)
	messages := repositories.NewPostgresMessageRepository(db)
	svc := NewConversationService(
		repositories.NewPostgresConversationRepository(db),
		messages,
		directory,
		realtime.NewHub(0),
		NewEnricher(directory, messages),
		WithNotifier(NewDirectNotifier(NewMessageAlerts(notifications, directory))),
	)
	ctx := context.Background()

	conv, err := svc.GetOrCreateConversation(ctx, buyer.ID, shop.ID, nil)
	require.NoError(t, err)
	_, err = svc.SendMessage(ctx, conv.ID, conv.Buyer(), "do you ship abroad?")
	require.NoError(t, err)

	unread, err := notifications.ListUnreadNotifications(ctx, owner.ID)
	require.NoError(t, err)
	require.Len(t, unread, 1)
	assert.Equal(t, "do you ship abroad?", unread[0].Body)
}
