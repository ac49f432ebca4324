package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/anonto42/bazaar/backend/internal/models"
	"github.com/anonto42/bazaar/backend/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedNotification(t *testing.T, repo NotificationRepository, userID uint, title string, at time.Time) *models.Notification {
	t.Helper()
	n := &models.Notification{UserID: userID, Type: models.NotificationOrder, Title: title, CreatedAt: at}
	require.NoError(t, repo.CreateNotification(context.Background(), n))
	return n
}

func TestNotificationCreateAssignsID(t *testing.T) {
	repo := NewPostgresNotificationRepository(testutil.NewDB(t))
	n := seedNotification(t, repo, 1, "Order shipped", time.Now().UTC())
	assert.Len(t, n.ID, 36)

	got, err := repo.GetByID(context.Background(), n.ID)
	require.NoError(t, err)
	assert.Equal(t, "Order shipped", got.Title)
	assert.False(t, got.IsRead)
}

func TestNotificationUnreadCountAndMarkRead(t *testing.T) {
	repo := NewPostgresNotificationRepository(testutil.NewDB(t))
	ctx := context.Background()
	now := time.Now().UTC()
	a := seedNotification(t, repo, 1, "a", now)
	seedNotification(t, repo, 1, "b", now.Add(time.Second))
	seedNotification(t, repo, 2, "other user", now)

	count, err := repo.GetUnreadCount(ctx, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)

	require.NoError(t, repo.MarkAsRead(ctx, a.ID))
	require.NoError(t, repo.MarkAsRead(ctx, a.ID), "marking twice is a no-op")
	count, err = repo.GetUnreadCount(ctx, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)

	unread, err := repo.GetUnread(ctx, 1, 50)
	require.NoError(t, err)
	require.Len(t, unread, 1)
	assert.Equal(t, "b", unread[0].Title)

	updated, err := repo.MarkAllAsRead(ctx, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 1, updated)
	count, err = repo.GetUnreadCount(ctx, 1)
	require.NoError(t, err)
	assert.Zero(t, count)

	count, err = repo.GetUnreadCount(ctx, 2)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func TestNotificationMarkAsReadUnknown(t *testing.T) {
	repo := NewPostgresNotificationRepository(testutil.NewDB(t))
	err := repo.MarkAsRead(context.Background(), "00000000-0000-0000-0000-000000000000")
	assert.ErrorIs(t, err, models.ErrNotificationNotFound)
}

func TestNotificationGetUnreadHonoursLimit(t *testing.T) {
	repo := NewPostgresNotificationRepository(testutil.NewDB(t))
	now := time.Now().UTC()
	for i := 0; i < 5; i++ {
		seedNotification(t, repo, 1, "n", now.Add(time.Duration(i)*time.Second))
	}
	unread, err := repo.GetUnread(context.Background(), 1, 3)
	require.NoError(t, err)
	require.Len(t, unread, 3)
	assert.True(t, unread[0].CreatedAt.After(unread[2].CreatedAt), "newest first")
}

func TestNotificationGetByRecipientIDPaginates(t *testing.T) {
	repo := NewPostgresNotificationRepository(testutil.NewDB(t))
	now := time.Now().UTC()
	for i := 0; i < 5; i++ {
		seedNotification(t, repo, 1, "n", now.Add(time.Duration(i)*time.Second))
	}

	page, total, err := repo.GetByRecipientID(context.Background(), 1, 2, 2)
	require.NoError(t, err)
	assert.EqualValues(t, 5, total)
	assert.Len(t, page, 2)
}

func TestNotificationGetGrouped(t *testing.T) {
	repo := NewPostgresNotificationRepository(testutil.NewDB(t))
	now := time.Date(2024, 5, 10, 15, 0, 0, 0, time.UTC)
	seedNotification(t, repo, 1, "today", now.Add(-time.Hour))
	seedNotification(t, repo, 1, "yesterday", now.Add(-20*time.Hour))
	seedNotification(t, repo, 1, "this week", now.AddDate(0, 0, -3))
	seedNotification(t, repo, 1, "older", now.AddDate(0, 0, -30))

	g, err := repo.GetGrouped(context.Background(), 1, now)
	require.NoError(t, err)
	require.Len(t, g.Today, 1)
	require.Len(t, g.Yesterday, 1)
	require.Len(t, g.ThisWeek, 1)
	require.Len(t, g.Older, 1)
	assert.Equal(t, "today", g.Today[0].Title)
	assert.Equal(t, "yesterday", g.Yesterday[0].Title)
	assert.Equal(t, "this week", g.ThisWeek[0].Title)
	assert.Equal(t, "older", g.Older[0].Title)
}
