package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anonto42/bazaar/backend/internal/models"
	"github.com/anonto42/bazaar/backend/internal/repositories"
)

// DefaultNotificationPageSize bounds unread listings when no size is configured.
const DefaultNotificationPageSize = 50

// NotificationPage is one page of a user's notifications.
type NotificationPage struct {
	Notifications []models.Notification
	Total         int64
	Page          int
	Limit         int
}

// NotificationService keeps per-user notification state.
type NotificationService struct {
	repo     repositories.NotificationRepository
	pageSize int
	now      func() time.Time
}

// NewNotificationService creates a NotificationService. pageSize <= 0 means DefaultNotificationPageSize.
func NewNotificationService(repo repositories.NotificationRepository, pageSize int) *NotificationService {
	if pageSize <= 0 {
		pageSize = DefaultNotificationPageSize
	}
	return &NotificationService{repo: repo, pageSize: pageSize, now: time.Now}
}

// SetClock replaces time.Now.
func (s *NotificationService) SetClock(now func() time.Time) {
	s.now = now
}

// CreateNotification stores a new unread notification for req.UserID.
func (s *NotificationService) CreateNotification(ctx context.Context, req models.CreateNotificationRequest) (*models.Notification, error) {
	title := strings.TrimSpace(req.Title)
	switch {
	case req.UserID == 0:
		return nil, fmt.Errorf("%w: user_id is required", models.ErrInvalidInput)
	case !req.Type.Valid():
		return nil, fmt.Errorf("%w: unknown notification type %q", models.ErrInvalidInput, req.Type)
	case title == "":
		return nil, fmt.Errorf("%w: title is required", models.ErrInvalidInput)
	case req.ActorKind != "" && req.ActorKind != string(models.ProfileUser) && req.ActorKind != string(models.ProfileVendor):
		return nil, fmt.Errorf("%w: unknown actor kind %q", models.ErrInvalidInput, req.ActorKind)
	}

	n := &models.Notification{
		UserID:    req.UserID,
		Type:      req.Type,
		Title:     title,
		Body:      strings.TrimSpace(req.Body),
		Link:      req.Link,
		ActorKind: req.ActorKind,
		ActorID:   req.ActorID,
		CreatedAt: s.now().UTC().Truncate(time.Microsecond),
	}
	if n.ActorKind == "" {
		n.ActorID = nil
	}
	if err := s.repo.CreateNotification(ctx, n); err != nil {
		return nil, err
	}
	return n, nil
}

// ListUnreadNotifications returns the newest unread notifications, at most one page.
func (s *NotificationService) ListUnreadNotifications(ctx context.Context, userID uint) ([]models.Notification, error) {
	return s.repo.GetUnread(ctx, userID, s.pageSize)
}

// UnreadCount returns how many of the user's notifications are unread.
func (s *NotificationService) UnreadCount(ctx context.Context, userID uint) (int64, error) {
	return s.repo.GetUnreadCount(ctx, userID)
}

// ListNotifications pages through all of a user's notifications, newest first.
func (s *NotificationService) ListNotifications(ctx context.Context, userID uint, page, limit int) (*NotificationPage, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > s.pageSize {
		limit = min(20, s.pageSize)
	}
	items, total, err := s.repo.GetByRecipientID(ctx, userID, page, limit)
	if err != nil {
		return nil, err
	}
	return &NotificationPage{Notifications: items, Total: total, Page: page, Limit: limit}, nil
}

// GroupedNotifications buckets the user's notifications into today,
// yesterday, earlier this week and older, using UTC days.
func (s *NotificationService) GroupedNotifications(ctx context.Context, userID uint) (*models.GroupedNotifications, error) {
	return s.repo.GetGrouped(ctx, userID, s.now().UTC())
}

// MarkNotificationRead marks one notification read. Repeating it is a no-op.
func (s *NotificationService) MarkNotificationRead(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return models.ErrNotificationNotFound
	}
	return s.repo.MarkAsRead(ctx, id)
}

// MarkNotificationReadFor is MarkNotificationRead restricted to the owner.
// Someone else's notification is reported as not found.
func (s *NotificationService) MarkNotificationReadFor(ctx context.Context, userID uint, id string) error {
	n, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if n.UserID != userID {
		return models.ErrNotificationNotFound
	}
	return s.repo.MarkAsRead(ctx, id)
}

// MarkAllNotificationsRead marks every unread notification of the user read
// and returns how many changed.
func (s *NotificationService) MarkAllNotificationsRead(ctx context.Context, userID uint) (int64, error) {
	return s.repo.MarkAllAsRead(ctx, userID)
}
