package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/anonto42/bazaar/backend/internal/models"
	"gorm.io/gorm"
)

// NotificationRepository defines the interface for notification operations
type NotificationRepository interface {
	CreateNotification(ctx context.Context, notification *models.Notification) error
	GetByID(ctx context.Context, id string) (*models.Notification, error)
	GetByRecipientID(ctx context.Context, userID uint, page, limit int) ([]models.Notification, int64, error)
	GetUnread(ctx context.Context, userID uint, limit int) ([]models.Notification, error)
	GetGrouped(ctx context.Context, userID uint, now time.Time) (*models.GroupedNotifications, error)
	GetUnreadCount(ctx context.Context, userID uint) (int64, error)
	MarkAsRead(ctx context.Context, id string) error
	MarkAllAsRead(ctx context.Context, userID uint) (int64, error)
}

type postgresNotificationRepository struct {
	db *gorm.DB
}

func NewPostgresNotificationRepository(db *gorm.DB) NotificationRepository {
	return &postgresNotificationRepository{db: db}
}

func (r *postgresNotificationRepository) CreateNotification(ctx context.Context, notification *models.Notification) error {
	return classify(r.db.WithContext(ctx).Create(notification).Error)
}

func (r *postgresNotificationRepository) GetByID(ctx context.Context, id string) (*models.Notification, error) {
	var n models.Notification
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&n).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrNotificationNotFound
		}
		return nil, classify(err)
	}
	return &n, nil
}

func (r *postgresNotificationRepository) GetByRecipientID(ctx context.Context, userID uint, page, limit int) ([]models.Notification, int64, error) {
	var notifications []models.Notification
	var total int64

	if err := r.db.WithContext(ctx).Model(&models.Notification{}).Where("user_id = ?", userID).Count(&total).Error; err != nil {
		return nil, 0, classify(err)
	}

	offset := (page - 1) * limit
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).
		Order("created_at DESC").Order("id DESC").
		Offset(offset).Limit(limit).
		Find(&notifications).Error

	return notifications, total, classify(err)
}

func (r *postgresNotificationRepository) GetUnread(ctx context.Context, userID uint, limit int) ([]models.Notification, error) {
	var notifications []models.Notification
	err := r.db.WithContext(ctx).Where("user_id = ? AND is_read = ?", userID, false).
		Order("created_at DESC").Order("id DESC").
		Limit(limit).
		Find(&notifications).Error
	return notifications, classify(err)
}

func (r *postgresNotificationRepository) GetGrouped(ctx context.Context, userID uint, now time.Time) (*models.GroupedNotifications, error) {
	todayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	yesterdayStart := todayStart.AddDate(0, 0, -1)
	weekStart := todayStart.AddDate(0, 0, -7)

	grouped := &models.GroupedNotifications{}
	db := r.db.WithContext(ctx)

	// Today
	if err := db.Where("user_id = ? AND created_at >= ?", userID, todayStart).
		Order("created_at DESC").Find(&grouped.Today).Error; err != nil {
		return nil, classify(err)
	}

	// Yesterday
	if err := db.Where("user_id = ? AND created_at >= ? AND created_at < ?", userID, yesterdayStart, todayStart).
		Order("created_at DESC").Find(&grouped.Yesterday).Error; err != nil {
		return nil, classify(err)
	}

	// This week (excluding today and yesterday)
	if err := db.Where("user_id = ? AND created_at >= ? AND created_at < ?", userID, weekStart, yesterdayStart).
		Order("created_at DESC").Find(&grouped.ThisWeek).Error; err != nil {
		return nil, classify(err)
	}

	// Older
	if err := db.Where("user_id = ? AND created_at < ?", userID, weekStart).
		Order("created_at DESC").Limit(50).Find(&grouped.Older).Error; err != nil {
		return nil, classify(err)
	}

	return grouped, nil
}

func (r *postgresNotificationRepository) GetUnreadCount(ctx context.Context, userID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Notification{}).Where("user_id = ? AND is_read = ?", userID, false).Count(&count).Error
	return count, classify(err)
}

// MarkAsRead is a no-op for already read notifications and fails only for unknown ids.
func (r *postgresNotificationRepository) MarkAsRead(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Model(&models.Notification{}).Where("id = ? AND is_read = ?", id, false).Update("is_read", true)
	if res.Error != nil {
		return classify(res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}
	_, err := r.GetByID(ctx, id)
	return err
}

func (r *postgresNotificationRepository) MarkAllAsRead(ctx context.Context, userID uint) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.Notification{}).Where("user_id = ? AND is_read = ?", userID, false).Update("is_read", true)
	return res.RowsAffected, classify(res.Error)
}
