package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// NotificationType is the closed set of alert kinds.
type NotificationType string

const (
	NotificationSystem  NotificationType = "system"
	NotificationOrder   NotificationType = "order"
	NotificationPayment NotificationType = "payment"
	NotificationMessage NotificationType = "message"
	NotificationOther   NotificationType = "other"
)

// Valid reports whether t is a known notification type.
func (t NotificationType) Valid() bool {
	switch t {
	case NotificationSystem, NotificationOrder, NotificationPayment, NotificationMessage, NotificationOther:
		return true
	}
	return false
}

// Notification represents a user notification (PostgreSQL or MongoDB)
type Notification struct {
	ID        string           `json:"id" bson:"_id" gorm:"type:varchar(36);primaryKey"`
	UserID    uint             `json:"user_id" bson:"user_id" gorm:"not null;index:idx_notification_user_read,priority:1"`
	Type      NotificationType `json:"type" bson:"type" gorm:"size:20;index"`
	Title     string           `json:"title" bson:"title" gorm:"not null"`
	Body      string           `json:"body" bson:"body" gorm:"type:text"`
	Link      *string          `json:"link,omitempty" bson:"link,omitempty"` // deep link, display only
	ActorKind string           `json:"actor_kind,omitempty" bson:"actor_kind,omitempty" gorm:"size:10"` // user, vendor
	ActorID   *uint            `json:"actor_id,omitempty" bson:"actor_id,omitempty"`
	IsRead    bool             `json:"is_read" bson:"is_read" gorm:"default:false;index:idx_notification_user_read,priority:2"`
	CreatedAt time.Time        `json:"created_at" bson:"created_at" gorm:"index"`
}

// BeforeCreate assigns a uuid when the producer did not supply one.
func (n *Notification) BeforeCreate(tx *gorm.DB) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	return nil
}

// CreateNotificationRequest defines the request body used by internal event producers
type CreateNotificationRequest struct {
	UserID    uint             `json:"user_id" validate:"required"`
	Type      NotificationType `json:"type" validate:"required,oneof=system order payment message other"`
	Title     string           `json:"title" validate:"required,max=200"`
	Body      string           `json:"body" validate:"max=2000"`
	Link      *string          `json:"link,omitempty" validate:"omitempty,max=500"`
	ActorKind string           `json:"actor_kind,omitempty" validate:"omitempty,oneof=user vendor"`
	ActorID   *uint            `json:"actor_id,omitempty" validate:"required_with=ActorKind"`
}

// GroupedNotifications buckets a user's notifications by age.
type GroupedNotifications struct {
	Today     []Notification `json:"today"`
	Yesterday []Notification `json:"yesterday"`
	ThisWeek  []Notification `json:"thisWeek"`
	Older     []Notification `json:"older"`
}
