package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/anonto42/bazaar/backend/internal/models"
	"gorm.io/gorm"
)

// MessageRepository defines the interface for the per-conversation message log
type MessageRepository interface {
	Append(ctx context.Context, msg *models.Message) error
	ListAfter(ctx context.Context, conversationID, afterID uint) ([]models.Message, error)
	MarkReadExcept(ctx context.Context, conversationID uint, reader models.Participant) (int64, error)
	UnreadCounts(ctx context.Context, conversationIDs []uint, viewer models.Role) (map[uint]int64, error)
}

// PostgresMessageRepository implements MessageRepository with GORM
type PostgresMessageRepository struct {
	db *gorm.DB
}

// NewPostgresMessageRepository creates a new PostgresMessageRepository
func NewPostgresMessageRepository(db *gorm.DB) *PostgresMessageRepository {
	return &PostgresMessageRepository{db: db}
}

// Append stores msg and moves the owning conversation's updated_at forward in
// one transaction. The conversation row is updated first; under its row lock
// the message time becomes max(msg.CreatedAt, updated_at), so created_at never
// decreases in commit order even when appenders' clocks disagree. msg.CreatedAt
// holds the stored time on return.
func (r *PostgresMessageRepository) Append(ctx context.Context, msg *models.Message) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Conversation{}).
			Where("id = ?", msg.ConversationID).
			UpdateColumn("updated_at", gorm.Expr("CASE WHEN updated_at > ? THEN updated_at ELSE ? END", msg.CreatedAt, msg.CreatedAt))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return models.ErrConversationNotFound
		}

		var conv models.Conversation
		if err := tx.Select("id", "updated_at").First(&conv, msg.ConversationID).Error; err != nil {
			return err
		}
		msg.CreatedAt = conv.UpdatedAt
		return tx.Create(msg).Error
	})
	return classify(err)
}

// ListAfter returns the conversation's messages in (created_at, id) order.
// With afterID set, only messages positioned after that message are returned.
func (r *PostgresMessageRepository) ListAfter(ctx context.Context, conversationID, afterID uint) ([]models.Message, error) {
	query := r.db.WithContext(ctx).Where("conversation_id = ?", conversationID)

	if afterID != 0 {
		var cursor models.Message
		err := r.db.WithContext(ctx).
			Select("id", "created_at").
			Where("id = ? AND conversation_id = ?", afterID, conversationID).
			First(&cursor).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, fmt.Errorf("%w: message %d is not part of conversation %d", models.ErrInvalidInput, afterID, conversationID)
			}
			return nil, classify(err)
		}
		query = query.Where("(created_at > ? OR (created_at = ? AND id > ?))", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}

	var messages []models.Message
	if err := query.Order("created_at ASC").Order("id ASC").Find(&messages).Error; err != nil {
		return nil, classify(err)
	}
	return messages, nil
}

// MarkReadExcept flips is_read on every unread message not sent by reader.
func (r *PostgresMessageRepository) MarkReadExcept(ctx context.Context, conversationID uint, reader models.Participant) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.Message{}).
		Where("conversation_id = ? AND is_read = ?", conversationID, false).
		Where("NOT (sender_role = ? AND sender_id = ?)", reader.Role, reader.ID).
		Update("is_read", true)
	if res.Error != nil {
		return 0, classify(res.Error)
	}
	return res.RowsAffected, nil
}

// UnreadCounts returns, per conversation, how many messages the viewer side has not read yet.
func (r *PostgresMessageRepository) UnreadCounts(ctx context.Context, conversationIDs []uint, viewer models.Role) (map[uint]int64, error) {
	counts := make(map[uint]int64, len(conversationIDs))
	if len(conversationIDs) == 0 {
		return counts, nil
	}

	var rows []struct {
		ConversationID uint
		Unread         int64
	}
	err := r.db.WithContext(ctx).Model(&models.Message{}).
		Select("conversation_id, COUNT(*) AS unread").
		Where("conversation_id IN ? AND is_read = ? AND sender_role <> ?", conversationIDs, false, viewer).
		Group("conversation_id").
		Scan(&rows).Error
	if err != nil {
		return nil, classify(err)
	}
	for _, row := range rows {
		counts[row.ConversationID] = row.Unread
	}
	return counts, nil
}
