package models

import "time"

// Message is one ordered chat entry inside a conversation (PostgreSQL).
// Ordering is (created_at, id); only IsRead ever changes after insert.
type Message struct {
	ID             uint      `json:"id" gorm:"primaryKey"`
	ConversationID uint      `json:"conversation_id" gorm:"not null;index:idx_message_conversation_order,priority:1"`
	SenderRole     Role      `json:"sender_role" gorm:"type:varchar(10);not null"`
	SenderID       uint      `json:"sender_id" gorm:"not null"`
	Content        string    `json:"content" gorm:"type:text;not null"`
	IsRead         bool      `json:"is_read" gorm:"default:false;index"`
	CreatedAt      time.Time `json:"created_at" gorm:"index:idx_message_conversation_order,priority:2"`
}

// Sender returns the participant that wrote the message.
func (m *Message) Sender() Participant {
	return Participant{Role: m.SenderRole, ID: m.SenderID}
}

// SendMessageRequest defines the request body for appending a message
type SendMessageRequest struct {
	Content string `json:"content" validate:"required,max=4000"`
}

// MessagePage is a slice of the message log plus the id to resume from.
type MessagePage struct {
	Messages  []Message `json:"messages"`
	HighWater uint      `json:"high_water"` // id of the last returned message, or the cursor when empty
}
