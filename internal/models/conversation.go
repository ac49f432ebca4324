package models

import "time"

// Role selects which side of the marketplace a caller acts as.
type Role string

const (
	RoleBuyer  Role = "buyer"
	RoleVendor Role = "vendor"
	RoleAdmin  Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleBuyer, RoleVendor, RoleAdmin:
		return true
	}
	return false
}

// Participant is one endpoint of a conversation. Buyer ids are user ids,
// vendor ids are vendor record ids, so the role is part of the identity.
type Participant struct {
	Role Role `json:"role"`
	ID   uint `json:"id"`
}

// Conversation is the single durable pairing between a buyer and a vendor (PostgreSQL)
type Conversation struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	BuyerID   uint      `json:"buyer_id" gorm:"not null;uniqueIndex:idx_conversation_buyer_vendor,priority:1"`
	VendorID  uint      `json:"vendor_id" gorm:"not null;index;uniqueIndex:idx_conversation_buyer_vendor,priority:2"`
	ServiceID *uint     `json:"service_id,omitempty"` // originating service listing, set on creation only
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at" gorm:"index"` // bumped by every appended message
}

// Buyer returns the buyer side of the conversation.
func (c *Conversation) Buyer() Participant { return Participant{Role: RoleBuyer, ID: c.BuyerID} }

// Vendor returns the vendor side of the conversation.
func (c *Conversation) Vendor() Participant { return Participant{Role: RoleVendor, ID: c.VendorID} }

// Has reports whether p is one of the two participants.
func (c *Conversation) Has(p Participant) bool {
	return p == c.Buyer() || p == c.Vendor()
}

// Counterpart returns the participant opposite to p.
func (c *Conversation) Counterpart(p Participant) Participant {
	if p.Role == RoleBuyer {
		return c.Vendor()
	}
	return c.Buyer()
}

// CreateConversationRequest defines the request body for opening a conversation with a vendor
type CreateConversationRequest struct {
	VendorID  uint  `json:"vendor_id" validate:"required"`
	ServiceID *uint `json:"service_id,omitempty" validate:"omitempty,min=1"`
}
