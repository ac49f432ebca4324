package repositories

import (
	"context"
	"errors"

	"github.com/anonto42/bazaar/backend/internal/models"
	"gorm.io/gorm"
)

// ConversationFilter narrows a conversation listing. Zero ids mean "no filter".
type ConversationFilter struct {
	BuyerID  uint
	VendorID uint
	Offset   int
	Limit    int
}

// ConversationRepository defines the interface for conversation operations
type ConversationRepository interface {
	FindOrCreate(ctx context.Context, conv *models.Conversation) (*models.Conversation, bool, error)
	GetByID(ctx context.Context, id uint) (*models.Conversation, error)
	GetByPair(ctx context.Context, buyerID, vendorID uint) (*models.Conversation, error)
	List(ctx context.Context, filter ConversationFilter) ([]models.Conversation, int64, error)
}

// PostgresConversationRepository implements ConversationRepository with GORM.
// Pair uniqueness is enforced by idx_conversation_buyer_vendor, not by locking.
type PostgresConversationRepository struct {
	db *gorm.DB
}

// NewPostgresConversationRepository creates a new PostgresConversationRepository
func NewPostgresConversationRepository(db *gorm.DB) *PostgresConversationRepository {
	return &PostgresConversationRepository{db: db}
}

// FindOrCreate returns the stored conversation for conv's (buyer, vendor) pair,
// inserting conv when none exists. The bool is true when this call created it.
// A unique violation on insert means a concurrent caller won; its row is returned.
func (r *PostgresConversationRepository) FindOrCreate(ctx context.Context, conv *models.Conversation) (*models.Conversation, bool, error) {
	existing, err := r.GetByPair(ctx, conv.BuyerID, conv.VendorID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, models.ErrConversationNotFound) {
		return nil, false, err
	}

	if err := r.db.WithContext(ctx).Create(conv).Error; err != nil {
		if !isUniqueViolation(err) {
			return nil, false, classify(err)
		}
		winner, err := r.GetByPair(ctx, conv.BuyerID, conv.VendorID)
		if err != nil {
			return nil, false, err
		}
		return winner, false, nil
	}
	return conv, true, nil
}

// GetByID retrieves a conversation by ID
func (r *PostgresConversationRepository) GetByID(ctx context.Context, id uint) (*models.Conversation, error) {
	var conv models.Conversation
	if err := r.db.WithContext(ctx).First(&conv, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrConversationNotFound
		}
		return nil, classify(err)
	}
	return &conv, nil
}

// GetByPair retrieves the conversation between a buyer and a vendor
func (r *PostgresConversationRepository) GetByPair(ctx context.Context, buyerID, vendorID uint) (*models.Conversation, error) {
	var conv models.Conversation
	err := r.db.WithContext(ctx).
		Where("buyer_id = ? AND vendor_id = ?", buyerID, vendorID).
		First(&conv).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrConversationNotFound
		}
		return nil, classify(err)
	}
	return &conv, nil
}

// List returns conversations newest activity first, with the unpaginated total.
func (r *PostgresConversationRepository) List(ctx context.Context, filter ConversationFilter) ([]models.Conversation, int64, error) {
	scope := func(db *gorm.DB) *gorm.DB {
		if filter.BuyerID != 0 {
			db = db.Where("buyer_id = ?", filter.BuyerID)
		}
		if filter.VendorID != 0 {
			db = db.Where("vendor_id = ?", filter.VendorID)
		}
		return db
	}

	var total int64
	if err := r.db.WithContext(ctx).Model(&models.Conversation{}).Scopes(scope).Count(&total).Error; err != nil {
		return nil, 0, classify(err)
	}

	if filter.Limit <= 0 {
		filter.Limit = 20
	}
	var conversations []models.Conversation
	err := r.db.WithContext(ctx).Scopes(scope).
		Order("updated_at DESC").Order("id DESC").
		Offset(filter.Offset).Limit(filter.Limit).
		Find(&conversations).Error
	if err != nil {
		return nil, 0, classify(err)
	}
	return conversations, total, nil
}
