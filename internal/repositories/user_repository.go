package repositories

import (
	"context"
	"errors"

	"github.com/anonto42/bazaar/backend/internal/models"
	"gorm.io/gorm"
)

// UserRepository defines the read-only lookups this core needs over users and vendors
type UserRepository interface {
	GetUserByID(ctx context.Context, id uint) (*models.User, error)
	GetUserByFirebaseUID(ctx context.Context, firebaseUID string) (*models.User, error)
	GetUsersByIDs(ctx context.Context, ids []uint) ([]models.User, error)
	GetVendorByID(ctx context.Context, id uint) (*models.Vendor, error)
	GetVendorByUserID(ctx context.Context, userID uint) (*models.Vendor, error)
	GetVendorsByIDs(ctx context.Context, ids []uint) ([]models.Vendor, error)
}

// PostgresUserRepository implements UserRepository for PostgreSQL
type PostgresUserRepository struct {
	db *gorm.DB
}

// NewPostgresUserRepository creates a new PostgresUserRepository
func NewPostgresUserRepository(db *gorm.DB) *PostgresUserRepository {
	return &PostgresUserRepository{db: db}
}

// GetUserByID retrieves a user by ID. Missing users surface as gorm.ErrRecordNotFound.
func (r *PostgresUserRepository) GetUserByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, classify(err)
	}
	return &user, nil
}

// GetUserByFirebaseUID retrieves a user by Firebase UID
func (r *PostgresUserRepository) GetUserByFirebaseUID(ctx context.Context, firebaseUID string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("firebase_uid = ?", firebaseUID).First(&user).Error; err != nil {
		return nil, classify(err)
	}
	return &user, nil
}

// GetUsersByIDs loads every user in ids with a single query. Unknown ids are skipped.
func (r *PostgresUserRepository) GetUsersByIDs(ctx context.Context, ids []uint) ([]models.User, error) {
	var users []models.User
	if len(ids) == 0 {
		return users, nil
	}
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, classify(err)
	}
	return users, nil
}

func (r *PostgresUserRepository) GetVendorByID(ctx context.Context, id uint) (*models.Vendor, error) {
	var vendor models.Vendor
	if err := r.db.WithContext(ctx).First(&vendor, id).Error; err != nil {
		return nil, classify(err)
	}
	return &vendor, nil
}

// GetVendorByUserID returns the vendor record owned by a user
func (r *PostgresUserRepository) GetVendorByUserID(ctx context.Context, userID uint) (*models.Vendor, error) {
	var vendor models.Vendor
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&vendor).Error; err != nil {
		return nil, classify(err)
	}
	return &vendor, nil
}

func (r *PostgresUserRepository) GetVendorsByIDs(ctx context.Context, ids []uint) ([]models.Vendor, error) {
	var vendors []models.Vendor
	if len(ids) == 0 {
		return vendors, nil
	}
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&vendors).Error; err != nil {
		return nil, classify(err)
	}
	return vendors, nil
}

// IsNotFound reports whether err means the looked-up row does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

var _ UserRepository = (*PostgresUserRepository)(nil)
