// Package testutil provides SQLite-backed databases and fixtures for tests.
package testutil

import (
	"fmt"
	"testing"
	"time"

	"github.com/anonto42/bazaar/backend/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// OpenDB returns an empty in-memory database private to the test. It uses a
// single connection, so code under test must not nest queries outside a transaction's tx.
func OpenDB(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

// NewDB returns an in-memory database with the full schema.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()
	db := OpenDB(t)
	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Vendor{},
		&models.Conversation{},
		&models.Message{},
		&models.Notification{},
	))
	return db
}

// CreateUser inserts a user named name.
func CreateUser(t testing.TB, db *gorm.DB, name string) *models.User {
	t.Helper()
	u := &models.User{
		Name:      name,
		Email:     fmt.Sprintf("%s-%s@example.com", name, uuid.NewString()[:8]),
		AvatarURL: "https://cdn.example.com/" + name + ".png",
	}
	require.NoError(t, db.Create(u).Error)
	return u
}

// CreateVendor inserts a shop owned by ownerID.
func CreateVendor(t testing.TB, db *gorm.DB, ownerID uint, businessName string) *models.Vendor {
	t.Helper()
	v := &models.Vendor{UserID: ownerID, BusinessName: businessName, LogoURL: "https://cdn.example.com/logo.png"}
	require.NoError(t, db.Create(v).Error)
	return v
}

// Clock is a settable time source.
type Clock struct {
	Now time.Time
}

// NewClock starts a clock at a fixed instant.
func NewClock() *Clock {
	return &Clock{Now: time.Date(2024, 3, 14, 15, 9, 26, 0, time.UTC)}
}

// Func returns the clock as a time.Now replacement.
func (c *Clock) Func() func() time.Time {
	return func() time.Time { return c.Now }
}

// Advance moves the clock forward.
func (c *Clock) Advance(d time.Duration) {
	c.Now = c.Now.Add(d)
}
