package models

import (
	"github.com/golang-jwt/jwt/v4"
	"gorm.io/gorm"
)

// User is the buyer-side identity owned by the identity service. This core only reads it.
type User struct {
	gorm.Model  `json:"-"`
	Name        string `json:"name"`
	Email       string `json:"email" gorm:"uniqueIndex"`
	AvatarURL   string `json:"avatar_url"`
	FirebaseUID string `json:"firebase_uid,omitempty" gorm:"index"` // Link to Firebase User UID
}

// Vendor is a seller record owned by a user. Read-only for this core.
type Vendor struct {
	gorm.Model   `json:"-"`
	UserID       uint   `json:"user_id" gorm:"uniqueIndex"`
	BusinessName string `json:"business_name"`
	LogoURL      string `json:"logo_url"`
}

// DisplayProfile is what the enrichment layer attaches to records
type DisplayProfile struct {
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url"`
}

// ProfileKind tells the directory which table an id belongs to.
type ProfileKind string

const (
	ProfileUser   ProfileKind = "user"
	ProfileVendor ProfileKind = "vendor"
)

// ProfileRef addresses one display profile.
type ProfileRef struct {
	Kind ProfileKind
	ID   uint
}

// JwtCustomClaims are custom claims extending standard jwt.RegisteredClaims
type JwtCustomClaims struct {
	UserID uint   `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role,omitempty"` // "admin" for back-office staff
	jwt.RegisteredClaims
}
