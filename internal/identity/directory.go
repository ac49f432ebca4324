package identity

import (
	"context"
	"fmt"

	"github.com/anonto42/bazaar/backend/internal/models"
	"github.com/anonto42/bazaar/backend/internal/repositories"
	"github.com/rs/zerolog/log"
)

// Resolver answers the identity questions the conversation core asks before it
// touches its own tables.
type Resolver interface {
	BuyerExists(ctx context.Context, userID uint) (bool, error)
	VendorExists(ctx context.Context, vendorID uint) (bool, error)
	ResolveVendorIDForUser(ctx context.Context, userID uint) (uint, error)
	ResolveUserIDForVendor(ctx context.Context, vendorID uint) (uint, error)
}

// ProfileDirectory returns display profiles in bulk. Refs it cannot find are
// simply absent from the result.
type ProfileDirectory interface {
	GetDisplayProfiles(ctx context.Context, refs []models.ProfileRef) (map[models.ProfileRef]models.DisplayProfile, error)
}

// Directory is the gorm-backed Resolver and ProfileDirectory over the users and
// vendors tables. An optional Overlay fills blank user profiles from Firebase.
type Directory struct {
	users   repositories.UserRepository
	overlay *FirebaseOverlay
}

// NewDirectory creates a Directory. overlay may be nil.
func NewDirectory(users repositories.UserRepository, overlay *FirebaseOverlay) *Directory {
	return &Directory{users: users, overlay: overlay}
}

func (d *Directory) BuyerExists(ctx context.Context, userID uint) (bool, error) {
	if userID == 0 {
		return false, nil
	}
	_, err := d.users.GetUserByID(ctx, userID)
	return exists(err)
}

func (d *Directory) VendorExists(ctx context.Context, vendorID uint) (bool, error) {
	if vendorID == 0 {
		return false, nil
	}
	_, err := d.users.GetVendorByID(ctx, vendorID)
	return exists(err)
}

// ResolveVendorIDForUser returns the vendor id owned by userID, or
// ErrParticipantNotFound when the user runs no shop.
func (d *Directory) ResolveVendorIDForUser(ctx context.Context, userID uint) (uint, error) {
	vendor, err := d.users.GetVendorByUserID(ctx, userID)
	if err != nil {
		if repositories.IsNotFound(err) {
			return 0, fmt.Errorf("%w: user %d has no vendor record", models.ErrParticipantNotFound, userID)
		}
		return 0, err
	}
	return vendor.ID, nil
}

// ResolveUserIDForVendor returns the user that owns vendorID.
func (d *Directory) ResolveUserIDForVendor(ctx context.Context, vendorID uint) (uint, error) {
	vendor, err := d.users.GetVendorByID(ctx, vendorID)
	if err != nil {
		if repositories.IsNotFound(err) {
			return 0, fmt.Errorf("%w: vendor %d", models.ErrParticipantNotFound, vendorID)
		}
		return 0, err
	}
	return vendor.UserID, nil
}

// GetDisplayProfiles loads users and vendors with one query per kind.
func (d *Directory) GetDisplayProfiles(ctx context.Context, refs []models.ProfileRef) (map[models.ProfileRef]models.DisplayProfile, error) {
	var userIDs, vendorIDs []uint
	seen := make(map[models.ProfileRef]struct{}, len(refs))
	for _, ref := range refs {
		if _, ok := seen[ref]; ok || ref.ID == 0 {
			continue
		}
		seen[ref] = struct{}{}
		switch ref.Kind {
		case models.ProfileUser:
			userIDs = append(userIDs, ref.ID)
		case models.ProfileVendor:
			vendorIDs = append(vendorIDs, ref.ID)
		}
	}

	profiles := make(map[models.ProfileRef]models.DisplayProfile, len(seen))

	users, err := d.users.GetUsersByIDs(ctx, userIDs)
	if err != nil {
		return nil, err
	}
	firebaseUIDs := make(map[string]models.ProfileRef)
	for _, u := range users {
		ref := models.ProfileRef{Kind: models.ProfileUser, ID: u.ID}
		profiles[ref] = models.DisplayProfile{Name: u.Name, AvatarURL: u.AvatarURL}
		if u.FirebaseUID != "" && (u.Name == "" || u.AvatarURL == "") {
			firebaseUIDs[u.FirebaseUID] = ref
		}
	}

	vendors, err := d.users.GetVendorsByIDs(ctx, vendorIDs)
	if err != nil {
		return nil, err
	}
	for _, v := range vendors {
		profiles[models.ProfileRef{Kind: models.ProfileVendor, ID: v.ID}] = models.DisplayProfile{Name: v.BusinessName, AvatarURL: v.LogoURL}
	}

	if d.overlay != nil && len(firebaseUIDs) > 0 {
		d.applyOverlay(ctx, profiles, firebaseUIDs)
	}
	return profiles, nil
}

func (d *Directory) applyOverlay(ctx context.Context, profiles map[models.ProfileRef]models.DisplayProfile, byUID map[string]models.ProfileRef) {
	uids := make([]string, 0, len(byUID))
	for uid := range byUID {
		uids = append(uids, uid)
	}
	remote, err := d.overlay.Lookup(ctx, uids)
	if err != nil {
		log.Warn().Err(err).Int("uids", len(uids)).Msg("firebase profile overlay failed, using stored profiles")
		return
	}
	for uid, rp := range remote {
		ref := byUID[uid]
		p := profiles[ref]
		if p.Name == "" {
			p.Name = rp.Name
		}
		if p.AvatarURL == "" {
			p.AvatarURL = rp.AvatarURL
		}
		profiles[ref] = p
	}
}

func exists(err error) (bool, error) {
	if err == nil {
		return true, nil
	}
	if repositories.IsNotFound(err) {
		return false, nil
	}
	return false, err
}

var (
	_ Resolver         = (*Directory)(nil)
	_ ProfileDirectory = (*Directory)(nil)
)
