package services

import (
	"context"

	"github.com/anonto42/bazaar/backend/internal/identity"
	"github.com/anonto42/bazaar/backend/internal/models"
	"github.com/anonto42/bazaar/backend/internal/repositories"
	"github.com/rs/zerolog/log"
)

// UnknownProfile stands in for profiles the directory cannot provide.
var UnknownProfile = models.DisplayProfile{Name: "Unknown user"}

// ConversationView is a conversation decorated for one viewer.
type ConversationView struct {
	models.Conversation
	Buyer        models.DisplayProfile  `json:"buyer"`
	Vendor       models.DisplayProfile  `json:"vendor"`
	Counterparty *models.DisplayProfile `json:"counterparty,omitempty"`
	UnreadCount  int64                  `json:"unread_count"`
}

// NotificationView is a notification with its actor's profile attached.
type NotificationView struct {
	models.Notification
	Actor *models.DisplayProfile `json:"actor,omitempty"`
}

// Enricher attaches display profiles to query results. It never fails:
// missing or unreachable profiles become UnknownProfile.
type Enricher struct {
	directory identity.ProfileDirectory
	messages  repositories.MessageRepository
}

// NewEnricher creates an Enricher. messages may be nil when unread counts are not wanted.
func NewEnricher(directory identity.ProfileDirectory, messages repositories.MessageRepository) *Enricher {
	return &Enricher{directory: directory, messages: messages}
}

// EnrichConversations decorates convs for a viewer acting as role.
func (e *Enricher) EnrichConversations(ctx context.Context, viewer models.Role, convs []models.Conversation) []ConversationView {
	views := make([]ConversationView, len(convs))
	if len(convs) == 0 {
		return views
	}

	refs := make([]models.ProfileRef, 0, 2*len(convs))
	ids := make([]uint, 0, len(convs))
	for _, c := range convs {
		refs = append(refs,
			models.ProfileRef{Kind: models.ProfileUser, ID: c.BuyerID},
			models.ProfileRef{Kind: models.ProfileVendor, ID: c.VendorID},
		)
		ids = append(ids, c.ID)
	}
	profiles := e.lookup(ctx, refs)

	var unread map[uint]int64
	if e.messages != nil && viewer != models.RoleAdmin {
		var err error
		unread, err = e.messages.UnreadCounts(ctx, ids, viewer)
		if err != nil {
			log.Warn().Err(err).Int("conversations", len(ids)).Msg("unread counts unavailable")
		}
	}

	for i, c := range convs {
		v := ConversationView{
			Conversation: c,
			Buyer:        profileOrUnknown(profiles, models.ProfileRef{Kind: models.ProfileUser, ID: c.BuyerID}),
			Vendor:       profileOrUnknown(profiles, models.ProfileRef{Kind: models.ProfileVendor, ID: c.VendorID}),
			UnreadCount:  unread[c.ID],
		}
		switch viewer {
		case models.RoleBuyer:
			p := v.Vendor
			v.Counterparty = &p
		case models.RoleVendor:
			p := v.Buyer
			v.Counterparty = &p
		}
		views[i] = v
	}
	return views
}

// EnrichNotifications attaches the actor profile to notifications that name one.
func (e *Enricher) EnrichNotifications(ctx context.Context, notifications []models.Notification) []NotificationView {
	views := make([]NotificationView, len(notifications))
	var refs []models.ProfileRef
	for _, n := range notifications {
		if ref, ok := actorRef(n); ok {
			refs = append(refs, ref)
		}
	}

	var profiles map[models.ProfileRef]models.DisplayProfile
	if len(refs) > 0 {
		profiles = e.lookup(ctx, refs)
	}

	for i, n := range notifications {
		views[i] = NotificationView{Notification: n}
		if ref, ok := actorRef(n); ok {
			p := profileOrUnknown(profiles, ref)
			views[i].Actor = &p
		}
	}
	return views
}

// EnrichGrouped enriches every bucket of a grouped listing.
func (e *Enricher) EnrichGrouped(ctx context.Context, g *models.GroupedNotifications) map[string][]NotificationView {
	return map[string][]NotificationView{
		"today":     e.EnrichNotifications(ctx, g.Today),
		"yesterday": e.EnrichNotifications(ctx, g.Yesterday),
		"thisWeek":  e.EnrichNotifications(ctx, g.ThisWeek),
		"older":     e.EnrichNotifications(ctx, g.Older),
	}
}

func (e *Enricher) lookup(ctx context.Context, refs []models.ProfileRef) map[models.ProfileRef]models.DisplayProfile {
	profiles, err := e.directory.GetDisplayProfiles(ctx, refs)
	if err != nil {
		log.Warn().Err(err).Int("profiles", len(refs)).Msg("profile directory unavailable, using placeholders")
		return nil
	}
	return profiles
}

func actorRef(n models.Notification) (models.ProfileRef, bool) {
	if n.ActorID == nil || *n.ActorID == 0 {
		return models.ProfileRef{}, false
	}
	switch models.ProfileKind(n.ActorKind) {
	case models.ProfileUser, models.ProfileVendor:
		return models.ProfileRef{Kind: models.ProfileKind(n.ActorKind), ID: *n.ActorID}, true
	}
	return models.ProfileRef{}, false
}

func profileOrUnknown(profiles map[models.ProfileRef]models.DisplayProfile, ref models.ProfileRef) models.DisplayProfile {
	if p, ok := profiles[ref]; ok {
		return p
	}
	return UnknownProfile
}
