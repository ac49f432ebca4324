package identity

import (
	"context"
	"sync"

	"firebase.google.com/go/v4/auth"
	"github.com/anonto42/bazaar/backend/internal/models"
	"golang.org/x/sync/errgroup"
)

// firebaseBatchSize is the most identifiers auth.Client.GetUsers accepts per call.
const firebaseBatchSize = 100

// UserGetter is the part of *auth.Client the overlay uses.
type UserGetter interface {
	GetUsers(ctx context.Context, identifiers []auth.UserIdentifier) (*auth.GetUsersResult, error)
}

// FirebaseOverlay looks up display names and photos of Firebase accounts.
type FirebaseOverlay struct {
	client      UserGetter
	concurrency int
}

// NewFirebaseOverlay creates a FirebaseOverlay. A nil client yields a nil overlay.
func NewFirebaseOverlay(client UserGetter) *FirebaseOverlay {
	if client == nil {
		return nil
	}
	return &FirebaseOverlay{client: client, concurrency: 4}
}

// Lookup returns profiles keyed by Firebase UID. Unknown UIDs are absent.
func (o *FirebaseOverlay) Lookup(ctx context.Context, uids []string) (map[string]models.DisplayProfile, error) {
	out := make(map[string]models.DisplayProfile, len(uids))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.concurrency)
	for start := 0; start < len(uids); start += firebaseBatchSize {
		end := min(start+firebaseBatchSize, len(uids))
		batch := make([]auth.UserIdentifier, 0, end-start)
		for _, uid := range uids[start:end] {
			batch = append(batch, auth.UIDIdentifier{UID: uid})
		}

		g.Go(func() error {
			res, err := o.client.GetUsers(gctx, batch)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			for _, u := range res.Users {
				if u == nil || u.UserInfo == nil {
					continue
				}
				out[u.UID] = models.DisplayProfile{Name: u.DisplayName, AvatarURL: u.PhotoURL}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
