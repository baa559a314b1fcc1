package pushnotification

import (
	"context"

	"github.com/oklog/ulid/v2"

	"github.com/kazz187/permguard/internal/config"
	"github.com/kazz187/permguard/internal/pushsubscription"
	"github.com/kazz187/permguard/pkg/cerr"
	"github.com/kazz187/permguard/pkg/clock"
)

type Registrar struct {
	vapidEnv *config.VAPIDEnv
	repo     pushsubscription.Repository
	clock    clock.Clock
}

func NewRegistrar(vapidEnv *config.VAPIDEnv, repo pushsubscription.Repository, c clock.Clock) *Registrar {
	return &Registrar{vapidEnv: vapidEnv, repo: repo, clock: c}
}

func (r *Registrar) PublicKey() (string, error) {
	if r.vapidEnv.VAPIDPublicKey == "" {
		return "", cerr.NewError(cerr.FailedPrecondition, "VAPID keys not configured", nil)
	}
	return r.vapidEnv.VAPIDPublicKey, nil
}

// Register stores a subscription. Registering a known endpoint again
// replaces its keys and keeps its ID.
func (r *Registrar) Register(ctx context.Context, endpoint, p256dh, auth string) (*pushsubscription.Subscription, error) {
	if endpoint == "" {
		return nil, cerr.NewError(cerr.InvalidArgument, "endpoint is required", nil)
	}
	if p256dh == "" {
		return nil, cerr.NewError(cerr.InvalidArgument, "p256dh is required", nil)
	}
	if auth == "" {
		return nil, cerr.NewError(cerr.InvalidArgument, "auth is required", nil)
	}

	existing, err := r.repo.FindByEndpoint(ctx, endpoint)
	if err != nil && !cerr.IsCode(err, cerr.NotFound) {
		return nil, err
	}
	if existing != nil {
		existing.P256dhKey = p256dh
		existing.AuthKey = auth
		if err := r.repo.Delete(ctx, existing.ID); err != nil {
			return nil, err
		}
		if err := r.repo.Create(ctx, existing); err != nil {
			return nil, err
		}
		return existing, nil
	}

	sub := &pushsubscription.Subscription{
		ID:        ulid.Make().String(),
		Endpoint:  endpoint,
		P256dhKey: p256dh,
		AuthKey:   auth,
		CreatedAt: r.clock.Now(),
	}
	if err := r.repo.Create(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}
