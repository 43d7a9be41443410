// Package playback wraps the signed-URL cache for display consumers:
// batch resolution ahead of rendering and a single bounded
// refresh-and-retry when a delivery link has gone stale
package playback

import (
	"context"
	"fmt"

	"bitrel/media-api/internal/signedurl"

	"go.uber.org/zap"
)

// DeliveryExpiredError is returned when a load still fails after the
// one automatic refresh. It is surfaced, never retried again
type DeliveryExpiredError struct {
	Key string
	Err error
}

func (e *DeliveryExpiredError) Error() string {
	return fmt.Sprintf("delivery failed for %s after refresh, %v", e.Key, e.Err)
}

func (e *DeliveryExpiredError) Unwrap() error { return e.Err }

type Resolver struct {
	Cache *signedurl.Cache
}

func NewResolver(cache *signedurl.Cache) *Resolver {
	return &Resolver{Cache: cache}
}

// ResolveItems resolves every key about to be displayed in one pass so
// the UI doesn't pay a round trip per item
func (r *Resolver) ResolveItems(ctx context.Context, keys []string) map[string]string {
	return r.Cache.ResolveBatch(ctx, keys)
}

// Refresh replaces the cached URL for a key after a consumer observed
// a delivery failure
func (r *Resolver) Refresh(ctx context.Context, key string) (string, error) {
	return r.Cache.ForceRefresh(ctx, key)
}

// Recover runs load with a resolved URL and, if it fails, retries
// exactly once with a force-refreshed one. A second failure is handed
// back to the caller
func (r *Resolver) Recover(ctx context.Context, key string, load func(url string) error) error {
	url, err := r.Cache.Resolve(ctx, key)
	if err != nil {
		return err
	}

	if err := load(url); err == nil {
		return nil
	} else {
		zap.L().Debug("Delivery failure, refreshing signed URL",
			zap.String("key", key), zap.Error(err))
	}

	url, err = r.Cache.ForceRefresh(ctx, key)
	if err != nil {
		return err
	}

	if err := load(url); err != nil {
		return &DeliveryExpiredError{Key: key, Err: err}
	}

	return nil
}
