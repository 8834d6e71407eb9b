// Package redishold provides the redis-backed offer display cache and the
// per-client rate limiter. Everything here is advisory: cached offers only
// feed browse endpoints, and the checkout path always bypasses the cache.
package redishold

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/skyroute/skyroute-bookings/internal/domain"
)

// OfferCache stores offer payloads under a short TTL.
type OfferCache struct {
	client *redis.Client
}

func NewOfferCache(client *redis.Client) *OfferCache {
	return &OfferCache{client: client}
}

func offerKey(offerID string) string {
	return fmt.Sprintf("offer:%s", offerID)
}

// Get returns the cached offer, or ErrOfferNotFound on a miss. Callers
// treat a miss as "fetch live", never as "offer gone".
func (c *OfferCache) Get(ctx context.Context, offerID string) (*domain.Offer, error) {
	raw, err := c.client.Get(ctx, offerKey(offerID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrOfferNotFound
		}
		return nil, err
	}

	var offer domain.Offer
	if err := json.Unmarshal([]byte(raw), &offer); err != nil {
		return nil, fmt.Errorf("corrupt cached offer %s: %w", offerID, err)
	}
	return &offer, nil
}

// Set caches the offer for the given TTL.
func (c *OfferCache) Set(ctx context.Context, offer *domain.Offer, ttl time.Duration) error {
	raw, err := json.Marshal(offer)
	if err != nil {
		return fmt.Errorf("failed to encode offer %s: %w", offer.ID, err)
	}
	return c.client.Set(ctx, offerKey(offer.ID), raw, ttl).Err()
}

// Invalidate drops the cached copy.
func (c *OfferCache) Invalidate(ctx context.Context, offerID string) error {
	return c.client.Del(ctx, offerKey(offerID)).Err()
}
