// Package booking implements the payment/booking saga: offer verification,
// payment intent management, confirmation, order creation, and the state
// machine that sequences them.
package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/skyroute/skyroute-bookings/internal/domain"
)

// OfferVerifier confirms that an offer id still resolves to a live,
// unexpired offer immediately before money changes hands. It always performs
// a live fetch; a previously cached offer is never trusted for a
// money-moving decision.
type OfferVerifier struct {
	api    domain.DistributionAPI
	now    func() time.Time
	logger *logrus.Logger
}

// NewOfferVerifier creates a verifier. now is injectable for tests; pass nil
// for time.Now.
func NewOfferVerifier(api domain.DistributionAPI, now func() time.Time, logger *logrus.Logger) *OfferVerifier {
	if now == nil {
		now = time.Now
	}
	return &OfferVerifier{api: api, now: now, logger: logger}
}

// Verify fetches the offer and checks its expiry against the current time.
// Runs at least twice per successful booking: once before creating a payment
// intent and once immediately before order creation, because the gap between
// those steps can span a step-up challenge of arbitrary duration.
func (v *OfferVerifier) Verify(ctx context.Context, offerID string) (*domain.Offer, error) {
	offer, err := v.api.GetOffer(ctx, offerID)
	if err != nil {
		if errors.Is(err, domain.ErrOfferNotFound) {
			return nil, domain.NewBookingError(domain.ErrOfferNotFound,
				fmt.Sprintf("offer %s not found", offerID), "OFFER_NOT_FOUND")
		}
		return nil, domain.NewBookingError(domain.ErrUpstreamUnavailable,
			"failed to fetch offer", "UPSTREAM_UNAVAILABLE")
	}

	if now := v.now(); offer.Expired(now) {
		v.logger.WithFields(logrus.Fields{
			"offer_id":   offerID,
			"expires_at": offer.ExpiresAt,
			"now":        now,
		}).Info("offer expired before commit")
		return nil, domain.NewBookingError(domain.ErrOfferExpired,
			fmt.Sprintf("offer %s expired at %s", offerID, offer.ExpiresAt.Format(time.RFC3339)),
			"OFFER_EXPIRED")
	}

	return offer, nil
}
