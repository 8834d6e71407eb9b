package travelapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/skyroute/skyroute-bookings/internal/domain"
)

// offerResponse is the provider's offer payload. Amounts are minor units.
type offerResponse struct {
	Data struct {
		ID                string          `json:"id"`
		TotalAmount       int64           `json:"total_amount"`
		TotalCurrency     string          `json:"total_currency"`
		ExpiresAt         time.Time       `json:"expires_at"`
		Slices            []sliceResponse `json:"slices"`
		AvailableServices []string        `json:"available_services"`
	} `json:"data"`
}

type sliceResponse struct {
	Origin      string    `json:"origin"`
	Destination string    `json:"destination"`
	Departure   time.Time `json:"departure"`
	Arrival     time.Time `json:"arrival"`
	Segments    []struct {
		ID               string `json:"id"`
		MarketingCarrier string `json:"marketing_carrier"`
		FlightNumber     string `json:"flight_number"`
	} `json:"segments"`
}

// GetOffer performs a live fetch of an offer by id.
func (c *Client) GetOffer(ctx context.Context, offerID string) (*domain.Offer, error) {
	url := fmt.Sprintf("%s/air/offers/%s", c.baseURL, offerID)

	var resp offerResponse
	if err := c.doJSON(ctx, http.MethodGet, url, "", nil, &resp, domain.ErrOfferNotFound); err != nil {
		return nil, err
	}

	offer := &domain.Offer{
		ID:                resp.Data.ID,
		TotalAmount:       fromMinor(resp.Data.TotalAmount, resp.Data.TotalCurrency),
		ExpiresAt:         resp.Data.ExpiresAt,
		AvailableServices: resp.Data.AvailableServices,
	}
	for _, s := range resp.Data.Slices {
		slice := domain.Slice{
			Origin:      s.Origin,
			Destination: s.Destination,
			Departure:   s.Departure,
			Arrival:     s.Arrival,
		}
		for _, seg := range s.Segments {
			slice.Segments = append(slice.Segments, domain.Segment{
				ID:               seg.ID,
				MarketingCarrier: seg.MarketingCarrier,
				FlightNumber:     seg.FlightNumber,
			})
		}
		offer.Slices = append(offer.Slices, slice)
	}
	return offer, nil
}

// serviceListResponse is the provider's ancillary listing payload.
type serviceListResponse struct {
	Data []struct {
		ID           string `json:"id"`
		Type         string `json:"type"`
		Amount       int64  `json:"amount"`
		Currency     string `json:"currency"`
		PassengerRef string `json:"passenger_ref"`
		SegmentRef   string `json:"segment_ref"`
	} `json:"data"`
}

// ListAvailableServices lists the ancillaries purchasable for an offer.
func (c *Client) ListAvailableServices(ctx context.Context, offerID string) ([]domain.AncillaryService, error) {
	url := fmt.Sprintf("%s/air/offers/%s/available_services", c.baseURL, offerID)

	var resp serviceListResponse
	if err := c.doJSON(ctx, http.MethodGet, url, "", nil, &resp, domain.ErrOfferNotFound); err != nil {
		return nil, err
	}

	services := make([]domain.AncillaryService, 0, len(resp.Data))
	for _, s := range resp.Data {
		services = append(services, domain.AncillaryService{
			ID:             s.ID,
			Kind:           ancillaryKind(s.Type),
			ProviderAmount: fromMinor(s.Amount, s.Currency),
			PassengerRef:   s.PassengerRef,
			SegmentRef:     s.SegmentRef,
		})
	}
	return services, nil
}

// ancillaryKind maps the provider's service type strings onto the kinds the
// pricing rules know about. Unknown types fall through to "other" so a new
// provider service cannot break checkout.
func ancillaryKind(providerType string) domain.AncillaryKind {
	switch providerType {
	case "baggage":
		return domain.AncillaryBaggage
	case "seat":
		return domain.AncillarySeat
	case "cancel_for_any_reason", "cancellation_protection":
		return domain.AncillaryCancellationProtection
	default:
		return domain.AncillaryOther
	}
}
