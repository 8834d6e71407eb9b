package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/skyroute/skyroute-bookings/internal/booking"
	"github.com/skyroute/skyroute-bookings/internal/domain"
)

// Handler contains the HTTP handlers for the booking API.
type Handler struct {
	orchestrator *booking.Orchestrator
	provider     domain.DistributionAPI
	cache        domain.OfferCache
	cacheTTL     time.Duration
	logger       *logrus.Logger
}

// NewHandler creates a new API handler.
func NewHandler(orchestrator *booking.Orchestrator, provider domain.DistributionAPI, cache domain.OfferCache, cacheTTL time.Duration, logger *logrus.Logger) *Handler {
	return &Handler{
		orchestrator: orchestrator,
		provider:     provider,
		cache:        cache,
		cacheTTL:     cacheTTL,
		logger:       logger,
	}
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
}

// Health handles GET /health
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "skyroute-bookings",
	})
}

// GetOffer handles GET /api/v1/offers/:id
// Serves the display cache when warm; this data feeds browsing only, the
// booking flow always re-fetches live.
func (h *Handler) GetOffer(c *gin.Context) {
	offerID := c.Param("id")

	if offer, err := h.cache.Get(c.Request.Context(), offerID); err == nil {
		c.JSON(http.StatusOK, gin.H{"success": true, "offer": offer, "cached": true})
		return
	}

	offer, err := h.provider.GetOffer(c.Request.Context(), offerID)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	if err := h.cache.Set(c.Request.Context(), offer, h.cacheTTL); err != nil {
		h.logger.WithError(err).WithField("offer_id", offerID).Warn("failed to cache offer")
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "offer": offer})
}

// ListOfferServices handles GET /api/v1/offers/:id/services
func (h *Handler) ListOfferServices(c *gin.Context) {
	services, err := h.provider.ListAvailableServices(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "services": services})
}

// PriceRequest represents the JSON body for the price preview endpoint.
type PriceRequest struct {
	BaseAmount     string                      `json:"base_amount" binding:"required"`
	Currency       string                      `json:"currency" binding:"required"`
	PassengerCount int                         `json:"passenger_count" binding:"required,gt=0"`
	Ancillaries    []domain.AncillarySelection `json:"ancillaries,omitempty"`
}

// PricePreview handles POST /api/v1/bookings/price
// Runs the pricing engine and amount guard only; nothing touches the
// provider and nothing is persisted.
func (h *Handler) PricePreview(c *gin.Context) {
	var req PriceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	base, err := domain.NewMoney(req.BaseAmount, req.Currency)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Success: false,
			Error:   "invalid base_amount: " + err.Error(),
			Code:    "VALIDATION_ERROR",
		})
		return
	}

	breakdown, err := h.orchestrator.Price(base, req.PassengerCount, req.Ancillaries)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "breakdown": breakdown})
}

// StartBookingRequest represents the JSON body for starting a booking.
type StartBookingRequest struct {
	AttemptID   string                      `json:"attempt_id,omitempty"`
	OfferID     string                      `json:"offer_id" binding:"required"`
	BaseAmount  string                      `json:"base_amount" binding:"required"`
	Currency    string                      `json:"currency" binding:"required"`
	Passengers  []domain.Passenger          `json:"passengers" binding:"required,min=1"`
	Ancillaries []domain.AncillarySelection `json:"ancillaries,omitempty"`
	Payment     domain.PaymentMethod        `json:"payment"`
}

// StartBooking handles POST /api/v1/bookings
func (h *Handler) StartBooking(c *gin.Context) {
	var req StartBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	base, err := domain.NewMoney(req.BaseAmount, req.Currency)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Success: false,
			Error:   "invalid base_amount: " + err.Error(),
			Code:    "VALIDATION_ERROR",
		})
		return
	}

	start := booking.StartRequest{
		OfferID:     req.OfferID,
		BaseAmount:  base,
		Passengers:  req.Passengers,
		Ancillaries: req.Ancillaries,
		Payment:     req.Payment,
	}
	if req.AttemptID != "" {
		id, err := uuid.Parse(req.AttemptID)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Success: false,
				Error:   "invalid attempt_id",
				Code:    "VALIDATION_ERROR",
			})
			return
		}
		start.AttemptID = id
	}

	result, err := h.orchestrator.Start(c.Request.Context(), start)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(statusForResult(result), result)
}

// ResumeRequest represents the JSON body for resuming after a challenge.
type ResumeRequest struct {
	ChallengeResult string `json:"challenge_result" binding:"required"`
}

// ResumeBooking handles POST /api/v1/bookings/:id/resume
func (h *Handler) ResumeBooking(c *gin.Context) {
	attemptID, ok := attemptIDParam(c)
	if !ok {
		return
	}

	var req ResumeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	result, err := h.orchestrator.Resume(c.Request.Context(), attemptID, req.ChallengeResult)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(statusForResult(result), result)
}

// RetryBooking handles POST /api/v1/bookings/:id/retry
// Retries order creation for a captured payment. Never re-charges.
func (h *Handler) RetryBooking(c *gin.Context) {
	attemptID, ok := attemptIDParam(c)
	if !ok {
		return
	}

	result, err := h.orchestrator.RetryOrder(c.Request.Context(), attemptID)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(statusForResult(result), result)
}

// GetBooking handles GET /api/v1/bookings/:id
func (h *Handler) GetBooking(c *gin.Context) {
	attemptID, ok := attemptIDParam(c)
	if !ok {
		return
	}

	result, err := h.orchestrator.Get(c.Request.Context(), attemptID)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// AbandonBooking handles DELETE /api/v1/bookings/:id
func (h *Handler) AbandonBooking(c *gin.Context) {
	attemptID, ok := attemptIDParam(c)
	if !ok {
		return
	}

	result, err := h.orchestrator.Abandon(c.Request.Context(), attemptID)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func attemptIDParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Success: false,
			Error:   "invalid booking attempt id",
			Code:    "VALIDATION_ERROR",
		})
		return uuid.Nil, false
	}
	return id, true
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Success: false,
		Error:   "invalid request body: " + err.Error(),
		Code:    "VALIDATION_ERROR",
	})
}

// statusForResult picks the HTTP status for an orchestrated outcome. The
// body always carries the full result; the status just mirrors it for
// clients that switch on codes.
func statusForResult(result *booking.Result) int {
	if result.Success || result.RequiresAction || !result.Status.Terminal() {
		return http.StatusOK
	}
	switch result.FailureReason {
	case domain.FailureValidation:
		return http.StatusBadRequest
	case domain.FailureAmountLimit:
		return http.StatusUnprocessableEntity
	case domain.FailurePayment:
		return http.StatusPaymentRequired
	case domain.FailureOfferInvalid:
		return http.StatusConflict
	case domain.FailureAbandoned, domain.FailureExpired:
		return http.StatusGone
	case domain.FailureProvider, domain.FailureOrderCreation:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// handleServiceError maps domain errors to HTTP responses.
func handleServiceError(c *gin.Context, err error) {
	statusCode := http.StatusInternalServerError
	code := "INTERNAL_ERROR"
	message := "an unexpected error occurred"

	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		statusCode, code = http.StatusBadRequest, "VALIDATION_ERROR"
	case errors.Is(err, domain.ErrAmountExceedsLimit):
		statusCode, code = http.StatusUnprocessableEntity, "AMOUNT_EXCEEDS_LIMIT"
	case errors.Is(err, domain.ErrOfferNotFound), errors.Is(err, domain.ErrAttemptNotFound):
		statusCode, code = http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, domain.ErrOfferExpired):
		statusCode, code = http.StatusGone, "OFFER_EXPIRED"
	case errors.Is(err, domain.ErrPaymentFailed):
		statusCode, code = http.StatusPaymentRequired, "PAYMENT_FAILED"
	case errors.Is(err, domain.ErrPreconditionViolation), errors.Is(err, domain.ErrDuplicateOrder):
		statusCode, code = http.StatusConflict, "CONFLICT"
	case errors.Is(err, domain.ErrRateLimited):
		statusCode, code = http.StatusTooManyRequests, "RATE_LIMITED"
	case errors.Is(err, domain.ErrUpstreamUnavailable), errors.Is(err, domain.ErrOrderCreation),
		errors.Is(err, domain.ErrIntentNotFound):
		statusCode, code = http.StatusBadGateway, "UPSTREAM_UNAVAILABLE"
	}

	var bookingErr *domain.BookingError
	if errors.As(err, &bookingErr) {
		code = bookingErr.Code
		message = bookingErr.Message
	} else if statusCode != http.StatusInternalServerError {
		message = err.Error()
	}

	c.JSON(statusCode, ErrorResponse{
		Success: false,
		Error:   message,
		Code:    code,
	})
}
