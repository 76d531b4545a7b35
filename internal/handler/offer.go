package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"courier/internal/domain"
	"courier/internal/service"
)

// OfferHandler exposes the current offer and the user decision actions.
type OfferHandler struct {
	authority *service.AssignmentService
}

// NewOfferHandler creates a new OfferHandler.
func NewOfferHandler(authority *service.AssignmentService) *OfferHandler {
	return &OfferHandler{authority: authority}
}

// OfferResponse is the presentation view of the held offer. Remaining time is
// derived from the deadline at read time; it is never stored anywhere.
type OfferResponse struct {
	ID                string `json:"id"`
	Kind              string `json:"kind"`
	State             string `json:"state"`
	Reference         string `json:"reference"`
	RouteNumber       string `json:"route_number,omitempty"`
	PickupSummary     string `json:"pickup_summary"`
	DropoffSummary    string `json:"dropoff_summary"`
	AdditionalStops   int    `json:"additional_stops,omitempty"`
	EstimatedEarnings string `json:"estimated_earnings"`
	ScheduledAt       string `json:"scheduled_at,omitempty"`
	Distance          string `json:"distance,omitempty"`
	VehicleType       string `json:"vehicle_type,omitempty"`
	AssignedAt        string `json:"assigned_at"`
	Deadline          string `json:"deadline"`
	RemainingSeconds  int    `json:"remaining_seconds"`
	Expiring          bool   `json:"expiring"`
}

func toOfferResponse(offer domain.Offer, now time.Time) OfferResponse {
	remaining := offer.Remaining(now)
	return OfferResponse{
		ID:                offer.ID,
		Kind:              string(offer.Kind),
		State:             string(offer.State),
		Reference:         offer.Reference,
		RouteNumber:       offer.RouteNumber,
		PickupSummary:     offer.PickupSummary,
		DropoffSummary:    offer.DropoffSummary,
		AdditionalStops:   offer.AdditionalStops,
		EstimatedEarnings: offer.EstimatedEarnings,
		ScheduledAt:       offer.ScheduledAt,
		Distance:          offer.Distance,
		VehicleType:       offer.VehicleType,
		AssignedAt:        offer.AssignedAt.UTC().Format(time.RFC3339),
		Deadline:          offer.Deadline().UTC().Format(time.RFC3339),
		RemainingSeconds:  int(remaining / time.Second),
		Expiring:          remaining > 0 && remaining <= domain.ExpiryWarningLead,
	}
}

// Get handles GET /v1/offer
func (h *OfferHandler) Get(c *gin.Context) {
	snap := h.authority.Snapshot()
	if !snap.Held {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "no active offer"})
		return
	}
	c.JSON(http.StatusOK, toOfferResponse(snap.Offer, time.Now()))
}

// ViewResponse is the HTTP response for accepting an offer for viewing.
type ViewResponse struct {
	ID    string `json:"id"`
	State string `json:"state"`
	Kind  string `json:"kind"`
}

// View handles POST /v1/offer/view
func (h *OfferHandler) View(c *gin.Context) {
	accepted, err := h.authority.View(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ViewResponse{
		ID:    accepted.ID,
		State: string(accepted.State),
		Kind:  string(accepted.Kind),
	})
}

// Decline handles POST /v1/offer/decline
func (h *OfferHandler) Decline(c *gin.Context) {
	if err := h.authority.RequestDecline(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": string(domain.OfferStateDeclining)})
}

// CancelDecline handles POST /v1/offer/decline/cancel
func (h *OfferHandler) CancelDecline(c *gin.Context) {
	if err := h.authority.CancelDecline(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": string(domain.OfferStateOffered)})
}

// ConfirmDeclineRequest is the HTTP request body for confirming a decline.
type ConfirmDeclineRequest struct {
	Reason string `json:"reason"`
}

// ConfirmDecline handles POST /v1/offer/decline/confirm
func (h *OfferHandler) ConfirmDecline(c *gin.Context) {
	var req ConfirmDeclineRequest
	_ = c.ShouldBindJSON(&req) // body is optional

	if err := h.authority.ConfirmDecline(c.Request.Context(), req.Reason); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": string(domain.OfferStateDeclined)})
}

// AckAlert handles POST /v1/offer/alert/ack
func (h *OfferHandler) AckAlert(c *gin.Context) {
	if err := h.authority.AcknowledgeAlert(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
