package repository

import (
	"encoding/json"
	"strconv"
	"time"

	"courier/internal/domain"
)

// slotRecord is the persisted JSON layout of the offer slot. It mirrors the
// Offer entity; assigned_at is an RFC 3339 timestamp (epoch seconds are also
// accepted on read), never a remaining-seconds value.
type slotRecord struct {
	ID                string `json:"id"`
	Kind              string `json:"kind"`
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
	AlertAcked        bool   `json:"alert_acked,omitempty"`
}

// EncodeSlot serializes an offer into the persisted slot layout.
func EncodeSlot(offer *domain.Offer) ([]byte, error) {
	rec := slotRecord{
		ID:                offer.ID,
		Kind:              string(offer.Kind),
		Reference:         offer.Reference,
		RouteNumber:       offer.RouteNumber,
		PickupSummary:     offer.PickupSummary,
		DropoffSummary:    offer.DropoffSummary,
		AdditionalStops:   offer.AdditionalStops,
		EstimatedEarnings: offer.EstimatedEarnings,
		ScheduledAt:       offer.ScheduledAt,
		Distance:          offer.Distance,
		VehicleType:       offer.VehicleType,
		AssignedAt:        offer.AssignedAt.UTC().Format(time.RFC3339Nano),
		AlertAcked:        offer.AlertAcked,
	}
	return json.Marshal(rec)
}

// DecodeSlot parses a persisted slot record back into an offer. The restored
// state is always OFFERED; terminal offers are never persisted and the
// DECLINING confirmation step is deliberately not durable.
func DecodeSlot(data []byte) (*domain.Offer, error) {
	var rec slotRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	if rec.ID == "" {
		return nil, ErrEmptySlot
	}

	assignedAt, err := ParseEventTime(rec.AssignedAt)
	if err != nil {
		return nil, err
	}

	return &domain.Offer{
		ID:                rec.ID,
		Kind:              domain.OfferKind(rec.Kind),
		Reference:         rec.Reference,
		RouteNumber:       rec.RouteNumber,
		PickupSummary:     rec.PickupSummary,
		DropoffSummary:    rec.DropoffSummary,
		AdditionalStops:   rec.AdditionalStops,
		EstimatedEarnings: rec.EstimatedEarnings,
		ScheduledAt:       rec.ScheduledAt,
		Distance:          rec.Distance,
		VehicleType:       rec.VehicleType,
		AssignedAt:        assignedAt,
		State:             domain.OfferStateOffered,
		AlertAcked:        rec.AlertAcked,
	}, nil
}

// ParseEventTime accepts an RFC 3339 timestamp or epoch seconds/milliseconds.
func ParseEventTime(value string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts, nil
	}
	if ts, err := time.Parse(time.RFC3339, value); err == nil {
		return ts, nil
	}
	epoch, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	// Millisecond epochs are far larger than any plausible second epoch.
	if epoch > 1e12 {
		return time.UnixMilli(epoch).UTC(), nil
	}
	return time.Unix(epoch, 0).UTC(), nil
}
