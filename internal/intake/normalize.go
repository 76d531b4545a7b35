package intake

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"courier/internal/domain"
	"courier/internal/repository"
)

// Event family names. The dispatch backend has emitted several generations of
// event names for the same families; all are accepted.
var (
	createdEvents = map[string]bool{
		"offer-created": true,
		"route-matched": true,
		"route-offer":   true,
		"job-offer":     true,
		"job-assigned":  true,
	}
	withdrawnEvents = map[string]bool{
		"offer-withdrawn": true,
		"job-removed":     true,
	}
	broadcastEvents = map[string]bool{
		"offer-broadcast-removed": true,
		"route-removed":           true,
		"route-cancelled":         true,
	}
	infoEvents = map[string]bool{
		"informational": true,
		"notification":  true,
	}
)

var (
	errUnknownEvent = errors.New("unknown event name")
	errMissingID    = errors.New("event carries no offer id")
)

// rawPayload covers the union of field spellings the channel delivers.
// Older emitters use routeId/bookingId/orderId/jobId and dropCount/jobCount;
// estimated earnings arrive as a formatted string or a bare number.
type rawPayload struct {
	ID        string `json:"id"`
	RouteID   string `json:"routeId"`
	BookingID string `json:"bookingId"`
	OrderID   string `json:"orderId"`
	JobID     string `json:"jobId"`

	Kind      string `json:"kind"`
	Type      string `json:"type"`
	MatchType string `json:"matchType"`

	Reference        string `json:"reference"`
	BookingReference string `json:"bookingReference"`
	OrderNumber      string `json:"orderNumber"`
	RouteNumber      string `json:"routeNumber"`

	PickupSummary  string `json:"pickupSummary"`
	Pickup         string `json:"pickup"`
	DropoffSummary string `json:"dropoffSummary"`
	Dropoff        string `json:"dropoff"`

	AdditionalStops *int `json:"additionalStops"`
	DropCount       *int `json:"dropCount"`
	JobCount        *int `json:"jobCount"`

	EstimatedEarnings json.RawMessage `json:"estimatedEarnings"`

	AssignedAt  string `json:"assignedAt"`
	ScheduledAt string `json:"scheduledAt"`
	Distance    string `json:"distance"`
	VehicleType string `json:"vehicleType"`

	Reason  string `json:"reason"`
	Message string `json:"message"`
	Title   string `json:"title"`
	Body    string `json:"body"`
}

func (p *rawPayload) offerID() string {
	for _, id := range []string{p.ID, p.RouteID, p.BookingID, p.OrderID, p.JobID} {
		if id != "" {
			return id
		}
	}
	return ""
}

// normalized is the canonical form handed to the authority. Exactly one of
// the three fields is set.
type normalized struct {
	Offer      *domain.Offer
	Withdrawal *domain.Withdrawal
	Notice     *domain.Notice
}

// normalize converts a raw channel payload into its canonical form.
func normalize(event string, body []byte) (*normalized, error) {
	event = strings.ToLower(strings.TrimSpace(event))

	var p rawPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("unmarshal %s payload: %w", event, err)
	}

	switch {
	case createdEvents[event]:
		offer, err := normalizeOffer(event, &p)
		if err != nil {
			return nil, err
		}
		return &normalized{Offer: offer}, nil

	case withdrawnEvents[event]:
		id := p.offerID()
		if id == "" {
			return nil, errMissingID
		}
		return &normalized{Withdrawal: &domain.Withdrawal{
			OfferID: id,
			Reason:  firstNonEmpty(p.Reason, p.Message),
			Scope:   domain.WithdrawalTargeted,
		}}, nil

	case broadcastEvents[event]:
		id := p.offerID()
		if id == "" {
			return nil, errMissingID
		}
		return &normalized{Withdrawal: &domain.Withdrawal{
			OfferID: id,
			Reason:  firstNonEmpty(p.Reason, p.Message),
			Scope:   domain.WithdrawalBroadcast,
		}}, nil

	case infoEvents[event]:
		return &normalized{Notice: &domain.Notice{
			Title: p.Title,
			Body:  firstNonEmpty(p.Body, p.Message),
		}}, nil
	}

	return nil, fmt.Errorf("%w: %s", errUnknownEvent, event)
}

func normalizeOffer(event string, p *rawPayload) (*domain.Offer, error) {
	id := p.offerID()
	if id == "" {
		return nil, errMissingID
	}
	if p.AssignedAt == "" {
		return nil, fmt.Errorf("offer %s: missing assignedAt", id)
	}
	assignedAt, err := repository.ParseEventTime(p.AssignedAt)
	if err != nil {
		return nil, fmt.Errorf("offer %s: bad assignedAt: %w", id, err)
	}

	return &domain.Offer{
		ID:                id,
		Kind:              normalizeKind(event, p),
		Reference:         firstNonEmpty(p.Reference, p.BookingReference, p.OrderNumber),
		RouteNumber:       p.RouteNumber,
		PickupSummary:     firstNonEmpty(p.PickupSummary, p.Pickup),
		DropoffSummary:    firstNonEmpty(p.DropoffSummary, p.Dropoff),
		AdditionalStops:   normalizeStops(p),
		EstimatedEarnings: normalizeEarnings(p.EstimatedEarnings),
		ScheduledAt:       p.ScheduledAt,
		Distance:          p.Distance,
		VehicleType:       p.VehicleType,
		AssignedAt:        assignedAt,
		State:             domain.OfferStateOffered,
	}, nil
}

func normalizeKind(event string, p *rawPayload) domain.OfferKind {
	switch strings.ToLower(firstNonEmpty(p.Kind, p.MatchType, p.Type)) {
	case "route":
		return domain.OfferKindRoute
	case "order", "single-order":
		return domain.OfferKindOrder
	}
	// Event name is the fallback signal: job-* events are single orders.
	if strings.HasPrefix(event, "job-") {
		return domain.OfferKindOrder
	}
	return domain.OfferKindRoute
}

// normalizeStops maps the stop-count aliases onto additional stops beyond the
// first drop. dropCount/jobCount count all drops, so one is subtracted.
func normalizeStops(p *rawPayload) int {
	if p.AdditionalStops != nil && *p.AdditionalStops >= 0 {
		return *p.AdditionalStops
	}
	for _, c := range []*int{p.DropCount, p.JobCount} {
		if c != nil && *c > 1 {
			return *c - 1
		}
	}
	return 0
}

// normalizeEarnings keeps the monetary value as an opaque display string.
func normalizeEarnings(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return fmt.Sprintf("£%.2f", n)
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
