package domain

import "time"

// OfferKind distinguishes a single order from a multi-stop route.
type OfferKind string

const (
	OfferKindOrder OfferKind = "ORDER"
	OfferKindRoute OfferKind = "ROUTE"
)

// OfferState represents the current lifecycle state of an offer.
type OfferState string

const (
	OfferStateOffered   OfferState = "OFFERED"
	OfferStateDeclining OfferState = "DECLINING"
	OfferStateAccepted  OfferState = "ACCEPTED"
	OfferStateDeclined  OfferState = "DECLINED"
	OfferStateExpired   OfferState = "EXPIRED"
	OfferStateWithdrawn OfferState = "WITHDRAWN"
)

// Terminal reports whether no further transition is possible from this state.
func (s OfferState) Terminal() bool {
	switch s {
	case OfferStateAccepted, OfferStateDeclined, OfferStateExpired, OfferStateWithdrawn:
		return true
	}
	return false
}

// OfferTTL is how long a worker has to answer an offer, measured from AssignedAt.
const OfferTTL = 30 * time.Minute

// ExpiryWarningLead is how far before the deadline the expiry warning fires.
const ExpiryWarningLead = 5 * time.Minute

// Offer is a time-bound proposal of a single order or multi-stop route to one worker.
//
// AssignedAt is the event origin time and the deadline anchor. The deadline is
// always recomputed from it; a remaining-seconds value is never stored.
type Offer struct {
	ID                string
	Kind              OfferKind
	Reference         string
	RouteNumber       string
	PickupSummary     string
	DropoffSummary    string
	AdditionalStops   int
	EstimatedEarnings string
	ScheduledAt       string
	Distance          string
	VehicleType       string
	AssignedAt        time.Time
	State             OfferState
	AlertAcked        bool
}

// Deadline is the absolute instant after which an unanswered offer expires.
func (o *Offer) Deadline() time.Time {
	return o.AssignedAt.Add(OfferTTL)
}

// Remaining returns the time left before the deadline, clamped at zero.
func (o *Offer) Remaining(now time.Time) time.Duration {
	d := o.Deadline().Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// ExpiredAt reports whether the offer's deadline has passed at the given instant.
func (o *Offer) ExpiredAt(now time.Time) bool {
	return !now.Before(o.Deadline())
}

// WarnAt is the instant the expiry warning should fire.
func (o *Offer) WarnAt() time.Time {
	return o.Deadline().Add(-ExpiryWarningLead)
}
