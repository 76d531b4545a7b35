package domain

import (
	"testing"
	"time"
)

func TestOffer_DeadlineAnchoredAtAssignedAt(t *testing.T) {
	t.Parallel()

	assigned := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	o := &Offer{ID: "J1", AssignedAt: assigned}

	want := assigned.Add(30 * time.Minute)
	if !o.Deadline().Equal(want) {
		t.Errorf("deadline = %v, want %v", o.Deadline(), want)
	}
}

func TestOffer_RemainingClampsAtZero(t *testing.T) {
	t.Parallel()

	assigned := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	o := &Offer{ID: "J1", AssignedAt: assigned}

	if got := o.Remaining(assigned.Add(29*time.Minute + 59*time.Second)); got != time.Second {
		t.Errorf("remaining just before deadline = %v, want 1s", got)
	}
	if got := o.Remaining(assigned.Add(31 * time.Minute)); got != 0 {
		t.Errorf("remaining after deadline = %v, want 0", got)
	}
}

func TestOffer_ExpiredAtBoundary(t *testing.T) {
	t.Parallel()

	assigned := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	o := &Offer{ID: "R7", AssignedAt: assigned}

	if o.ExpiredAt(assigned.Add(29*time.Minute + 59*time.Second)) {
		t.Error("offer should not be expired at T+29m59s")
	}
	if !o.ExpiredAt(assigned.Add(30 * time.Minute)) {
		t.Error("offer should be expired exactly at the deadline")
	}
	if !o.ExpiredAt(assigned.Add(30*time.Minute + time.Second)) {
		t.Error("offer should be expired at T+30m01s")
	}
}

func TestOfferState_Terminal(t *testing.T) {
	t.Parallel()

	terminal := []OfferState{OfferStateAccepted, OfferStateDeclined, OfferStateExpired, OfferStateWithdrawn}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("state %s should be terminal", s)
		}
	}
	if OfferStateOffered.Terminal() {
		t.Error("OFFERED must not be terminal")
	}
	if OfferStateDeclining.Terminal() {
		t.Error("DECLINING must not be terminal")
	}
}
