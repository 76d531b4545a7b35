package tests

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"courier/internal/domain"
	"courier/internal/logging"
	"courier/internal/service"
)

// ──────────────────────────────────────────────
// TEST FIXTURE
// ──────────────────────────────────────────────

type fixture struct {
	store   *MockOfferStore
	clock   *MockClock
	gateway *MockGateway
	alerts  *MockAlertPort
	auth    *service.AssignmentService
}

// newFixture starts an authority with an empty slot and all mocks wired.
func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		store:   NewMockOfferStore(),
		clock:   NewMockClock(),
		gateway: NewMockGateway(),
		alerts:  NewMockAlertPort(),
	}
	f.auth = service.NewAssignmentService("worker-1", f.store, f.clock, f.gateway, f.alerts, logging.NewNop())

	if err := f.auth.Start(context.Background()); err != nil {
		t.Fatalf("failed to start authority: %v", err)
	}
	t.Cleanup(f.auth.Stop)
	return f
}

// makeOffer builds an active offer assigned at the given instant.
func makeOffer(id string, assignedAt time.Time) domain.Offer {
	return domain.Offer{
		ID:                id,
		Kind:              domain.OfferKindRoute,
		Reference:         "R-4417",
		RouteNumber:       "17",
		PickupSummary:     "Depot North",
		DropoffSummary:    "EC1 zone",
		AdditionalStops:   3,
		EstimatedEarnings: "£24.50",
		VehicleType:       "bicycle",
		AssignedAt:        assignedAt,
		State:             domain.OfferStateOffered,
	}
}

// ──────────────────────────────────────────────
// 1. OFFER CREATION
// ──────────────────────────────────────────────

func TestOfferCreated_EmptySlot_HeldAndPersisted(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	offer := makeOffer("offer-1", time.Now())

	f.auth.HandleOfferCreated(offer)

	snap := f.auth.Snapshot()
	if !snap.Held {
		t.Fatal("expected offer to be held")
	}
	if snap.Offer.ID != "offer-1" {
		t.Errorf("expected offer-1 held, got %s", snap.Offer.ID)
	}
	if snap.Offer.State != domain.OfferStateOffered {
		t.Errorf("expected OFFERED state, got %s", snap.Offer.State)
	}

	if f.store.Slot() == nil {
		t.Error("expected offer to be persisted")
	}
	if got := atomic.LoadInt32(&f.clock.ArmCallCount); got != 1 {
		t.Errorf("expected clock armed once, got %d", got)
	}
	if got := atomic.LoadInt32(&f.alerts.OfferAlertCallCount); got != 1 {
		t.Errorf("expected one offer alert, got %d", got)
	}
}

func TestOfferCreated_DuplicateDelivery_SingleEffect(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	offer := makeOffer("offer-1", time.Now())

	// At-least-once push: the same event arrives twice.
	f.auth.HandleOfferCreated(offer)
	f.auth.HandleOfferCreated(offer)

	if got := atomic.LoadInt32(&f.alerts.OfferAlertCallCount); got != 1 {
		t.Errorf("expected one offer alert, got %d", got)
	}
	if got := atomic.LoadInt32(&f.store.ReplaceCallCount); got != 1 {
		t.Errorf("expected one persist, got %d", got)
	}
	if got := atomic.LoadInt32(&f.clock.ArmCallCount); got != 1 {
		t.Errorf("expected clock armed once, got %d", got)
	}
}

func TestOfferCreated_AnotherOfferHeld_Ignored(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.auth.HandleOfferCreated(makeOffer("offer-1", time.Now()))
	f.auth.HandleOfferCreated(makeOffer("offer-2", time.Now()))

	snap := f.auth.Snapshot()
	if snap.Offer.ID != "offer-1" {
		t.Errorf("expected offer-1 to stay held, got %s", snap.Offer.ID)
	}
	if slot := f.store.Slot(); slot == nil || slot.ID != "offer-1" {
		t.Error("expected persisted slot to stay offer-1")
	}
	if got := atomic.LoadInt32(&f.alerts.OfferAlertCallCount); got != 1 {
		t.Errorf("expected only the first alert, got %d", got)
	}
}

func TestOfferCreated_ArrivedPastDeadline_ExpiredImmediately(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	// Redelivered after the agent was offline for the full window.
	f.auth.HandleOfferCreated(makeOffer("offer-1", time.Now().Add(-31*time.Minute)))

	if f.auth.Snapshot().Held {
		t.Error("expected no offer to be held")
	}
	if got := atomic.LoadInt32(&f.store.ReplaceCallCount); got != 0 {
		t.Errorf("expected no persist for a dead-on-arrival offer, got %d", got)
	}
	if got := f.gateway.ExpireCount(); got != 1 {
		t.Errorf("expected one expire notice, got %d", got)
	}
	if got := atomic.LoadInt32(&f.alerts.OfferAlertCallCount); got != 0 {
		t.Errorf("expected no alert, got %d", got)
	}
}

func TestOfferCreated_PersistFailure_OfferStillHeld(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.store.ReplaceError = ErrMockStoreDown

	f.auth.HandleOfferCreated(makeOffer("offer-1", time.Now()))

	// Store trouble must not cost the worker the offer.
	if !f.auth.Snapshot().Held {
		t.Error("expected offer to be held despite store failure")
	}
	if got := atomic.LoadInt32(&f.alerts.OfferAlertCallCount); got != 1 {
		t.Errorf("expected offer alert to fire, got %d", got)
	}
}

// ──────────────────────────────────────────────
// 2. ACCEPT (VIEW)
// ──────────────────────────────────────────────

func TestView_ActiveOffer_Accepted(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.auth.HandleOfferCreated(makeOffer("offer-1", time.Now()))

	accepted, err := f.auth.View(context.Background())
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if accepted.State != domain.OfferStateAccepted {
		t.Errorf("expected ACCEPTED, got %s", accepted.State)
	}
	if accepted.ID != "offer-1" {
		t.Errorf("expected offer-1, got %s", accepted.ID)
	}

	if f.auth.Snapshot().Held {
		t.Error("expected slot to be released after accept")
	}
	if got := atomic.LoadInt32(&f.store.ClearCallCount); got != 1 {
		t.Errorf("expected slot cleared once, got %d", got)
	}
	if got := atomic.LoadInt32(&f.clock.DisarmCallCount); got != 1 {
		t.Errorf("expected clock disarmed once, got %d", got)
	}
	if len(f.gateway.AcceptViews) != 1 || f.gateway.AcceptViews[0] != "offer-1" {
		t.Error("expected accept-view handoff for offer-1")
	}
}

func TestView_EmptySlot_Fails(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	_, err := f.auth.View(context.Background())
	if !errors.Is(err, service.ErrNoActiveOffer) {
		t.Errorf("expected ErrNoActiveOffer, got: %v", err)
	}
}

// ──────────────────────────────────────────────
// 3. DECLINE FLOW
// ──────────────────────────────────────────────

func TestDecline_FullFlow_DeclinedWithReason(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.auth.HandleOfferCreated(makeOffer("offer-1", time.Now()))

	if err := f.auth.RequestDecline(context.Background()); err != nil {
		t.Fatalf("request decline: %v", err)
	}
	if got := f.auth.Snapshot().Offer.State; got != domain.OfferStateDeclining {
		t.Errorf("expected DECLINING, got %s", got)
	}
	// The confirmation step is in-memory only.
	if slot := f.store.Slot(); slot == nil || slot.State != domain.OfferStateOffered {
		t.Error("expected persisted slot to stay OFFERED during confirmation")
	}

	if err := f.auth.ConfirmDecline(context.Background(), "Too far from my area"); err != nil {
		t.Fatalf("confirm decline: %v", err)
	}

	if f.auth.Snapshot().Held {
		t.Error("expected slot to be released after decline")
	}
	if got := f.gateway.DeclineCount(); got != 1 {
		t.Fatalf("expected one decline send, got %d", got)
	}
	if last := f.gateway.LastDecline(); last.OfferID != "offer-1" || last.Reason != "Too far from my area" {
		t.Errorf("unexpected decline call: %+v", last)
	}
}

func TestDecline_DefaultReason(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.auth.HandleOfferCreated(makeOffer("offer-1", time.Now()))

	if err := f.auth.RequestDecline(context.Background()); err != nil {
		t.Fatalf("request decline: %v", err)
	}
	if err := f.auth.ConfirmDecline(context.Background(), ""); err != nil {
		t.Fatalf("confirm decline: %v", err)
	}

	if last := f.gateway.LastDecline(); last.Reason != "Declined by worker" {
		t.Errorf("expected default reason, got %q", last.Reason)
	}
}

func TestDecline_Cancel_BackToOffered(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.auth.HandleOfferCreated(makeOffer("offer-1", time.Now()))

	if err := f.auth.RequestDecline(context.Background()); err != nil {
		t.Fatalf("request decline: %v", err)
	}
	if err := f.auth.CancelDecline(context.Background()); err != nil {
		t.Fatalf("cancel decline: %v", err)
	}

	snap := f.auth.Snapshot()
	if !snap.Held || snap.Offer.State != domain.OfferStateOffered {
		t.Error("expected offer back in OFFERED after cancel")
	}
	// The alert is re-asserted when the worker backs out of declining.
	if got := atomic.LoadInt32(&f.alerts.OfferAlertCallCount); got != 2 {
		t.Errorf("expected re-asserted alert (2 total), got %d", got)
	}
	if got := f.gateway.DeclineCount(); got != 0 {
		t.Errorf("expected no decline send, got %d", got)
	}
}

func TestDecline_ConfirmWithoutRequest_Fails(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.auth.HandleOfferCreated(makeOffer("offer-1", time.Now()))

	err := f.auth.ConfirmDecline(context.Background(), "")
	if !errors.Is(err, service.ErrNoPendingDecline) {
		t.Errorf("expected ErrNoPendingDecline, got: %v", err)
	}
	if !f.auth.Snapshot().Held {
		t.Error("expected offer to stay held")
	}
}

func TestDecline_RequestTwice_Idempotent(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.auth.HandleOfferCreated(makeOffer("offer-1", time.Now()))

	if err := f.auth.RequestDecline(context.Background()); err != nil {
		t.Fatalf("first request: %v", err)
	}
	if err := f.auth.RequestDecline(context.Background()); err != nil {
		t.Fatalf("second request: %v", err)
	}
	if got := f.auth.Snapshot().Offer.State; got != domain.OfferStateDeclining {
		t.Errorf("expected DECLINING, got %s", got)
	}
}

// ──────────────────────────────────────────────
// 4. ALERT ACKNOWLEDGEMENT
// ──────────────────────────────────────────────

func TestAcknowledgeAlert_PersistedAndSilenced(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.auth.HandleOfferCreated(makeOffer("offer-1", time.Now()))

	if err := f.auth.AcknowledgeAlert(context.Background()); err != nil {
		t.Fatalf("acknowledge alert: %v", err)
	}

	if slot := f.store.Slot(); slot == nil || !slot.AlertAcked {
		t.Error("expected acknowledgement to be persisted")
	}
	if got := atomic.LoadInt32(&f.alerts.StopAlertCallCount); got != 1 {
		t.Errorf("expected alert silenced once, got %d", got)
	}

	// Second ack is a no-op.
	if err := f.auth.AcknowledgeAlert(context.Background()); err != nil {
		t.Fatalf("second acknowledge: %v", err)
	}
	if got := atomic.LoadInt32(&f.alerts.StopAlertCallCount); got != 1 {
		t.Errorf("expected no further silence calls, got %d", got)
	}
}
