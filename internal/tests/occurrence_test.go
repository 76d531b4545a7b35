package tests

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"courier/internal/domain"
)

// ──────────────────────────────────────────────
// 1. RE-OFFER OF A SETTLED ID
// ──────────────────────────────────────────────

func TestOfferCreated_RedeliveryAfterDecline_Stale(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	offer := makeOffer("offer-1", time.Now())
	f.auth.HandleOfferCreated(offer)

	if err := f.auth.RequestDecline(context.Background()); err != nil {
		t.Fatalf("request decline: %v", err)
	}
	if err := f.auth.ConfirmDecline(context.Background(), ""); err != nil {
		t.Fatalf("confirm decline: %v", err)
	}

	// The broker redelivers the event the worker already declined.
	f.auth.HandleOfferCreated(offer)

	if f.auth.Snapshot().Held {
		t.Error("expected redelivery of a settled occurrence to be ignored")
	}
	if got := atomic.LoadInt32(&f.alerts.OfferAlertCallCount); got != 1 {
		t.Errorf("expected no second alert, got %d", got)
	}
}

func TestOfferCreated_ReassignmentAfterDecline_NewOccurrence(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	first := makeOffer("offer-1", time.Now().Add(-2*time.Minute))
	f.auth.HandleOfferCreated(first)

	if err := f.auth.RequestDecline(context.Background()); err != nil {
		t.Fatalf("request decline: %v", err)
	}
	if err := f.auth.ConfirmDecline(context.Background(), ""); err != nil {
		t.Fatalf("confirm decline: %v", err)
	}

	// The dispatcher re-offers the same work later: a fresh occurrence with a
	// later assignment time and its own full answer window.
	second := makeOffer("offer-1", time.Now())
	f.auth.HandleOfferCreated(second)

	snap := f.auth.Snapshot()
	if !snap.Held || snap.Offer.ID != "offer-1" {
		t.Fatal("expected the re-offer to be held")
	}
	if !snap.Offer.AssignedAt.Equal(second.AssignedAt) {
		t.Error("expected the new occurrence's deadline anchor")
	}
	if got := atomic.LoadInt32(&f.alerts.OfferAlertCallCount); got != 2 {
		t.Errorf("expected a fresh alert for the re-offer, got %d", got)
	}
}

func TestOfferCreated_RedeliveryAfterExpiry_Stale(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	offer := makeOffer("offer-1", time.Now())
	f.auth.HandleOfferCreated(offer)
	f.auth.HandleDeadline(offer.ID, offer.AssignedAt)

	f.auth.HandleOfferCreated(offer)

	if f.auth.Snapshot().Held {
		t.Error("expected redelivery of an expired occurrence to be ignored")
	}
	if got := f.gateway.ExpireCount(); got != 1 {
		t.Errorf("expected a single expire notice, got %d", got)
	}
}

// ──────────────────────────────────────────────
// 2. RACE ARBITRATION
// ──────────────────────────────────────────────

func TestRace_ConfirmDeclineVsDeadline_OneWinner(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	offer := makeOffer("offer-1", time.Now())
	f.auth.HandleOfferCreated(offer)

	if err := f.auth.RequestDecline(context.Background()); err != nil {
		t.Fatalf("request decline: %v", err)
	}

	// Confirmation and the deadline signal land at the same instant. The
	// command queue serializes them; whichever is applied first settles the
	// offer and the other is a no-op.
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_ = f.auth.ConfirmDecline(context.Background(), "")
	}()
	go func() {
		defer wg.Done()
		f.auth.HandleDeadline(offer.ID, offer.AssignedAt)
	}()
	wg.Wait()

	if f.auth.Snapshot().Held {
		t.Error("expected slot to be released")
	}
	if got := f.gateway.DeclineCount() + f.gateway.ExpireCount(); got != 1 {
		t.Errorf("expected exactly one outbound decision, got %d", got)
	}
	if got := atomic.LoadInt32(&f.store.ClearCallCount); got != 1 {
		t.Errorf("expected the slot cleared exactly once, got %d", got)
	}
}

func TestRace_ViewVsWithdrawal_OneWinner(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	offer := makeOffer("offer-1", time.Now())
	f.auth.HandleOfferCreated(offer)

	var wg sync.WaitGroup
	wg.Add(2)
	var viewErr error
	go func() {
		defer wg.Done()
		_, viewErr = f.auth.View(context.Background())
	}()
	go func() {
		defer wg.Done()
		f.auth.HandleWithdrawal(domain.Withdrawal{
			OfferID: "offer-1",
			Scope:   domain.WithdrawalTargeted,
		})
	}()
	wg.Wait()

	if f.auth.Snapshot().Held {
		t.Error("expected slot to be released")
	}
	accepted := viewErr == nil
	withdrawn := atomic.LoadInt32(&f.alerts.WithdrawnCallCount) == 1
	if accepted == withdrawn {
		t.Errorf("expected exactly one winner, accepted=%v withdrawn=%v", accepted, withdrawn)
	}
	if got := atomic.LoadInt32(&f.store.ClearCallCount); got != 1 {
		t.Errorf("expected the slot cleared exactly once, got %d", got)
	}
}

// ──────────────────────────────────────────────
// 3. SNAPSHOT STREAM
// ──────────────────────────────────────────────

func TestSubscribe_ReceivesTransitions(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ch, cancel := f.auth.Subscribe()
	defer cancel()

	offer := makeOffer("offer-1", time.Now())
	f.auth.HandleOfferCreated(offer)

	select {
	case snap := <-ch:
		if !snap.Held || snap.Offer.ID != "offer-1" {
			t.Errorf("expected held offer-1 snapshot, got %+v", snap)
		}
	case <-time.After(time.Second):
		t.Fatal("no snapshot received after offer creation")
	}

	f.auth.HandleDeadline(offer.ID, offer.AssignedAt)

	select {
	case snap := <-ch:
		if snap.Held {
			t.Error("expected empty snapshot after expiry")
		}
	case <-time.After(time.Second):
		t.Fatal("no snapshot received after expiry")
	}
}

func TestSubscribe_CancelStopsDelivery(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ch, cancel := f.auth.Subscribe()
	cancel()

	if _, ok := <-ch; ok {
		t.Error("expected subscription channel to be closed")
	}
}
