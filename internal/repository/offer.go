package repository

import (
	"context"

	"courier/internal/domain"
)

// OfferStore is the durable single-slot offer record. The slot holds one offer
// or none; Replace always overwrites the whole slot, never merges.
type OfferStore interface {
	// Get reads the current slot. Returns ErrEmptySlot when no offer is held.
	// An unparsable persisted record is treated as an empty slot.
	Get(ctx context.Context) (*domain.Offer, error)

	// Replace atomically overwrites the slot with the given offer.
	Replace(ctx context.Context, offer *domain.Offer) error

	// Clear empties the slot. Clearing an already-empty slot is not an error.
	Clear(ctx context.Context) error
}
