package redis

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"

	"courier/internal/domain"
	"courier/internal/logging"
	"courier/internal/repository"
)

const offerSlotPrefix = "offer:slot:"

// OfferStore is a Redis implementation of repository.OfferStore. The slot is a
// single key holding the JSON record; SET and DEL are atomic, so a concurrent
// reader never observes a half-written record.
type OfferStore struct {
	client   *redis.Client
	workerID string
	log      logging.Logger
}

// NewOfferStore creates a Redis-backed offer slot for the given worker.
func NewOfferStore(client *redis.Client, workerID string, log logging.Logger) *OfferStore {
	return &OfferStore{client: client, workerID: workerID, log: log}
}

var _ repository.OfferStore = (*OfferStore)(nil)

func (s *OfferStore) key() string {
	return offerSlotPrefix + s.workerID
}

// Get reads the current slot.
func (s *OfferStore) Get(ctx context.Context) (*domain.Offer, error) {
	data, err := s.client.Get(ctx, s.key()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, repository.ErrEmptySlot
		}
		return nil, err
	}

	offer, err := repository.DecodeSlot(data)
	if err != nil {
		// Unparsable record is treated as an empty slot.
		s.log.Error("corrupt offer slot record, treating as empty",
			logging.String("worker_id", s.workerID), logging.Error(err))
		return nil, repository.ErrEmptySlot
	}
	return offer, nil
}

// Replace overwrites the slot with the given offer. No TTL: expiry is a state
// machine decision anchored at assigned_at, never delegated to the store.
func (s *OfferStore) Replace(ctx context.Context, offer *domain.Offer) error {
	data, err := repository.EncodeSlot(offer)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(), data, 0).Err()
}

// Clear empties the slot.
func (s *OfferStore) Clear(ctx context.Context) error {
	return s.client.Del(ctx, s.key()).Err()
}
