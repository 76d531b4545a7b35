package postgres

import (
	"context"
	"database/sql"
	"errors"

	"courier/internal/domain"
	"courier/internal/logging"
	"courier/internal/repository"
)

// OfferStore is a PostgreSQL implementation of repository.OfferStore.
//
// Table layout (one row per worker, the row IS the slot):
//
//	CREATE TABLE offer_slots (
//	    worker_id  TEXT PRIMARY KEY,
//	    record     JSONB NOT NULL,
//	    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
//	);
type OfferStore struct {
	q        Querier
	workerID string
	log      logging.Logger
}

// NewOfferStore creates a PostgreSQL-backed offer slot for the given worker.
func NewOfferStore(db *sql.DB, workerID string, log logging.Logger) *OfferStore {
	return &OfferStore{q: db, workerID: workerID, log: log}
}

var _ repository.OfferStore = (*OfferStore)(nil)

// Get reads the current slot.
func (s *OfferStore) Get(ctx context.Context) (*domain.Offer, error) {
	query := `SELECT record FROM offer_slots WHERE worker_id = $1`

	var record []byte
	err := s.q.QueryRowContext(ctx, query, s.workerID).Scan(&record)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrEmptySlot
		}
		return nil, err
	}

	offer, err := repository.DecodeSlot(record)
	if err != nil {
		// Unparsable record is treated as an empty slot.
		s.log.Error("corrupt offer slot record, treating as empty",
			logging.String("worker_id", s.workerID), logging.Error(err))
		return nil, repository.ErrEmptySlot
	}
	return offer, nil
}

// Replace overwrites the slot with the given offer. The upsert makes the write
// atomic relative to concurrent reads: a reader sees the old record or the new
// one, never a mix.
func (s *OfferStore) Replace(ctx context.Context, offer *domain.Offer) error {
	record, err := repository.EncodeSlot(offer)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO offer_slots (worker_id, record, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (worker_id) DO UPDATE SET record = EXCLUDED.record, updated_at = now()
	`
	_, err = s.q.ExecContext(ctx, query, s.workerID, record)
	return err
}

// Clear empties the slot.
func (s *OfferStore) Clear(ctx context.Context) error {
	_, err := s.q.ExecContext(ctx, `DELETE FROM offer_slots WHERE worker_id = $1`, s.workerID)
	return err
}
