package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"courier/internal/domain"
	"courier/internal/logging"
	"courier/internal/repository"
)

const (
	storeTimeout = 5 * time.Second

	// How long a terminal occurrence is remembered so redelivered
	// offer-created events for it are recognized as stale.
	terminalMemoryTTL = time.Hour
)

// Snapshot is the last-committed state exposed to the presentation layer.
// Reads are lock-free and never touch the actor.
type Snapshot struct {
	Held  bool
	Offer domain.Offer
}

// AssignmentService is the single serialized decision-maker for the worker's
// offer lifecycle. Event intake, the deadline clock and user actions all feed
// one command queue consumed by one goroutine, so transition application is
// never interleaved. It is the only component that mutates the offer store.
type AssignmentService struct {
	workerID string
	store    repository.OfferStore
	clock    Clock
	gateway  DecisionGateway
	alerts   AlertPort
	log      logging.Logger
	now      func() time.Time

	cmds chan command
	quit chan struct{}
	done chan struct{}

	snapshot atomic.Pointer[Snapshot]

	subMu  sync.Mutex
	subs   map[int]chan Snapshot
	nextID int

	// Owned by the actor goroutine after Start; no locking needed.
	current   *domain.Offer
	terminals map[string]terminalMark
}

type terminalMark struct {
	assignedAt time.Time
	recordedAt time.Time
}

type command struct {
	fn    func() error
	reply chan error
}

// NewAssignmentService creates the authority for one worker session.
func NewAssignmentService(
	workerID string,
	store repository.OfferStore,
	clock Clock,
	gateway DecisionGateway,
	alerts AlertPort,
	log logging.Logger,
) *AssignmentService {
	s := &AssignmentService{
		workerID:  workerID,
		store:     store,
		clock:     clock,
		gateway:   gateway,
		alerts:    alerts,
		log:       log,
		now:       time.Now,
		cmds:      make(chan command, 32),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
		subs:      make(map[int]chan Snapshot),
		terminals: make(map[string]terminalMark),
	}
	s.snapshot.Store(&Snapshot{})
	return s
}

// Start restores the persisted slot and launches the actor loop. Restore runs
// before any producer is wired, so the worker can never observe an
// already-expired offer as active.
func (s *AssignmentService) Start(ctx context.Context) error {
	offer, err := s.store.Get(ctx)
	switch {
	case errors.Is(err, repository.ErrEmptySlot):
		// Nothing held.
	case err != nil:
		return err
	case offer.ExpiredAt(s.now()):
		s.log.Info("restored offer already past deadline, expiring",
			logging.String("offer_id", offer.ID))
		s.rememberTerminal(offer)
		if err := s.clearSlot(); err != nil {
			s.log.Error("failed to clear expired slot", logging.Error(err))
		}
		s.gateway.SendExpire(offer.ID)
	default:
		offer.State = domain.OfferStateOffered
		s.current = offer
		s.clock.Arm(offer)
		if !offer.AlertAcked {
			s.alerts.OfferAlert(offer)
		}
		s.publish()
		s.log.Info("restored active offer",
			logging.String("offer_id", offer.ID),
			logging.Duration("remaining", offer.Remaining(s.now())))
	}

	go s.run()
	return nil
}

// Stop shuts the actor down. Pending commands are refused.
func (s *AssignmentService) Stop() {
	close(s.quit)
	<-s.done
	s.clock.Disarm()
}

func (s *AssignmentService) run() {
	defer close(s.done)
	for {
		select {
		case cmd := <-s.cmds:
			cmd.reply <- cmd.fn()
		case <-s.quit:
			for {
				select {
				case cmd := <-s.cmds:
					cmd.reply <- ErrAgentStopped
				default:
					return
				}
			}
		}
	}
}

// do runs fn on the actor goroutine and waits for the result.
func (s *AssignmentService) do(ctx context.Context, fn func() error) error {
	cmd := command{fn: fn, reply: make(chan error, 1)}
	select {
	case s.cmds <- cmd:
	case <-s.quit:
		return ErrAgentStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-cmd.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot returns the last-committed state without blocking.
func (s *AssignmentService) Snapshot() Snapshot {
	return *s.snapshot.Load()
}

// Subscribe returns a channel receiving a snapshot after every committed
// transition, and a cancel function. Slow consumers miss intermediate
// snapshots rather than blocking the authority.
func (s *AssignmentService) Subscribe() (<-chan Snapshot, func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	id := s.nextID
	s.nextID++
	ch := make(chan Snapshot, 8)
	s.subs[id] = ch
	return ch, func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		if c, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(c)
		}
	}
}

// ─── Event intake ──────────────────────────────

// HandleOfferCreated applies an offer-created event.
func (s *AssignmentService) HandleOfferCreated(offer domain.Offer) {
	_ = s.do(context.Background(), func() error {
		s.applyOfferCreated(offer)
		return nil
	})
}

// HandleWithdrawal applies an offer-withdrawn or broadcast removal.
func (s *AssignmentService) HandleWithdrawal(w domain.Withdrawal) {
	_ = s.do(context.Background(), func() error {
		s.applyWithdrawal(w)
		return nil
	})
}

// HandleNotice forwards an informational event straight to the side-effect
// port. No state is involved, so it bypasses the queue.
func (s *AssignmentService) HandleNotice(n domain.Notice) {
	s.alerts.Info(n.Title, n.Body)
}

// ─── Clock ─────────────────────────────────────

// HandleDeadline applies the deadline-reached signal for an offer occurrence.
func (s *AssignmentService) HandleDeadline(offerID string, assignedAt time.Time) {
	_ = s.do(context.Background(), func() error {
		s.applyDeadline(offerID, assignedAt)
		return nil
	})
}

// HandleExpiryWarning fires the expiring-soon alert if the occurrence is
// still the one held.
func (s *AssignmentService) HandleExpiryWarning(offerID string, assignedAt time.Time) {
	_ = s.do(context.Background(), func() error {
		if s.holds(offerID, assignedAt) {
			s.alerts.ExpiryWarning(s.current)
		}
		return nil
	})
}

// ─── User actions ──────────────────────────────

// View accepts the offer for viewing: the terminal ACCEPTED transition. The
// returned offer is what the UI navigates to.
func (s *AssignmentService) View(ctx context.Context) (domain.Offer, error) {
	var accepted domain.Offer
	err := s.do(ctx, func() error {
		if s.current == nil {
			return ErrNoActiveOffer
		}
		accepted = *s.current
		accepted.State = domain.OfferStateAccepted
		s.commitTerminal(domain.OfferStateAccepted)
		s.gateway.NotifyAcceptView(accepted.ID)
		return nil
	})
	return accepted, err
}

// RequestDecline enters the decline confirmation step. No persistence change:
// the slot still holds the offer as OFFERED until the decision is confirmed.
func (s *AssignmentService) RequestDecline(ctx context.Context) error {
	return s.do(ctx, func() error {
		if s.current == nil {
			return ErrNoActiveOffer
		}
		if s.current.State == domain.OfferStateDeclining {
			return nil // already confirming
		}
		s.current.State = domain.OfferStateDeclining
		s.publish()
		return nil
	})
}

// CancelDecline leaves the confirmation step and re-asserts the alert.
func (s *AssignmentService) CancelDecline(ctx context.Context) error {
	return s.do(ctx, func() error {
		if s.current == nil {
			return ErrNoActiveOffer
		}
		if s.current.State != domain.OfferStateDeclining {
			return ErrNoPendingDecline
		}
		s.current.State = domain.OfferStateOffered
		if !s.current.AlertAcked {
			s.alerts.OfferAlert(s.current)
		}
		s.publish()
		return nil
	})
}

// ConfirmDecline commits the terminal DECLINED transition and queues the
// decline notice for delivery.
func (s *AssignmentService) ConfirmDecline(ctx context.Context, reason string) error {
	return s.do(ctx, func() error {
		if s.current == nil {
			return ErrNoActiveOffer
		}
		if s.current.State != domain.OfferStateDeclining {
			return ErrNoPendingDecline
		}
		if reason == "" {
			reason = "Declined by worker"
		}
		id := s.current.ID
		s.commitTerminal(domain.OfferStateDeclined)
		s.gateway.SendDecline(id, reason)
		return nil
	})
}

// AcknowledgeAlert records that the worker has seen the offer alert, so a
// later restore does not re-fire it.
func (s *AssignmentService) AcknowledgeAlert(ctx context.Context) error {
	return s.do(ctx, func() error {
		if s.current == nil {
			return ErrNoActiveOffer
		}
		if s.current.AlertAcked {
			return nil
		}
		s.current.AlertAcked = true
		s.alerts.StopAlert(s.current.ID)
		if err := s.replaceSlot(s.current); err != nil {
			s.log.Error("failed to persist alert ack", logging.Error(err))
		}
		s.publish()
		return nil
	})
}

// ─── Transitions (actor goroutine only) ────────

func (s *AssignmentService) applyOfferCreated(offer domain.Offer) {
	if s.current != nil {
		if s.current.ID == offer.ID {
			s.log.Debug("duplicate offer-created ignored", logging.String("offer_id", offer.ID))
			return
		}
		// A worker device holds exactly one offer; the dispatcher is
		// responsible for not double-assigning.
		s.log.Warn("offer-created while another offer is held, ignored",
			logging.String("held_id", s.current.ID),
			logging.String("incoming_id", offer.ID))
		return
	}

	if mark, ok := s.terminals[offer.ID]; ok && !offer.AssignedAt.After(mark.assignedAt) {
		s.log.Debug("stale offer-created for settled occurrence ignored",
			logging.String("offer_id", offer.ID),
			logging.Time("assigned_at", offer.AssignedAt))
		return
	}

	if offer.ExpiredAt(s.now()) {
		s.log.Info("offer-created arrived past its deadline, expiring immediately",
			logging.String("offer_id", offer.ID))
		s.rememberTerminal(&offer)
		s.gateway.SendExpire(offer.ID)
		return
	}

	offer.State = domain.OfferStateOffered
	offer.AlertAcked = false

	// The slot write completes before the clock is armed and before any side
	// effect fires, so a crash cannot leave a timer armed for a state that
	// did not survive.
	if err := s.replaceSlot(&offer); err != nil {
		s.log.Error("failed to persist offer slot", logging.Error(err))
	}

	s.current = &offer
	s.gateway.Abandon(offer.ID)
	s.clock.Arm(&offer)
	s.alerts.OfferAlert(&offer)
	s.publish()
	s.log.Info("offer received",
		logging.String("offer_id", offer.ID),
		logging.String("kind", string(offer.Kind)),
		logging.Time("deadline", offer.Deadline()))
}

func (s *AssignmentService) applyWithdrawal(w domain.Withdrawal) {
	if s.current == nil || s.current.ID != w.OfferID {
		s.log.Debug("withdrawal for offer not held, ignored",
			logging.String("offer_id", w.OfferID),
			logging.String("scope", string(w.Scope)))
		return
	}
	// Authoritative: pre-empts an in-flight decline confirmation.
	id := s.current.ID
	s.commitTerminal(domain.OfferStateWithdrawn)
	s.alerts.Withdrawn(id, w.Reason)
	s.log.Info("offer withdrawn",
		logging.String("offer_id", id),
		logging.String("scope", string(w.Scope)),
		logging.String("reason", w.Reason))
}

func (s *AssignmentService) applyDeadline(offerID string, assignedAt time.Time) {
	if !s.holds(offerID, assignedAt) {
		s.log.Debug("stale deadline signal ignored", logging.String("offer_id", offerID))
		return
	}
	id := s.current.ID
	s.commitTerminal(domain.OfferStateExpired)
	s.gateway.SendExpire(id)
	s.log.Info("offer expired", logging.String("offer_id", id))
}

// holds reports whether the given occurrence is the one currently held.
func (s *AssignmentService) holds(offerID string, assignedAt time.Time) bool {
	return s.current != nil && s.current.ID == offerID && s.current.AssignedAt.Equal(assignedAt)
}

// commitTerminal clears the slot, disarms the clock, silences the alert,
// records the terminal occurrence and publishes the empty snapshot.
func (s *AssignmentService) commitTerminal(state domain.OfferState) {
	offer := s.current
	if err := s.clearSlot(); err != nil {
		s.log.Error("failed to clear offer slot", logging.Error(err))
	}
	s.clock.Disarm()
	s.alerts.StopAlert(offer.ID)
	s.rememberTerminal(offer)
	s.current = nil
	s.publish()
	s.log.Debug("terminal transition committed",
		logging.String("offer_id", offer.ID),
		logging.String("state", string(state)))
}

func (s *AssignmentService) rememberTerminal(offer *domain.Offer) {
	now := s.now()
	for id, mark := range s.terminals {
		if now.Sub(mark.recordedAt) > terminalMemoryTTL {
			delete(s.terminals, id)
		}
	}
	s.terminals[offer.ID] = terminalMark{assignedAt: offer.AssignedAt, recordedAt: now}
}

func (s *AssignmentService) publish() {
	snap := Snapshot{}
	if s.current != nil {
		snap.Held = true
		snap.Offer = *s.current
	}
	s.snapshot.Store(&snap)

	s.subMu.Lock()
	for _, ch := range s.subs {
		select {
		case ch <- snap:
		default:
		}
	}
	s.subMu.Unlock()
}

func (s *AssignmentService) replaceSlot(offer *domain.Offer) error {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	return s.store.Replace(ctx, offer)
}

func (s *AssignmentService) clearSlot() error {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	return s.store.Clear(ctx)
}
