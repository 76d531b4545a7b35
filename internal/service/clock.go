package service

import (
	"sync"
	"time"

	"courier/internal/domain"
)

// Clock arms a one-shot deadline signal for the currently held offer. Arming
// always cancels the previous timers first, so a stale timer can never fire
// against a newer offer.
type Clock interface {
	// Arm schedules the expiry signal for the offer's deadline and the expiry
	// warning at deadline minus the warning lead. A warning instant already in
	// the past is skipped.
	Arm(offer *domain.Offer)

	// Disarm cancels any armed timers.
	Disarm()
}

// DeadlineClock is the time.Timer implementation of Clock. It is event-driven:
// no polling, the timers fire once at the absolute instants.
type DeadlineClock struct {
	mu    sync.Mutex
	timer *time.Timer
	warn  *time.Timer

	onExpire func(offerID string, assignedAt time.Time)
	onWarn   func(offerID string, assignedAt time.Time)
}

// NewDeadlineClock creates an unbound clock; Bind must be called before Arm.
func NewDeadlineClock() *DeadlineClock {
	return &DeadlineClock{}
}

var _ Clock = (*DeadlineClock)(nil)

// Bind wires the expiry and warning callbacks. Split from the constructor
// because the clock and the authority reference each other.
func (c *DeadlineClock) Bind(onExpire, onWarn func(offerID string, assignedAt time.Time)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onExpire = onExpire
	c.onWarn = onWarn
}

// Arm schedules the deadline and warning timers for the offer.
func (c *DeadlineClock) Arm(offer *domain.Offer) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopLocked()

	id := offer.ID
	assignedAt := offer.AssignedAt
	onExpire := c.onExpire
	onWarn := c.onWarn

	now := time.Now()
	c.timer = time.AfterFunc(offer.Deadline().Sub(now), func() {
		if onExpire != nil {
			onExpire(id, assignedAt)
		}
	})

	if warnIn := offer.WarnAt().Sub(now); warnIn > 0 {
		c.warn = time.AfterFunc(warnIn, func() {
			if onWarn != nil {
				onWarn(id, assignedAt)
			}
		})
	}
}

// Disarm cancels any armed timers.
func (c *DeadlineClock) Disarm() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
}

func (c *DeadlineClock) stopLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if c.warn != nil {
		c.warn.Stop()
		c.warn = nil
	}
}
