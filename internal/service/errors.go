package service

import "errors"

var (
	// ErrNoActiveOffer is returned when a user action arrives with no offer held.
	ErrNoActiveOffer = errors.New("no active offer")

	// ErrNoPendingDecline is returned when confirm/cancel arrives outside the
	// decline confirmation step.
	ErrNoPendingDecline = errors.New("no pending decline confirmation")

	// ErrAgentStopped is returned when the assignment authority is shut down.
	ErrAgentStopped = errors.New("assignment authority stopped")
)
