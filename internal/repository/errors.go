package repository

import "errors"

var (
	// ErrEmptySlot is returned when the durable offer slot holds no offer.
	ErrEmptySlot = errors.New("offer slot is empty")
)
