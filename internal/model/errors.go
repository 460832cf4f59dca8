package model

import "errors"

var (
	// Entry related errors
	ErrEntryNotFound           = errors.New("quarantine entry not found")
	ErrEntryExists             = errors.New("quarantine entry already exists")
	ErrInvalidStatusTransition = errors.New("invalid quarantine status transition")

	// Generic errors
	ErrInvalidInput = errors.New("invalid input")
)
